package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

var _ storage.EbicsTxStore = (*Store)(nil)

func (s *Store) CreateUploadTx(ctx context.Context, tx storage.UploadTx) (storage.UploadTx, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ebics_upload_transactions (transaction_id, host_id, subscriber_id, order_id,
			order_type, phase, num_segments, order_data, transaction_key, signature, receipt_code, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, tx.TransactionID, tx.HostID, tx.SubscriberID, tx.OrderID, tx.OrderType, tx.Phase,
		tx.NumSegments, tx.OrderData, tx.TransactionKey, tx.Signature, tx.ReceiptCode, tx.CreatedAt)
	if err != nil {
		return storage.UploadTx{}, err
	}
	return tx, nil
}

func (s *Store) GetUploadTx(ctx context.Context, transactionID string) (storage.UploadTx, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, host_id, subscriber_id, order_id, order_type, phase, num_segments,
			order_data, transaction_key, signature, receipt_code, created_at
		FROM ebics_upload_transactions WHERE transaction_id=$1
	`, transactionID)
	var tx storage.UploadTx
	if err := row.Scan(&tx.TransactionID, &tx.HostID, &tx.SubscriberID, &tx.OrderID, &tx.OrderType,
		&tx.Phase, &tx.NumSegments, &tx.OrderData, &tx.TransactionKey, &tx.Signature, &tx.ReceiptCode, &tx.CreatedAt); err != nil {
		return storage.UploadTx{}, err
	}
	return tx, nil
}

func (s *Store) UpdateUploadTx(ctx context.Context, tx storage.UploadTx) (storage.UploadTx, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE ebics_upload_transactions
		SET phase=$2, num_segments=$3, order_data=$4, transaction_key=$5, signature=$6, receipt_code=$7
		WHERE transaction_id=$1
	`, tx.TransactionID, tx.Phase, tx.NumSegments, tx.OrderData, tx.TransactionKey, tx.Signature, tx.ReceiptCode)
	if err != nil {
		return storage.UploadTx{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.UploadTx{}, sql.ErrNoRows
	}
	return tx, nil
}

func (s *Store) CreateDownloadTx(ctx context.Context, tx storage.DownloadTx) (storage.DownloadTx, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ebics_download_transactions (transaction_id, host_id, subscriber_id, order_type,
			phase, order_data, num_segments, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tx.TransactionID, tx.HostID, tx.SubscriberID, tx.OrderType, tx.Phase, tx.OrderData,
		tx.NumSegments, tx.CreatedAt)
	if err != nil {
		return storage.DownloadTx{}, err
	}
	return tx, nil
}

func (s *Store) GetDownloadTx(ctx context.Context, transactionID string) (storage.DownloadTx, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, host_id, subscriber_id, order_type, phase, order_data, num_segments, created_at
		FROM ebics_download_transactions WHERE transaction_id=$1
	`, transactionID)
	var tx storage.DownloadTx
	if err := row.Scan(&tx.TransactionID, &tx.HostID, &tx.SubscriberID, &tx.OrderType, &tx.Phase,
		&tx.OrderData, &tx.NumSegments, &tx.CreatedAt); err != nil {
		return storage.DownloadTx{}, err
	}
	return tx, nil
}

func (s *Store) UpdateDownloadTx(ctx context.Context, tx storage.DownloadTx) (storage.DownloadTx, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE ebics_download_transactions SET phase=$2, num_segments=$3 WHERE transaction_id=$1
	`, tx.TransactionID, tx.Phase, tx.NumSegments)
	if err != nil {
		return storage.DownloadTx{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.DownloadTx{}, sql.ErrNoRows
	}
	return tx, nil
}
