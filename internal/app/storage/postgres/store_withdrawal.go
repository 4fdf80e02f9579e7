package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/withdrawalop"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

var _ storage.WithdrawalStore = (*Store)(nil)

func (s *Store) CreateWithdrawal(ctx context.Context, op withdrawalop.Op) (withdrawalop.Op, error) {
	if op.Wopid == "" {
		op.Wopid = uuid.NewString()
	}
	now := time.Now().UTC()
	op.CreatedAt, op.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO taler_withdrawals (wopid, account_id, amount, currency, state,
			selected_exchange_iban, reserve_pub, confirmed_transaction_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, op.Wopid, op.AccountID, op.Amount, op.Currency, op.State,
		toNullString(op.SelectedExchangeIBAN), toNullString(op.ReservePub),
		toNullString(op.ConfirmedTransactionID), op.CreatedAt, op.UpdatedAt)
	if err != nil {
		return withdrawalop.Op{}, err
	}
	return op, nil
}

func (s *Store) UpdateWithdrawal(ctx context.Context, op withdrawalop.Op) (withdrawalop.Op, error) {
	op.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE taler_withdrawals
		SET state=$2, selected_exchange_iban=$3, reserve_pub=$4, confirmed_transaction_id=$5, updated_at=$6
		WHERE wopid=$1
	`, op.Wopid, op.State, toNullString(op.SelectedExchangeIBAN), toNullString(op.ReservePub),
		toNullString(op.ConfirmedTransactionID), op.UpdatedAt)
	if err != nil {
		return withdrawalop.Op{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return withdrawalop.Op{}, sql.ErrNoRows
	}
	return op, nil
}

func (s *Store) GetWithdrawal(ctx context.Context, wopid string) (withdrawalop.Op, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT wopid, account_id, amount, currency, state, selected_exchange_iban, reserve_pub,
			confirmed_transaction_id, created_at, updated_at
		FROM taler_withdrawals WHERE wopid=$1
	`, wopid)

	var (
		op                                         withdrawalop.Op
		selectedIBAN, reservePub, confirmedTxID sql.NullString
	)
	if err := row.Scan(&op.Wopid, &op.AccountID, &op.Amount, &op.Currency, &op.State,
		&selectedIBAN, &reservePub, &confirmedTxID, &op.CreatedAt, &op.UpdatedAt); err != nil {
		return withdrawalop.Op{}, err
	}
	op.SelectedExchangeIBAN = fromNullString(selectedIBAN)
	op.ReservePub = fromNullString(reservePub)
	op.ConfirmedTransactionID = fromNullString(confirmedTxID)
	return op, nil
}

func (s *Store) ListWithdrawalsByAccount(ctx context.Context, accountID string) ([]withdrawalop.Op, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wopid, account_id, amount, currency, state, selected_exchange_iban, reserve_pub,
			confirmed_transaction_id, created_at, updated_at
		FROM taler_withdrawals WHERE account_id=$1
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []withdrawalop.Op
	for rows.Next() {
		var (
			op                                       withdrawalop.Op
			selectedIBAN, reservePub, confirmedTxID sql.NullString
		)
		if err := rows.Scan(&op.Wopid, &op.AccountID, &op.Amount, &op.Currency, &op.State,
			&selectedIBAN, &reservePub, &confirmedTxID, &op.CreatedAt, &op.UpdatedAt); err != nil {
			return nil, err
		}
		op.SelectedExchangeIBAN = fromNullString(selectedIBAN)
		op.ReservePub = fromNullString(reservePub)
		op.ConfirmedTransactionID = fromNullString(confirmedTxID)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
