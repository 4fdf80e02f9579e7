package ebics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/subscriber"
	"github.com/stanisci/ebics-sandbox/internal/app/ebicserr"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

func orderSignatureFor(tx storage.UploadTx, signature []byte) subscriber.OrderSignature {
	return subscriber.OrderSignature{
		ID:           uuid.NewString(),
		SubscriberID: tx.SubscriberID,
		OrderID:      tx.OrderID,
		OrderType:    tx.OrderType,
		Signature:    signature,
		CreatedAt:    time.Now().UTC(),
	}
}

// orderIDWidth is the fixed width of an engine-assigned OrderID, e.g. "AAAA".
const orderIDWidth = 4

// encodeOrderID base-26 encodes n (A=0, B=1, ...) into a fixed-width OrderID
// of uppercase letters (n=0 gives AAAA, n=1 gives AAAB, ...).
func encodeOrderID(n int) string {
	buf := make([]byte, orderIDWidth)
	for i := orderIDWidth - 1; i >= 0; i-- {
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf)
}

// StartUpload begins an upload order (Initialisation phase). segmentData is
// the still-encrypted, still-compressed payload of the single upload
// segment; multi-segment upload is not implemented and is rejected here
// rather than accumulated across calls. The OrderID is assigned by the
// engine from the subscriber's running sequence, not chosen by the client.
func (e *Engine) StartUpload(ctx context.Context, hostID, subscriberID, partnerID, orderType string, segmentData []byte, numSegments int) (storage.UploadTx, error) {
	if numSegments > 1 {
		return storage.UploadTx{}, ebicserr.New(ebicserr.InvalidRequest, "multi-segment upload not implemented")
	}

	sub, err := e.subs.GetSubscriberByID(ctx, subscriberID)
	if err != nil {
		return storage.UploadTx{}, ebicserr.New(ebicserr.InvalidUserOrUserState, subscriberID)
	}
	orderID := encodeOrderID(sub.NextOrderSeq)
	sub.NextOrderSeq++
	if _, err := e.subs.UpdateSubscriber(ctx, sub); err != nil {
		return storage.UploadTx{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	txID, err := NewTransactionID()
	if err != nil {
		return storage.UploadTx{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	tx := storage.UploadTx{
		TransactionID: txID,
		HostID:        hostID,
		SubscriberID:  subscriberID,
		OrderID:       orderID,
		OrderType:     orderType,
		Phase:         storage.PhaseTransfer,
		NumSegments:   numSegments,
		OrderData:     append([]byte(nil), segmentData...),
		CreatedAt:     time.Now().UTC(),
	}
	return e.txs.CreateUploadTx(ctx, tx)
}

// FinalizeUpload marks the transaction's receipt and records its OrderID and
// A006 signature as consumed, returning the assembled order data for the
// caller to decrypt and act on (e.g. book a pain.001 payment).
func (e *Engine) FinalizeUpload(ctx context.Context, transactionID string, partnerID string, receiptCode int, signature []byte) (storage.UploadTx, error) {
	tx, err := e.txs.GetUploadTx(ctx, transactionID)
	if err != nil {
		return storage.UploadTx{}, ebicserr.New(ebicserr.ProcessingError, transactionID)
	}
	if tx.Phase != storage.PhaseTransfer {
		return storage.UploadTx{}, ebicserr.New(ebicserr.ProcessingError, "transaction not ready for receipt")
	}
	tx.Phase = storage.PhaseReceipt
	tx.ReceiptCode = receiptCode
	updated, err := e.txs.UpdateUploadTx(ctx, tx)
	if err != nil {
		return storage.UploadTx{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	if receiptCode == 0 {
		if err := e.subs.SaveOrderSignature(ctx, orderSignatureFor(tx, signature)); err != nil {
			return storage.UploadTx{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
		}
	}
	return updated, nil
}

// StartDownload begins a download order (HTD, HKD, HPB, C52, C53, ...).
// orderData is the full (already compressed+encrypted) payload; it gets
// sliced into SegmentSize-sized chunks as the client asks for them.
func (e *Engine) StartDownload(ctx context.Context, hostID, subscriberID, orderType string, orderData []byte) (storage.DownloadTx, error) {
	txID, err := NewTransactionID()
	if err != nil {
		return storage.DownloadTx{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	segSize := e.SegmentSize
	if segSize <= 0 {
		segSize = defaultSegmentSize
	}
	numSegments := (len(orderData) + segSize - 1) / segSize
	if numSegments == 0 {
		numSegments = 1
	}

	tx := storage.DownloadTx{
		TransactionID: txID,
		HostID:        hostID,
		SubscriberID:  subscriberID,
		OrderType:     orderType,
		Phase:         storage.PhaseInitialisation,
		OrderData:     orderData,
		NumSegments:   numSegments,
		CreatedAt:     time.Now().UTC(),
	}
	return e.txs.CreateDownloadTx(ctx, tx)
}

// Segment returns the 1-indexed segmentNumber's slice of a download
// transaction's order data, along with whether it is the last segment.
func (e *Engine) Segment(ctx context.Context, transactionID string, segmentNumber int) ([]byte, bool, error) {
	tx, err := e.txs.GetDownloadTx(ctx, transactionID)
	if err != nil {
		return nil, false, ebicserr.New(ebicserr.ProcessingError, transactionID)
	}
	if segmentNumber < 1 || segmentNumber > tx.NumSegments {
		return nil, false, ebicserr.New(ebicserr.InvalidRequest, fmt.Sprintf("segment %d out of range (1..%d)", segmentNumber, tx.NumSegments))
	}

	segSize := e.SegmentSize
	if segSize <= 0 {
		segSize = defaultSegmentSize
	}
	start := (segmentNumber - 1) * segSize
	end := start + segSize
	if end > len(tx.OrderData) {
		end = len(tx.OrderData)
	}

	tx.Phase = storage.PhaseTransfer
	if _, err := e.txs.UpdateDownloadTx(ctx, tx); err != nil {
		return nil, false, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	return tx.OrderData[start:end], segmentNumber == tx.NumSegments, nil
}

// AcknowledgeDownload marks a download transaction's receipt phase; EBICS
// clients send this once they have fetched every segment successfully.
func (e *Engine) AcknowledgeDownload(ctx context.Context, transactionID string) error {
	tx, err := e.txs.GetDownloadTx(ctx, transactionID)
	if err != nil {
		return ebicserr.New(ebicserr.ProcessingError, transactionID)
	}
	tx.Phase = storage.PhaseReceipt
	_, err = e.txs.UpdateDownloadTx(ctx, tx)
	if err != nil {
		return ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	return nil
}
