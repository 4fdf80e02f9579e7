package ebics

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/stanisci/ebics-sandbox/internal/app/ebicserr"
	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
	"github.com/stanisci/ebics-sandbox/internal/xmlcodec"
)

// DownloadProvider produces the plaintext order data for a download order
// type (HTD, HKD, C52, C53, PTK, TSD, ...). Registered by whichever service
// owns that data (ledger, statementtick); the engine compresses it,
// E002-encrypts it when given the subscriber's key, segments it, and hands
// it out.
type DownloadProvider func(ctx context.Context, hostID, subscriberID, partnerID string) ([]byte, error)

// UploadHandler consumes the decrypted, decompressed order data of a
// finalized upload order (CCT, ...). Returning an error aborts the receipt
// with a negative code.
type UploadHandler func(ctx context.Context, hostID, subscriberID, partnerID string, orderData []byte) error

// RegisterDownloadProvider wires a download order type to its data source.
func (e *Engine) RegisterDownloadProvider(orderType string, fn DownloadProvider) {
	if e.downloadProviders == nil {
		e.downloadProviders = make(map[string]DownloadProvider)
	}
	e.downloadProviders[orderType] = fn
}

// RegisterUploadHandler wires an upload order type to its booking logic.
func (e *Engine) RegisterUploadHandler(orderType string, fn UploadHandler) {
	if e.uploadHandlers == nil {
		e.uploadHandlers = make(map[string]UploadHandler)
	}
	e.uploadHandlers[orderType] = fn
}

// HandleDownloadInitialisation starts a registered download order type,
// returning its transaction and first segment. When encPub is non-nil the
// plaintext is E002-encrypted under it before segmenting, as EBICS H004
// requires for every download except HEV; callers that already hold a plain
// (test) payload may pass nil to skip the envelope and inspect raw segments.
func (e *Engine) HandleDownloadInitialisation(ctx context.Context, hostID, subscriberID, partnerID, orderType string, encPub *rsa.PublicKey) (transactionID string, segment []byte, lastSegment bool, envelope *ebicscrypto.E002Envelope, err error) {
	provider, ok := e.downloadProviders[orderType]
	if !ok {
		return "", nil, false, nil, ebicserr.New(ebicserr.UnsupportedOrderType, orderType)
	}
	plain, err := provider(ctx, hostID, subscriberID, partnerID)
	if err != nil {
		return "", nil, false, nil, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	compressed, err := xmlcodec.CompressOrderData(plain)
	if err != nil {
		return "", nil, false, nil, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	payload := compressed
	if encPub != nil {
		envelope, err = ebicscrypto.EncryptE002(encPub, compressed)
		if err != nil {
			return "", nil, false, nil, ebicserr.New(ebicserr.ProcessingError, err.Error())
		}
		payload = envelope.CipherText
	}

	tx, err := e.StartDownload(ctx, hostID, subscriberID, orderType, payload)
	if err != nil {
		return "", nil, false, nil, err
	}
	seg, last, err := e.Segment(ctx, tx.TransactionID, 1)
	return tx.TransactionID, seg, last, envelope, err
}

// HandleUploadFinalisation finalizes an upload and hands its order data,
// already decrypted and inflated by the caller, to its registered handler,
// e.g. booking a pain.001 payment.
func (e *Engine) HandleUploadFinalisation(ctx context.Context, transactionID, partnerID string, receiptCode int, signature, plainOrderData []byte) error {
	tx, err := e.FinalizeUpload(ctx, transactionID, partnerID, receiptCode, signature)
	if err != nil {
		return err
	}
	if receiptCode != 0 {
		return nil
	}
	handler, ok := e.uploadHandlers[tx.OrderType]
	if !ok {
		return ebicserr.New(ebicserr.UnsupportedOrderType, tx.OrderType)
	}
	if err := handler(ctx, tx.HostID, tx.SubscriberID, partnerID, plainOrderData); err != nil {
		var ebicsErr *ebicserr.Error
		if errors.As(err, &ebicsErr) {
			return ebicsErr
		}
		return ebicserr.New(ebicserr.ProcessingError, fmt.Sprintf("order handler: %v", err))
	}
	return nil
}
