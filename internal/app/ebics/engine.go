// Package ebics implements the EBICS H004 protocol engine: subscriber key
// management (INI/HIA/HPB) and the multi-phase upload/download transaction
// state machine that carries every other order type.
package ebics

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/host"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

// Engine dispatches ebicsRequest documents against a host's subscribers and
// the in-flight transaction store.
type Engine struct {
	hosts  storage.HostStore
	subs   storage.SubscriberStore
	txs    storage.EbicsTxStore
	logger *logging.Logger

	// SegmentSize bounds how many bytes of (already compressed+encrypted)
	// order data each Transfer-phase segment carries. EBICS allows the
	// server to choose; the sandbox uses the conventional 4096-byte chunk.
	SegmentSize int

	downloadProviders map[string]DownloadProvider
	uploadHandlers    map[string]UploadHandler
}

const defaultSegmentSize = 4096

// NewEngine constructs an Engine. Pass nil for logger to disable logging.
func NewEngine(hosts storage.HostStore, subs storage.SubscriberStore, txs storage.EbicsTxStore, logger *logging.Logger) *Engine {
	return &Engine{hosts: hosts, subs: subs, txs: txs, logger: logger, SegmentSize: defaultSegmentSize}
}

// NewTransactionID returns a fresh 32-character hex transaction identifier,
// as EBICS H004 requires for Initialisation-phase responses.
func NewTransactionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GetHost fetches the host identity a request was addressed to.
func (e *Engine) GetHost(ctx context.Context, hostID string) (host.Host, error) {
	return e.hosts.GetHost(ctx, hostID)
}
