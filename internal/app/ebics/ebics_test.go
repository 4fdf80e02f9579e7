package ebics

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/host"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/subscriber"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
	"github.com/stanisci/ebics-sandbox/internal/xmlcodec"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Store) {
	t.Helper()
	store := storage.NewStore()

	bankAuth, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate bank auth key: %v", err)
	}
	bankEnc, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate bank enc key: %v", err)
	}
	authPEM, _ := ebicscrypto.MarshalPublicKeyPEM(&bankAuth.PublicKey)
	encPEM, _ := ebicscrypto.MarshalPublicKeyPEM(&bankEnc.PublicKey)

	_, err = store.CreateHost(context.Background(), host.Host{
		HostID:            "SANDBOXH1",
		EbicsVersion:      "H004",
		AuthPrivKey:       ebicscrypto.MarshalPrivateKeyPEM(bankAuth),
		AuthPubKey:        authPEM,
		EncryptionPrivKey: ebicscrypto.MarshalPrivateKeyPEM(bankEnc),
		EncryptionPubKey:  encPEM,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create host: %v", err)
	}

	return NewEngine(store, store, store, nil), store
}

func TestProcessINIandHIATransitionsSubscriberToInitialized(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	sigKey, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate sig key: %v", err)
	}
	iniData, err := xmlcodec.BuildSignaturePubKeyOrderData("PARTNER1", "USER1", &sigKey.PublicKey)
	if err != nil {
		t.Fatalf("build INI order data: %v", err)
	}
	compressedINI, err := xmlcodec.CompressOrderData(iniData)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := engine.ProcessINI(ctx, "SANDBOXH1", "PARTNER1", "USER1", compressedINI); err != nil {
		t.Fatalf("process INI: %v", err)
	}

	sub, err := store.GetSubscriber(ctx, "SANDBOXH1", "PARTNER1", "USER1")
	if err != nil {
		t.Fatalf("get subscriber: %v", err)
	}
	if sub.State != subscriber.StatePartiallyInitialized {
		t.Fatalf("expected partially_initialized after INI, got %s", sub.State)
	}

	authKey, _ := ebicscrypto.GenerateKeyPair(2048)
	encKey, _ := ebicscrypto.GenerateKeyPair(2048)
	hiaData, err := xmlcodec.BuildHIAOrderData("PARTNER1", "USER1", &authKey.PublicKey, &encKey.PublicKey)
	if err != nil {
		t.Fatalf("build HIA order data: %v", err)
	}
	compressedHIA, err := xmlcodec.CompressOrderData(hiaData)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := engine.ProcessHIA(ctx, "SANDBOXH1", "PARTNER1", "USER1", compressedHIA); err != nil {
		t.Fatalf("process HIA: %v", err)
	}

	sub, err = store.GetSubscriber(ctx, "SANDBOXH1", "PARTNER1", "USER1")
	if err != nil {
		t.Fatalf("get subscriber: %v", err)
	}
	if sub.State != subscriber.StateInitialized {
		t.Fatalf("expected initialized after both key letters, got %s", sub.State)
	}
	if !sub.CanTransact() {
		t.Fatal("expected subscriber to be able to transact once initialized")
	}
}

func TestBuildHPBOrderDataRoundTripsBankKeys(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	compressed, err := engine.BuildHPBOrderData(ctx, "SANDBOXH1")
	if err != nil {
		t.Fatalf("build HPB order data: %v", err)
	}
	plain, err := xmlcodec.DecompressOrderData(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	authPub, encPub, err := xmlcodec.ParseHPBOrderData(plain)
	if err != nil {
		t.Fatalf("parse HPB order data: %v", err)
	}
	if authPub == nil || encPub == nil {
		t.Fatal("expected non-nil bank public keys")
	}
}

func TestDownloadTransactionSegmentsData(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.SegmentSize = 8
	ctx := context.Background()

	// The payload is deflated before segmenting, so it must be incompressible
	// for the segments to stay full-sized: 64 random bytes deflate to ~70.
	payload := make([]byte, 64)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("random payload: %v", err)
	}
	engine.RegisterDownloadProvider("HTD", func(ctx context.Context, hostID, subscriberID, partnerID string) ([]byte, error) {
		return payload, nil
	})

	txID, seg1, last1, _, err := engine.HandleDownloadInitialisation(ctx, "SANDBOXH1", "sub-1", "PARTNER1", "HTD", nil)
	if err != nil {
		t.Fatalf("download init: %v", err)
	}
	if last1 {
		t.Fatal("expected more segments to remain")
	}
	if len(seg1) != 8 {
		t.Fatalf("expected 8-byte first segment, got %d", len(seg1))
	}

	seg2, last2, err := engine.Segment(ctx, txID, 2)
	if err != nil {
		t.Fatalf("segment 2: %v", err)
	}
	if last2 {
		t.Fatal("expected segment 2 not to be last")
	}
	if len(seg2) != 8 {
		t.Fatalf("expected 8-byte second segment, got %d", len(seg2))
	}

	if err := engine.AcknowledgeDownload(ctx, txID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
}

func TestUploadFlowBooksOnFinalisation(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	sub, err := store.CreateSubscriber(ctx, subscriber.Subscriber{
		HostID:         "SANDBOXH1",
		PartnerID:      "PARTNER1",
		UserID:         "USER1",
		State:          subscriber.StateInitialized,
		SignatureClass: "A",
	})
	if err != nil {
		t.Fatalf("create subscriber: %v", err)
	}

	var booked []byte
	engine.RegisterUploadHandler("CCT", func(ctx context.Context, hostID, subscriberID, partnerID string, orderData []byte) error {
		booked = orderData
		return nil
	})

	tx, err := engine.StartUpload(ctx, "SANDBOXH1", sub.ID, "PARTNER1", "CCT", []byte("segment-1"), 1)
	if err != nil {
		t.Fatalf("start upload: %v", err)
	}
	if tx.OrderID != "AAAA" {
		t.Fatalf("expected first OrderID to be AAAA, got %s", tx.OrderID)
	}

	if err := engine.HandleUploadFinalisation(ctx, tx.TransactionID, "PARTNER1", 0, []byte("sig"), []byte("pain.001 payload")); err != nil {
		t.Fatalf("finalize upload: %v", err)
	}
	if string(booked) != "pain.001 payload" {
		t.Fatalf("unexpected booked payload: %q", booked)
	}

	// Each upload gets the next sequential OrderID for the subscriber.
	tx2, err := engine.StartUpload(ctx, "SANDBOXH1", sub.ID, "PARTNER1", "CCT", []byte("segment-2"), 1)
	if err != nil {
		t.Fatalf("second start upload: %v", err)
	}
	if tx2.OrderID != "AAAB" {
		t.Fatalf("expected second OrderID to be AAAB, got %s", tx2.OrderID)
	}

	// Multi-segment upload is not implemented and must be rejected up front.
	if _, err := engine.StartUpload(ctx, "SANDBOXH1", sub.ID, "PARTNER1", "CCT", []byte("segment-3"), 2); err == nil {
		t.Fatal("expected multi-segment upload to be rejected")
	}
}
