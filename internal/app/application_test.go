package app

import (
	"context"
	"testing"

	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

func TestNewWiresServicesAndRegistersLifecycle(t *testing.T) {
	store := storage.NewStore()
	stores := Stores{
		Hosts: store, Subscribers: store, Demobanks: store,
		Accounts: store, Ledger: store, Withdrawals: store, EbicsTxs: store,
	}

	application, err := New(stores, Config{ListenAddr: ":0", StatementTickCron: "@daily"}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if application.Engine == nil || application.Ledger == nil || application.Withdrawals == nil || application.Tick == nil || application.HTTP == nil {
		t.Fatal("expected every domain service to be wired")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := application.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestDescriptorsSafeWithNoDescriptorProviders(t *testing.T) {
	store := storage.NewStore()
	stores := Stores{
		Hosts: store, Subscribers: store, Demobanks: store,
		Accounts: store, Ledger: store, Withdrawals: store, EbicsTxs: store,
	}
	application, err := New(stores, Config{ListenAddr: ":0"}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Neither statement-tick nor http currently implement DescriptorProvider;
	// Descriptors must still return cleanly (possibly empty) rather than panic.
	_ = application.Descriptors()
}
