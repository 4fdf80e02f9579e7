package withdrawal

import (
	"context"
	"errors"
	"testing"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/withdrawalop"
	ledgersvc "github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

// newTestService wires a withdrawal service over a funded customer account
// (alice, balance 20.00 EUR, no debt headroom) and a Taler exchange account
// the demobank suggests by default.
func newTestService(t *testing.T) (*Service, *storage.Store, bankaccount.Account, bankaccount.Account) {
	t.Helper()
	store := storage.NewStore()
	ctx := context.Background()

	d, err := store.CreateDemobank(ctx, demobank.Demobank{Name: "default", Currency: "EUR", SuggestedExchangeAccount: "DE9999"})
	if err != nil {
		t.Fatalf("create demobank: %v", err)
	}
	alice, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: d.ID, IBAN: "DE1111", BIC: "SANDBOXXXXX", OwnerName: "Alice",
		Currency: "EUR", DebtLimit: "0.00", LastBalance: "20.00",
	})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	exchange, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: d.ID, IBAN: "DE9999", BIC: "SANDBOXXXXX", OwnerName: "Exchange",
		Currency: "EUR", IsTalerExchange: true,
	})
	if err != nil {
		t.Fatalf("create exchange account: %v", err)
	}

	booking := ledgersvc.New(store, store, store, nil)
	svc := New(store, store, store, booking, nil)
	return svc, store, alice, exchange
}

func TestCreateEnforcesDebtLimit(t *testing.T) {
	svc, _, alice, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, alice.ID, "500.00", "EUR"); err == nil {
		t.Fatal("expected debt-limit rejection for withdrawal exceeding balance")
	}

	op, err := svc.Create(ctx, alice.ID, "7.00", "EUR")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if op.State != withdrawalop.Created {
		t.Fatalf("expected state created, got %s", op.State)
	}
	if op.Wopid == "" {
		t.Fatal("expected a wopid to be allocated")
	}
}

func TestSelectThenConfirmExecutesTransfer(t *testing.T) {
	svc, store, alice, exchange := newTestService(t)
	ctx := context.Background()

	op, err := svc.Create(ctx, alice.ID, "7.00", "EUR")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	op, err = svc.Select(ctx, op.Wopid, "RP1", "DE9999")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if op.State != withdrawalop.Selected {
		t.Fatalf("expected state selected, got %s", op.State)
	}

	op, err = svc.Confirm(ctx, op.Wopid)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if op.State != withdrawalop.Confirmed {
		t.Fatalf("expected state confirmed, got %s", op.State)
	}

	aliceTx, err := store.ListFreshTransactions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list alice transactions: %v", err)
	}
	if len(aliceTx) != 1 || aliceTx[0].Amount != "7.00" {
		t.Fatalf("expected a single 7.00 debit on alice, got %+v", aliceTx)
	}

	exchangeTx, err := store.ListFreshTransactions(ctx, exchange.ID)
	if err != nil {
		t.Fatalf("list exchange transactions: %v", err)
	}
	if len(exchangeTx) != 1 || exchangeTx[0].Subject != "RP1" {
		t.Fatalf("expected exchange credit with subject=RP1, got %+v", exchangeTx)
	}
}

func TestConfirmWithoutSelectionIsIllegal(t *testing.T) {
	svc, _, alice, _ := newTestService(t)
	ctx := context.Background()

	op, err := svc.Create(ctx, alice.ID, "7.00", "EUR")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Confirm(ctx, op.Wopid); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestAbortAfterConfirmIsRejected(t *testing.T) {
	svc, _, alice, _ := newTestService(t)
	ctx := context.Background()

	op, err := svc.Create(ctx, alice.ID, "7.00", "EUR")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	op, err = svc.Select(ctx, op.Wopid, "RP1", "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	op, err = svc.Confirm(ctx, op.Wopid)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := svc.Abort(ctx, op.Wopid); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected abort-after-confirm to be illegal, got %v", err)
	}
}

func TestConfirmFallsBackToSuggestedExchange(t *testing.T) {
	svc, _, alice, exchange := newTestService(t)
	ctx := context.Background()

	op, err := svc.Create(ctx, alice.ID, "4.00", "EUR")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	op, err = svc.Select(ctx, op.Wopid, "RP2", "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	op, err = svc.Confirm(ctx, op.Wopid)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if op.SelectedExchangeIBAN != exchange.IBAN {
		t.Fatalf("expected fallback to demobank suggested exchange %s, got %s", exchange.IBAN, op.SelectedExchangeIBAN)
	}
}
