package statementtick

import (
	"context"
	"testing"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	ledgerdom "github.com/stanisci/ebics-sandbox/internal/app/domain/ledger"
	ledgersvc "github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

func TestRunTickClosesFreshTransactionsIntoStatement(t *testing.T) {
	store := storage.NewStore()
	ctx := context.Background()

	d, err := store.CreateDemobank(ctx, demobank.Demobank{Name: "default", Currency: "EUR"})
	if err != nil {
		t.Fatalf("create demobank: %v", err)
	}
	acct, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: d.ID, IBAN: "DE1111", BIC: "SANDBOXXXXX", OwnerName: "Owner", Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if _, _, err := store.CreateTransaction(ctx, ledgerdom.Transaction{
		AccountID: acct.ID, Direction: ledgerdom.Credit, Amount: "15.00", Currency: "EUR",
		PmtInfID: "PMT1", AccountServicerReference: "sandbox-ref1",
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	booking := ledgersvc.New(store, store, store, nil)
	svc := New(store, store, store, booking, nil, "")

	if err := svc.RunTick(ctx); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	stmt, ok, err := store.LatestStatement(ctx, acct.ID)
	if err != nil {
		t.Fatalf("LatestStatement: %v", err)
	}
	if !ok {
		t.Fatal("expected a statement to have been closed")
	}
	if stmt.ClosingBalance != "15.00" {
		t.Fatalf("expected closing balance 15.00, got %s", stmt.ClosingBalance)
	}
	if len(stmt.Document) == 0 {
		t.Fatal("expected statement document to be populated")
	}

	fresh, err := store.ListFreshTransactions(ctx, acct.ID)
	if err != nil {
		t.Fatalf("ListFreshTransactions: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("expected no fresh transactions after close, got %d", len(fresh))
	}

	updated, err := store.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if updated.LastBalance != "15.00" {
		t.Fatalf("expected cached LastBalance 15.00, got %s", updated.LastBalance)
	}
}

func TestRunTickIsNoOpWithNoAccounts(t *testing.T) {
	store := storage.NewStore()
	ctx := context.Background()
	if _, err := store.CreateDemobank(ctx, demobank.Demobank{Name: "default", Currency: "EUR"}); err != nil {
		t.Fatalf("create demobank: %v", err)
	}
	booking := ledgersvc.New(store, store, store, nil)
	svc := New(store, store, store, booking, nil, "")
	if err := svc.RunTick(ctx); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
}
