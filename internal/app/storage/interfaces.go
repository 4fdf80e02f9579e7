// Package storage defines the persistence interfaces the sandbox's services
// depend on. Each interface has an in-memory default (memory.go) and a
// PostgreSQL-backed implementation (postgres/).
package storage

import (
	"context"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/host"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/subscriber"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/withdrawalop"
)

// HostStore manages EBICS host identities.
type HostStore interface {
	CreateHost(ctx context.Context, h host.Host) (host.Host, error)
	GetHost(ctx context.Context, hostID string) (host.Host, error)
	ListHosts(ctx context.Context) ([]host.Host, error)
}

// SubscriberStore manages EBICS subscribers and their order signatures.
type SubscriberStore interface {
	CreateSubscriber(ctx context.Context, s subscriber.Subscriber) (subscriber.Subscriber, error)
	UpdateSubscriber(ctx context.Context, s subscriber.Subscriber) (subscriber.Subscriber, error)
	GetSubscriber(ctx context.Context, hostID, partnerID, userID string) (subscriber.Subscriber, error)
	GetSubscriberByID(ctx context.Context, id string) (subscriber.Subscriber, error)
	ListSubscribers(ctx context.Context, hostID string) ([]subscriber.Subscriber, error)

	SaveOrderSignature(ctx context.Context, sig subscriber.OrderSignature) error
	HasOrderID(ctx context.Context, hostID, partnerID, orderID string) (bool, error)
}

// DemobankStore manages demobank tenants and their customers.
type DemobankStore interface {
	CreateDemobank(ctx context.Context, d demobank.Demobank) (demobank.Demobank, error)
	UpdateDemobank(ctx context.Context, d demobank.Demobank) (demobank.Demobank, error)
	GetDemobank(ctx context.Context, id string) (demobank.Demobank, error)
	GetDemobankByName(ctx context.Context, name string) (demobank.Demobank, error)
	ListDemobanks(ctx context.Context) ([]demobank.Demobank, error)

	CreateCustomer(ctx context.Context, c demobank.Customer) (demobank.Customer, error)
	GetCustomerByUsername(ctx context.Context, demobankID, username string) (demobank.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (demobank.Customer, error)
}

// BankAccountStore manages bank accounts.
type BankAccountStore interface {
	CreateAccount(ctx context.Context, a bankaccount.Account) (bankaccount.Account, error)
	UpdateAccount(ctx context.Context, a bankaccount.Account) (bankaccount.Account, error)
	GetAccount(ctx context.Context, id string) (bankaccount.Account, error)
	GetAccountByIBAN(ctx context.Context, demobankID, iban string) (bankaccount.Account, error)
	GetAccountBySubscriberID(ctx context.Context, subscriberID string) (bankaccount.Account, error)
	ListAccountsByCustomer(ctx context.Context, customerID string) ([]bankaccount.Account, error)
	ListPublicAccounts(ctx context.Context, demobankID string) ([]bankaccount.Account, error)
	ListTalerExchangeAccounts(ctx context.Context, demobankID string) ([]bankaccount.Account, error)
	ListAllAccounts(ctx context.Context, demobankID string) ([]bankaccount.Account, error)
}

// LedgerStore manages booked transactions and closed statements.
type LedgerStore interface {
	// CreateTransaction books a fresh (unstatemented) transaction. It must be
	// idempotent on (AccountID, PmtInfID) when PmtInfID is non-empty: calling
	// it twice with the same pair is a no-op that returns the first booking.
	// A transaction with an empty PmtInfID is booked anew on every call.
	CreateTransaction(ctx context.Context, t ledger.Transaction) (ledger.Transaction, bool, error)
	// CreateCreditTransferPair books a credit transfer's debit and credit legs
	// atomically: both rows are inserted under one transaction (or neither
	// is), so a crash between the two legs can never leave a debited account
	// with no matching credit. credit may be nil when the counterpart account
	// is not held locally, in which case only the debit leg is booked.
	// Idempotency is keyed on the debit leg's (AccountID, PmtInfID).
	CreateCreditTransferPair(ctx context.Context, debit ledger.Transaction, credit *ledger.Transaction) (ledger.Transaction, *ledger.Transaction, bool, error)
	FindTransactionByPmtInfID(ctx context.Context, accountID, pmtInfID string) (ledger.Transaction, error)
	ListFreshTransactions(ctx context.Context, accountID string) ([]ledger.Transaction, error)
	ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]ledger.Transaction, error)

	// CloseStatement atomically assigns every fresh transaction on accountID
	// to a new statement and returns it.
	CloseStatement(ctx context.Context, accountID string, stmt ledger.Statement) (ledger.Statement, error)
	ListStatements(ctx context.Context, accountID string) ([]ledger.Statement, error)
	GetStatement(ctx context.Context, id string) (ledger.Statement, error)
	LatestStatement(ctx context.Context, accountID string) (ledger.Statement, bool, error)
}

// WithdrawalStore manages Taler wire-gateway withdrawal operations.
type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, op withdrawalop.Op) (withdrawalop.Op, error)
	UpdateWithdrawal(ctx context.Context, op withdrawalop.Op) (withdrawalop.Op, error)
	GetWithdrawal(ctx context.Context, wopid string) (withdrawalop.Op, error)
	ListWithdrawalsByAccount(ctx context.Context, accountID string) ([]withdrawalop.Op, error)
}

// EbicsTxStore tracks in-flight multi-phase EBICS upload/download transactions.
type EbicsTxStore interface {
	CreateUploadTx(ctx context.Context, tx UploadTx) (UploadTx, error)
	GetUploadTx(ctx context.Context, transactionID string) (UploadTx, error)
	UpdateUploadTx(ctx context.Context, tx UploadTx) (UploadTx, error)

	CreateDownloadTx(ctx context.Context, tx DownloadTx) (DownloadTx, error)
	GetDownloadTx(ctx context.Context, transactionID string) (DownloadTx, error)
	UpdateDownloadTx(ctx context.Context, tx DownloadTx) (DownloadTx, error)
}
