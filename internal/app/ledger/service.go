// Package ledger books pain.001 credit-transfer payments onto bank accounts
// and builds the ISO-20022 camt.052/camt.053 reports EBICS download orders
// hand back to the client.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/ebicserr"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
	"github.com/stanisci/ebics-sandbox/internal/xmlcodec"
)

// Direction mirrors domain/ledger.Direction so money.go's helpers don't need
// to import the domain package under a different name.
type Direction = ledger.Direction

const (
	Credit = ledger.Credit
	Debit  = ledger.Debit
)

// defaultDemobankName is the single tenant every EBICS booking resolves
// against. The sandbox has no notion of a host-to-demobank mapping, so
// every host serves the one demobank that exists at runtime.
const defaultDemobankName = "default"

var (
	// ErrMalformedPain001 covers a pain.001 document missing the exactly-one
	// PmtInf/CdtTrfTxInf shape this sandbox books.
	ErrMalformedPain001 = errors.New("pain.001 document must contain exactly one payment with one credit transfer")
)

// Service books CCT upload orders and answers C52/C53 download orders. It
// implements ebics.UploadHandler (BookCCT) and ebics.DownloadProvider
// (BuildC52Report/BuildC53Report) without importing the ebics package,
// keeping the dependency direction pointing from ebics into ledger.
type Service struct {
	accounts  storage.BankAccountStore
	ledger    storage.LedgerStore
	demobanks storage.DemobankStore
	log       *logging.Logger

	// PendingAmount returns the decimal-string sum of amounts currently held
	// back by in-flight withdrawals for an account. Left nil until the
	// withdrawal service is wired in at startup, since this package must not
	// import internal/app/withdrawal (withdrawal calls back into ledger to
	// execute transfers, and Go forbids the reverse import).
	PendingAmount func(ctx context.Context, accountID string) (string, error)
}

// New constructs a booking service.
func New(accounts storage.BankAccountStore, ledgerStore storage.LedgerStore, demobanks storage.DemobankStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewFromEnv("ledger")
	}
	return &Service{accounts: accounts, ledger: ledgerStore, demobanks: demobanks, log: log}
}

func (s *Service) defaultDemobank(ctx context.Context) (string, string, error) {
	d, err := s.demobanks.GetDemobankByName(ctx, defaultDemobankName)
	if err != nil {
		return "", "", fmt.Errorf("resolve default demobank: %w", err)
	}
	return d.ID, d.Currency, nil
}

// balanceCents is the account's current balance: its last-closed-statement
// CLBD plus every transaction booked since, all in integer minor units.
func (s *Service) balanceCents(ctx context.Context, acct bankaccount.Account) (int64, error) {
	base := int64(0)
	if acct.LastBalance != "" {
		var err error
		base, err = parseAmountCents(acct.LastBalance)
		if err != nil {
			return 0, err
		}
	}
	fresh, err := s.ledger.ListFreshTransactions(ctx, acct.ID)
	if err != nil {
		return 0, err
	}
	for _, t := range fresh {
		base, err = sumCents(base, t.Direction, t.Amount)
		if err != nil {
			return 0, err
		}
	}
	return base, nil
}

// Balance returns acct's current non-pending balance (last statement's CLBD
// plus every transaction booked since) as a decimal string, for callers
// outside this package such as the statement-tick job.
func (s *Service) Balance(ctx context.Context, acct bankaccount.Account) (string, error) {
	cents, err := s.balanceCents(ctx, acct)
	if err != nil {
		return "", err
	}
	return formatAmountCents(cents), nil
}

// ListTransactions returns a page of acct's booked transactions, freshest
// first, for the access API's transaction history endpoint.
func (s *Service) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]ledger.Transaction, error) {
	return s.ledger.ListTransactions(ctx, accountID, limit, offset)
}

// GetAccount resolves a bank account by its surrogate ID.
func (s *Service) GetAccount(ctx context.Context, accountID string) (bankaccount.Account, error) {
	return s.accounts.GetAccount(ctx, accountID)
}

func (s *Service) pendingCents(ctx context.Context, accountID string) (int64, error) {
	if s.PendingAmount == nil {
		return 0, nil
	}
	amt, err := s.PendingAmount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if amt == "" {
		return 0, nil
	}
	return parseAmountCents(amt)
}

// maybeDebit reports whether debiting amountCents from acct would still
// leave it at or above -DebtLimit once the account's own pending
// withdrawals are accounted for.
func (s *Service) maybeDebit(ctx context.Context, acct bankaccount.Account, amountCents int64) error {
	balance, err := s.balanceCents(ctx, acct)
	if err != nil {
		return err
	}
	pending, err := s.pendingCents(ctx, acct.ID)
	if err != nil {
		return err
	}
	debtLimit := int64(0)
	if acct.DebtLimit != "" {
		debtLimit, err = parseAmountCents(acct.DebtLimit)
		if err != nil {
			debtLimit = 0
		}
	}
	if balance-pending-amountCents < -debtLimit {
		return ebicserr.New(ebicserr.AmountCheckFailed,
			fmt.Sprintf("debit of %s would breach the debt limit on account %s", formatAmountCents(amountCents), acct.IBAN))
	}
	return nil
}

// newAccountServicerReference mints the bank-assigned reference stamped on
// every booked entry, distinct from the pain.001 PmtInfId used only for
// idempotency.
func newAccountServicerReference() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sandbox-" + hex.EncodeToString(buf), nil
}

// BookCCT ingests a finalized CCT upload's pain.001 order data, matching
// ebics.UploadHandler's signature so it can be registered directly against
// the engine's dispatch table.
func (s *Service) BookCCT(ctx context.Context, hostID, subscriberID, partnerID string, orderData []byte) error {
	doc, err := xmlcodec.ParsePain001(orderData)
	if err != nil {
		return ebicserr.New(ebicserr.InvalidRequest, err.Error())
	}
	if len(doc.CstmrCdtTrfInitn.PmtInf) != 1 || len(doc.CstmrCdtTrfInitn.PmtInf[0].CdtTrfTxInf) != 1 {
		return ebicserr.New(ebicserr.InvalidRequest, ErrMalformedPain001.Error())
	}
	pmtInf := doc.CstmrCdtTrfInitn.PmtInf[0]
	txInf := pmtInf.CdtTrfTxInf[0]

	amount := txInf.Amt.InstdAmt.Value
	amountCents, err := parseAmountCents(amount)
	if err != nil {
		return ebicserr.New(ebicserr.InvalidRequest, err.Error())
	}
	currency := txInf.Amt.InstdAmt.Currency

	demobankID, demobankCcy, err := s.defaultDemobank(ctx)
	if err != nil {
		return ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	debtor, err := s.accounts.GetAccountByIBAN(ctx, demobankID, pmtInf.DbtrAcct.IBAN)
	if err != nil {
		s.log.LogBooking(ctx, pmtInf.PmtInfID, "rejected: unknown debtor account", toFloat(amount), currency)
		return ebicserr.New(ebicserr.AccountAuthorisationFailed, pmtInf.DbtrAcct.IBAN)
	}
	if debtor.SubscriberID != subscriberID {
		s.log.LogBooking(ctx, pmtInf.PmtInfID, "rejected: subscriber not authorised for debtor account", toFloat(amount), currency)
		return ebicserr.New(ebicserr.AccountAuthorisationFailed, pmtInf.DbtrAcct.IBAN)
	}
	if currency != demobankCcy {
		s.log.LogBooking(ctx, pmtInf.PmtInfID, "rejected: currency mismatch", toFloat(amount), currency)
		return ebicserr.New(ebicserr.ProcessingError, fmt.Sprintf("currency %s does not match demobank currency %s", currency, demobankCcy))
	}

	if existing, err := s.ledger.FindTransactionByPmtInfID(ctx, debtor.ID, pmtInf.PmtInfID); err == nil && existing.ID != "" {
		s.log.LogBooking(ctx, pmtInf.PmtInfID, "replayed: already booked", toFloat(amount), currency)
		return nil
	}

	if err := s.maybeDebit(ctx, debtor, amountCents); err != nil {
		s.log.LogBooking(ctx, pmtInf.PmtInfID, "rejected: debt limit exceeded", toFloat(amount), currency)
		return err
	}

	debitRef, err := newAccountServicerReference()
	if err != nil {
		return ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	now := time.Now().UTC()
	debitTx := ledger.Transaction{
		AccountID:                debtor.ID,
		Direction:                ledger.Debit,
		Amount:                   amount,
		Currency:                 currency,
		Subject:                  txInf.RmtInf.Ustrd,
		PmtInfID:                 pmtInf.PmtInfID,
		MsgID:                    doc.CstmrCdtTrfInitn.GrpHdr.MsgID,
		EndToEndID:               txInf.PmtID.EndToEndID,
		AccountServicerReference: debitRef,
		CounterpartIBAN:          txInf.CdtrAcct.IBAN,
		CounterpartName:          txInf.Cdtr.Name,
		CounterpartBIC:           txInf.CdtrAgt.BIC,
		BookingDate:              now,
	}

	var creditTx *ledger.Transaction
	if creditor, err := s.accounts.GetAccountByIBAN(ctx, demobankID, txInf.CdtrAcct.IBAN); err == nil {
		creditRef, err := newAccountServicerReference()
		if err != nil {
			return ebicserr.New(ebicserr.ProcessingError, err.Error())
		}
		creditTx = &ledger.Transaction{
			AccountID:                creditor.ID,
			Direction:                ledger.Credit,
			Amount:                   amount,
			Currency:                 currency,
			Subject:                  txInf.RmtInf.Ustrd,
			MsgID:                    doc.CstmrCdtTrfInitn.GrpHdr.MsgID,
			EndToEndID:               txInf.PmtID.EndToEndID,
			AccountServicerReference: creditRef,
			CounterpartIBAN:          pmtInf.DbtrAcct.IBAN,
			CounterpartName:          pmtInf.Dbtr.Name,
			CounterpartBIC:           pmtInf.DbtrAgt.BIC,
			BookingDate:              now,
		}
	}

	// Both legs book atomically: a crash between them must never leave a
	// debited debtor account with no matching credit booked.
	if _, _, _, err := s.ledger.CreateCreditTransferPair(ctx, debitTx, creditTx); err != nil {
		return ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	s.log.LogBooking(ctx, pmtInf.PmtInfID, "booked", toFloat(amount), currency)
	return nil
}

// CheckMaybeDebit reports whether debiting amount from acct would breach its
// debt limit, without booking anything. Exported for the withdrawal service
// to gate withdrawal creation the same way BookCCT gates pain.001 ingestion.
func (s *Service) CheckMaybeDebit(ctx context.Context, acct bankaccount.Account, amount string) error {
	amountCents, err := parseAmountCents(amount)
	if err != nil {
		return ebicserr.New(ebicserr.InvalidRequest, err.Error())
	}
	return s.maybeDebit(ctx, acct, amountCents)
}

// ExecuteTransfer books a direct account-to-account wire transfer outside of
// EBICS upload processing: the debit leg on fromAccountID, the credit leg on
// toAccountID, both dated now and tagged with subject. It is the booking
// primitive the withdrawal FSM's confirm step uses to pay an exchange out of
// a customer's reserve account, and maybeDebit-gates the same way BookCCT
// does so a confirmed withdrawal can never push an account past its debt
// limit.
func (s *Service) ExecuteTransfer(ctx context.Context, fromAccountID, toAccountID, amount, currency, subject string) (debitTxID, creditTxID string, err error) {
	amountCents, err := parseAmountCents(amount)
	if err != nil {
		return "", "", ebicserr.New(ebicserr.InvalidRequest, err.Error())
	}

	from, err := s.accounts.GetAccount(ctx, fromAccountID)
	if err != nil {
		return "", "", ebicserr.New(ebicserr.AccountAuthorisationFailed, fromAccountID)
	}
	to, err := s.accounts.GetAccount(ctx, toAccountID)
	if err != nil {
		return "", "", ebicserr.New(ebicserr.AccountAuthorisationFailed, toAccountID)
	}
	if from.Currency != currency || to.Currency != currency {
		return "", "", ebicserr.New(ebicserr.ProcessingError, fmt.Sprintf("currency %s does not match account currencies", currency))
	}
	if err := s.maybeDebit(ctx, from, amountCents); err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	debitRef, err := newAccountServicerReference()
	if err != nil {
		return "", "", ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	debitTx, _, err := s.ledger.CreateTransaction(ctx, ledger.Transaction{
		AccountID:                from.ID,
		Direction:                ledger.Debit,
		Amount:                   amount,
		Currency:                 currency,
		Subject:                  subject,
		AccountServicerReference: debitRef,
		CounterpartIBAN:          to.IBAN,
		CounterpartName:          to.OwnerName,
		CounterpartBIC:           to.BIC,
		BookingDate:              now,
	})
	if err != nil {
		return "", "", ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	creditRef, err := newAccountServicerReference()
	if err != nil {
		return "", "", ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	creditTx, _, err := s.ledger.CreateTransaction(ctx, ledger.Transaction{
		AccountID:                to.ID,
		Direction:                ledger.Credit,
		Amount:                   amount,
		Currency:                 currency,
		Subject:                  subject,
		AccountServicerReference: creditRef,
		CounterpartIBAN:          from.IBAN,
		CounterpartName:          from.OwnerName,
		CounterpartBIC:           from.BIC,
		BookingDate:              now,
	})
	if err != nil {
		return "", "", ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	s.log.LogBooking(ctx, subject, "transfer booked", toFloat(amount), currency)
	return debitTx.ID, creditTx.ID, nil
}

// toFloat best-effort converts a decimal amount string for log fields;
// LogBooking is for human-facing structured logs, not booking arithmetic,
// so a parse failure there just logs zero rather than aborting the booking
// that has already completed.
func toFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// BuildC52Report renders an intra-day camt.052 covering every fresh
// (not yet statement-closed) transaction on the subscriber's account. It
// matches ebics.DownloadProvider's signature.
func (s *Service) BuildC52Report(ctx context.Context, hostID, subscriberID, partnerID string) ([]byte, error) {
	acct, err := s.accounts.GetAccountBySubscriberID(ctx, subscriberID)
	if err != nil {
		return nil, ebicserr.New(ebicserr.AccountAuthorisationFailed, subscriberID)
	}
	fresh, err := s.ledger.ListFreshTransactions(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	balance, err := s.balanceCents(ctx, acct)
	if err != nil {
		return nil, err
	}
	entries := toCamtEntries(fresh)
	reportID, err := newReportID()
	if err != nil {
		return nil, err
	}
	doc := xmlcodec.NewCamt052(reportID, acct.IBAN, acct.Currency, formatAmountCents(balance), entries)
	return xmlcodec.MarshalCamt052(doc)
}

// BuildC53Report returns the most recently closed camt.053 statement's
// document verbatim, as the statement-tick job generated it, rather than
// rebuilding it from (possibly since-changed) transaction rows.
func (s *Service) BuildC53Report(ctx context.Context, hostID, subscriberID, partnerID string) ([]byte, error) {
	acct, err := s.accounts.GetAccountBySubscriberID(ctx, subscriberID)
	if err != nil {
		return nil, ebicserr.New(ebicserr.AccountAuthorisationFailed, subscriberID)
	}
	stmt, ok, err := s.ledger.LatestStatement(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ebicserr.New(ebicserr.ProcessingError, "no statement has been closed for this account yet")
	}
	return stmt.Document, nil
}

// ToCamtEntries maps booked transactions into the shape xmlcodec's camt
// builders expect, filling Refs/EndToEndId's NOTPROVIDED default. Exported
// so the statement-tick job can build camt.053 entries the same way
// BuildC52Report builds camt.052 entries.
func ToCamtEntries(txs []ledger.Transaction) []xmlcodec.CamtEntryInput {
	return toCamtEntries(txs)
}

func toCamtEntries(txs []ledger.Transaction) []xmlcodec.CamtEntryInput {
	entries := make([]xmlcodec.CamtEntryInput, 0, len(txs))
	for _, t := range txs {
		endToEnd := t.EndToEndID
		if endToEnd == "" {
			endToEnd = "NOTPROVIDED"
		}
		entries = append(entries, xmlcodec.CamtEntryInput{
			Amount:      t.Amount,
			Direction:   string(t.Direction),
			BookingDate: t.BookingDate,
			EndToEndID:  endToEnd,
			Subject:     t.Subject,
		})
	}
	return entries
}

func newReportID() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sandbox-" + strconv.FormatInt(time.Now().UTC().Unix(), 10) + "-" + hex.EncodeToString(buf), nil
}
