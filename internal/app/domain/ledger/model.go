// Package ledger models booked bank-account transactions and the periodic
// camt.053 statements they settle into.
package ledger

import "time"

// Direction is the credit/debit side of a transaction relative to the
// account it is recorded against.
type Direction string

const (
	Credit Direction = "CRDT"
	Debit  Direction = "DBIT"
)

// Transaction is one booked movement on a bank account. It starts out
// "fresh" (StatementID == "") and is assigned to a statement the next time
// the statement-tick job runs.
type Transaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Direction   Direction `json:"direction"`
	Amount      string    `json:"amount"` // decimal string, always positive
	Currency    string    `json:"currency"`
	Subject     string    `json:"subject"`

	// PmtInfID is the pain.001 PaymentInformationId this transaction was
	// booked from, used for idempotency: re-submitting the same pain.001
	// message must not double-book.
	PmtInfID string `json:"pmt_inf_id"`
	MsgID    string `json:"msg_id,omitempty"`
	EndToEndID string `json:"end_to_end_id,omitempty"`

	// AccountServicerReference is a random, bank-assigned reference unique
	// per booked entry (distinct from PmtInfID, which is only set on the
	// debit leg and used for idempotency).
	AccountServicerReference string `json:"account_servicer_reference"`

	CounterpartIBAN string `json:"counterpart_iban,omitempty"`
	CounterpartName string `json:"counterpart_name,omitempty"`
	CounterpartBIC  string `json:"counterpart_bic,omitempty"`

	// StatementID is empty until a statement tick closes this transaction
	// into a camt.053 statement.
	StatementID string    `json:"statement_id,omitempty"`
	BookingDate time.Time `json:"booking_date"`
	CreatedAt   time.Time `json:"created_at"`
}

// Statement is a closed camt.053 reporting period for one account.
type Statement struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	StatementNumber   int       `json:"statement_number"` // monotonically increasing per account
	OpeningBalance    string    `json:"opening_balance"`  // PRCD
	ClosingBalance    string    `json:"closing_balance"`  // CLBD
	Currency          string    `json:"currency"`
	CreationTimestamp time.Time `json:"creation_timestamp"`
	FromDate          time.Time `json:"from_date"`
	ToDate            time.Time `json:"to_date"`

	// Document is the camt.053 XML this statement was closed with, stored
	// verbatim so a later C53 download replays exactly what was generated
	// at tick time rather than being rebuilt from (possibly since-changed)
	// transaction rows.
	Document []byte `json:"-"`
}
