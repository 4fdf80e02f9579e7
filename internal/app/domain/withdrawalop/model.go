// Package withdrawalop models the Taler-wire-gateway withdrawal finite state
// machine: a customer reserves funds, selects a Taler exchange, confirms the
// payout, or aborts before it is booked.
package withdrawalop

import "time"

// State is one node of the withdrawal FSM. Valid transitions are
// created -> selected -> confirmed, or created|selected -> aborted.
type State string

const (
	Created   State = "created"
	Selected  State = "selected"
	Confirmed State = "confirmed"
	Aborted   State = "aborted"
)

// CanTransitionTo reports whether moving from s to next is a legal FSM edge.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case Created:
		return next == Selected || next == Aborted
	case Selected:
		return next == Confirmed || next == Aborted
	default:
		return false
	}
}

// Op is one withdrawal operation, identified externally by an unguessable wopid.
type Op struct {
	Wopid     string `json:"wopid"`
	AccountID string `json:"account_id"` // the reserve account funds are held against
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	State     State  `json:"state"`

	// SelectedExchangeIBAN/ReservePub are filled in once the wallet selects
	// an exchange (state -> selected).
	SelectedExchangeIBAN string `json:"selected_exchange_iban,omitempty"`
	ReservePub            string `json:"reserve_pub,omitempty"`

	// ConfirmedTransactionID references the ledger.Transaction booked when
	// the withdrawal is confirmed and paid out.
	ConfirmedTransactionID string `json:"confirmed_transaction_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
