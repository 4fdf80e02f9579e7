// Package bankaccount models the bank accounts a demobank exposes to EBICS
// subscribers and to the access API.
package bankaccount

import "time"

// Account is a single IBAN-addressed bank account within a demobank.
type Account struct {
	ID           string    `json:"id"`
	DemobankID   string    `json:"demobank_id"`
	CustomerID   string    `json:"customer_id"`
	SubscriberID string    `json:"subscriber_id,omitempty"` // EBICS subscriber with access, if any
	IBAN         string    `json:"iban"`
	BIC          string    `json:"bic"`
	OwnerName    string    `json:"owner_name"`
	Currency     string    `json:"currency"`
	DebtLimit    string    `json:"debt_limit"` // decimal string; negative balances below -DebtLimit are rejected

	// IsPublic marks accounts the access API's /public-accounts listing surfaces.
	IsPublic bool `json:"is_public"`

	// IsTalerExchange marks this account as a Taler wire-gateway exchange
	// account, eligible as a withdrawal destination.
	IsTalerExchange bool `json:"is_taler_exchange"`

	// LastBalance/LastBalanceDate cache the closing balance from the most
	// recent statement tick (CLBD). Fresh, unstatemented transactions are
	// added on top of this when computing the current balance.
	LastBalance     string    `json:"last_balance"`
	LastBalanceDate time.Time `json:"last_balance_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
