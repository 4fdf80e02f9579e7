// Package demobank models a demobank: a named regulatory sandbox tenant that
// groups bank accounts, customers, and a currency/debt-limit policy.
package demobank

import "time"

// Demobank is one sandboxed "bank" instance, e.g. "default" or "demobank2".
type Demobank struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Currency        string    `json:"currency"`
	DefaultDebtLimit string   `json:"default_debt_limit"` // decimal string
	SuggestedExchangeAccount string `json:"suggested_exchange_account,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Customer is a demobank's registered user, distinct from an EBICS subscriber:
// customers authenticate to the access API with HTTP Basic Auth.
type Customer struct {
	ID           string    `json:"id"`
	DemobankID   string    `json:"demobank_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
