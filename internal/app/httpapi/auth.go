package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
)

type ctxKey string

const (
	ctxUserKey ctxKey = "httpapi.user"
	ctxRoleKey ctxKey = "httpapi.role"
)

// authenticatedAccount resolves the demobank, customer and bank account a
// Basic Auth request is addressed to, matching the credentials against the
// path segment named pathVar ("name" for the access API, "user" for the
// Taler wire-gateway). The account owner must be the authenticating
// customer: the access API has no notion of delegated access.
func (h *handler) authenticatedAccount(r *http.Request, pathVar string) (demobank.Demobank, demobank.Customer, bankaccount.Account, *sandboxError) {
	vars := mux.Vars(r)
	demobankName := vars["demobankid"]
	accountName := vars[pathVar]

	username, password, ok := r.BasicAuth()
	if !ok {
		return demobank.Demobank{}, demobank.Customer{}, bankaccount.Account{}, errUnauthorized("basic auth required")
	}

	db, err := h.demobanks.GetDemobankByName(r.Context(), demobankName)
	if err != nil {
		return demobank.Demobank{}, demobank.Customer{}, bankaccount.Account{}, errNotFound("unknown demobank " + demobankName)
	}

	cust, err := h.demobanks.GetCustomerByUsername(r.Context(), db.ID, username)
	if err != nil || !ebicscrypto.CheckPassword(cust.PasswordHash, password) {
		return demobank.Demobank{}, demobank.Customer{}, bankaccount.Account{}, errUnauthorized("bad credentials")
	}
	if !strings.EqualFold(username, accountName) {
		return demobank.Demobank{}, demobank.Customer{}, bankaccount.Account{}, errForbidden("cannot act on another customer's account")
	}

	accts, err := h.accounts.ListAccountsByCustomer(r.Context(), cust.ID)
	if err != nil {
		return demobank.Demobank{}, demobank.Customer{}, bankaccount.Account{}, errInternal(err.Error())
	}
	for _, a := range accts {
		if a.DemobankID == db.ID {
			return db, cust, a, nil
		}
	}
	return demobank.Demobank{}, demobank.Customer{}, bankaccount.Account{}, errNotFound("customer has no account in this demobank")
}

// withAccountAuth adapts a handler that needs the authenticated demobank and
// account into a plain http.HandlerFunc, gated by Basic Auth against the
// path segment named pathVar.
func (h *handler) withAccountAuth(pathVar string, next func(w http.ResponseWriter, r *http.Request, db demobank.Demobank, acct bankaccount.Account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cust, acct, sErr := h.authenticatedAccount(r, pathVar)
		if sErr != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="access-api"`)
			writeError(w, sErr)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserKey, cust.Username)
		ctx = context.WithValue(ctx, ctxRoleKey, "customer")
		next(w, r.WithContext(ctx), db, acct)
	}
}

// withAdminAuth gates a handler behind the sandbox's single admin
// credential, configured via LIBEUFIN_SANDBOX_ADMIN_PASSWORD.
func (h *handler) withAdminAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != h.adminUsername ||
			subtle.ConstantTimeCompare([]byte(password), []byte(h.adminPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			writeError(w, errUnauthorized("admin credentials required"))
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserKey, username)
		ctx = context.WithValue(ctx, ctxRoleKey, "admin")
		next(w, r.WithContext(ctx))
	}
}
