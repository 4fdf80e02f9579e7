package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/withdrawalop"
)

type accountView struct {
	IBAN            string `json:"iban"`
	BIC             string `json:"bic"`
	Balance         string `json:"balance"`
	Currency        string `json:"currency"`
	PaytoURI        string `json:"paytoUri"`
	DebitThreshold  string `json:"debitThreshold"`
	IsTalerExchange bool   `json:"isTalerExchange,omitempty"`
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request, db demobank.Demobank, acct bankaccount.Account) {
	balance, err := h.ledger.Balance(r.Context(), acct)
	if err != nil {
		writeError(w, mapDomainError(err))
		return
	}
	writeJSON(w, http.StatusOK, accountView{
		IBAN:            acct.IBAN,
		BIC:             acct.BIC,
		Balance:         balance,
		Currency:        acct.Currency,
		PaytoURI:        ibanPayto(acct.BIC, acct.IBAN),
		DebitThreshold:  acct.DebtLimit,
		IsTalerExchange: acct.IsTalerExchange,
	})
}

type createTransactionRequest struct {
	PaytoURI  string `json:"paytoUri"`
	Amount    string `json:"amount"`
	PmtInfID  string `json:"pmtInfId"`
}

func (h *handler) createTransaction(w http.ResponseWriter, r *http.Request, db demobank.Demobank, acct bankaccount.Account) {
	var req createTransactionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errBadRequest("malformed request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.Amount) == "" {
		writeError(w, errBadRequest("amount is required"))
		return
	}
	iban, err := paytoIBAN(req.PaytoURI)
	if err != nil {
		writeError(w, errBadRequest(err.Error()))
		return
	}
	target, err := h.accounts.GetAccountByIBAN(r.Context(), db.ID, iban)
	if err != nil {
		writeError(w, errNotFound("creditor account "+iban+" not found in this demobank"))
		return
	}

	subject := req.PmtInfID
	if subject == "" {
		subject = "access-api transfer"
	}
	debitTxID, _, err := h.ledger.ExecuteTransfer(r.Context(), acct.ID, target.ID, req.Amount, db.Currency, subject)
	if err != nil {
		writeError(w, mapDomainError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transaction_id": debitTxID})
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request, db demobank.Demobank, acct bankaccount.Account) {
	size, err := parseLimitParam(r.URL.Query().Get("size"), 0)
	if err != nil {
		writeError(w, errBadRequest(err.Error()))
		return
	}
	page := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 0 {
			writeError(w, errBadRequest("page must be a non-negative integer"))
			return
		}
		page = v
	}
	txs, err := h.ledger.ListTransactions(r.Context(), acct.ID, size, page*size)
	if err != nil {
		writeError(w, mapDomainError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type createWithdrawalRequest struct {
	Amount string `json:"amount"`
}

func (h *handler) createWithdrawal(w http.ResponseWriter, r *http.Request, db demobank.Demobank, acct bankaccount.Account) {
	var req createWithdrawalRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errBadRequest("malformed request body: "+err.Error()))
		return
	}
	op, err := h.withdrawals.Create(r.Context(), acct.ID, req.Amount, db.Currency)
	if err != nil {
		writeError(w, mapDomainError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"withdrawal_id":     op.Wopid,
		"taler_withdraw_uri": talerWithdrawURI(r, db.Name, op.Wopid),
	})
}

func talerWithdrawURI(r *http.Request, demobankName, wopid string) string {
	scheme := "taler+http"
	return scheme + "://withdraw/" + r.Host + "/demobanks/" + demobankName + "/" + wopid
}

func withdrawalView(op withdrawalop.Op) map[string]any {
	return map[string]any{
		"wopid":                   op.Wopid,
		"amount":                  op.Amount,
		"currency":                op.Currency,
		"selection_done":          op.State == withdrawalop.Selected || op.State == withdrawalop.Confirmed,
		"confirmation_done":       op.State == withdrawalop.Confirmed,
		"aborted":                 op.State == withdrawalop.Aborted,
		"selected_exchange_iban":  op.SelectedExchangeIBAN,
		"reserve_pub":             op.ReservePub,
		"confirmed_transaction_id": op.ConfirmedTransactionID,
	}
}

func (h *handler) getWithdrawal(w http.ResponseWriter, r *http.Request, db demobank.Demobank, acct bankaccount.Account) {
	wid := mux.Vars(r)["wid"]
	op, err := h.withdrawals.Get(r.Context(), wid)
	if err != nil {
		writeError(w, errNotFound("unknown withdrawal "+wid))
		return
	}
	if op.AccountID != acct.ID {
		writeError(w, errForbidden("withdrawal does not belong to this account"))
		return
	}
	writeJSON(w, http.StatusOK, withdrawalView(op))
}

// confirmWithdrawal and abortWithdrawal are intentionally unauthenticated:
// the wopid itself is the unguessable credential, matching the wallet-facing
// integration-api below.
func (h *handler) confirmWithdrawal(w http.ResponseWriter, r *http.Request) {
	wid := mux.Vars(r)["wid"]
	op, err := h.withdrawals.Confirm(r.Context(), wid)
	if err != nil {
		writeError(w, mapDomainError(err))
		return
	}
	writeJSON(w, http.StatusOK, withdrawalView(op))
}

func (h *handler) abortWithdrawal(w http.ResponseWriter, r *http.Request) {
	wid := mux.Vars(r)["wid"]
	op, err := h.withdrawals.Abort(r.Context(), wid)
	if err != nil {
		writeError(w, mapDomainError(err))
		return
	}
	writeJSON(w, http.StatusOK, withdrawalView(op))
}

// integrationWithdrawalGet is the wallet's read side of the FSM: it needs no
// credential beyond the wopid to poll withdrawal status.
func (h *handler) integrationWithdrawalGet(w http.ResponseWriter, r *http.Request) {
	wopid := mux.Vars(r)["wopid"]
	op, err := h.withdrawals.Get(r.Context(), wopid)
	if err != nil {
		writeError(w, errNotFound("unknown withdrawal "+wopid))
		return
	}
	writeJSON(w, http.StatusOK, withdrawalView(op))
}

type selectExchangeRequest struct {
	ReservePub      string `json:"reserve_pub"`
	SelectedExchange string `json:"selected_exchange"`
}

// integrationWithdrawalSelect is the wallet's write side of the FSM: it
// posts the reserve public key and its chosen exchange, identified by a
// payto URI, moving the operation created -> selected.
func (h *handler) integrationWithdrawalSelect(w http.ResponseWriter, r *http.Request) {
	wopid := mux.Vars(r)["wopid"]
	var req selectExchangeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errBadRequest("malformed request body: "+err.Error()))
		return
	}
	iban, err := paytoIBAN(req.SelectedExchange)
	if err != nil {
		writeError(w, errBadRequest(err.Error()))
		return
	}
	op, err := h.withdrawals.Select(r.Context(), wopid, req.ReservePub, iban)
	if err != nil {
		writeError(w, mapDomainError(err))
		return
	}
	writeJSON(w, http.StatusOK, withdrawalView(op))
}

type addIncomingRequest struct {
	ReservePub   string `json:"reserve_pub"`
	Amount       string `json:"amount"`
	DebitAccount string `json:"debit_account"`
}

// addIncoming is the Taler exchange's side of a withdrawal payout: it books
// a credit transfer into the authenticated (exchange) account out of
// debit_account, the equivalent of an external pain.001 credit.
func (h *handler) addIncoming(w http.ResponseWriter, r *http.Request, db demobank.Demobank, acct bankaccount.Account) {
	var req addIncomingRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errBadRequest("malformed request body: "+err.Error()))
		return
	}
	debtorIBAN, err := paytoIBAN(req.DebitAccount)
	if err != nil {
		writeError(w, errBadRequest(err.Error()))
		return
	}
	debtor, err := h.accounts.GetAccountByIBAN(r.Context(), db.ID, debtorIBAN)
	if err != nil {
		writeError(w, errNotFound("debit account "+debtorIBAN+" not found in this demobank"))
		return
	}
	_, creditTxID, err := h.ledger.ExecuteTransfer(r.Context(), debtor.ID, acct.ID, req.Amount, db.Currency, req.ReservePub)
	if err != nil {
		writeError(w, mapDomainError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transaction_id": creditTxID})
}
