// Package httpapi exposes the EBICS posting endpoint and the minimal access
// API (account balance/history, credit transfers, Taler withdrawals, and
// admin provisioning) over HTTP.
package httpapi

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stanisci/ebics-sandbox/internal/app/ebics"
	"github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/metrics"
	"github.com/stanisci/ebics-sandbox/internal/app/statementtick"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
	"github.com/stanisci/ebics-sandbox/internal/app/withdrawal"
)

// Deps bundles every collaborator NewHandler wires into the router.
type Deps struct {
	Engine      *ebics.Engine
	Ledger      *ledger.Service
	Withdrawals *withdrawal.Service
	Tick        *statementtick.Service

	Hosts     storage.HostStore
	Subs      storage.SubscriberStore
	Demobanks storage.DemobankStore
	Accounts  storage.BankAccountStore

	AdminUsername string
	AdminPassword string

	Log *logging.Logger
}

// handler bundles HTTP endpoints for the sandbox's services.
type handler struct {
	engine      *ebics.Engine
	ledger      *ledger.Service
	withdrawals *withdrawal.Service
	tick        *statementtick.Service

	hosts     storage.HostStore
	subs      storage.SubscriberStore
	demobanks storage.DemobankStore
	accounts  storage.BankAccountStore

	adminUsername string
	adminPassword string

	audit *auditLog
	log   *logging.Logger
}

// NewHandler builds the router exposing the EBICS endpoint, the access API
// and the admin provisioning routes.
func NewHandler(deps Deps, audit *auditLog) http.Handler {
	h := &handler{
		engine:        deps.Engine,
		ledger:        deps.Ledger,
		withdrawals:   deps.Withdrawals,
		tick:          deps.Tick,
		hosts:         deps.Hosts,
		subs:          deps.Subs,
		demobanks:     deps.Demobanks,
		accounts:      deps.Accounts,
		adminUsername: deps.AdminUsername,
		adminPassword: deps.AdminPassword,
		audit:         audit,
		log:           deps.Log,
	}

	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/ebicsweb", h.ebicsweb).Methods(http.MethodPost)

	demobank := r.PathPrefix("/demobanks/{demobankid}").Subrouter()

	demobank.HandleFunc("/access-api/accounts/{name}",
		h.withAccountAuth("name", h.getAccount)).Methods(http.MethodGet)
	demobank.HandleFunc("/access-api/accounts/{name}/transactions",
		h.withAccountAuth("name", h.createTransaction)).Methods(http.MethodPost)
	demobank.HandleFunc("/access-api/accounts/{name}/transactions",
		h.withAccountAuth("name", h.listTransactions)).Methods(http.MethodGet)
	demobank.HandleFunc("/access-api/accounts/{name}/withdrawals",
		h.withAccountAuth("name", h.createWithdrawal)).Methods(http.MethodPost)
	demobank.HandleFunc("/access-api/accounts/{name}/withdrawals/{wid}",
		h.withAccountAuth("name", h.getWithdrawal)).Methods(http.MethodGet)
	// Confirm/abort are deliberately unauthenticated: the wopid itself is
	// the credential, matching the wallet-facing integration API below.
	demobank.HandleFunc("/access-api/accounts/{name}/withdrawals/{wid}/confirm",
		h.confirmWithdrawal).Methods(http.MethodGet, http.MethodPost)
	demobank.HandleFunc("/access-api/accounts/{name}/withdrawals/{wid}/abort",
		h.abortWithdrawal).Methods(http.MethodGet, http.MethodPost)

	demobank.HandleFunc("/integration-api/withdrawal-operation/{wopid}",
		h.integrationWithdrawalGet).Methods(http.MethodGet)
	demobank.HandleFunc("/integration-api/withdrawal-operation/{wopid}",
		h.integrationWithdrawalSelect).Methods(http.MethodPost)

	demobank.HandleFunc("/taler-wire-gateway/{user}/admin/add-incoming",
		h.withAccountAuth("user", h.addIncoming)).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/hosts", h.withAdminAuth(h.adminCreateHost)).Methods(http.MethodPost)
	admin.HandleFunc("/demobanks", h.withAdminAuth(h.adminCreateDemobank)).Methods(http.MethodPost)
	admin.HandleFunc("/demobanks/{demobankid}/customers", h.withAdminAuth(h.adminCreateCustomer)).Methods(http.MethodPost)
	admin.HandleFunc("/demobanks/{demobankid}/accounts", h.withAdminAuth(h.adminCreateAccount)).Methods(http.MethodPost)
	admin.HandleFunc("/statement-tick", h.withAdminAuth(h.adminForceTick)).Methods(http.MethodPost)
	admin.HandleFunc("/audit", h.withAdminAuth(h.adminAudit)).Methods(http.MethodGet)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ebicsweb is the single EBICS H004 posting endpoint. Per the protocol, an
// EBICS-layer error is still a 200 with the error encoded in the response
// body; only a body the engine couldn't even parse as one of the four
// request root elements is rejected at the HTTP layer.
func (h *handler) ebicsweb(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp, ok := h.engine.Serve(r.Context(), body)
	if !ok {
		if h.log != nil {
			h.log.Warn("ebicsweb: unparseable request body")
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}
