package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stanisci/ebics-sandbox/internal/app/ebics"
	"github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/statementtick"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
	"github.com/stanisci/ebics-sandbox/internal/app/withdrawal"
)

func newAdminFixture(t *testing.T) http.Handler {
	t.Helper()
	store := storage.NewStore()
	log := logging.New("admin-test", "error", "text")
	ledgerSvc := ledger.New(store, store, store, log)
	withdrawSvc := withdrawal.New(store, store, store, ledgerSvc, log)
	tickSvc := statementtick.New(store, store, store, ledgerSvc, log, "@daily")
	engine := ebics.NewEngine(store, store, store, log)

	return NewHandler(Deps{
		Engine: engine, Ledger: ledgerSvc, Withdrawals: withdrawSvc, Tick: tickSvc,
		Hosts: store, Subs: store, Demobanks: store, Accounts: store,
		AdminUsername: "admin", AdminPassword: "adminpass",
	}, newAuditLog(50, nil))
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	h := newAdminFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/demobanks", strings.NewReader(`{"name":"default","currency":"EUR"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminProvisioningFlow(t *testing.T) {
	h := newAdminFixture(t)

	createDemobank := httptest.NewRequest(http.MethodPost, "/admin/demobanks", strings.NewReader(`{"name":"default","currency":"EUR","default_debt_limit":"100"}`))
	createDemobank.SetBasicAuth("admin", "adminpass")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, createDemobank)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create demobank: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	createCustomer := httptest.NewRequest(http.MethodPost, "/admin/demobanks/default/customers", strings.NewReader(`{"username":"alice","password":"hunter2","full_name":"Alice"}`))
	createCustomer.SetBasicAuth("admin", "adminpass")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, createCustomer)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	createAccount := httptest.NewRequest(http.MethodPost, "/admin/demobanks/default/accounts", strings.NewReader(`{"customer_username":"alice","iban":"DE00ALICE","bic":"SANDBOXXX"}`))
	createAccount.SetBasicAuth("admin", "adminpass")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, createAccount)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	accountReq := httptest.NewRequest(http.MethodGet, "/demobanks/default/access-api/accounts/alice", nil)
	accountReq.SetBasicAuth("alice", "hunter2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, accountReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("get account: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var view accountView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal account view: %v", err)
	}
	if view.IBAN != "DE00ALICE" {
		t.Errorf("expected iban DE00ALICE, got %s", view.IBAN)
	}
}

func TestAdminForceTickAndAudit(t *testing.T) {
	h := newAdminFixture(t)

	tickReq := httptest.NewRequest(http.MethodPost, "/admin/statement-tick", nil)
	tickReq.SetBasicAuth("admin", "adminpass")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, tickReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("force tick: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	auditReq := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
	auditReq.SetBasicAuth("admin", "adminpass")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, auditReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
