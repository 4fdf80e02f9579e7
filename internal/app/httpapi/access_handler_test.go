package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/ebics"
	"github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/statementtick"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
	"github.com/stanisci/ebics-sandbox/internal/app/withdrawal"
	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
)

type fixture struct {
	handler  http.Handler
	demobank demobank.Demobank
	account  bankaccount.Account
	password string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewStore()

	bank, err := store.CreateDemobank(ctx, demobank.Demobank{
		Name: "default", Currency: "EUR", DefaultDebtLimit: "100",
	})
	if err != nil {
		t.Fatalf("create demobank: %v", err)
	}

	hash, err := ebicscrypto.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	cust, err := store.CreateCustomer(ctx, demobank.Customer{
		DemobankID: bank.ID, Username: "customer1", PasswordHash: hash, FullName: "Customer One",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	now := time.Now().UTC()
	acct, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: bank.ID, CustomerID: cust.ID,
		IBAN: "DE00123456", BIC: "SANDBOXXX", OwnerName: cust.FullName,
		Currency: bank.Currency, DebtLimit: "100", LastBalance: "0",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	log := logging.New("httpapi-test", "error", "text")
	ledgerSvc := ledger.New(store, store, store, log)
	withdrawSvc := withdrawal.New(store, store, store, ledgerSvc, log)
	tickSvc := statementtick.New(store, store, store, ledgerSvc, log, "@daily")
	engine := ebics.NewEngine(store, store, store, log)

	audit := newAuditLog(50, nil)
	h := NewHandler(Deps{
		Engine: engine, Ledger: ledgerSvc, Withdrawals: withdrawSvc, Tick: tickSvc,
		Hosts: store, Subs: store, Demobanks: store, Accounts: store,
		AdminUsername: "admin", AdminPassword: "adminpass",
	}, audit)

	return fixture{handler: h, demobank: bank, account: acct, password: "s3cret"}
}

func (f fixture) basicAuthURL(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.SetBasicAuth("customer1", f.password)
	return req
}

func TestGetAccountRequiresAuth(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/demobanks/default/access-api/accounts/customer1", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetAccountReturnsBalanceAndPayto(t *testing.T) {
	f := newFixture(t)
	req := f.basicAuthURL("/demobanks/default/access-api/accounts/customer1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var view accountView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.IBAN != "DE00123456" {
		t.Errorf("expected iban DE00123456, got %s", view.IBAN)
	}
	if !strings.HasPrefix(view.PaytoURI, "payto://iban/") {
		t.Errorf("expected payto uri, got %s", view.PaytoURI)
	}
}

func TestGetAccountRejectsCrossCustomerAccess(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/demobanks/default/access-api/accounts/someoneelse", nil)
	req.SetBasicAuth("customer1", f.password)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAndConfirmWithdrawal(t *testing.T) {
	f := newFixture(t)

	body := strings.NewReader(`{"amount":"10.00"}`)
	req := httptest.NewRequest(http.MethodPost, "/demobanks/default/access-api/accounts/customer1/withdrawals", body)
	req.SetBasicAuth("customer1", f.password)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	wopid := created["withdrawal_id"]
	if wopid == "" {
		t.Fatal("expected non-empty withdrawal_id")
	}
	if !strings.Contains(created["taler_withdraw_uri"], wopid) {
		t.Errorf("expected taler withdraw uri to reference wopid, got %s", created["taler_withdraw_uri"])
	}

	confirmReq := httptest.NewRequest(http.MethodPost, "/demobanks/default/access-api/accounts/customer1/withdrawals/"+wopid+"/confirm", nil)
	confirmRec := httptest.NewRecorder()
	f.handler.ServeHTTP(confirmRec, confirmReq)
	// No exchange selected yet, so confirm must fail with a typed domain error
	// rather than a panic or an untyped 500.
	if confirmRec.Code == http.StatusOK {
		t.Fatalf("expected confirm without selection to fail, got 200: %s", confirmRec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
