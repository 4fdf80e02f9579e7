package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/host"
	"github.com/stanisci/ebics-sandbox/internal/app/ebics"
	"github.com/stanisci/ebics-sandbox/internal/app/ebicserr"
	"github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/statementtick"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
	"github.com/stanisci/ebics-sandbox/internal/app/withdrawal"
	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
	"github.com/stanisci/ebics-sandbox/internal/xmlcodec"
)

// This file consolidates the sandbox's named seed scenarios in one place,
// table-style, rather than leaving them scattered one-assertion-deep across
// internal/app/ledger, internal/app/statementtick and internal/app/withdrawal.
// Scenario 1 is the only one of the six with no other full-wire coverage
// anywhere in the tree (internal/app/ebics/request_test.go exercises INI
// alone, never the INI->HIA->HPB chain with a real E002 decrypt of the
// response), so it drives the real /ebicsweb handler end to end. Scenarios
// 2-6 already have solid unit coverage at the service layer; here they are
// re-expressed against the exact fixture figures so a reader can check the
// sandbox's behaviour against one number without cross-referencing three
// packages.

func scenarioPain001(pmtInfID, debtorIBAN, creditorIBAN, amount string) []byte {
	return []byte(`<?xml version="1.0"?>
<Document>
  <CstmrCdtTrfInitn>
    <GrpHdr><MsgId>` + pmtInfID + `</MsgId></GrpHdr>
    <PmtInf>
      <PmtInfId>` + pmtInfID + `</PmtInfId>
      <Dbtr><Nm>Alice</Nm></Dbtr>
      <DbtrAcct><Id><IBAN>` + debtorIBAN + `</IBAN></Id></DbtrAcct>
      <DbtrAgt><FinInstnId><BIC>SANDBOXXXXX</BIC></FinInstnId></DbtrAgt>
      <CdtTrfTxInf>
        <PmtId><EndToEndId>E2E-` + pmtInfID + `</EndToEndId></PmtId>
        <Amt><InstdAmt Ccy="EUR">` + amount + `</InstdAmt></Amt>
        <CdtrAgt><FinInstnId><BIC>SANDBOXXXXX</BIC></FinInstnId></CdtrAgt>
        <Cdtr><Nm>Creditor</Nm></Cdtr>
        <CdtrAcct><Id><IBAN>` + creditorIBAN + `</IBAN></Id></CdtrAcct>
        <RmtInf><Ustrd>invoice</Ustrd></RmtInf>
      </CdtTrfTxInf>
    </PmtInf>
  </CstmrCdtTrfInitn>
</Document>`)
}

// TestScenarioKeyManagementCompletesAndHPBDecryptsToHostKeys covers the
// sandbox's first seed scenario: a fresh subscriber submits INI then HIA
// over the real /ebicsweb endpoint, then fetches the bank's own keys with
// HPB and decrypts the E002 envelope the way a real EBICS client would,
// confirming it recovers exactly the host's own authentication and
// encryption public keys.
func TestScenarioKeyManagementCompletesAndHPBDecryptsToHostKeys(t *testing.T) {
	store := storage.NewStore()
	ctx := context.Background()

	hostAuth, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate host auth key: %v", err)
	}
	hostEnc, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate host enc key: %v", err)
	}
	hostAuthPEM, _ := ebicscrypto.MarshalPublicKeyPEM(&hostAuth.PublicKey)
	hostEncPEM, _ := ebicscrypto.MarshalPublicKeyPEM(&hostEnc.PublicKey)
	if _, err := store.CreateHost(ctx, host.Host{
		HostID:            "HOST01",
		EbicsVersion:      "H004",
		AuthPrivKey:       ebicscrypto.MarshalPrivateKeyPEM(hostAuth),
		AuthPubKey:        hostAuthPEM,
		EncryptionPrivKey: ebicscrypto.MarshalPrivateKeyPEM(hostEnc),
		EncryptionPubKey:  hostEncPEM,
		CreatedAt:         time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create host: %v", err)
	}

	log := logging.New("scenarios-test", "error", "text")
	engine := ebics.NewEngine(store, store, store, log)
	h := NewHandler(Deps{Engine: engine, Hosts: store, Subs: store, Demobanks: store, Accounts: store}, newAuditLog(50, nil))

	post := func(body []byte) []byte {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/ebicsweb", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from /ebicsweb, got %d: %s", rec.Code, rec.Body.String())
		}
		return rec.Body.Bytes()
	}

	sigKey, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate sig key: %v", err)
	}
	authKey, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate auth key: %v", err)
	}
	encKey, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate enc key: %v", err)
	}

	iniData, err := xmlcodec.BuildSignaturePubKeyOrderData("PARTNER1", "alice", &sigKey.PublicKey)
	if err != nil {
		t.Fatalf("build INI order data: %v", err)
	}
	compressedINI, err := xmlcodec.CompressOrderData(iniData)
	if err != nil {
		t.Fatalf("compress INI: %v", err)
	}
	iniReq := xmlcodec.EbicsUnsecuredRequest{
		Header: xmlcodec.UnsecuredHeader{Static: xmlcodec.UnsecuredStaticHeader{
			HostID: "HOST01", PartnerID: "PARTNER1", UserID: "alice",
			OrderDetails: xmlcodec.OrderDetails{OrderType: "INI"},
		}},
		Body: xmlcodec.UnsecuredBody{DataTransfer: xmlcodec.UnsecuredDataTransfer{
			OrderData: base64.StdEncoding.EncodeToString(compressedINI),
		}},
	}
	iniBody, err := xml.Marshal(iniReq)
	if err != nil {
		t.Fatalf("marshal INI: %v", err)
	}
	if resp := post(iniBody); !bytes.Contains(resp, []byte("000000")) {
		t.Fatalf("INI: expected success return code, got %s", resp)
	}

	hiaData, err := xmlcodec.BuildHIAOrderData("PARTNER1", "alice", &authKey.PublicKey, &encKey.PublicKey)
	if err != nil {
		t.Fatalf("build HIA order data: %v", err)
	}
	compressedHIA, err := xmlcodec.CompressOrderData(hiaData)
	if err != nil {
		t.Fatalf("compress HIA: %v", err)
	}
	hiaReq := xmlcodec.EbicsUnsecuredRequest{
		Header: xmlcodec.UnsecuredHeader{Static: xmlcodec.UnsecuredStaticHeader{
			HostID: "HOST01", PartnerID: "PARTNER1", UserID: "alice",
			OrderDetails: xmlcodec.OrderDetails{OrderType: "HIA"},
		}},
		Body: xmlcodec.UnsecuredBody{DataTransfer: xmlcodec.UnsecuredDataTransfer{
			OrderData: base64.StdEncoding.EncodeToString(compressedHIA),
		}},
	}
	hiaBody, err := xml.Marshal(hiaReq)
	if err != nil {
		t.Fatalf("marshal HIA: %v", err)
	}
	if resp := post(hiaBody); !bytes.Contains(resp, []byte("000000")) {
		t.Fatalf("HIA: expected success return code, got %s", resp)
	}

	hpbReq := xmlcodec.EbicsNoPubKeyDigestsRequest{
		Header: xmlcodec.NoPubKeyDigestsHeader{Static: xmlcodec.NoPubKeyDigestsStaticHeader{
			HostID: "HOST01", PartnerID: "PARTNER1", UserID: "alice",
			OrderDetails: xmlcodec.OrderDetails{OrderType: "HPB"},
		}},
	}
	hpbBody, err := xml.Marshal(hpbReq)
	if err != nil {
		t.Fatalf("marshal HPB: %v", err)
	}
	hpbResp := post(hpbBody)

	var parsed xmlcodec.EbicsResponse
	if err := xml.Unmarshal(hpbResp, &parsed); err != nil {
		t.Fatalf("unmarshal HPB response: %v", err)
	}
	dt := parsed.Body.DataTransfer
	if dt == nil || dt.DataEncryptionInfo == nil {
		t.Fatalf("expected an encrypted HPB payload, got %s", hpbResp)
	}

	encryptedKey, err := base64.StdEncoding.DecodeString(dt.DataEncryptionInfo.TransactionKey)
	if err != nil {
		t.Fatalf("decode transaction key: %v", err)
	}
	cipherText, err := base64.StdEncoding.DecodeString(dt.OrderData)
	if err != nil {
		t.Fatalf("decode order data: %v", err)
	}
	plainCompressed, err := ebicscrypto.DecryptE002(encKey, &ebicscrypto.E002Envelope{
		EncryptedKey: encryptedKey,
		IV:           make([]byte, 16),
		CipherText:   cipherText,
	})
	if err != nil {
		t.Fatalf("decrypt HPB payload as the subscriber would: %v", err)
	}
	plain, err := xmlcodec.DecompressOrderData(plainCompressed)
	if err != nil {
		t.Fatalf("inflate HPB order data: %v", err)
	}
	gotAuthPub, gotEncPub, err := xmlcodec.ParseHPBOrderData(plain)
	if err != nil {
		t.Fatalf("parse HPB order data: %v", err)
	}
	gotAuthPEM, _ := ebicscrypto.MarshalPublicKeyPEM(gotAuthPub)
	gotEncPEM, _ := ebicscrypto.MarshalPublicKeyPEM(gotEncPub)
	if !bytes.Equal(gotAuthPEM, hostAuthPEM) {
		t.Fatal("decrypted HPB payload does not carry the host's own authentication key")
	}
	if !bytes.Equal(gotEncPEM, hostEncPEM) {
		t.Fatal("decrypted HPB payload does not carry the host's own encryption key")
	}

	sub, err := store.GetSubscriber(ctx, "HOST01", "PARTNER1", "alice")
	if err != nil {
		t.Fatalf("get subscriber: %v", err)
	}
	if sub.State != "ready" {
		t.Fatalf("expected subscriber to reach state ready after HPB, got %s", sub.State)
	}
}

func newScenarioLedger(t *testing.T) (*ledger.Service, *storage.Store, demobank.Demobank) {
	t.Helper()
	store := storage.NewStore()
	ctx := context.Background()
	bank, err := store.CreateDemobank(ctx, demobank.Demobank{Name: "default", Currency: "EUR", DefaultDebtLimit: "0.00"})
	if err != nil {
		t.Fatalf("create demobank: %v", err)
	}
	log := logging.New("scenarios-test", "error", "text")
	return ledger.New(store, store, store, log), store, bank
}

// TestScenarioCCTBooksExactAmountAgainstNonLocalCreditor covers the second
// seed scenario: alice's account DE89370400440532013000 sends 10.50 EUR to
// a creditor IBAN the sandbox does not host. Only the debit leg is booked;
// there is no local account to book a credit leg against.
func TestScenarioCCTBooksExactAmountAgainstNonLocalCreditor(t *testing.T) {
	svc, store, bank := newScenarioLedger(t)
	ctx := context.Background()

	const debtorIBAN = "DE89370400440532013000"
	const creditorIBAN = "DE02120300000000202051"
	debtor, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: bank.ID, SubscriberID: "alice", IBAN: debtorIBAN, BIC: "SANDBOXXXXX",
		OwnerName: "Alice", Currency: "EUR", DebtLimit: "1000.00",
	})
	if err != nil {
		t.Fatalf("create debtor account: %v", err)
	}

	order := scenarioPain001("MSG-1", debtorIBAN, creditorIBAN, "10.50")
	if err := svc.BookCCT(ctx, "HOST01", "alice", "PARTNER1", order); err != nil {
		t.Fatalf("BookCCT: %v", err)
	}

	debits, err := store.ListFreshTransactions(ctx, debtor.ID)
	if err != nil {
		t.Fatalf("list fresh transactions: %v", err)
	}
	if len(debits) != 1 || debits[0].Amount != "10.50" || debits[0].Direction != ledger.Debit {
		t.Fatalf("expected a single 10.50 debit, got %+v", debits)
	}

	if _, err := store.GetAccountByIBAN(ctx, bank.ID, creditorIBAN); err == nil {
		t.Fatal("expected the creditor IBAN to remain unhosted, got a local account")
	}
}

// TestScenarioCCTReplayWithSamePmtInfIDIsANoOp covers the third seed
// scenario: resubmitting the same pain.001 (identified by its pmtInfId)
// books nothing a second time.
func TestScenarioCCTReplayWithSamePmtInfIDIsANoOp(t *testing.T) {
	svc, store, bank := newScenarioLedger(t)
	ctx := context.Background()

	const debtorIBAN = "DE89370400440532013000"
	const creditorIBAN = "DE02120300000000202051"
	debtor, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: bank.ID, SubscriberID: "alice", IBAN: debtorIBAN, BIC: "SANDBOXXXXX",
		OwnerName: "Alice", Currency: "EUR", DebtLimit: "1000.00",
	})
	if err != nil {
		t.Fatalf("create debtor account: %v", err)
	}

	order := scenarioPain001("MSG-1", debtorIBAN, creditorIBAN, "10.50")
	if err := svc.BookCCT(ctx, "HOST01", "alice", "PARTNER1", order); err != nil {
		t.Fatalf("first BookCCT: %v", err)
	}
	if err := svc.BookCCT(ctx, "HOST01", "alice", "PARTNER1", order); err != nil {
		t.Fatalf("replayed BookCCT: %v", err)
	}

	debits, err := store.ListFreshTransactions(ctx, debtor.ID)
	if err != nil {
		t.Fatalf("list fresh transactions: %v", err)
	}
	if len(debits) != 1 {
		t.Fatalf("expected the replay to book nothing new, got %d transactions", len(debits))
	}
}

// TestScenarioCCTRejectsDebtLimitBreachWith091303 covers the fourth seed
// scenario: a 2000 EUR transfer against a 1000 EUR debt limit is rejected
// with [EBICS_AMOUNT_CHECK_FAILED] 091303, and books nothing.
func TestScenarioCCTRejectsDebtLimitBreachWith091303(t *testing.T) {
	svc, store, bank := newScenarioLedger(t)
	ctx := context.Background()

	const debtorIBAN = "DE89370400440532013000"
	const creditorIBAN = "DE02120300000000202051"
	debtor, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: bank.ID, SubscriberID: "alice", IBAN: debtorIBAN, BIC: "SANDBOXXXXX",
		OwnerName: "Alice", Currency: "EUR", DebtLimit: "1000.00",
	})
	if err != nil {
		t.Fatalf("create debtor account: %v", err)
	}

	order := scenarioPain001("MSG-2", debtorIBAN, creditorIBAN, "2000.00")
	err = svc.BookCCT(ctx, "HOST01", "alice", "PARTNER1", order)
	if err == nil {
		t.Fatal("expected a debt-limit rejection, got nil")
	}
	var ebicsErr *ebicserr.Error
	if !errors.As(err, &ebicsErr) || ebicsErr.Code != ebicserr.AmountCheckFailed {
		t.Fatalf("expected [EBICS_AMOUNT_CHECK_FAILED] 091303, got %v", err)
	}

	debits, err := store.ListFreshTransactions(ctx, debtor.ID)
	if err != nil {
		t.Fatalf("list fresh transactions: %v", err)
	}
	if len(debits) != 0 {
		t.Fatalf("expected the rejected transfer to book nothing, got %+v", debits)
	}
}

// TestScenarioStatementTickClosesTwoCreditsIntoTenEuroC53 covers the fifth
// seed scenario: two separate 5 EUR incoming credit transfers, closed by a
// statement tick, appear as a single camt.053 statement summing to 10.00.
func TestScenarioStatementTickClosesTwoCreditsIntoTenEuroC53(t *testing.T) {
	svc, store, bank := newScenarioLedger(t)
	ctx := context.Background()

	const debtorIBAN = "DE00EXTERNAL0000000001"
	const creditorIBAN = "DE89370400440532013000"
	if _, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: bank.ID, SubscriberID: "payer", IBAN: debtorIBAN, BIC: "SANDBOXXXXX",
		OwnerName: "Payer", Currency: "EUR", DebtLimit: "1000.00",
	}); err != nil {
		t.Fatalf("create debtor account: %v", err)
	}
	if _, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: bank.ID, SubscriberID: "alice", IBAN: creditorIBAN, BIC: "SANDBOXXXXX",
		OwnerName: "Alice", Currency: "EUR", DebtLimit: "0.00",
	}); err != nil {
		t.Fatalf("create creditor account: %v", err)
	}

	for _, pmtInfID := range []string{"MSG-3", "MSG-4"} {
		order := scenarioPain001(pmtInfID, debtorIBAN, creditorIBAN, "5.00")
		if err := svc.BookCCT(ctx, "HOST01", "payer", "PARTNER1", order); err != nil {
			t.Fatalf("BookCCT %s: %v", pmtInfID, err)
		}
	}

	log := logging.New("scenarios-test", "error", "text")
	tick := statementtick.New(store, store, store, svc, log, "@daily")
	if err := tick.RunTick(ctx); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	report, err := svc.BuildC53Report(ctx, "HOST01", "alice", "PARTNER1")
	if err != nil {
		t.Fatalf("BuildC53Report: %v", err)
	}
	if !strings.Contains(string(report), "10.00") {
		t.Fatalf("expected the closed statement to total 10.00, got: %s", report)
	}
}

// TestScenarioWithdrawalConfirmsThenRejectsLateAbort covers the sixth seed
// scenario: a 7.00 EUR withdrawal is created, the wallet selects an
// exchange, the exchange confirms it (crediting the exchange account), and
// a subsequent abort attempt is rejected with 409 since the operation has
// already settled.
func TestScenarioWithdrawalConfirmsThenRejectsLateAbort(t *testing.T) {
	store := storage.NewStore()
	ctx := context.Background()
	bank, err := store.CreateDemobank(ctx, demobank.Demobank{Name: "default", Currency: "EUR"})
	if err != nil {
		t.Fatalf("create demobank: %v", err)
	}

	passwordHash, err := ebicscrypto.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	customer, err := store.CreateCustomer(ctx, demobank.Customer{
		DemobankID: bank.ID, Username: "alice", PasswordHash: passwordHash, FullName: "Alice",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if _, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: bank.ID, CustomerID: customer.ID, IBAN: "DE89370400440532013000", BIC: "SANDBOXXXXX",
		OwnerName: "Alice", Currency: "EUR", DebtLimit: "100.00",
	}); err != nil {
		t.Fatalf("create alice's account: %v", err)
	}
	exchange, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: bank.ID, IBAN: "DE02120300000000202051", BIC: "SANDBOXXXXX",
		OwnerName: "Exchange", Currency: "EUR", DebtLimit: "0.00", IsTalerExchange: true,
	})
	if err != nil {
		t.Fatalf("create exchange account: %v", err)
	}

	log := logging.New("scenarios-test", "error", "text")
	ledgerSvc := ledger.New(store, store, store, log)
	withdrawSvc := withdrawal.New(store, store, store, ledgerSvc, log)
	h := NewHandler(Deps{Ledger: ledgerSvc, Withdrawals: withdrawSvc, Hosts: store, Subs: store, Demobanks: store, Accounts: store}, newAuditLog(50, nil))

	createReq := httptest.NewRequest(http.MethodPost, "/demobanks/default/access-api/accounts/alice/withdrawals", strings.NewReader(`{"amount":"7.00"}`))
	createReq.SetBasicAuth("alice", "hunter2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, createReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("create withdrawal: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	wopid := created["withdrawal_id"]
	if wopid == "" {
		t.Fatal("expected a withdrawal_id in the create response")
	}

	selectBody := `{"reserve_pub":"RESERVE1","selected_exchange":"payto://iban/SANDBOXXXXX/` + exchange.IBAN + `"}`
	selectReq := httptest.NewRequest(http.MethodPost, "/demobanks/default/integration-api/withdrawal-operation/"+wopid, strings.NewReader(selectBody))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, selectReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("select exchange: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	confirmReq := httptest.NewRequest(http.MethodPost, "/demobanks/default/access-api/accounts/alice/withdrawals/"+wopid+"/confirm", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, confirmReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var confirmed map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &confirmed); err != nil {
		t.Fatalf("unmarshal confirm response: %v", err)
	}
	if done, _ := confirmed["confirmation_done"].(bool); !done {
		t.Fatalf("expected confirmation_done=true, got %+v", confirmed)
	}

	balance, err := ledgerSvc.Balance(ctx, exchange)
	if err != nil {
		t.Fatalf("exchange balance: %v", err)
	}
	if balance != "7.00" {
		t.Fatalf("expected the exchange account to hold 7.00 after confirmation, got %s", balance)
	}

	abortReq := httptest.NewRequest(http.MethodPost, "/demobanks/default/access-api/accounts/alice/withdrawals/"+wopid+"/abort", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, abortReq)
	if rec.Code != http.StatusConflict {
		t.Fatalf("abort after confirm: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}
