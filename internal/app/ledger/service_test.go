package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/ebicserr"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store, bankaccount.Account, bankaccount.Account) {
	t.Helper()
	store := storage.NewStore()
	ctx := context.Background()

	d, err := store.CreateDemobank(ctx, demobank.Demobank{Name: "default", Currency: "EUR"})
	if err != nil {
		t.Fatalf("create demobank: %v", err)
	}

	debtor, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: d.ID, SubscriberID: "SUB1", IBAN: "DE1111", BIC: "SANDBOXXXXX",
		OwnerName: "Debtor", Currency: "EUR", DebtLimit: "100.00",
	})
	if err != nil {
		t.Fatalf("create debtor account: %v", err)
	}
	creditor, err := store.CreateAccount(ctx, bankaccount.Account{
		DemobankID: d.ID, IBAN: "DE2222", BIC: "SANDBOXXXXX",
		OwnerName: "Creditor", Currency: "EUR", DebtLimit: "0.00",
	})
	if err != nil {
		t.Fatalf("create creditor account: %v", err)
	}

	return New(store, store, store, nil), store, debtor, creditor
}

func pain001For(pmtInfID, debtorIBAN, creditorIBAN, amount string) []byte {
	body := `<?xml version="1.0"?>
<Document>
  <CstmrCdtTrfInitn>
    <GrpHdr><MsgId>MSG1</MsgId></GrpHdr>
    <PmtInf>
      <PmtInfId>` + pmtInfID + `</PmtInfId>
      <Dbtr><Nm>Debtor</Nm></Dbtr>
      <DbtrAcct><Id><IBAN>` + debtorIBAN + `</IBAN></Id></DbtrAcct>
      <DbtrAgt><FinInstnId><BIC>SANDBOXXXXX</BIC></FinInstnId></DbtrAgt>
      <CdtTrfTxInf>
        <PmtId><EndToEndId>E2E1</EndToEndId></PmtId>
        <Amt><InstdAmt Ccy="EUR">` + amount + `</InstdAmt></Amt>
        <CdtrAgt><FinInstnId><BIC>SANDBOXXXXX</BIC></FinInstnId></CdtrAgt>
        <Cdtr><Nm>Creditor</Nm></Cdtr>
        <CdtrAcct><Id><IBAN>` + creditorIBAN + `</IBAN></Id></CdtrAcct>
        <RmtInf><Ustrd>invoice 1</Ustrd></RmtInf>
      </CdtTrfTxInf>
    </PmtInf>
  </CstmrCdtTrfInitn>
</Document>`
	return []byte(body)
}

func TestBookCCTBooksDebitAndCreditLegs(t *testing.T) {
	svc, store, debtor, creditor := newTestService(t)
	ctx := context.Background()

	order := pain001For("PMT1", debtor.IBAN, creditor.IBAN, "10.50")
	if err := svc.BookCCT(ctx, "SANDBOXH1", "SUB1", "PARTNER1", order); err != nil {
		t.Fatalf("BookCCT: %v", err)
	}

	debits, err := store.ListFreshTransactions(ctx, debtor.ID)
	if err != nil {
		t.Fatalf("list debtor transactions: %v", err)
	}
	if len(debits) != 1 || debits[0].Direction != Debit || debits[0].Amount != "10.50" {
		t.Fatalf("unexpected debtor transactions: %+v", debits)
	}
	if !strings.HasPrefix(debits[0].AccountServicerReference, "sandbox-") {
		t.Fatalf("expected accountServicerReference to start with sandbox-, got %q", debits[0].AccountServicerReference)
	}

	credits, err := store.ListFreshTransactions(ctx, creditor.ID)
	if err != nil {
		t.Fatalf("list creditor transactions: %v", err)
	}
	if len(credits) != 1 || credits[0].Direction != Credit || credits[0].Amount != "10.50" {
		t.Fatalf("unexpected creditor transactions: %+v", credits)
	}
}

func TestBookCCTIsIdempotentOnPmtInfID(t *testing.T) {
	svc, store, debtor, creditor := newTestService(t)
	ctx := context.Background()

	order := pain001For("PMT-REPLAY", debtor.IBAN, creditor.IBAN, "5.00")
	if err := svc.BookCCT(ctx, "SANDBOXH1", "SUB1", "PARTNER1", order); err != nil {
		t.Fatalf("first BookCCT: %v", err)
	}
	if err := svc.BookCCT(ctx, "SANDBOXH1", "SUB1", "PARTNER1", order); err != nil {
		t.Fatalf("replayed BookCCT: %v", err)
	}

	debits, err := store.ListFreshTransactions(ctx, debtor.ID)
	if err != nil {
		t.Fatalf("list debtor transactions: %v", err)
	}
	if len(debits) != 1 {
		t.Fatalf("expected replay to be a no-op, got %d debtor transactions", len(debits))
	}
}

func TestBookCCTRejectsDebtLimitBreach(t *testing.T) {
	svc, _, debtor, creditor := newTestService(t)
	ctx := context.Background()

	order := pain001For("PMT-TOO-BIG", debtor.IBAN, creditor.IBAN, "500.00")
	err := svc.BookCCT(ctx, "SANDBOXH1", "SUB1", "PARTNER1", order)
	if err == nil {
		t.Fatal("expected debt-limit rejection, got nil")
	}
	var ebicsErr *ebicserr.Error
	if !errors.As(err, &ebicsErr) || ebicsErr.Code != ebicserr.AmountCheckFailed {
		t.Fatalf("expected AmountCheckFailed, got %v", err)
	}
}

func TestBookCCTRejectsUnauthorisedSubscriber(t *testing.T) {
	svc, _, debtor, creditor := newTestService(t)
	ctx := context.Background()

	order := pain001For("PMT-WRONG-SUB", debtor.IBAN, creditor.IBAN, "1.00")
	err := svc.BookCCT(ctx, "SANDBOXH1", "SOMEONE-ELSE", "PARTNER1", order)
	if err == nil {
		t.Fatal("expected authorisation rejection, got nil")
	}
	var ebicsErr *ebicserr.Error
	if !errors.As(err, &ebicsErr) || ebicsErr.Code != ebicserr.AccountAuthorisationFailed {
		t.Fatalf("expected AccountAuthorisationFailed, got %v", err)
	}
}

func TestBuildC52ReportReflectsFreshTransactions(t *testing.T) {
	svc, _, debtor, creditor := newTestService(t)
	ctx := context.Background()

	order := pain001For("PMT-C52", debtor.IBAN, creditor.IBAN, "2.00")
	if err := svc.BookCCT(ctx, "SANDBOXH1", "SUB1", "PARTNER1", order); err != nil {
		t.Fatalf("BookCCT: %v", err)
	}

	report, err := svc.BuildC52Report(ctx, "SANDBOXH1", "SUB1", "PARTNER1")
	if err != nil {
		t.Fatalf("BuildC52Report: %v", err)
	}
	if !strings.Contains(string(report), "DE1111") {
		t.Fatalf("expected report to mention debtor IBAN, got: %s", report)
	}
}
