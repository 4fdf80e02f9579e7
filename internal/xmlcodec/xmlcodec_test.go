package xmlcodec

import (
	"testing"
	"time"

	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
)

func TestParseRequestRoundTrip(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?>
<ebicsRequest>
  <header>
    <static>
      <HostID>SANDBOXH1</HostID>
      <PartnerID>P001</PartnerID>
      <UserID>U001</UserID>
      <OrderDetails>
        <OrderType>HPB</OrderType>
      </OrderDetails>
    </static>
    <mutable>
      <TransactionPhase>Initialisation</TransactionPhase>
    </mutable>
  </header>
  <body></body>
</ebicsRequest>`)

	req, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Header.Static.HostID != "SANDBOXH1" {
		t.Fatalf("unexpected host id %q", req.Header.Static.HostID)
	}
	if req.Header.Static.OrderDetails.OrderType != "HPB" {
		t.Fatalf("unexpected order type %q", req.Header.Static.OrderDetails.OrderType)
	}
}

func TestMarshalResponse(t *testing.T) {
	resp := NewReceiptResponse("", "000000", "[EBICS_OK] OK")
	out, err := MarshalResponse(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}
}

func TestParsePain001(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?>
<Document>
  <CstmrCdtTrfInitn>
    <GrpHdr><MsgId>MSG1</MsgId><CreDtTm>2026-07-30T00:00:00Z</CreDtTm><NbOfTxs>1</NbOfTxs></GrpHdr>
    <PmtInf>
      <PmtInfId>PMT1</PmtInfId>
      <PmtMtd>TRF</PmtMtd>
      <CdtTrfTxInf>
        <PmtId><EndToEndId>E2E1</EndToEndId></PmtId>
        <Amt><InstdAmt Ccy="EUR">42.50</InstdAmt></Amt>
        <Cdtr><Nm>Jane Doe</Nm></Cdtr>
        <CdtrAcct><Id><IBAN>DE00000000000000000000</IBAN></Id></CdtrAcct>
        <RmtInf><Ustrd>invoice 1</Ustrd></RmtInf>
      </CdtTrfTxInf>
    </PmtInf>
  </CstmrCdtTrfInitn>
</Document>`)

	doc, err := ParsePain001(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.CstmrCdtTrfInitn.PmtInf) != 1 {
		t.Fatalf("expected 1 PmtInf, got %d", len(doc.CstmrCdtTrfInitn.PmtInf))
	}
	pmt := doc.CstmrCdtTrfInitn.PmtInf[0]
	if pmt.PmtInfID != "PMT1" {
		t.Fatalf("unexpected PmtInfId %q", pmt.PmtInfID)
	}
	if len(pmt.CdtTrfTxInf) != 1 || pmt.CdtTrfTxInf[0].Amt.InstdAmt.Value != "42.50" {
		t.Fatalf("unexpected credit transfer info: %+v", pmt.CdtTrfTxInf)
	}
}

func TestNewCamt053IncludesEntriesAndBalances(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	doc := NewCamt053("STMT1", "DE000000000000000001", "EUR", 3, "100.00", "142.50",
		now.Add(-24*time.Hour), now, []CamtEntryInput{
			{Amount: "42.50", Direction: "CRDT", BookingDate: now, EndToEndID: "E2E1", Subject: "invoice 1"},
		})

	stmt := doc.BkToCstmrStmt.Stmt[0]
	if len(stmt.Ntry) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(stmt.Ntry))
	}
	if len(stmt.Bal) != 2 {
		t.Fatalf("expected opening+closing balances, got %d", len(stmt.Bal))
	}

	out, err := MarshalCamt053(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty camt.053 output")
	}
}

func TestSignAndVerifyOrderData(t *testing.T) {
	key, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	orderData := []byte("<Document>pain.001 payload</Document>")

	sigB64, err := SignOrderData(key, orderData)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifyOrderDataSignature(&key.PublicKey, orderData, sigB64); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyOrderDataSignature(&key.PublicKey, []byte("tampered"), sigB64); err == nil {
		t.Fatal("expected verification failure for tampered order data")
	}
}

func TestCanonicalDigestIsWhitespaceStable(t *testing.T) {
	a := CanonicalDigest([]byte("<a>  x  \n y</a>"))
	b := CanonicalDigest([]byte("<a> x y</a>"))
	if a != b {
		t.Fatal("expected whitespace-normalized digests to match")
	}
}
