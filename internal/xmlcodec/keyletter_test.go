package xmlcodec

import (
	"testing"

	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
)

func TestSignaturePubKeyOrderDataRoundTrip(t *testing.T) {
	key, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	raw, err := BuildSignaturePubKeyOrderData("PARTNER1", "USER1", &key.PublicKey)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	doc, pub, err := ParseSignaturePubKeyOrderData(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.PartnerID != "PARTNER1" || doc.UserID != "USER1" {
		t.Fatalf("unexpected partner/user: %+v", doc)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 || pub.E != key.PublicKey.E {
		t.Fatal("public key did not round-trip")
	}
}

func TestHIAOrderDataRoundTrip(t *testing.T) {
	authKey, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate auth key: %v", err)
	}
	encKey, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate enc key: %v", err)
	}

	raw, err := BuildHIAOrderData("PARTNER1", "USER1", &authKey.PublicKey, &encKey.PublicKey)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	authPub, encPub, err := ParseHIAOrderData(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if authPub.N.Cmp(authKey.PublicKey.N) != 0 {
		t.Fatal("authentication key did not round-trip")
	}
	if encPub.N.Cmp(encKey.PublicKey.N) != 0 {
		t.Fatal("encryption key did not round-trip")
	}
}

func TestHPBOrderDataRoundTrip(t *testing.T) {
	authKey, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate auth key: %v", err)
	}
	encKey, err := ebicscrypto.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate enc key: %v", err)
	}

	raw, err := BuildHPBOrderData(&authKey.PublicKey, &encKey.PublicKey)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	authPub, encPub, err := ParseHPBOrderData(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if authPub.N.Cmp(authKey.PublicKey.N) != 0 || encPub.N.Cmp(encKey.PublicKey.N) != 0 {
		t.Fatal("keys did not round-trip")
	}
}
