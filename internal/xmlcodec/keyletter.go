package xmlcodec

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"math/big"
)

// RSAKeyValue mirrors the ds:RSAKeyValue element EBICS key-management order
// data (INI, HIA, HPB) carries a public key in.
type RSAKeyValue struct {
	Modulus  string `xml:"Modulus"`
	Exponent string `xml:"Exponent"`
}

// PubKeyValue wraps an RSAKeyValue the way EBICS's PubKeyValue element does.
type PubKeyValue struct {
	RSAKeyValue RSAKeyValue `xml:"ds:RSAKeyValue"`
}

// SignaturePubKeyOrderData is the INI order data: a subscriber's A006
// signature public key.
type SignaturePubKeyOrderData struct {
	XMLName xml.Name `xml:"SignaturePubKeyOrderData"`
	SignaturePubKeyInfo KeyInfo `xml:"SignaturePubKeyInfo"`
	PartnerID string `xml:"PartnerID"`
	UserID    string `xml:"UserID"`
}

// HIAOrderData is the HIA order data: a subscriber's E002 encryption and
// X002 authentication public keys.
type HIAOrderData struct {
	XMLName xml.Name `xml:"HIARequestOrderData"`
	AuthenticationPubKeyInfo KeyInfo `xml:"AuthenticationPubKeyInfo"`
	EncryptionPubKeyInfo     KeyInfo `xml:"EncryptionPubKeyInfo"`
	PartnerID string `xml:"PartnerID"`
	UserID    string `xml:"UserID"`
}

// HPBOrderData is the order data a bank returns for an HPB download: its own
// authentication and encryption public keys.
type HPBOrderData struct {
	XMLName xml.Name `xml:"HPBResponseOrderData"`
	AuthenticationPubKeyInfo KeyInfo `xml:"AuthenticationPubKeyInfo"`
	EncryptionPubKeyInfo     KeyInfo `xml:"EncryptionPubKeyInfo"`
}

// KeyInfo carries one RSA public key plus the algorithm version EBICS
// tags it with (A006 for signature keys, X002/E002 for authentication and
// encryption keys).
type KeyInfo struct {
	PubKeyValue PubKeyValue `xml:"PubKeyValue"`
	VersionNumber string `xml:"VersionNumber"`
}

// BuildPubKeyOrderData renders a single RSA public key as the PubKeyValue
// fragment EBICS key letters embed.
func BuildPubKeyOrderData(pub *rsa.PublicKey) KeyInfo {
	return KeyInfo{
		PubKeyValue: PubKeyValue{RSAKeyValue: RSAKeyValue{
			Modulus:  base64.StdEncoding.EncodeToString(pub.N.Bytes()),
			Exponent: base64.StdEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
}

// ParsePubKeyOrderData recovers an rsa.PublicKey from a KeyInfo fragment.
func ParsePubKeyOrderData(info KeyInfo) (*rsa.PublicKey, error) {
	modulus, err := base64.StdEncoding.DecodeString(info.PubKeyValue.RSAKeyValue.Modulus)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	exponent, err := base64.StdEncoding.DecodeString(info.PubKeyValue.RSAKeyValue.Exponent)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(new(big.Int).SetBytes(exponent).Int64()),
	}, nil
}

// BuildSignaturePubKeyOrderData renders an INI order data document.
func BuildSignaturePubKeyOrderData(partnerID, userID string, pub *rsa.PublicKey) ([]byte, error) {
	doc := SignaturePubKeyOrderData{
		SignaturePubKeyInfo: BuildPubKeyOrderData(pub),
		PartnerID:           partnerID,
		UserID:              userID,
	}
	doc.SignaturePubKeyInfo.VersionNumber = "A006"
	return xml.Marshal(doc)
}

// ParseSignaturePubKeyOrderData decodes an INI order data document.
func ParseSignaturePubKeyOrderData(data []byte) (*SignaturePubKeyOrderData, *rsa.PublicKey, error) {
	var doc SignaturePubKeyOrderData
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshal INI order data: %w", err)
	}
	pub, err := ParsePubKeyOrderData(doc.SignaturePubKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	return &doc, pub, nil
}

// BuildHIAOrderData renders an HIA order data document.
func BuildHIAOrderData(partnerID, userID string, authPub, encPub *rsa.PublicKey) ([]byte, error) {
	doc := HIAOrderData{
		AuthenticationPubKeyInfo: BuildPubKeyOrderData(authPub),
		EncryptionPubKeyInfo:     BuildPubKeyOrderData(encPub),
		PartnerID:                partnerID,
		UserID:                   userID,
	}
	doc.AuthenticationPubKeyInfo.VersionNumber = "X002"
	doc.EncryptionPubKeyInfo.VersionNumber = "E002"
	return xml.Marshal(doc)
}

// ParseHIAOrderData decodes an HIA order data document.
func ParseHIAOrderData(data []byte) (authPub, encPub *rsa.PublicKey, err error) {
	var doc HIAOrderData
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshal HIA order data: %w", err)
	}
	authPub, err = ParsePubKeyOrderData(doc.AuthenticationPubKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	encPub, err = ParsePubKeyOrderData(doc.EncryptionPubKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	return authPub, encPub, nil
}

// BuildHPBOrderData renders the order data a bank returns for HPB.
func BuildHPBOrderData(authPub, encPub *rsa.PublicKey) ([]byte, error) {
	doc := HPBOrderData{
		AuthenticationPubKeyInfo: BuildPubKeyOrderData(authPub),
		EncryptionPubKeyInfo:     BuildPubKeyOrderData(encPub),
	}
	doc.AuthenticationPubKeyInfo.VersionNumber = "X002"
	doc.EncryptionPubKeyInfo.VersionNumber = "E002"
	return xml.Marshal(doc)
}

// ParseHPBOrderData decodes the order data from an HPB download.
func ParseHPBOrderData(data []byte) (authPub, encPub *rsa.PublicKey, err error) {
	var doc HPBOrderData
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshal HPB order data: %w", err)
	}
	authPub, err = ParsePubKeyOrderData(doc.AuthenticationPubKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	encPub, err = ParsePubKeyOrderData(doc.EncryptionPubKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	return authPub, encPub, nil
}
