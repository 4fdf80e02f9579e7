package xmlcodec

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
)

// SignedInfo is the ds:SignedInfo block A006 signatures are computed over.
// EBICS H004's authentication signature covers a fixed concatenation of
// canonicalized header/body digests rather than a general-purpose XML
// document, so this is a closed-form structure rather than a full XML-DSig
// implementation: the sandbox has no need for arbitrary Reference lists or
// transform chains, only the one shape EBICS mandates.
type SignedInfo struct {
	XMLName                xml.Name `xml:"ds:SignedInfo"`
	CanonicalizationMethod string   `xml:"ds:CanonicalizationMethod>Algorithm,attr"`
	SignatureMethod        string   `xml:"ds:SignatureMethod>Algorithm,attr"`
	DigestValue            string   `xml:"ds:Reference>ds:DigestValue"`
}

const (
	canonicalizationAlgorithm = "http://www.w3.org/2006/12/xml-c14n11"
	signatureAlgorithm        = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
)

// CanonicalDigest computes the digest EBICS signs: SHA-256 over the
// whitespace-normalized concatenation of the OrderData and the static
// header bytes. Real EBICS implementations run full Exclusive XML
// Canonicalization (c14n); the sandbox only ever signs documents it
// generated itself, so a byte-stable normalization (collapse every run of
// whitespace, inside text content as well as between tags, to one space) is
// sufficient and avoids pulling in a C14N
// library no corpus repo depends on.
func CanonicalDigest(parts ...[]byte) [32]byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(normalizeWhitespace(p))
	}
	return sha256.Sum256(buf.Bytes())
}

func normalizeWhitespace(in []byte) []byte {
	out := make([]byte, 0, len(in))
	lastWasSpace := false
	for _, b := range in {
		isSpace := b == ' ' || b == '\t' || b == '\n' || b == '\r'
		if isSpace {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			out = append(out, ' ')
			continue
		}
		lastWasSpace = false
		out = append(out, b)
	}
	return out
}

// BuildSignedInfo renders the ds:SignedInfo element carrying the digest of
// orderData, ready to be A006-signed by SignOrderData.
func BuildSignedInfo(orderData []byte) ([]byte, [32]byte) {
	digest := CanonicalDigest(orderData)
	info := SignedInfo{
		CanonicalizationMethod: canonicalizationAlgorithm,
		SignatureMethod:        signatureAlgorithm,
		DigestValue:            base64.StdEncoding.EncodeToString(digest[:]),
	}
	encoded, _ := xml.Marshal(info)
	return encoded, digest
}

// SignOrderData produces the base64 A006 signature value over orderData, as
// carried in an ebicsRequest's SignatureData element. It signs orderData
// directly and returns only the signature value; no ds:SignedInfo digest
// from BuildSignedInfo is produced or sent with it.
func SignOrderData(priv *rsa.PrivateKey, orderData []byte) (string, error) {
	sig, err := ebicscrypto.SignA006(priv, orderData)
	if err != nil {
		return "", fmt.Errorf("sign order data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyOrderDataSignature checks a base64 A006 signature against orderData.
func VerifyOrderDataSignature(pub *rsa.PublicKey, orderData []byte, signatureB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	return ebicscrypto.VerifyA006(pub, orderData, sig)
}

// BuildRequestAuthSignature signs the canonicalized concatenation of an
// ebicsRequest's header and body bytes with the subscriber's X002
// authentication key, producing the request-level ds:AuthSignature every
// ebicsRequest carries. X002 uses the same RSA-PSS/SHA-256 primitive as A006,
// so SignA006/VerifyA006 serve both.
func BuildRequestAuthSignature(priv *rsa.PrivateKey, headerBytes, bodyBytes []byte) (*RequestAuthSignature, error) {
	digest := CanonicalDigest(headerBytes, bodyBytes)
	sig, err := ebicscrypto.SignA006(priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign request auth digest: %w", err)
	}
	return &RequestAuthSignature{
		SignedInfo: SignedInfo{
			CanonicalizationMethod: canonicalizationAlgorithm,
			SignatureMethod:        signatureAlgorithm,
			DigestValue:            base64.StdEncoding.EncodeToString(digest[:]),
		},
		SignatureValue: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// VerifyRequestAuthSignature re-derives the canonical digest of an
// ebicsRequest's header+body and checks both that it matches the
// ds:SignedInfo digest the request carries and that the ds:SignatureValue is
// a valid X002 signature over it by authPub. Either mismatch means the
// envelope was altered or was never signed by the claimed subscriber.
func VerifyRequestAuthSignature(authPub *rsa.PublicKey, headerBytes, bodyBytes []byte, sig *RequestAuthSignature) error {
	if sig == nil {
		return fmt.Errorf("ebicsRequest carries no AuthSignature")
	}
	digest := CanonicalDigest(headerBytes, bodyBytes)
	claimedDigest, err := base64.StdEncoding.DecodeString(sig.SignedInfo.DigestValue)
	if err != nil {
		return fmt.Errorf("decode AuthSignature digest: %w", err)
	}
	if !bytes.Equal(digest[:], claimedDigest) {
		return fmt.Errorf("AuthSignature digest does not match request body")
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sig.SignatureValue)
	if err != nil {
		return fmt.Errorf("decode AuthSignature value: %w", err)
	}
	return ebicscrypto.VerifyA006(authPub, digest[:], sigBytes)
}
