// Package ebicscrypto implements the cryptographic primitives EBICS H004
// subscribers use: E002 transport/encryption key wrapping, A006 order-data
// signing, and password hashing for the access API.
//
// Key sizes and paddings follow the EBICS H004 specification: RSA keys are at
// least 2048 bits, E002 envelope encryption uses a random AES-128 session key
// wrapped with RSA PKCS#1 v1.5, and A006 signatures use RSA-PSS over SHA-256.
package ebicscrypto

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

const sha256Hash = crypto.SHA256

const (
	// MinKeyBits is the smallest RSA modulus EBICS H004 permits.
	MinKeyBits = 2048

	aesKeyBytes = 16 // AES-128
)

// GenerateKeyPair creates a fresh RSA key pair suitable for E002 or A006 use.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < MinKeyBits {
		bits = MinKeyBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return key, nil
}

// MarshalPublicKeyPEM encodes the public half of key as a PKIX PEM block.
func MarshalPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM decodes a PKIX PEM block back into an RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}

// MarshalPrivateKeyPEM encodes key in PKCS#1 PEM form for storage.
func MarshalPrivateKeyPEM(key *rsa.PrivateKey) []byte {
	der := x509.MarshalPKCS1PrivateKey(key)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

// ParsePrivateKeyPEM decodes a PKCS#1 PEM block back into an RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid PEM block")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// PublicKeyDigest returns the SHA-256 hash of the public key's PKCS#1
// modulus/exponent encoding, as used in EBICS INI letters and HPB responses.
func PublicKeyDigest(pub *rsa.PublicKey) [32]byte {
	der := x509.MarshalPKCS1PublicKey(pub)
	return sha256.Sum256(der)
}

// E002Envelope holds the pieces of an EBICS E002 encrypted order-data envelope.
type E002Envelope struct {
	EncryptedKey  []byte // AES session key, RSA-PKCS1v15 wrapped with the bank's E002 public key
	IV            []byte // fixed all-zero IV per EBICS H004 (transaction key carries the randomness)
	CipherText    []byte // AES-128-CBC encrypted, PKCS#7 padded order data
}

// EncryptE002 wraps plaintext order data for transport to bankPub using a
// freshly generated AES-128 session key, itself wrapped with RSA PKCS#1 v1.5.
func EncryptE002(bankPub *rsa.PublicKey, plaintext []byte) (*E002Envelope, error) {
	sessionKey := make([]byte, aesKeyBytes)
	if _, err := io.ReadFull(rand.Reader, sessionKey); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	iv := make([]byte, aes.BlockSize) // EBICS fixes the IV to zero for E002
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)

	wrappedKey, err := rsa.EncryptPKCS1v15(rand.Reader, bankPub, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("wrap session key: %w", err)
	}

	return &E002Envelope{EncryptedKey: wrappedKey, IV: iv, CipherText: ciphertext}, nil
}

// DecryptE002 reverses EncryptE002 using the bank's private key.
func DecryptE002(bankPriv *rsa.PrivateKey, env *E002Envelope) ([]byte, error) {
	sessionKey, err := rsa.DecryptPKCS1v15(rand.Reader, bankPriv, env.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap session key: %w", err)
	}
	if len(sessionKey) != aesKeyBytes {
		return nil, fmt.Errorf("unexpected session key length %d", len(sessionKey))
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	if len(env.CipherText)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a multiple of the block size")
	}

	plaintext := make([]byte, len(env.CipherText))
	cbc := cipher.NewCBCDecrypter(block, env.IV)
	cbc.CryptBlocks(plaintext, env.CipherText)

	return pkcs7Unpad(plaintext)
}

// DigestA006 computes the SHA-256 digest signed/verified under the A006 order
// signature scheme.
func DigestA006(orderData []byte) [32]byte {
	return sha256.Sum256(orderData)
}

// SignA006 produces an RSA-PSS/SHA-256 signature over orderData using the
// subscriber's signature private key.
func SignA006(priv *rsa.PrivateKey, orderData []byte) ([]byte, error) {
	digest := DigestA006(orderData)
	sig, err := rsa.SignPSS(rand.Reader, priv, sha256Hash, digest[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto})
	if err != nil {
		return nil, fmt.Errorf("sign A006: %w", err)
	}
	return sig, nil
}

// VerifyA006 checks an RSA-PSS/SHA-256 signature over orderData.
func VerifyA006(pub *rsa.PublicKey, orderData, signature []byte) error {
	digest := DigestA006(orderData)
	if err := rsa.VerifyPSS(pub, sha256Hash, digest[:], signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto}); err != nil {
		return fmt.Errorf("verify A006: %w", err)
	}
	return nil
}

// HashPassword bcrypt-hashes a subscriber or admin password for storage.
func HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether plain matches the bcrypt hash produced by HashPassword.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	return data[:len(data)-padLen], nil
}
