// Package host models an EBICS host: the server-side identity subscribers
// connect to, holding the bank's own E002/X002 key pairs.
package host

import "time"

// Host is one EBICS server identity (HostID) served by the sandbox.
type Host struct {
	HostID            string    `json:"host_id"`
	EbicsVersion      string    `json:"ebics_version"` // "H004"
	UseX002           bool      `json:"use_x002"`
	EncryptionPrivKey []byte    `json:"-"` // PEM, E002 private key
	EncryptionPubKey  []byte    `json:"-"` // PEM, E002 public key
	AuthPrivKey       []byte    `json:"-"` // PEM, X002/A006 private key
	AuthPubKey        []byte    `json:"-"` // PEM, X002/A006 public key
	CreatedAt         time.Time `json:"created_at"`
}
