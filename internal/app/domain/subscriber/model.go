// Package subscriber models EBICS subscribers and their key-management
// lifecycle (INI/HIA/HPB).
package subscriber

import "time"

// State tracks a subscriber's progress through key initialisation.
type State string

const (
	// StateNew means no keys have been submitted yet.
	StateNew State = "new"
	// StatePartiallyInitialized means either the signature (INI) or the
	// authentication/encryption (HIA) keys have arrived, but not both.
	StatePartiallyInitialized State = "partially_initialized"
	// StateInitialized means both key letters have arrived and been
	// administratively confirmed (or auto-confirmed, per sandbox policy).
	StateInitialized State = "initialized"
	// StateReady means the subscriber has additionally fetched the bank's
	// keys via HPB and is fully provisioned.
	StateReady State = "ready"
)

// Subscriber is one EBICS user (PartnerID/UserID pair) registered against a Host.
type Subscriber struct {
	ID          string    `json:"id"`
	HostID      string    `json:"host_id"`
	PartnerID   string    `json:"partner_id"`
	UserID      string    `json:"user_id"`
	SystemID    string    `json:"system_id,omitempty"`
	State       State     `json:"state"`

	// SignatureKey is the subscriber's A006 order-signature public key,
	// submitted via INI.
	SignaturePubKey []byte `json:"-"`

	// AuthenticationKey/EncryptionKey are the subscriber's X002/E002 public
	// keys, submitted via HIA.
	AuthenticationPubKey []byte `json:"-"`
	EncryptionPubKey     []byte `json:"-"`

	SignatureClass string `json:"signature_class"` // A, B or E

	// NextOrderSeq is the next integer the engine will base-26 encode into
	// an OrderID for this subscriber's upload orders.
	NextOrderSeq int `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSignatureKey reports whether the INI letter has been processed.
func (s Subscriber) HasSignatureKey() bool {
	return len(s.SignaturePubKey) > 0
}

// HasAuthAndEncryptionKeys reports whether the HIA letter has been processed.
func (s Subscriber) HasAuthAndEncryptionKeys() bool {
	return len(s.AuthenticationPubKey) > 0 && len(s.EncryptionPubKey) > 0
}

// NextState computes the state that follows receiving one more key letter.
func (s Subscriber) NextState() State {
	if s.HasSignatureKey() && s.HasAuthAndEncryptionKeys() {
		if s.State == StateReady {
			return StateReady
		}
		return StateInitialized
	}
	if s.HasSignatureKey() || s.HasAuthAndEncryptionKeys() {
		return StatePartiallyInitialized
	}
	return StateNew
}

// CanTransact reports whether the subscriber may submit/download orders.
// Per the sandbox's open-question resolution, INITIALIZED is sufficient;
// READY is not required.
func (s Subscriber) CanTransact() bool {
	return s.State == StateInitialized || s.State == StateReady
}

// OrderSignature records an A006 signature submitted alongside an upload order.
type OrderSignature struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriber_id"`
	OrderID      string    `json:"order_id"`
	OrderType    string    `json:"order_type"`
	Signature    []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
