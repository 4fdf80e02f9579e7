package ebics

import (
	"context"
	"fmt"
	"time"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/subscriber"
	"github.com/stanisci/ebics-sandbox/internal/app/ebicserr"
	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
	"github.com/stanisci/ebics-sandbox/internal/xmlcodec"
)

// ProcessINI handles an INI order: the subscriber's A006 signature public
// key. The sandbox auto-confirms key letters rather than requiring an
// out-of-band ink signature, matching a test/demo EBICS server's typical
// posture.
func (e *Engine) ProcessINI(ctx context.Context, hostID, partnerID, userID string, orderData []byte) error {
	plain, err := xmlcodec.DecompressOrderData(orderData)
	if err != nil {
		return ebicserr.New(ebicserr.InvalidRequest, fmt.Sprintf("inflate INI order data: %v", err))
	}

	_, pub, err := xmlcodec.ParseSignaturePubKeyOrderData(plain)
	if err != nil {
		return ebicserr.New(ebicserr.InvalidRequest, fmt.Sprintf("parse INI order data: %v", err))
	}
	pubPEM, err := ebicscrypto.MarshalPublicKeyPEM(pub)
	if err != nil {
		return ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	sub, err := e.getOrCreateSubscriber(ctx, hostID, partnerID, userID)
	if err != nil {
		return err
	}
	if sub.HasSignatureKey() && sub.CanTransact() {
		return ebicserr.New(ebicserr.InvalidUserOrUserState, "INI replay after full initialisation")
	}
	sub.SignaturePubKey = pubPEM
	sub.State = sub.NextState()
	sub.UpdatedAt = time.Now().UTC()

	if _, err := e.subs.UpdateSubscriber(ctx, sub); err != nil {
		return ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	return nil
}

// ProcessHIA handles an HIA order: the subscriber's X002 authentication and
// E002 encryption public keys.
func (e *Engine) ProcessHIA(ctx context.Context, hostID, partnerID, userID string, orderData []byte) error {
	plain, err := xmlcodec.DecompressOrderData(orderData)
	if err != nil {
		return ebicserr.New(ebicserr.InvalidRequest, fmt.Sprintf("inflate HIA order data: %v", err))
	}

	authPub, encPub, err := xmlcodec.ParseHIAOrderData(plain)
	if err != nil {
		return ebicserr.New(ebicserr.InvalidRequest, fmt.Sprintf("parse HIA order data: %v", err))
	}
	authPEM, err := ebicscrypto.MarshalPublicKeyPEM(authPub)
	if err != nil {
		return ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	encPEM, err := ebicscrypto.MarshalPublicKeyPEM(encPub)
	if err != nil {
		return ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	sub, err := e.getOrCreateSubscriber(ctx, hostID, partnerID, userID)
	if err != nil {
		return err
	}
	if sub.HasAuthAndEncryptionKeys() && sub.CanTransact() {
		return ebicserr.New(ebicserr.InvalidUserOrUserState, "HIA replay after full initialisation")
	}
	sub.AuthenticationPubKey = authPEM
	sub.EncryptionPubKey = encPEM
	sub.State = sub.NextState()
	sub.UpdatedAt = time.Now().UTC()

	if _, err := e.subs.UpdateSubscriber(ctx, sub); err != nil {
		return ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	return nil
}

// BuildHPBOrderData produces the (uncompressed) order data a bank returns
// for an HPB download: its own authentication and encryption public keys.
func (e *Engine) BuildHPBOrderData(ctx context.Context, hostID string) ([]byte, error) {
	h, err := e.hosts.GetHost(ctx, hostID)
	if err != nil {
		return nil, ebicserr.New(ebicserr.InvalidRequest, fmt.Sprintf("unknown host: %v", err))
	}
	authPub, err := ebicscrypto.ParsePublicKeyPEM(h.AuthPubKey)
	if err != nil {
		return nil, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	encPub, err := ebicscrypto.ParsePublicKeyPEM(h.EncryptionPubKey)
	if err != nil {
		return nil, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	raw, err := xmlcodec.BuildHPBOrderData(authPub, encPub)
	if err != nil {
		return nil, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	return xmlcodec.CompressOrderData(raw)
}

func (e *Engine) getOrCreateSubscriber(ctx context.Context, hostID, partnerID, userID string) (subscriber.Subscriber, error) {
	sub, err := e.subs.GetSubscriber(ctx, hostID, partnerID, userID)
	if err == nil {
		return sub, nil
	}
	return e.subs.CreateSubscriber(ctx, subscriber.Subscriber{
		HostID:         hostID,
		PartnerID:      partnerID,
		UserID:         userID,
		State:          subscriber.StateNew,
		SignatureClass: "A",
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	})
}
