package ebics

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/subscriber"
	"github.com/stanisci/ebics-sandbox/internal/app/ebicserr"
	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
	"github.com/stanisci/ebics-sandbox/internal/xmlcodec"
)

// Serve is the single entry point the HTTP transport calls for every POST to
// the EBICS endpoint. It branches on the request document's root element
// between the four H004 request shapes and always returns a well-formed XML
// response body with HTTP 200 in mind; ok is false when body is not
// parseable XML at all or its root element is none of the four request
// shapes, in which case the caller should answer 400 instead of forwarding a
// response document.
func (e *Engine) Serve(ctx context.Context, body []byte) (response []byte, ok bool) {
	root, err := rootElement(body)
	if err != nil {
		return nil, false
	}

	switch root {
	case "ebicsHEVRequest":
		return e.serveHEV(), true
	case "ebicsUnsecuredRequest":
		return e.serveUnsecured(ctx, body), true
	case "ebicsNoPubKeyDigestsRequest":
		return e.serveNoPubKeyDigests(ctx, body), true
	case "ebicsRequest":
		return e.serveRequest(ctx, body), true
	default:
		return nil, false
	}
}

// rootElement peeks at a document's outermost element name without fully
// decoding it, so Serve can pick the right parser before committing to one.
func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func (e *Engine) serveHEV() []byte {
	out, _ := xmlcodec.MarshalHEVResponse(xmlcodec.NewHEVResponse())
	return out
}

// serveUnsecured handles INI and HIA, the two key-management orders a
// subscriber submits before it holds any keys the bank could verify a
// signature against.
func (e *Engine) serveUnsecured(ctx context.Context, body []byte) []byte {
	req, err := xmlcodec.ParseUnsecuredRequest(body)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidXML, err.Error())
	}
	hostID := req.Header.Static.HostID
	partnerID := req.Header.Static.PartnerID
	userID := req.Header.Static.UserID
	orderType := req.Header.Static.OrderDetails.OrderType

	if _, err := e.hosts.GetHost(ctx, hostID); err != nil {
		return e.errorResponse(ebicserr.InvalidHostID, hostID)
	}
	orderData, err := base64.StdEncoding.DecodeString(req.Body.DataTransfer.OrderData)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidXML, err.Error())
	}

	switch orderType {
	case "INI":
		err = e.ProcessINI(ctx, hostID, partnerID, userID, orderData)
	case "HIA":
		err = e.ProcessHIA(ctx, hostID, partnerID, userID, orderData)
	default:
		err = ebicserr.New(ebicserr.UnsupportedOrderType, orderType)
	}
	if err != nil {
		return e.errorFrom(err)
	}
	out, _ := xmlcodec.MarshalResponse(xmlcodec.NewErrorResponse(string(ebicserr.OK), ebicserr.OK.Meaning()))
	return out
}

// serveNoPubKeyDigests handles HPB, the one order a subscriber can fetch
// before it has confirmed the bank's own public keys, so the usual
// PubKeyDigests/AuthSignature envelope is absent.
func (e *Engine) serveNoPubKeyDigests(ctx context.Context, body []byte) []byte {
	req, err := xmlcodec.ParseNoPubKeyDigestsRequest(body)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidXML, err.Error())
	}
	hostID := req.Header.Static.HostID
	partnerID := req.Header.Static.PartnerID
	userID := req.Header.Static.UserID
	if req.Header.Static.OrderDetails.OrderType != "HPB" {
		return e.errorResponse(ebicserr.UnsupportedOrderType, req.Header.Static.OrderDetails.OrderType)
	}

	sub, err := e.subs.GetSubscriber(ctx, hostID, partnerID, userID)
	if err != nil {
		return e.errorResponse(ebicserr.UserUnknown, partnerID+"/"+userID)
	}
	if sub.State != subscriber.StateInitialized {
		return e.errorResponse(ebicserr.InvalidUserOrUserState, string(sub.State))
	}

	plain, err := e.BuildHPBOrderData(ctx, hostID)
	if err != nil {
		return e.errorFrom(err)
	}
	subEncPub, err := ebicscrypto.ParsePublicKeyPEM(sub.EncryptionPubKey)
	if err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}
	env, err := ebicscrypto.EncryptE002(subEncPub, plain)
	if err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}
	digest := ebicscrypto.PublicKeyDigest(subEncPub)

	txID, err := NewTransactionID()
	if err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}

	// HPB is the step that moves a subscriber from initialized to ready: it
	// has now fetched the bank's keys and both sides hold the other's.
	sub.State = subscriber.StateReady
	if _, err := e.subs.UpdateSubscriber(ctx, sub); err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}

	resp := xmlcodec.NewDownloadInitialisationResponse(txID, 1, &xmlcodec.DataEncryptionInfo{
		TransactionKey:         base64.StdEncoding.EncodeToString(env.EncryptedKey),
		EncryptionPubKeyDigest: base64.StdEncoding.EncodeToString(digest[:]),
	}, base64.StdEncoding.EncodeToString(env.CipherText), string(ebicserr.OK), ebicserr.OK.Meaning())
	out, _ := xmlcodec.MarshalResponse(resp)
	return out
}

// serveRequest handles the secured ebicsRequest envelope that carries every
// other order type through the Initialisation/Transfer/Receipt three-phase
// transaction state machine. Every ebicsRequest must carry a valid
// AuthSignature over its own header+body, verified against the claimed
// subscriber's X002 authentication key before any phase is dispatched: this
// is what stops a tampered or forged request from ever reaching booking
// logic, distinct from (and in addition to) the A006 order-data signature
// serveUploadTransfer checks later for CCT uploads specifically.
func (e *Engine) serveRequest(ctx context.Context, body []byte) []byte {
	req, err := xmlcodec.ParseRequest(body)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidXML, err.Error())
	}

	authPub, verr := e.resolveRequestAuthKey(ctx, req)
	if verr != nil {
		return e.errorFrom(verr)
	}
	headerBytes, errH := xml.Marshal(req.Header)
	bodyBytes, errB := xml.Marshal(req.Body)
	if errH != nil || errB != nil {
		return e.errorResponse(ebicserr.InvalidXML, "re-marshal request for signature verification")
	}
	if err := xmlcodec.VerifyRequestAuthSignature(authPub, headerBytes, bodyBytes, req.AuthSignature); err != nil {
		return e.errorResponse(ebicserr.AccountAuthorisationFailed, "AuthSignature verification failed: "+err.Error())
	}

	phase := req.Header.Mutable.TransactionPhase
	if phase == "" {
		if req.Header.Static.TransactionID == "" {
			phase = "Initialisation"
		} else {
			phase = "Transfer"
		}
	}

	switch phase {
	case "Initialisation":
		return e.serveInitialisation(ctx, req)
	case "Transfer":
		return e.serveTransfer(ctx, req)
	case "Receipt":
		return e.serveReceiptPhase(ctx, req)
	default:
		return e.errorResponse(ebicserr.InvalidRequest, "unknown transaction phase "+phase)
	}
}

// resolveRequestAuthKey finds the X002 authentication public key a request
// claims to have been signed with: directly by PartnerID/UserID when the
// static header carries them (every Initialisation-phase request does), or
// via the in-flight transaction's subscriber when it only repeats a
// TransactionID (Transfer/Receipt phase requests).
func (e *Engine) resolveRequestAuthKey(ctx context.Context, req *xmlcodec.EbicsRequest) (*rsa.PublicKey, error) {
	hostID := req.Header.Static.HostID
	partnerID := req.Header.Static.PartnerID
	userID := req.Header.Static.UserID

	var sub subscriber.Subscriber
	if partnerID != "" && userID != "" {
		s, err := e.subs.GetSubscriber(ctx, hostID, partnerID, userID)
		if err != nil {
			return nil, ebicserr.New(ebicserr.UserUnknown, partnerID+"/"+userID)
		}
		sub = s
	} else {
		txID := req.Header.Static.TransactionID
		subID, err := e.subscriberIDForTransaction(ctx, txID)
		if err != nil {
			return nil, ebicserr.New(ebicserr.InvalidRequest, fmt.Sprintf("cannot resolve subscriber for transaction %s", txID))
		}
		s, err := e.subs.GetSubscriberByID(ctx, subID)
		if err != nil {
			return nil, ebicserr.New(ebicserr.UserUnknown, subID)
		}
		sub = s
	}

	if !sub.HasAuthAndEncryptionKeys() {
		return nil, ebicserr.New(ebicserr.InvalidUserOrUserState, string(sub.State))
	}
	return ebicscrypto.ParsePublicKeyPEM(sub.AuthenticationPubKey)
}

func (e *Engine) subscriberIDForTransaction(ctx context.Context, txID string) (string, error) {
	if tx, err := e.txs.GetUploadTx(ctx, txID); err == nil {
		return tx.SubscriberID, nil
	}
	if tx, err := e.txs.GetDownloadTx(ctx, txID); err == nil {
		return tx.SubscriberID, nil
	}
	return "", fmt.Errorf("no transaction %s in flight", txID)
}

func (e *Engine) serveInitialisation(ctx context.Context, req *xmlcodec.EbicsRequest) []byte {
	hostID := req.Header.Static.HostID
	partnerID := req.Header.Static.PartnerID
	userID := req.Header.Static.UserID
	orderType := req.Header.Static.OrderDetails.OrderType
	numSegments := req.Header.Static.NumSegments

	if _, err := e.hosts.GetHost(ctx, hostID); err != nil {
		return e.errorResponse(ebicserr.InvalidHostID, hostID)
	}
	sub, err := e.subs.GetSubscriber(ctx, hostID, partnerID, userID)
	if err != nil {
		return e.errorResponse(ebicserr.UserUnknown, partnerID+"/"+userID)
	}
	if !sub.CanTransact() {
		return e.errorResponse(ebicserr.InvalidUserOrUserState, string(sub.State))
	}

	if numSegments > 0 {
		return e.serveUploadInitialisation(ctx, req, hostID, sub, partnerID, orderType, numSegments)
	}
	return e.serveDownloadInitialisation(ctx, hostID, sub, partnerID, orderType)
}

// serveUploadInitialisation decrypts the Initialisation phase's SignatureData
// (itself E002-wrapped under the same transaction key as the order data that
// arrives in the Transfer phase) and opens the upload transaction, stashing
// the wrapped key and decrypted signature on it for the Transfer phase to use.
func (e *Engine) serveUploadInitialisation(ctx context.Context, req *xmlcodec.EbicsRequest, hostID string, sub subscriber.Subscriber, partnerID, orderType string, numSegments int) []byte {
	dt := req.Body.DataTransfer
	if dt == nil || dt.DataEncryptionInfo == nil || dt.SignatureData == nil {
		return e.errorResponse(ebicserr.InvalidRequest, "upload initialisation missing encryption or signature data")
	}

	h, err := e.hosts.GetHost(ctx, hostID)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidHostID, hostID)
	}
	hostPriv, err := ebicscrypto.ParsePrivateKeyPEM(h.EncryptionPrivKey)
	if err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(dt.DataEncryptionInfo.TransactionKey)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidXML, err.Error())
	}
	sigCipher, err := base64.StdEncoding.DecodeString(dt.SignatureData.AuthenticateValue)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidXML, err.Error())
	}
	signature, err := ebicscrypto.DecryptE002(hostPriv, &ebicscrypto.E002Envelope{
		EncryptedKey: wrappedKey, IV: make([]byte, 16), CipherText: sigCipher,
	})
	if err != nil {
		return e.errorResponse(ebicserr.InvalidRequest, err.Error())
	}

	tx, err := e.StartUpload(ctx, hostID, sub.ID, partnerID, orderType, nil, numSegments)
	if err != nil {
		return e.errorFrom(err)
	}
	tx.TransactionKey = wrappedKey
	tx.Signature = signature
	if _, err := e.txs.UpdateUploadTx(ctx, tx); err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}

	resp := xmlcodec.NewInitialisationResponse(tx.TransactionID, tx.OrderID, numSegments, string(ebicserr.OK), ebicserr.OK.Meaning())
	out, _ := xmlcodec.MarshalResponse(resp)
	return out
}

func (e *Engine) serveDownloadInitialisation(ctx context.Context, hostID string, sub subscriber.Subscriber, partnerID, orderType string) []byte {
	encPub, err := ebicscrypto.ParsePublicKeyPEM(sub.EncryptionPubKey)
	if err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}

	txID, seg, _, env, err := e.HandleDownloadInitialisation(ctx, hostID, sub.ID, partnerID, orderType, encPub)
	if err != nil {
		return e.errorFrom(err)
	}
	tx, err := e.txs.GetDownloadTx(ctx, txID)
	if err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}

	var encInfo *xmlcodec.DataEncryptionInfo
	if env != nil {
		digest := ebicscrypto.PublicKeyDigest(encPub)
		encInfo = &xmlcodec.DataEncryptionInfo{
			TransactionKey:         base64.StdEncoding.EncodeToString(env.EncryptedKey),
			EncryptionPubKeyDigest: base64.StdEncoding.EncodeToString(digest[:]),
		}
	}
	resp := xmlcodec.NewDownloadInitialisationResponse(txID, tx.NumSegments, encInfo, base64.StdEncoding.EncodeToString(seg), string(ebicserr.OK), ebicserr.OK.Meaning())
	out, _ := xmlcodec.MarshalResponse(resp)
	return out
}

func (e *Engine) serveTransfer(ctx context.Context, req *xmlcodec.EbicsRequest) []byte {
	txID := req.Header.Static.TransactionID
	if req.Body.DataTransfer != nil {
		return e.serveUploadTransfer(ctx, req, txID)
	}
	return e.serveDownloadTransfer(ctx, req, txID)
}

// serveUploadTransfer decrypts the order data under the wrapped key recorded
// at Initialisation, verifies the A006 signature also recorded then, and
// hands the plaintext to the registered order-type handler. Multi-segment
// upload is not implemented, matching StartUpload's own restriction.
func (e *Engine) serveUploadTransfer(ctx context.Context, req *xmlcodec.EbicsRequest, txID string) []byte {
	tx, err := e.txs.GetUploadTx(ctx, txID)
	if err != nil {
		return e.errorResponse(ebicserr.ProcessingError, txID)
	}
	seg := req.Header.Mutable.SegmentNumber
	if seg == nil || seg.Value != 1 || !seg.LastSegment || tx.NumSegments != 1 {
		return e.errorResponse(ebicserr.InvalidRequest, "multi-segment upload not implemented")
	}

	h, err := e.hosts.GetHost(ctx, tx.HostID)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidHostID, tx.HostID)
	}
	hostPriv, err := ebicscrypto.ParsePrivateKeyPEM(h.EncryptionPrivKey)
	if err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}
	cipherText, err := base64.StdEncoding.DecodeString(req.Body.DataTransfer.OrderData)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidXML, err.Error())
	}
	compressed, err := ebicscrypto.DecryptE002(hostPriv, &ebicscrypto.E002Envelope{
		EncryptedKey: tx.TransactionKey, IV: make([]byte, 16), CipherText: cipherText,
	})
	if err != nil {
		return e.errorResponse(ebicserr.InvalidRequest, err.Error())
	}
	plain, err := xmlcodec.DecompressOrderData(compressed)
	if err != nil {
		return e.errorResponse(ebicserr.InvalidXML, err.Error())
	}

	sub, err := e.subs.GetSubscriberByID(ctx, tx.SubscriberID)
	if err != nil {
		return e.errorResponse(ebicserr.UserUnknown, tx.SubscriberID)
	}
	sigPub, err := ebicscrypto.ParsePublicKeyPEM(sub.SignaturePubKey)
	if err != nil {
		return e.errorResponse(ebicserr.ProcessingError, err.Error())
	}
	if err := ebicscrypto.VerifyA006(sigPub, plain, tx.Signature); err != nil {
		return e.errorResponse(ebicserr.InvalidRequest, "signature verification failed")
	}

	if err := e.HandleUploadFinalisation(ctx, txID, sub.PartnerID, 0, tx.Signature, plain); err != nil {
		return e.errorFrom(err)
	}

	resp := xmlcodec.NewReceiptResponse(tx.OrderID, string(ebicserr.OK), ebicserr.OK.Meaning())
	out, _ := xmlcodec.MarshalResponse(resp)
	return out
}

func (e *Engine) serveDownloadTransfer(ctx context.Context, req *xmlcodec.EbicsRequest, txID string) []byte {
	segNum := 1
	if sn := req.Header.Mutable.SegmentNumber; sn != nil {
		segNum = sn.Value
	}
	seg, last, err := e.Segment(ctx, txID, segNum)
	if err != nil {
		return e.errorFrom(err)
	}
	resp := xmlcodec.NewTransferResponse(base64.StdEncoding.EncodeToString(seg), last, segNum, string(ebicserr.OK), ebicserr.OK.Meaning())
	out, _ := xmlcodec.MarshalResponse(resp)
	return out
}

// serveReceiptPhase is only valid for a download: the client is
// acknowledging every segment arrived, so the transaction can be retired.
func (e *Engine) serveReceiptPhase(ctx context.Context, req *xmlcodec.EbicsRequest) []byte {
	txID := req.Header.Static.TransactionID
	if req.Body.TransferReceipt == nil {
		return e.errorResponse(ebicserr.InvalidRequest, "receipt phase missing TransferReceipt")
	}
	if err := e.AcknowledgeDownload(ctx, txID); err != nil {
		return e.errorFrom(err)
	}
	resp := xmlcodec.NewReceiptResponse("", string(ebicserr.OK), ebicserr.OK.Meaning())
	out, _ := xmlcodec.MarshalResponse(resp)
	return out
}

func (e *Engine) errorResponse(code ebicserr.Code, detail string) []byte {
	text := code.Meaning()
	if detail != "" {
		text = text + ": " + detail
	}
	out, _ := xmlcodec.MarshalResponse(xmlcodec.NewErrorResponse(string(code), text))
	return out
}

func (e *Engine) errorFrom(err error) []byte {
	var ee *ebicserr.Error
	if errors.As(err, &ee) {
		return e.errorResponse(ee.Code, ee.Detail)
	}
	return e.errorResponse(ebicserr.ProcessingError, err.Error())
}
