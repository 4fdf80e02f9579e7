// Package xmlcodec implements the XML wire formats the sandbox speaks:
// EBICS H004 request/response envelopes, ISO-20022 pain.001/camt.052/camt.053
// payloads, and the XML-DSig signature EBICS wraps order data in.
//
// No third-party XML library appears anywhere in the reference corpus this
// module was grounded on, so this package is built entirely on the standard
// library's encoding/xml, compress/flate, and encoding/base64.
package xmlcodec

import (
	"encoding/xml"
)

// EbicsRequest mirrors the subset of the H004 ebicsRequest schema the
// sandbox needs to read: header (static + mutable) and the upload/download
// body.
type EbicsRequest struct {
	XMLName       xml.Name            `xml:"ebicsRequest"`
	Header        EbicsRequestHeader  `xml:"header"`
	AuthSignature *RequestAuthSignature `xml:"AuthSignature,omitempty"`
	Body          EbicsRequestBody    `xml:"body"`
}

// RequestAuthSignature is the request-level ds:AuthSignature EBICS H004
// requires on every ebicsRequest: a ds:SignedInfo carrying the digest of the
// canonicalized header+body, and the X002 signature value over it. This is
// distinct from the A006 SignatureData carried inside the body for upload
// order data; AuthSignature authenticates the transport envelope itself.
type RequestAuthSignature struct {
	SignedInfo     SignedInfo `xml:"ds:SignedInfo"`
	SignatureValue string     `xml:"ds:SignatureValue"`
}

type EbicsRequestHeader struct {
	Static  StaticHeader  `xml:"static"`
	Mutable MutableHeader `xml:"mutable"`
}

type StaticHeader struct {
	HostID        string       `xml:"HostID"`
	Nonce         string       `xml:"Nonce,omitempty"`
	Timestamp     string       `xml:"Timestamp,omitempty"`
	PartnerID     string       `xml:"PartnerID,omitempty"`
	UserID        string       `xml:"UserID,omitempty"`
	SystemID      string       `xml:"SystemID,omitempty"`
	Product       string       `xml:"Product,omitempty"`
	OrderDetails  OrderDetails `xml:"OrderDetails,omitempty"`
	SecurityMedium string      `xml:"SecurityMedium,omitempty"`
	TransactionID string       `xml:"TransactionID,omitempty"`
	NumSegments   int          `xml:"NumSegments,omitempty"`
}

type OrderDetails struct {
	OrderType     string        `xml:"OrderType"`
	OrderID       string        `xml:"OrderID,omitempty"`
	OrderAttribute string       `xml:"OrderAttribute,omitempty"`
	StandardOrderParams StandardOrderParams `xml:"StandardOrderParams,omitempty"`
}

type StandardOrderParams struct {
	DateRange *DateRange `xml:"DateRange,omitempty"`
}

type DateRange struct {
	Start string `xml:"Start"`
	End   string `xml:"End"`
}

type MutableHeader struct {
	TransactionPhase string `xml:"TransactionPhase,omitempty"`
	SegmentNumber    *SegmentNumber `xml:"SegmentNumber,omitempty"`
	OrderID          string `xml:"OrderID,omitempty"`
	TransactionKey   string `xml:"TransactionKey,omitempty"`
}

type SegmentNumber struct {
	LastSegment bool `xml:"lastSegment,attr"`
	Value       int  `xml:",chardata"`
}

type EbicsRequestBody struct {
	DataTransfer *DataTransfer `xml:"DataTransfer,omitempty"`
	TransferReceipt *TransferReceipt `xml:"TransferReceipt,omitempty"`
}

type DataTransfer struct {
	DataEncryptionInfo *DataEncryptionInfo `xml:"DataEncryptionInfo,omitempty"`
	SignatureData      *SignatureData      `xml:"SignatureData,omitempty"`
	OrderData          string              `xml:"OrderData,omitempty"` // base64
}

type DataEncryptionInfo struct {
	TransactionKey          string `xml:"TransactionKey"`
	EncryptionPubKeyDigest  string `xml:"EncryptionPubKeyDigest"`
}

type SignatureData struct {
	AuthenticateValue string `xml:",chardata"`
}

type TransferReceipt struct {
	ReceiptCode int `xml:"ReceiptCode"`
}

// EbicsResponse mirrors the subset of the H004 ebicsResponse schema the
// sandbox writes.
type EbicsResponse struct {
	XMLName xml.Name            `xml:"ebicsResponse"`
	Header  EbicsResponseHeader `xml:"header"`
	Body    EbicsResponseBody   `xml:"body"`
}

type EbicsResponseHeader struct {
	Static  ResponseStaticHeader  `xml:"static"`
	Mutable ResponseMutableHeader `xml:"mutable"`
}

type ResponseStaticHeader struct {
	TransactionID string `xml:"TransactionID,omitempty"`
	NumSegments   int    `xml:"NumSegments,omitempty"`
}

type ResponseMutableHeader struct {
	TransactionPhase string     `xml:"TransactionPhase"`
	SegmentNumber    *SegmentNumber `xml:"SegmentNumber,omitempty"`
	OrderID          string     `xml:"OrderID,omitempty"`
	ReturnCode       string     `xml:"ReturnCode"`
	ReportText       string     `xml:"ReportText"`
}

type EbicsResponseBody struct {
	DataTransfer *ResponseDataTransfer `xml:"DataTransfer,omitempty"`
	ReturnCode   string                `xml:"ReturnCode,omitempty"`
}

type ResponseDataTransfer struct {
	DataEncryptionInfo *DataEncryptionInfo `xml:"DataEncryptionInfo,omitempty"`
	OrderData          string              `xml:"OrderData"` // base64
}

// ParseRequest decodes an ebicsRequest document.
func ParseRequest(body []byte) (*EbicsRequest, error) {
	var req EbicsRequest
	if err := xml.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// MarshalResponse serializes an ebicsResponse document with an XML declaration.
func MarshalResponse(resp *EbicsResponse) ([]byte, error) {
	payload, err := xml.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), payload...), nil
}

// NewInitialisationResponse builds the single-phase "init accepted" response
// used by order types that complete in one shot (download orders, after
// their single transfer phase) or to acknowledge an upload's Initialisation
// phase, carrying the engine-assigned OrderID back to the client.
func NewInitialisationResponse(transactionID, orderID string, numSegments int, returnCode, reportText string) *EbicsResponse {
	return &EbicsResponse{
		Header: EbicsResponseHeader{
			Static: ResponseStaticHeader{TransactionID: transactionID, NumSegments: numSegments},
			Mutable: ResponseMutableHeader{
				TransactionPhase: "Initialisation",
				OrderID:          orderID,
				ReturnCode:       returnCode,
				ReportText:       reportText,
			},
		},
		Body: EbicsResponseBody{ReturnCode: returnCode},
	}
}

// NewDownloadInitialisationResponse builds a download order's Initialisation
// response, which in H004 already carries the first segment of (E002
// encrypted, if encInfo is non-nil) order data alongside the transaction id.
func NewDownloadInitialisationResponse(transactionID string, numSegments int, encInfo *DataEncryptionInfo, segment, returnCode, reportText string) *EbicsResponse {
	return &EbicsResponse{
		Header: EbicsResponseHeader{
			Static: ResponseStaticHeader{TransactionID: transactionID, NumSegments: numSegments},
			Mutable: ResponseMutableHeader{
				TransactionPhase: "Initialisation",
				ReturnCode:       returnCode,
				ReportText:       reportText,
			},
		},
		Body: EbicsResponseBody{
			DataTransfer: &ResponseDataTransfer{DataEncryptionInfo: encInfo, OrderData: segment},
			ReturnCode:   returnCode,
		},
	}
}

// NewTransferResponse builds a download Transfer-phase response carrying one
// base64 segment of order data.
func NewTransferResponse(segment string, lastSegment bool, segmentNumber int, returnCode, reportText string) *EbicsResponse {
	return &EbicsResponse{
		Header: EbicsResponseHeader{
			Mutable: ResponseMutableHeader{
				TransactionPhase: "Transfer",
				SegmentNumber:    &SegmentNumber{LastSegment: lastSegment, Value: segmentNumber},
				ReturnCode:       returnCode,
				ReportText:       reportText,
			},
		},
		Body: EbicsResponseBody{
			DataTransfer: &ResponseDataTransfer{OrderData: segment},
			ReturnCode:   returnCode,
		},
	}
}

// NewErrorResponse builds a bare ebicsResponse carrying only a return code,
// used to reject a request at any phase before a transaction identifier has
// necessarily been assigned.
func NewErrorResponse(returnCode, reportText string) *EbicsResponse {
	return &EbicsResponse{
		Header: EbicsResponseHeader{
			Mutable: ResponseMutableHeader{ReturnCode: returnCode, ReportText: reportText},
		},
		Body: EbicsResponseBody{ReturnCode: returnCode},
	}
}

// NewReceiptResponse builds the terminal receipt-phase response for an
// upload, carrying the OrderID the engine assigned at Initialisation.
func NewReceiptResponse(orderID, returnCode, reportText string) *EbicsResponse {
	return &EbicsResponse{
		Header: EbicsResponseHeader{
			Mutable: ResponseMutableHeader{
				TransactionPhase: "Receipt",
				OrderID:          orderID,
				ReturnCode:       returnCode,
				ReportText:       reportText,
			},
		},
		Body: EbicsResponseBody{ReturnCode: returnCode},
	}
}
