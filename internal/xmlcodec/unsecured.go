package xmlcodec

import "encoding/xml"

// EbicsUnsecuredRequest mirrors the H004 ebicsUnsecuredRequest schema: key
// management orders (INI, HIA) that carry their order data in the clear,
// since there is no subscriber signature key yet to authenticate the
// envelope with.
type EbicsUnsecuredRequest struct {
	XMLName xml.Name        `xml:"ebicsUnsecuredRequest"`
	Header  UnsecuredHeader `xml:"header"`
	Body    UnsecuredBody   `xml:"body"`
}

type UnsecuredHeader struct {
	Static UnsecuredStaticHeader `xml:"static"`
}

type UnsecuredStaticHeader struct {
	HostID         string       `xml:"HostID"`
	PartnerID      string       `xml:"PartnerID"`
	UserID         string       `xml:"UserID"`
	OrderDetails   OrderDetails `xml:"OrderDetails"`
	SecurityMedium string       `xml:"SecurityMedium,omitempty"`
}

type UnsecuredBody struct {
	DataTransfer UnsecuredDataTransfer `xml:"DataTransfer"`
}

type UnsecuredDataTransfer struct {
	OrderData string `xml:"OrderData"` // base64 of deflated plaintext
}

// ParseUnsecuredRequest decodes an ebicsUnsecuredRequest document.
func ParseUnsecuredRequest(body []byte) (*EbicsUnsecuredRequest, error) {
	var req EbicsUnsecuredRequest
	if err := xml.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// EbicsNoPubKeyDigestsRequest mirrors the H004 ebicsNoPubKeyDigestsRequest
// schema, the special HPB request shape that omits the usual
// PubKeyDigests/AuthSignature envelope since the client has nothing of the
// bank's to authenticate against yet.
type EbicsNoPubKeyDigestsRequest struct {
	XMLName xml.Name              `xml:"ebicsNoPubKeyDigestsRequest"`
	Header  NoPubKeyDigestsHeader `xml:"header"`
}

type NoPubKeyDigestsHeader struct {
	Static NoPubKeyDigestsStaticHeader `xml:"static"`
}

type NoPubKeyDigestsStaticHeader struct {
	HostID       string       `xml:"HostID"`
	PartnerID    string       `xml:"PartnerID"`
	UserID       string       `xml:"UserID"`
	OrderDetails OrderDetails `xml:"OrderDetails"`
}

// ParseNoPubKeyDigestsRequest decodes an ebicsNoPubKeyDigestsRequest document.
func ParseNoPubKeyDigestsRequest(body []byte) (*EbicsNoPubKeyDigestsRequest, error) {
	var req EbicsNoPubKeyDigestsRequest
	if err := xml.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// EbicsHEVRequest is the unauthenticated host-EBICS-version query every
// EBICS client sends once to discover which protocol versions a host
// supports before attempting key management.
type EbicsHEVRequest struct {
	XMLName xml.Name `xml:"ebicsHEVRequest"`
	HostID  string   `xml:"HostID"`
}

// ParseHEVRequest decodes an ebicsHEVRequest document.
func ParseHEVRequest(body []byte) (*EbicsHEVRequest, error) {
	var req EbicsHEVRequest
	if err := xml.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// EbicsHEVResponse answers a host-version query. It is the one EBICS H004
// response never wrapped in an AuthSignature, since no subscriber has keys
// registered yet at this point in the protocol.
type EbicsHEVResponse struct {
	XMLName          xml.Name         `xml:"ebicsHEVResponse"`
	SystemReturnCode SystemReturnCode `xml:"SystemReturnCode"`
	VersionNumber    []VersionNumber  `xml:"VersionNumber"`
}

type SystemReturnCode struct {
	ReturnCode string `xml:"ReturnCode"`
	ReportText string `xml:"ReportText"`
}

type VersionNumber struct {
	ProtocolVersion string `xml:"ProtocolVersion,attr"`
	Value           string `xml:",chardata"`
}

// NewHEVResponse builds the fixed single-version (H004) response the sandbox
// advertises.
func NewHEVResponse() *EbicsHEVResponse {
	return &EbicsHEVResponse{
		SystemReturnCode: SystemReturnCode{ReturnCode: "000000", ReportText: "[EBICS_OK] OK"},
		VersionNumber:    []VersionNumber{{ProtocolVersion: "H004", Value: "02.50"}},
	}
}

// MarshalHEVResponse serializes an ebicsHEVResponse document with an XML
// declaration.
func MarshalHEVResponse(resp *EbicsHEVResponse) ([]byte, error) {
	payload, err := xml.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), payload...), nil
}
