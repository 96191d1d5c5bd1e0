package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	VNPaySuccessCode = "00"
	MoMoSuccessCode  = "0"
)

var ErrMalformedOrderRef = errors.New("malformed order reference")

// Notification is the gateway-agnostic shape every channel adapter builds
// before verification.
type Notification struct {
	Provider Provider
	Channel  Channel
	// OrderRef is the order identifier as the gateway sent it.
	OrderRef string
	// OrderID is the parsed order id; zero when OrderRef is malformed.
	OrderID       uint
	ResultCode    string
	IsSuccess     bool
	TransactionID string
	Signature     string
	RawParams     json.RawMessage
}

// EventID identifies one delivery of one gateway event for the audit log.
func (n *Notification) EventID() string {
	return fmt.Sprintf("%s:%s:%s:%s", n.Channel, n.OrderRef, n.TransactionID, n.ResultCode)
}

// AuditEventID is the audit-log key. Unverified deliveries get their own key
// space so a forged callback cannot claim the key of the genuine one.
func (n *Notification) AuditEventID(signatureValid bool) string {
	if signatureValid {
		return n.EventID()
	}
	return "unverified:" + n.EventID()
}

// ParseOrderID parses a store order id.
func ParseOrderID(ref string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(ref), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedOrderRef, ref)
	}
	return uint(id), nil
}

// SplitMoMoOrderRef returns the order part of a MoMo "<orderId>_<timestamp>" reference.
func SplitMoMoOrderRef(ref string) string {
	head, _, _ := strings.Cut(ref, "_")
	return head
}

// FlexString decodes a JSON string or number into its textual form. MoMo
// sends numeric fields as numbers, some integrations send them as strings.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// MoMoIPNBody is the JSON MoMo POSTs to the IPN endpoint.
type MoMoIPNBody struct {
	PartnerCode  FlexString `json:"partnerCode"`
	OrderID      FlexString `json:"orderId"`
	RequestID    FlexString `json:"requestId"`
	Amount       FlexString `json:"amount"`
	OrderInfo    FlexString `json:"orderInfo"`
	OrderType    FlexString `json:"orderType"`
	TransID      FlexString `json:"transId"`
	ResultCode   FlexString `json:"resultCode"`
	Message      FlexString `json:"message"`
	PayType      FlexString `json:"payType"`
	ResponseTime FlexString `json:"responseTime"`
	ExtraData    FlexString `json:"extraData"`
	Signature    FlexString `json:"signature"`
}

// fields returns the body in the query-parameter shape used by the return
// redirect, so both channels share one signature routine.
func (b MoMoIPNBody) fields() url.Values {
	v := url.Values{}
	v.Set("partnerCode", b.PartnerCode.String())
	v.Set("orderId", b.OrderID.String())
	v.Set("requestId", b.RequestID.String())
	v.Set("amount", b.Amount.String())
	v.Set("orderInfo", b.OrderInfo.String())
	v.Set("orderType", b.OrderType.String())
	v.Set("transId", b.TransID.String())
	v.Set("resultCode", b.ResultCode.String())
	v.Set("message", b.Message.String())
	v.Set("payType", b.PayType.String())
	v.Set("responseTime", b.ResponseTime.String())
	v.Set("extraData", b.ExtraData.String())
	v.Set("signature", b.Signature.String())
	return v
}

// NewVNPayNotification builds a notification from VNPAY query parameters.
func NewVNPayNotification(channel Channel, params url.Values) *Notification {
	n := &Notification{
		Provider:      ProviderVNPay,
		Channel:       channel,
		OrderRef:      params.Get("vnp_TxnRef"),
		ResultCode:    params.Get("vnp_ResponseCode"),
		TransactionID: params.Get("vnp_TransactionNo"),
		Signature:     params.Get("vnp_SecureHash"),
		RawParams:     marshalParams(params),
	}
	n.IsSuccess = n.ResultCode == VNPaySuccessCode
	n.OrderID, _ = ParseOrderID(n.OrderRef)
	return n
}

// NewMoMoIPNNotification builds a notification from a decoded IPN body.
func NewMoMoIPNNotification(body MoMoIPNBody, raw []byte) *Notification {
	return newMoMoNotification(ChannelIPN, body.fields(), json.RawMessage(raw))
}

// NewMoMoReturnNotification builds a notification from MoMo redirect parameters.
func NewMoMoReturnNotification(params url.Values) *Notification {
	return newMoMoNotification(ChannelReturn, params, marshalParams(params))
}

func newMoMoNotification(channel Channel, fields url.Values, raw json.RawMessage) *Notification {
	n := &Notification{
		Provider:      ProviderMoMo,
		Channel:       channel,
		OrderRef:      SplitMoMoOrderRef(fields.Get("orderId")),
		ResultCode:    strings.TrimSpace(fields.Get("resultCode")),
		TransactionID: fields.Get("transId"),
		Signature:     fields.Get("signature"),
		RawParams:     raw,
	}
	n.IsSuccess = n.ResultCode == MoMoSuccessCode
	n.OrderID, _ = ParseOrderID(n.OrderRef)
	return n
}

func marshalParams(params url.Values) json.RawMessage {
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
