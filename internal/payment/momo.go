package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// momoSignedFields is MoMo's raw-signature field order (after accessKey).
var momoSignedFields = []string{
	"amount",
	"extraData",
	"message",
	"orderId",
	"orderInfo",
	"orderType",
	"partnerCode",
	"payType",
	"requestId",
	"responseTime",
	"resultCode",
	"transId",
}

// MoMo verifies MoMo IPN bodies and return redirects (HMAC-SHA256 over the
// raw signature string).
type MoMo struct {
	accessKey string
	secretKey string
}

func NewMoMo(accessKey, secretKey string) *MoMo {
	return &MoMo{accessKey: accessKey, secretKey: secretKey}
}

// Sign returns the hex signature for the given result fields.
func (m *MoMo) Sign(fields url.Values) string {
	mac := hmac.New(sha256.New, []byte(m.secretKey))
	mac.Write([]byte(m.rawSignature(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MoMo) VerifyIPNSignature(body MoMoIPNBody) bool {
	return m.verify(body.fields())
}

func (m *MoMo) VerifyReturnSignature(params url.Values) bool {
	return m.verify(params)
}

func (m *MoMo) verify(fields url.Values) bool {
	if m.secretKey == "" || fields == nil {
		return false
	}

	got := strings.ToLower(fields.Get("signature"))
	if got == "" || fields.Get("orderId") == "" {
		return false
	}

	return hmac.Equal([]byte(got), []byte(m.Sign(fields)))
}

func (m *MoMo) rawSignature(fields url.Values) string {
	var b strings.Builder
	b.WriteString("accessKey=")
	b.WriteString(m.accessKey)
	for _, k := range momoSignedFields {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields.Get(k))
	}
	return b.String()
}
