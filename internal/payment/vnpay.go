package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// VNPay verifies VNPAY return and IPN query strings (HMAC-SHA512 over the
// sorted, url-encoded vnp_* parameters).
type VNPay struct {
	hashSecret string
}

func NewVNPay(hashSecret string) *VNPay {
	return &VNPay{hashSecret: hashSecret}
}

// Sign returns the hex vnp_SecureHash for params.
func (v *VNPay) Sign(params url.Values) string {
	mac := hmac.New(sha512.New, []byte(v.hashSecret))
	mac.Write([]byte(vnpaySignData(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *VNPay) VerifyReturnURL(params url.Values) bool {
	if v.hashSecret == "" || params == nil {
		return false
	}

	got := strings.ToLower(params.Get("vnp_SecureHash"))
	if got == "" {
		return false
	}
	if _, err := hex.DecodeString(got); err != nil {
		return false
	}

	return hmac.Equal([]byte(got), []byte(v.Sign(params)))
}

func vnpaySignData(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}
