// internal/payment/payment.go
package payment

import (
	"net/url"
)

type Provider string

const (
	ProviderVNPay Provider = "VNPAY"
	ProviderMoMo  Provider = "MOMO"
)

type Channel string

const (
	// ChannelIPN is the authoritative server-to-server callback.
	ChannelIPN Channel = "IPN"
	// ChannelReturn is the browser redirect after checkout.
	ChannelReturn Channel = "RETURN"
)

// VNPayVerifier checks the vnp_SecureHash carried by both VNPAY channels.
// Malformed or missing fields verify as false.
type VNPayVerifier interface {
	VerifyReturnURL(params url.Values) bool
}

// MoMoVerifier checks MoMo signatures. Malformed or missing fields verify as false.
type MoMoVerifier interface {
	VerifyIPNSignature(body MoMoIPNBody) bool
	VerifyReturnSignature(params url.Values) bool
}
