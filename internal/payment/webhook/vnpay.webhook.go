package webhook

import (
	"encoding/json"
	"errors"
	"net/http"

	"blankcanvas-be/internal/logger"
	"blankcanvas-be/internal/metrics"
	"blankcanvas-be/internal/order"
	"blankcanvas-be/internal/payment"

	"go.uber.org/zap"
)

// VNPayIPNResponse is the only thing VNPAY reads from an IPN reply; the HTTP
// status is always 200.
type VNPayIPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

var (
	vnpayAckSuccess          = VNPayIPNResponse{RspCode: "00", Message: "Success"}
	vnpayAckOrderNotFound    = VNPayIPNResponse{RspCode: "01", Message: "Order not found"}
	vnpayAckAlreadyConfirmed = VNPayIPNResponse{RspCode: "02", Message: "Order already confirmed"}
	vnpayAckInvalidChecksum  = VNPayIPNResponse{RspCode: "97", Message: "Invalid Checksum"}
	vnpayAckInternalError    = VNPayIPNResponse{RspCode: "97", Message: "Internal Error"}
)

// VNPayIPNHandler handles the server-to-server VNPAY callback (GET or POST).
func (h *Handler) VNPayIPNHandler(w http.ResponseWriter, r *http.Request) {
	defer metrics.StartTimer().ObserveCallback(string(payment.ProviderVNPay), string(payment.ChannelIPN))

	defer func() {
		if rec := recover(); rec != nil {
			logger.FromCtx(r.Context()).Error("panic while handling VNPAY IPN", zap.Any("panic", rec))
			writeVNPayAck(w, vnpayAckInternalError)
		}
	}()

	if err := r.ParseForm(); err != nil {
		logger.FromCtx(r.Context()).Warn("failed to parse VNPAY IPN", zap.Error(err))
		writeVNPayAck(w, vnpayAckInvalidChecksum)
		return
	}

	n := payment.NewVNPayNotification(payment.ChannelIPN, r.Form)
	if !h.VNPay.VerifyReturnURL(r.Form) {
		h.rejectUnverified(r.Context(), n)
		writeVNPayAck(w, vnpayAckInvalidChecksum)
		return
	}

	outcome, err := h.reconcile(r.Context(), n)
	switch {
	case errors.Is(err, errMalformedRef):
		writeVNPayAck(w, vnpayAckOrderNotFound)
	case err != nil:
		writeVNPayAck(w, vnpayAckInternalError)
	default:
		writeVNPayAck(w, vnpayAckFor(outcome))
	}
}

// VNPayIPNThrottled answers a rate-limited VNPAY IPN. VNPAY reads only the
// body, so it gets a 200 with "97" and retries later.
func (h *Handler) VNPayIPNThrottled(w http.ResponseWriter, r *http.Request) {
	logger.FromCtx(r.Context()).Warn("VNPAY IPN rate limited", zap.String("remote_addr", r.RemoteAddr))
	metrics.ObserveNotification(string(payment.ProviderVNPay), string(payment.ChannelIPN), "rate_limited")
	writeVNPayAck(w, vnpayAckInternalError)
}

func vnpayAckFor(outcome order.Outcome) VNPayIPNResponse {
	switch outcome {
	case order.OutcomeOrderNotFound:
		return vnpayAckOrderNotFound
	case order.OutcomeAlreadyResolved:
		return vnpayAckAlreadyConfirmed
	case order.OutcomeAppliedSuccess, order.OutcomeAppliedFailure:
		return vnpayAckSuccess
	default:
		return vnpayAckInternalError
	}
}

func writeVNPayAck(w http.ResponseWriter, resp VNPayIPNResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// VNPayReturnHandler handles the browser redirect back from VNPAY checkout.
// The page is driven by vnp_ResponseCode; a failed store update is logged
// and the IPN remains the source of truth.
func (h *Handler) VNPayReturnHandler(w http.ResponseWriter, r *http.Request) {
	defer metrics.StartTimer().ObserveCallback(string(payment.ProviderVNPay), string(payment.ChannelReturn))

	params := r.URL.Query()
	n := payment.NewVNPayNotification(payment.ChannelReturn, params)

	if !h.VNPay.VerifyReturnURL(params) {
		h.rejectUnverified(r.Context(), n)
		writeScriptRedirect(w, r, h.Return.webResultURL(
			param{"success", "false"},
			param{"message", "InvalidSignature"},
		))
		return
	}

	if _, err := h.reconcile(r.Context(), n); err != nil && !errors.Is(err, errMalformedRef) {
		notificationLogger(r.Context(), n).Error("failed to reconcile VNPAY return", zap.Error(err))
	}

	success := successParam(n.IsSuccess)
	message := "Failed"
	if n.IsSuccess {
		message = "Success"
	}

	appURL := h.Return.appResultURL(
		param{"success", success},
		param{"orderId", n.OrderRef},
		param{"vnp_ResponseCode", n.ResultCode},
		param{"message", message},
	)
	webURL := h.Return.webResultURL(
		param{"success", success},
		param{"orderId", n.OrderRef},
	)

	writeResultPage(w, r, "VNPAY payment result", "Processing payment result...", "#0066cc", appURL, webURL)
}
