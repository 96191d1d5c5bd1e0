package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"blankcanvas-be/internal/logger"
	"blankcanvas-be/internal/metrics"
	"blankcanvas-be/internal/order"
	"blankcanvas-be/internal/payment"

	"go.uber.org/zap"
)

const maxIPNBodyBytes = 1 << 20

// MoMoIPNHandler handles MoMo's server-to-server JSON callback. MoMo reads
// only the status code.
func (h *Handler) MoMoIPNHandler(w http.ResponseWriter, r *http.Request) {
	defer metrics.StartTimer().ObserveCallback(string(payment.ProviderMoMo), string(payment.ChannelIPN))

	defer func() {
		if rec := recover(); rec != nil {
			logger.FromCtx(r.Context()).Error("panic while handling MoMo IPN", zap.Any("panic", rec))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIPNBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var body payment.MoMoIPNBody
	if err := json.Unmarshal(raw, &body); err != nil {
		logger.FromCtx(r.Context()).Warn("invalid MoMo IPN payload", zap.Error(err))
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	n := payment.NewMoMoIPNNotification(body, raw)
	if !h.MoMo.VerifyIPNSignature(body) {
		h.rejectUnverified(r.Context(), n)
		http.Error(w, "Invalid Signature", http.StatusBadRequest)
		return
	}

	outcome, err := h.reconcile(r.Context(), n)
	switch {
	case errors.Is(err, errMalformedRef) || outcome == order.OutcomeOrderNotFound:
		http.Error(w, "Order not found", http.StatusBadRequest)
	case err != nil:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	default:
		// Already resolved is acknowledged the same way so MoMo stops retrying.
		w.WriteHeader(http.StatusNoContent)
	}
}

// MoMoIPNThrottled answers a rate-limited MoMo IPN with 500 so MoMo retries.
func (h *Handler) MoMoIPNThrottled(w http.ResponseWriter, r *http.Request) {
	logger.FromCtx(r.Context()).Warn("MoMo IPN rate limited", zap.String("remote_addr", r.RemoteAddr))
	metrics.ObserveNotification(string(payment.ProviderMoMo), string(payment.ChannelIPN), "rate_limited")
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// MoMoReturnHandler handles the browser redirect back from MoMo checkout.
func (h *Handler) MoMoReturnHandler(w http.ResponseWriter, r *http.Request) {
	defer metrics.StartTimer().ObserveCallback(string(payment.ProviderMoMo), string(payment.ChannelReturn))

	params := r.URL.Query()
	n := payment.NewMoMoReturnNotification(params)

	if !h.MoMo.VerifyReturnSignature(params) {
		h.rejectUnverified(r.Context(), n)
		http.Redirect(w, r, h.Return.webResultURL(
			param{"success", "false"},
			param{"message", "InvalidSignature"},
		), http.StatusFound)
		return
	}

	if _, err := h.reconcile(r.Context(), n); err != nil && !errors.Is(err, errMalformedRef) {
		notificationLogger(r.Context(), n).Error("failed to reconcile MoMo return", zap.Error(err))
		http.Redirect(w, r, h.Return.webResultURL(
			param{"success", "false"},
			param{"message", "ServerError"},
		), http.StatusFound)
		return
	}

	success := successParam(n.IsSuccess)
	appURL := h.Return.appResultURL(
		param{"success", success},
		param{"orderId", n.OrderRef},
	)
	webURL := h.Return.webResultURL(
		param{"success", success},
		param{"orderId", n.OrderRef},
	)

	writeResultPage(w, r, "Processing payment...", "Returning to the app...", "#a50064", appURL, webURL)
}
