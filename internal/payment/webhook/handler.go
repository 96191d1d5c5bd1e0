package webhook

import (
	"context"
	"errors"

	"blankcanvas-be/internal/logger"
	"blankcanvas-be/internal/metrics"
	"blankcanvas-be/internal/order"
	"blankcanvas-be/internal/payment"

	"go.uber.org/zap"
)

// errMalformedRef reports a verified notification whose order reference is
// not a store order id. Adapters answer it like an unknown order.
var errMalformedRef = errors.New("order reference is not an order id")

// ReturnConfig is what the browser-facing return pages need.
type ReturnConfig struct {
	// ClientURL is the web app base; results land on ClientURL + "/payment/result".
	ClientURL string
	// DeepLink is the mobile app URL, e.g. "blankcanvas://payment-result/".
	DeepLink string
}

// Handler serves the VNPAY and MoMo IPN and return callbacks.
type Handler struct {
	OrderSvc order.Service
	VNPay    payment.VNPayVerifier
	MoMo     payment.MoMoVerifier
	Audit    payment.Repository
	Return   ReturnConfig
}

func NewWebhookHandler(
	orderSvc order.Service,
	vnpay payment.VNPayVerifier,
	momo payment.MoMoVerifier,
	audit payment.Repository,
	returnCfg ReturnConfig,
) *Handler {
	return &Handler{
		OrderSvc: orderSvc,
		VNPay:    vnpay,
		MoMo:     momo,
		Audit:    audit,
		Return:   returnCfg,
	}
}

func notificationLogger(ctx context.Context, n *payment.Notification) *zap.Logger {
	return logger.FromCtx(ctx).With(
		zap.String("gateway", string(n.Provider)),
		zap.String("channel", string(n.Channel)),
		zap.String("order_ref", n.OrderRef),
		zap.String("result_code", n.ResultCode),
		zap.String("transaction_id", n.TransactionID),
	)
}

// rejectUnverified records a notification whose signature did not verify.
// It never reaches the order store.
func (h *Handler) rejectUnverified(ctx context.Context, n *payment.Notification) {
	notificationLogger(ctx, n).Warn("payment notification rejected: invalid signature")
	metrics.ObserveNotification(string(n.Provider), string(n.Channel), "invalid_signature")

	id := h.record(ctx, n, false)
	h.markFailed(ctx, n, id, "invalid signature")
}

// reconcile hands a verified notification to the order service and keeps the
// audit row in step with the result.
func (h *Handler) reconcile(ctx context.Context, n *payment.Notification) (order.Outcome, error) {
	log := notificationLogger(ctx, n)
	id := h.record(ctx, n, true)

	if n.OrderID == 0 {
		log.Warn("payment notification for malformed order reference")
		metrics.ObserveNotification(string(n.Provider), string(n.Channel), order.OutcomeOrderNotFound.String())
		h.markFailed(ctx, n, id, errMalformedRef.Error())
		return order.OutcomeOrderNotFound, errMalformedRef
	}

	outcome, err := h.OrderSvc.Reconcile(ctx, n.OrderID, n.IsSuccess, n.TransactionID)
	if err != nil {
		metrics.ObserveNotification(string(n.Provider), string(n.Channel), "store_fault")
		h.markFailed(ctx, n, id, err.Error())
		return outcome, err
	}

	metrics.ObserveNotification(string(n.Provider), string(n.Channel), outcome.String())
	if id != 0 {
		if err := h.Audit.MarkNotificationProcessed(ctx, id, outcome.String()); err != nil {
			log.Warn("failed to mark notification processed", zap.Int64("notification_id", id), zap.Error(err))
		}
	}
	return outcome, nil
}

// record is best effort: the audit log never changes what the gateway sees.
func (h *Handler) record(ctx context.Context, n *payment.Notification, signatureValid bool) int64 {
	if h.Audit == nil {
		return 0
	}

	id, isDuplicate, err := h.Audit.SaveNotification(ctx, n, signatureValid)
	if err != nil {
		notificationLogger(ctx, n).Warn("failed to record payment notification", zap.Error(err))
		return 0
	}
	if isDuplicate {
		notificationLogger(ctx, n).Info("duplicate payment notification delivery")
	}
	return id
}

func (h *Handler) markFailed(ctx context.Context, n *payment.Notification, id int64, reason string) {
	if id == 0 || h.Audit == nil {
		return
	}
	if err := h.Audit.MarkNotificationFailed(ctx, id, reason); err != nil {
		notificationLogger(ctx, n).Warn("failed to mark notification failed", zap.Int64("notification_id", id), zap.Error(err))
	}
}
