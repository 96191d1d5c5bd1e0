package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_notifications_total",
			Help: "Payment gateway callbacks received, by verification/handling result.",
		},
		[]string{"gateway", "channel", "result"},
	)
	reconcileOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconcile_outcomes_total",
			Help: "Reconcile calls by outcome.",
		},
		[]string{"outcome"},
	)
	callbackDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_callback_duration_seconds",
			Help:    "Time spent handling a gateway callback.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"gateway", "channel"},
	)
)

func ObserveNotification(gateway, channel, result string) {
	notificationsTotal.WithLabelValues(gateway, channel, result).Inc()
}

func ObserveReconcile(outcome string) {
	reconcileOutcomesTotal.WithLabelValues(outcome).Inc()
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveCallback records the elapsed time under the gateway/channel pair.
func (t *Timer) ObserveCallback(gateway, channel string) {
	callbackDuration.WithLabelValues(gateway, channel).Observe(t.Duration().Seconds())
}
