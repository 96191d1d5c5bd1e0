package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveNotification(t *testing.T) {
	c := notificationsTotal.WithLabelValues("VNPAY", "IPN", "invalid_signature")
	before := testutil.ToFloat64(c)

	ObserveNotification("VNPAY", "IPN", "invalid_signature")
	ObserveNotification("VNPAY", "IPN", "invalid_signature")

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestObserveReconcile(t *testing.T) {
	c := reconcileOutcomesTotal.WithLabelValues("already_resolved")
	before := testutil.ToFloat64(c)

	ObserveReconcile("already_resolved")

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestTimer(t *testing.T) {
	timer := StartTimer()
	time.Sleep(5 * time.Millisecond)

	assert.GreaterOrEqual(t, timer.Duration(), 5*time.Millisecond)
	assert.NotPanics(t, func() { timer.ObserveCallback("MOMO", "RETURN") })
	assert.Equal(t, 1, testutil.CollectAndCount(callbackDuration, "payment_callback_duration_seconds"))
}
