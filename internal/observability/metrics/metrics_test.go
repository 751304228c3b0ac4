package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("success", "intake", 0.02)
	m.ObserveBooking("conflict", "staff", 0.01)
	m.ObserveBooking("conflict", "staff", 0.01)
	m.ObserveProviderFailure()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.bookingsTotal.WithLabelValues("success", "intake")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.bookingsTotal.WithLabelValues("conflict", "staff")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.providerFailures))
}

func TestSweeperMetricsAccumulate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweeperMetrics(reg)

	m.ObserveSweep(3, 0.05)
	m.ObserveSweep(2, 0.04)
	m.ObserveSweepError()

	assert.Equal(t, float64(5), testutil.ToFloat64(m.cancelledTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sweepErrors))
}

func TestHTTPMetricsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.ObserveRequest("POST", "/appointments", "201", 0.01)
	m.ObserveRequest("POST", "/appointments", "409", 0.01)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/appointments", "201")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/appointments", "409")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var b *BookingMetrics
	var s *SweeperMetrics
	var h *HTTPMetrics

	assert.NotPanics(t, func() {
		b.ObserveBooking("success", "intake", 0.01)
		b.ObserveProviderFailure()
		s.ObserveSweep(1, 0.01)
		s.ObserveSweepError()
		h.ObserveRequest("GET", "/health/live", "200", 0.001)
	})
}
