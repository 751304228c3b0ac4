package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking path.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	bookingLatency   prometheus.Histogram
	providerFailures prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"outcome", "actor"}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "Latency of booking commits",
			Buckets:   prometheus.DefBuckets,
		}),
		providerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "provider_failures_total",
			Help:      "Payment provider calls that failed after a committed booking",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.bookingLatency, m.providerFailures)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome, actor string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome, actor).Inc()
	m.bookingLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveProviderFailure() {
	if m == nil {
		return
	}
	m.providerFailures.Inc()
}

// SweeperMetrics tracks expiry sweeps.
type SweeperMetrics struct {
	cancelledTotal prometheus.Counter
	sweepDuration  prometheus.Histogram
	sweepErrors    prometheus.Counter
}

func NewSweeperMetrics(reg prometheus.Registerer) *SweeperMetrics {
	m := &SweeperMetrics{
		cancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "sweeper",
			Name:      "cancelled_total",
			Help:      "Appointments auto-cancelled after their payment deadline",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "sweeper",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one expiry sweep",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "sweeper",
			Name:      "sweep_errors_total",
			Help:      "Sweep cycles aborted by a datastore error",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.cancelledTotal, m.sweepDuration, m.sweepErrors)
	return m
}

func (m *SweeperMetrics) ObserveSweep(cancelled int64, seconds float64) {
	if m == nil {
		return
	}
	m.cancelledTotal.Add(float64(cancelled))
	m.sweepDuration.Observe(seconds)
}

func (m *SweeperMetrics) ObserveSweepError() {
	if m == nil {
		return
	}
	m.sweepErrors.Inc()
}

// HTTPMetrics instruments the API router.
type HTTPMetrics struct {
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency)
	return m
}

func (m *HTTPMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.requestLatency.WithLabelValues(method, route).Observe(seconds)
}
