package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quickcommerce"

// CheckoutMetrics is safe to use through a nil pointer, which records nothing.
type CheckoutMetrics struct {
	Requests             *prometheus.CounterVec
	LatencyMS            *prometheus.HistogramVec
	PendingDiscrepancies prometheus.Gauge
	HTTPRequests         *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "requests_total",
		Help:      "Checkout operations by outcome.",
	}, []string{"operation", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "duration_ms",
		Help:      "Checkout operation latency in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"operation"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "pending_discrepancies",
		Help:      "Settlements that decremented stock and still need manual reconciliation.",
	})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})

	reg.MustRegister(requests, latency, pending, httpRequests)
	return &CheckoutMetrics{
		Requests:             requests,
		LatencyMS:            latency,
		PendingDiscrepancies: pending,
		HTTPRequests:         httpRequests,
	}
}

func (m *CheckoutMetrics) Observe(operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(operation, outcome).Inc()
	m.LatencyMS.WithLabelValues(operation).Observe(float64(time.Since(started).Milliseconds()))
}

func (m *CheckoutMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingDiscrepancies.Set(float64(n))
}

func (m *CheckoutMetrics) HTTPRequest(handler, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(handler, status).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
