// Package metrics exposes Prometheus collectors for the API, the lease
// lifecycle and the push channel.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leasehub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	leaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehub",
			Subsystem: "lease",
			Name:      "transitions_total",
			Help:      "Lease status transitions by previous and new status.",
		},
		[]string{"from", "to"},
	)

	paymentSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehub",
			Subsystem: "payment",
			Name:      "submissions_total",
			Help:      "Payment submissions by outcome.",
		},
		[]string{"outcome"},
	)

	websocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "leasehub",
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Currently connected push channel clients.",
		},
	)

	pushMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehub",
			Subsystem: "websocket",
			Name:      "published_total",
			Help:      "Messages published to push channel subscribers.",
		},
		[]string{"type"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		leaseTransitions,
		paymentSubmissions,
		websocketClients,
		pushMessages,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one handled request. route should be the route
// template, not the raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLeaseTransition counts a lease status change.
func RecordLeaseTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	leaseTransitions.WithLabelValues(from, to).Inc()
}

// RecordPayment counts a payment submission outcome (settled, duplicate, rejected, expired).
func RecordPayment(outcome string) {
	paymentSubmissions.WithLabelValues(outcome).Inc()
}

// SetWebSocketClients sets the number of connected push channel clients.
func SetWebSocketClients(n int) {
	websocketClients.Set(float64(n))
}

// RecordPush counts a published push channel message.
func RecordPush(msgType string) {
	pushMessages.WithLabelValues(msgType).Inc()
}
