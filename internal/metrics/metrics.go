package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded for gateway calls.
const (
	OutcomeOK        = "ok"
	OutcomeHTTPError = "http_error"
	OutcomeTransport = "transport_error"
	OutcomeSchema    = "schema_mismatch"
)

// Gateway collects per-call statistics for outbound wallet API requests.
type Gateway struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewGateway registers gateway collectors on reg. A nil reg uses a private
// registry, which keeps tests independent of the global default.
func NewGateway(reg prometheus.Registerer) *Gateway {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	g := &Gateway{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletclient",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of wallet API requests by outcome.",
			},
			[]string{"method", "path", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "walletclient",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Duration of wallet API requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "path"},
		),
	}
	reg.MustRegister(g.requests, g.duration)
	return g
}

// Observe records one completed call. Safe on a nil receiver.
func (g *Gateway) Observe(method, path, outcome string, elapsed time.Duration) {
	if g == nil {
		return
	}
	g.requests.WithLabelValues(method, path, outcome).Inc()
	g.duration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Requests exposes the counter for inspection.
func (g *Gateway) Requests() *prometheus.CounterVec {
	return g.requests
}
