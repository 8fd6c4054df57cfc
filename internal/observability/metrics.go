// Package observability carries the dispatcher's metrics and logger setup.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"llmdispatch/internal/transport"
)

// Metrics holds the Prometheus instruments for provider exchanges.
type Metrics struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	chunks   *prometheus.CounterVec
}

// NewMetrics registers the dispatcher metrics on the given registerer.
// Pass prometheus.DefaultRegisterer for the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmdispatch_requests_total",
			Help: "Provider requests by provider and delivery mode.",
		}, []string{"provider", "mode"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmdispatch_request_failures_total",
			Help: "Failed provider exchanges by provider.",
		}, []string{"provider"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmdispatch_request_duration_seconds",
			Help:    "Time to provider response headers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		chunks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmdispatch_stream_chunks_total",
			Help: "Stream text deltas received by provider.",
		}, []string{"provider"}),
	}
}

// Hooks adapts the metrics to the transport's observation points.
func (m *Metrics) Hooks() transport.Hooks {
	return transport.Hooks{
		OnRequest: func(provider, mode string) {
			m.requests.WithLabelValues(provider, mode).Inc()
		},
		OnResponse: func(provider string, status int, elapsed time.Duration, err error) {
			m.latency.WithLabelValues(provider).Observe(elapsed.Seconds())
			if err != nil || status >= 400 {
				m.failures.WithLabelValues(provider).Inc()
			}
		},
		OnChunk: func(provider string) {
			m.chunks.WithLabelValues(provider).Inc()
		},
	}
}
