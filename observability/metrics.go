// Package observability holds the gateway's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ha_gateway"

// Metrics groups the gateway's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimited      *prometheus.CounterVec
	mutations        *prometheus.CounterVec
	websocketClients prometheus.Gauge
	databaseUpdates  prometheus.Counter
}

// NewMetrics registers the gateway collectors with reg.
// Tests pass a fresh prometheus.NewRegistry() so registrations never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// requests counts dispatched methods by result code ("ok" on success)
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total bridge method calls by method and result code",
		}, []string{"method", "code"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Bridge method latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"method"}),

		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total calls rejected by the per-caller rate limiter",
		}, []string{"method"}),

		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Total mutation attempts by operation and outcome",
		}, []string{"operation", "outcome"}),

		websocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Currently connected WebSocket clients",
		}),

		databaseUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_updates_total",
			Help:      "Recorder database change notifications broadcast to clients",
		}),
	}
}

// ObserveRequest records one dispatched call
func (m *Metrics) ObserveRequest(method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RateLimited records a call rejected by the limiter
func (m *Metrics) RateLimited(method string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(method).Inc()
}

// ObserveMutation records a mutation attempt and its outcome
func (m *Metrics) ObserveMutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(operation, outcome).Inc()
}

// SetWebSocketClients sets the connected client gauge
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.websocketClients.Set(float64(n))
}

// DatabaseUpdated records a broadcast change notification
func (m *Metrics) DatabaseUpdated() {
	if m == nil {
		return
	}
	m.databaseUpdates.Inc()
}

// TrackRateLimitIdentities exposes the number of identities the limiter is tracking
func TrackRateLimitIdentities(reg prometheus.Registerer, count func() int) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rate_limit_identities",
		Help:      "Caller identities with a rate limit window",
	}, func() float64 { return float64(count()) })
}
