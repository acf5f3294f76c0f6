package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the AI orchestration layer.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	ProviderLatencyMs  *prometheus.HistogramVec
	QueueDepth         *prometheus.GaugeVec
	QueueWaitMs        *prometheus.HistogramVec
	CacheHitTotal      *prometheus.CounterVec
	CacheMissTotal     *prometheus.CounterVec
	FallbackTotal      *prometheus.CounterVec
	RateLimitHitTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on an explicit registerer, which keeps test
// registrations isolated.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitae_ai_request_total",
			Help: "Total AI requests processed, by kind, provider and outcome.",
		}, []string{"kind", "provider", "status"}),

		ProviderLatencyMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitae_ai_provider_latency_ms",
			Help:    "Provider call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"provider"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vitae_ai_queue_depth",
			Help: "Current number of queued requests per provider.",
		}, []string{"provider"}),

		QueueWaitMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitae_ai_queue_wait_ms",
			Help:    "Time requests spend queued before dispatch, in milliseconds.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 15000, 30000},
		}, []string{"provider", "priority"}),

		CacheHitTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitae_ai_cache_hit_total",
			Help: "Response cache hits per cache instance.",
		}, []string{"cache"}),

		CacheMissTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitae_ai_cache_miss_total",
			Help: "Response cache misses per cache instance.",
		}, []string{"cache"}),

		FallbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitae_ai_fallback_total",
			Help: "Provider fallback transitions.",
		}, []string{"from", "to"}),

		RateLimitHitTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitae_ratelimit_hit_total",
			Help: "Edge rate limit rejections by dimension.",
		}, []string{"dimension"}),
	}
}

func (m *Metrics) RecordRequest(kind, provider, status string) {
	m.RequestTotal.WithLabelValues(kind, provider, status).Inc()
}

func (m *Metrics) RecordProviderLatency(provider string, ms float64) {
	m.ProviderLatencyMs.WithLabelValues(provider).Observe(ms)
}

func (m *Metrics) SetQueueDepth(provider string, depth int) {
	m.QueueDepth.WithLabelValues(provider).Set(float64(depth))
}

func (m *Metrics) RecordQueueWait(provider, priority string, ms float64) {
	m.QueueWaitMs.WithLabelValues(provider, priority).Observe(ms)
}

func (m *Metrics) RecordCacheHit(cache string)  { m.CacheHitTotal.WithLabelValues(cache).Inc() }
func (m *Metrics) RecordCacheMiss(cache string) { m.CacheMissTotal.WithLabelValues(cache).Inc() }

func (m *Metrics) RecordFallback(from, to string) {
	m.FallbackTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordRateLimitHit(dimension string) {
	m.RateLimitHitTotal.WithLabelValues(dimension).Inc()
}
