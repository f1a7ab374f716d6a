// Package metrics exposes Prometheus instrumentation for the resolver and
// its cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics carries the engine's Prometheus collectors.
type Metrics struct {
	lookups       *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	retries       prometheus.Counter
	ratelimitWait prometheus.Histogram
}

// New registers collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolscope",
			Name:      "lookups_total",
			Help:      "Pool lookups by source and outcome.",
		}, []string{"source", "outcome"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "poolscope",
			Name:      "lookup_duration_seconds",
			Help:      "Pool lookup latency by source.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "poolscope",
			Name:      "upstream_retries_total",
			Help:      "Retried attempts against the indexed service.",
		}),
		ratelimitWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "poolscope",
			Name:      "ratelimit_wait_seconds",
			Help:      "Time spent queued behind the rate limiter.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveLookup records one finished lookup. Nil receivers are no-ops so the
// resolver can run uninstrumented in tests.
func (m *Metrics) ObserveLookup(source string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.lookups.WithLabelValues(source, outcome).Inc()
	m.durations.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveRetry counts one retried upstream attempt.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// ObserveRateLimitWait records time spent waiting for rate-limiter admission.
func (m *Metrics) ObserveRateLimitWait(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ratelimitWait.Observe(elapsed.Seconds())
}

// CacheSnapshot is the counter view RegisterCacheCollectors polls on scrape.
type CacheSnapshot struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	HitRate   float64
}

// RegisterCacheCollectors exposes cache counters and gauges fed by the given
// snapshot function.
func RegisterCacheCollectors(reg prometheus.Registerer, snapshot func() CacheSnapshot) {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "poolscope",
		Name:      "cache_entries",
		Help:      "Current number of cache entries.",
	}, func() float64 { return float64(snapshot().Size) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "poolscope",
		Name:      "cache_hit_rate",
		Help:      "Cache hit rate since process start.",
	}, func() float64 { return snapshot().HitRate })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "poolscope",
		Name:      "cache_hits_total",
		Help:      "Cache hits since process start.",
	}, func() float64 { return float64(snapshot().Hits) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "poolscope",
		Name:      "cache_misses_total",
		Help:      "Cache misses since process start.",
	}, func() float64 { return float64(snapshot().Misses) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "poolscope",
		Name:      "cache_evictions_total",
		Help:      "Cache evictions since process start.",
	}, func() float64 { return float64(snapshot().Evictions) })
}
