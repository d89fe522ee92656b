// Package metrics exposes prometheus instrumentation for the plugin
// runtime: fetch outcomes, fetch latency and cache hit kinds.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for fetch counters.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Cache hit kind labels.
const (
	CacheHitFresh = "fresh"
	CacheHitStale = "stale"
)

// Collector bundles the plugin runtime metrics behind one registry so
// tests can run with isolated instances.
type Collector struct {
	registry     *prometheus.Registry
	fetchTotal   *prometheus.CounterVec
	fetchSeconds *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec
	plugins      *prometheus.GaugeVec
}

// NewCollector creates and registers the metric set.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homedash",
			Name:      "plugin_fetch_total",
			Help:      "Plugin fetch attempts by instance and outcome.",
		}, []string{"instance", "category", "outcome"}),
		fetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "homedash",
			Name:      "plugin_fetch_duration_seconds",
			Help:      "Plugin fetch latency by instance.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"instance", "category"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homedash",
			Name:      "plugin_cache_hits_total",
			Help:      "Cache hits by kind (fresh or stale substitution).",
		}, []string{"instance", "kind"}),
		plugins: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "homedash",
			Name:      "plugins_registered",
			Help:      "Registered plugin instances by category.",
		}, []string{"category"}),
	}
	c.registry.MustRegister(c.fetchTotal, c.fetchSeconds, c.cacheHits, c.plugins)
	return c
}

// ObserveFetch records one fetch attempt.
func (c *Collector) ObserveFetch(instance, category, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.fetchTotal.WithLabelValues(instance, category, outcome).Inc()
	c.fetchSeconds.WithLabelValues(instance, category).Observe(seconds)
}

// ObserveCacheHit records a fresh hit or a stale substitution.
func (c *Collector) ObserveCacheHit(instance, kind string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(instance, kind).Inc()
}

// SetRegistered records the current instance count of a category.
func (c *Collector) SetRegistered(category string, n int) {
	if c == nil {
		return
	}
	c.plugins.WithLabelValues(category).Set(float64(n))
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
