// Package metrics defines the Prometheus collectors used by the recipe
// search service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	RateLimitedTotal      prometheus.Counter
	SearchRequestsTotal   *prometheus.CounterVec
	SearchLatency         *prometheus.HistogramVec
	SearchResultsCount    prometheus.Histogram
	QueriesPerRequest     prometheus.Histogram
	FilterDroppedTotal    prometheus.Counter
	SpellCorrectionsTotal *prometheus.CounterVec
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	IndexBuildDuration    prometheus.Gauge
	IndexDocuments        prometheus.Gauge
	IndexTerms            prometheus.Gauge
}

// New creates all collectors and registers them with the default registry.
// It panics if called twice in one process; tests use NewWithRegistry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter.",
			},
		),
		SearchRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_search_requests_total",
				Help: "Recipe searches by outcome (ok, zero_result, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recipe_search_latency_seconds",
				Help:    "Recipe search latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recipe_search_results_count",
				Help:    "Number of recipes returned per search.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
		QueriesPerRequest: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recipe_search_queries_per_request",
				Help:    "Number of query strings fused per search request.",
				Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 16},
			},
		),
		FilterDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recipe_filter_dropped_total",
				Help: "Ranked recipes removed by dietary attribute filtering.",
			},
		),
		SpellCorrectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_spell_corrections_total",
				Help: "Out-of-vocabulary query terms by correction result (corrected, dropped).",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		IndexBuildDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recipe_index_build_seconds",
				Help: "Wall time of the last index build.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recipe_index_documents",
				Help: "Recipes in the in-memory index.",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recipe_index_terms",
				Help: "Distinct terms in the in-memory index.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimitedTotal,
		m.SearchRequestsTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.QueriesPerRequest,
		m.FilterDroppedTotal,
		m.SpellCorrectionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexBuildDuration,
		m.IndexDocuments,
		m.IndexTerms,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
