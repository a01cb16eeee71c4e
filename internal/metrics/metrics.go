// Package metrics exposes gateway counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all gateway metrics
type Metrics struct {
	registry *prometheus.Registry

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	OriginCalls    *prometheus.CounterVec // by chain
	RateRejections prometheus.Counter
	ComputeUnits   *prometheus.CounterVec // by chain
	Requests       *prometheus.CounterVec // by chain, method
	Duration       *prometheus.HistogramVec
}

// New creates and registers all gateway metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaingate_cache_hits_total",
			Help: "Calls served from cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaingate_cache_misses_total",
			Help: "Cache misses",
		}),
		OriginCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chaingate_origin_calls_total",
			Help: "Calls forwarded to origin endpoints",
		}, []string{"chain"}),
		RateRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaingate_rate_rejections_total",
			Help: "Requests rejected by the rate gate",
		}),
		ComputeUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chaingate_compute_units_total",
			Help: "Compute units billed",
		}, []string{"chain"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chaingate_requests_total",
			Help: "Served RPC calls",
		}, []string{"chain", "method"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chaingate_request_duration_seconds",
			Help:    "RPC call duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),
	}

	registry.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.OriginCalls,
		m.RateRejections,
		m.ComputeUnits,
		m.Requests,
		m.Duration,
	)

	return m
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
