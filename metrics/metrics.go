// Package metrics holds the Prometheus counters of one engine session.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics groups the counters on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	// Fetches counts attribute fetches by field and outcome
	Fetches *prometheus.CounterVec
	// CacheHits counts cache lookups answered without a fetch
	CacheHits *prometheus.CounterVec
	// CacheMisses counts cache lookups that triggered or joined a fetch
	CacheMisses *prometheus.CounterVec
	// Ticks counts timer-driven playback steps
	Ticks prometheus.Counter
	// StaleResults counts fetch completions dropped because the selection moved on
	StaleResults prometheus.Counter
}

// New registers all counters on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metroviz_attribute_fetches_total",
			Help: "Attribute fetches by field and outcome",
		}, []string{"field", "outcome"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metroviz_cache_hits_total",
			Help: "Attribute cache hits by field",
		}, []string{"field"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metroviz_cache_misses_total",
			Help: "Attribute cache misses by field",
		}, []string{"field"}),
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "metroviz_playback_ticks_total",
			Help: "Timer-driven playback steps",
		}),
		StaleResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "metroviz_stale_results_total",
			Help: "Fetch completions discarded after a newer selection",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
