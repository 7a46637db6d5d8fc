// Package metrics holds the Prometheus collectors for generation runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chattree"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
	OutcomeEmpty    = "empty"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	Generations   *prometheus.CounterVec
	ContextTokens prometheus.Histogram
	Fragments     prometheus.Counter
	SearchCalls   *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		ContextTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_tokens",
			Help:      "Tokens in each assembled conversation.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 12),
		}),
		Fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_fragments_total",
			Help:      "Streamed fragments written into notes.",
		}),
		SearchCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_calls_total",
			Help:      "Web search tool invocations by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of generation runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}
	c.registry.MustRegister(
		c.Generations,
		c.ContextTokens,
		c.Fragments,
		c.SearchCalls,
		c.Duration,
		collectors.NewGoCollector(),
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
