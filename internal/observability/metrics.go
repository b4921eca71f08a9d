// Package observability holds the prometheus instrumentation shared by
// the router, embedder, and session indexer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the runtime's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RouterRequests    *prometheus.CounterVec
	RouterLatency     *prometheus.HistogramVec
	EmbeddingRequests *prometheus.CounterVec
	IndexedChunks     prometheus.Counter
	SearchLatency     *prometheus.HistogramVec
}

// NewMetrics creates and registers the collector set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RouterRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Name:      "router_requests_total",
			Help:      "LLM completion requests by provider, task type, and outcome.",
		}, []string{"provider", "task_type", "outcome"}),
		RouterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "openclaw",
			Name:      "router_latency_seconds",
			Help:      "LLM completion latency by provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		EmbeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Name:      "embedding_requests_total",
			Help:      "Embedding requests by model and outcome.",
		}, []string{"model", "outcome"}),
		IndexedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openclaw",
			Name:      "indexed_chunks_total",
			Help:      "Session chunks written by the indexer.",
		}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "openclaw",
			Name:      "search_latency_seconds",
			Help:      "Session memory search latency by mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}

	registry.MustRegister(
		m.RouterRequests, m.RouterLatency, m.EmbeddingRequests,
		m.IndexedChunks, m.SearchLatency,
	)
	return m
}

// Gatherer exposes the registry for scraping and tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }
