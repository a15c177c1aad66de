package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval, generation and audit-trail metrics.
var (
	RetrievalChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_chunks",
			Help:      "Number of chunks returned per query after score filtering",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	GenerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_total",
			Help:      "Answer generation attempts",
		},
		[]string{"backend", "status"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Answer generation duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend"},
	)

	QueryLogAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "querylog_appends_total",
			Help:      "Query log append attempts",
		},
		[]string{"status"},
	)

	ReindexTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_total",
			Help:      "Full index rebuilds",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register registers the application metrics with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			httpInFlight,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			RetrievalChunks,
			GenerationTotal,
			GenerationDuration,
			QueryLogAppendsTotal,
			ReindexTotal,
		)
	})
}
