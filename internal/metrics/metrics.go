// Package metrics provides Prometheus metrics for the ingestion and query
// pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all service metrics.
type Metrics struct {
	DocumentsIngested   prometheus.Counter
	ChunksCreated       prometheus.Counter
	EmbeddingsGenerated prometheus.Counter
	IngestDuration      prometheus.Histogram
	IngestErrors        *prometheus.CounterVec

	QueryRequests prometheus.Counter
	QueryDuration prometheus.Histogram
	QueryErrors   *prometheus.CounterVec
}

// New creates all metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "paperquery_documents_ingested_total",
			Help: "Total number of successfully ingested documents",
		}),
		ChunksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "paperquery_chunks_created_total",
			Help: "Total number of chunks persisted",
		}),
		EmbeddingsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "paperquery_embeddings_generated_total",
			Help: "Total number of embeddings persisted",
		}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paperquery_ingest_duration_seconds",
			Help:    "Duration of ingestion requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		IngestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paperquery_ingest_errors_total",
			Help: "Total number of failed ingestions by fault kind",
		}, []string{"kind"}),
		QueryRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "paperquery_query_requests_total",
			Help: "Total number of query requests",
		}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paperquery_query_duration_seconds",
			Help:    "Duration of query requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paperquery_query_errors_total",
			Help: "Total number of failed queries by fault kind",
		}, []string{"kind"}),
	}
}
