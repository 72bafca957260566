// Package metrics holds the Prometheus collectors for the HTTP surface and
// the ingestion and retrieval pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rag_kb"

// Ingestion stages reported on IngestionFailuresTotal.
const (
	StageExtract       = "extract"
	StageKnowledgeItem = "knowledge_item"
	StagePurge         = "purge"
	StageEmbed         = "embed"
	StageUpsert        = "upsert"
)

// Reasons reported on ChatContextSkippedTotal.
const (
	ReasonEmbedding   = "embedding"
	ReasonVectorStore = "vector_store"
	ReasonNoMatches   = "no_matches"
)

var (
	IngestionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_failures_total",
			Help:      "Ingestion steps that failed without failing the upload",
		},
		[]string{"stage"},
	)

	ChunksIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks embedded and written to the vector store",
		},
		[]string{"file_type"},
	)

	ChatContextSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_context_skipped_total",
			Help:      "Chat completions answered without retrieved context",
		},
		[]string{"reason"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"provider", "status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			IngestionFailuresTotal,
			ChunksIndexedTotal,
			ChatContextSkippedTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			CompletionRequestsTotal,
		)
	})
}

// Status turns an error into a status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
