package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fundscout"

var (
	// RoutesTotal counts orchestrated requests by intent label and outcome.
	RoutesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Total routed queries by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	// PipelineDuration observes end-to-end pipeline latency.
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"pipeline", "outcome"},
	)

	// SectorGateTotal counts advice gate decisions ("scoped" or "generic").
	SectorGateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sector_gate_total",
			Help:      "Sector confidence gate decisions",
		},
		[]string{"route"},
	)

	// EnrichmentTotal counts per-entity enrichment attempts by status.
	EnrichmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_total",
			Help:      "Per-entity enrichment attempts",
		},
		[]string{"status"},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Chat completion requests by model and status",
		},
		[]string{"model", "status"},
	)

	ModelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Chat completion latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"model"},
	)

	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens consumed by chat completions",
		},
		[]string{"model", "type"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Embedding requests by model and status",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"model"},
	)

	// SearchResults observes how many documents survive the distance threshold.
	SearchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Documents returned per semantic search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Documents processed by ingestion, by result (embedded, unchanged)",
		},
		[]string{"result"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Maintenance jobs processed by type and status",
		},
		[]string{"type", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RoutesTotal,
		PipelineDuration,
		SectorGateTotal,
		EnrichmentTotal,
		ToolCallsTotal,
		ModelRequestsTotal,
		ModelRequestDuration,
		ModelTokensTotal,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		SearchResults,
		IngestDocumentsTotal,
		JobsTotal,
	)
}
