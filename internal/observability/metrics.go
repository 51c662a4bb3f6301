package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the curator.
// Metrics are organized by pipeline stage: collection, deduplication, quality
// assessment, enrichment, embedding, persistence, and the read API. All
// collectors are registered via promauto with the default registry.
//
// Record methods are safe to call on a nil *Metrics, which lets components
// run without instrumentation in tests.
type Metrics struct {
	// SearchesStarted counts source searches initiated, labeled by source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful source searches, labeled by source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed source searches, labeled by source.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by source.
	SearchDuration *prometheus.HistogramVec

	// RecordsPerSearch observes the number of records a search returned.
	RecordsPerSearch *prometheus.HistogramVec

	// RecordsDropped counts malformed records dropped at the collector boundary.
	RecordsDropped *prometheus.CounterVec

	// DedupClusters counts canonical papers produced by deduplication.
	DedupClusters prometheus.Counter

	// DuplicatesFound counts candidate records merged into another record's cluster.
	DuplicatesFound prometheus.Counter

	// Assessments counts quality verdicts, labeled by domain and outcome.
	Assessments *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed, labeled by operation, model, and token type.
	LLMTokensUsed *prometheus.CounterVec

	// Downloads counts PDF enrichment attempts, labeled by outcome.
	Downloads *prometheus.CounterVec

	// EmbeddingsGenerated counts papers that received an embedding.
	EmbeddingsGenerated prometheus.Counter

	// EmbeddingsFailed counts papers left without an embedding.
	EmbeddingsFailed prometheus.Counter

	// PapersUpserted counts persisted papers, labeled by result (inserted, updated, conflict).
	PapersUpserted *prometheus.CounterVec

	// StageDuration observes pipeline stage duration in seconds, labeled by stage.
	StageDuration *prometheus.HistogramVec

	// StagesResumed counts stages skipped because a valid checkpoint existed.
	StagesResumed *prometheus.CounterVec

	// DomainRuns counts finished domain runs, labeled by final stage.
	DomainRuns *prometheus.CounterVec

	// HTTPRequests counts read API requests, labeled by route and status code.
	HTTPRequests *prometheus.CounterVec

	// HTTPRequestDuration observes read API latency in seconds, labeled by route.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Collection
		SearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_started_total",
			Help:      "Total number of source searches started",
		}, []string{"source"}),
		SearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_completed_total",
			Help:      "Total number of source searches completed successfully",
		}, []string{"source"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_failed_total",
			Help:      "Total number of source searches that failed",
		}, []string{"source"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_search_duration_seconds",
			Help:      "Duration of source searches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		RecordsPerSearch: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_records_per_search",
			Help:      "Number of candidate records returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}, []string{"source"}),
		RecordsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_records_dropped_total",
			Help:      "Total number of malformed candidate records dropped",
		}, []string{"source"}),

		// Deduplication
		DedupClusters: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_clusters_total",
			Help:      "Total number of canonical papers produced by deduplication",
		}),
		DuplicatesFound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_duplicates_total",
			Help:      "Total number of candidate records merged as duplicates",
		}),

		// Quality
		Assessments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_assessments_total",
			Help:      "Total number of quality verdicts by outcome",
		}, []string{"domain", "outcome"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM API requests",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM API requests",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM API requests in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens consumed by LLM operations",
		}, []string{"operation", "model", "token_type"}),

		// Enrichment
		Downloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_downloads_total",
			Help:      "Total number of PDF enrichment attempts by outcome",
		}, []string{"outcome"}),
		EmbeddingsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_generated_total",
			Help:      "Total number of papers embedded",
		}),
		EmbeddingsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_failed_total",
			Help:      "Total number of papers left without an embedding",
		}),

		// Persistence
		PapersUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_upserted_total",
			Help:      "Total number of persisted papers by result",
		}, []string{"result"}),

		// Pipeline
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"stage"}),
		StagesResumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stages_resumed_total",
			Help:      "Total number of stages restored from a checkpoint",
		}, []string{"stage"}),
		DomainRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_domain_runs_total",
			Help:      "Total number of finished domain runs by final stage",
		}, []string{"stage"}),

		// Read API
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of read API requests",
		}, []string{"route", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Read API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// RecordSearchStarted records that a source search has started.
func (m *Metrics) RecordSearchStarted(source string) {
	if m == nil {
		return
	}
	m.SearchesStarted.WithLabelValues(source).Inc()
}

// RecordSearchCompleted records a successful search.
func (m *Metrics) RecordSearchCompleted(source string, recordCount int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesCompleted.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.RecordsPerSearch.WithLabelValues(source).Observe(float64(recordCount))
}

// RecordSearchFailed records a failed search.
func (m *Metrics) RecordSearchFailed(source string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesFailed.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordRecordsDropped records malformed records dropped from a source.
func (m *Metrics) RecordRecordsDropped(source string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.RecordsDropped.WithLabelValues(source).Add(float64(count))
}

// RecordDedup records the outcome of a deduplication pass.
func (m *Metrics) RecordDedup(clusters, duplicates int) {
	if m == nil {
		return
	}
	m.DedupClusters.Add(float64(clusters))
	m.DuplicatesFound.Add(float64(duplicates))
}

// RecordAssessment records one quality verdict.
func (m *Metrics) RecordAssessment(domain, outcome string) {
	if m == nil {
		return
	}
	m.Assessments.WithLabelValues(domain, outcome).Inc()
}

// RecordLLMRequest records a successful LLM API request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM API request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	if m == nil {
		return
	}
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}

// RecordDownload records a PDF enrichment outcome (e.g. "downloaded", "cached", "failed").
func (m *Metrics) RecordDownload(outcome string) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(outcome).Inc()
}

// RecordEmbeddings records embedding results for a batch.
func (m *Metrics) RecordEmbeddings(generated, failed int) {
	if m == nil {
		return
	}
	m.EmbeddingsGenerated.Add(float64(generated))
	m.EmbeddingsFailed.Add(float64(failed))
}

// RecordUpsert records a persisted paper by result.
func (m *Metrics) RecordUpsert(result string) {
	if m == nil {
		return
	}
	m.PapersUpserted.WithLabelValues(result).Inc()
}

// RecordStage records the duration of a pipeline stage.
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageResumed records a stage restored from its checkpoint.
func (m *Metrics) RecordStageResumed(stage string) {
	if m == nil {
		return
	}
	m.StagesResumed.WithLabelValues(stage).Inc()
}

// RecordDomainRun records a domain run reaching a terminal stage.
func (m *Metrics) RecordDomainRun(stage string) {
	if m == nil {
		return
	}
	m.DomainRuns.WithLabelValues(stage).Inc()
}

// RecordHTTPRequest records a read API request.
func (m *Metrics) RecordHTTPRequest(route, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}
