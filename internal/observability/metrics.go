package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper harvester.
// Metrics are organized by subsystem: batches, tasks, searches, sources,
// PDF resolution, and deduplication. All counters and histograms are
// registered via promauto with the default Prometheus registry.
//
// Every Record method is safe to call on a nil *Metrics, so components can
// run without instrumentation in tests and in the CLI.
type Metrics struct {
	// BatchesStarted counts harvest batches dispatched.
	BatchesStarted prometheus.Counter

	// BatchesCompleted counts batches in which every task finished before the deadline.
	BatchesCompleted prometheus.Counter

	// BatchesTimedOut counts batches that hit the global deadline or were cancelled.
	BatchesTimedOut prometheus.Counter

	// BatchDuration observes the wall-clock duration of a batch in seconds.
	BatchDuration prometheus.Histogram

	// QueriesPerBatch observes the number of queries submitted per batch.
	QueriesPerBatch prometheus.Histogram

	// TasksFinished counts finished tasks labeled by outcome (ok, failed, late).
	TasksFinished *prometheus.CounterVec

	// SearchesStarted counts searches initiated, labeled by paper source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful searches, labeled by paper source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed searches, labeled by paper source.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by paper source.
	SearchDuration *prometheus.HistogramVec

	// PapersPerSearch observes the distribution of papers returned per search, labeled by source.
	PapersPerSearch *prometheus.HistogramVec

	// PapersByPDFSource counts mapped records labeled by PDF tier.
	PapersByPDFSource *prometheus.CounterVec

	// ItemsSkipped counts provider items that could not be mapped to a record.
	ItemsSkipped *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to paper source APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests to paper source APIs, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to paper source APIs in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from paper source APIs, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// PDFProbes counts fallback accessibility probes labeled by result (accessible, inaccessible, error).
	PDFProbes *prometheus.CounterVec

	// Enrichments counts metadata enrichment lookups labeled by result (ok, empty, error).
	Enrichments *prometheus.CounterVec

	// DedupInputRecords counts records fed into deduplication.
	DedupInputRecords prometheus.Counter

	// DedupClusters counts clusters produced by deduplication.
	DedupClusters prometheus.Counter

	// DedupDuplicates counts records merged away into another record's cluster.
	DedupDuplicates prometheus.Counter

	// DedupFuzzyWarnings counts low-confidence fuzzy title matches.
	DedupFuzzyWarnings prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Batches
		BatchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_started_total",
			Help:      "Total number of harvest batches started",
		}),
		BatchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_completed_total",
			Help:      "Total number of harvest batches that finished every query",
		}),
		BatchesTimedOut: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_timed_out_total",
			Help:      "Total number of harvest batches that hit the deadline",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of harvest batches in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		QueriesPerBatch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queries_per_batch",
			Help:      "Number of queries submitted per harvest batch",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		TasksFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of query tasks finished by outcome",
		}, []string{"outcome"}),

		// Searches
		SearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of paper searches started by source",
		}, []string{"source"}),
		SearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of paper searches completed by source",
		}, []string{"source"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of paper searches that failed by source",
		}, []string{"source"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of paper searches in seconds by source",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
		PapersPerSearch: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_search",
			Help:      "Number of papers returned per search by source",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200, 500},
		}, []string{"source"}),

		// Papers
		PapersByPDFSource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_by_pdf_source_total",
			Help:      "Total number of mapped papers by PDF source tier",
		}, []string{"pdf_source"}),
		ItemsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Total number of provider items that could not be mapped",
		}, []string{"source"}),

		// Sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to paper sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to paper sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to paper sources in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from paper sources",
		}, []string{"source"}),

		// PDF resolution
		PDFProbes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_probes_total",
			Help:      "Total number of fallback PDF accessibility probes by result",
		}, []string{"result"}),
		Enrichments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Total number of metadata enrichment lookups by result",
		}, []string{"result"}),

		// Deduplication
		DedupInputRecords: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_input_records_total",
			Help:      "Total number of records fed into deduplication",
		}),
		DedupClusters: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_clusters_total",
			Help:      "Total number of clusters produced by deduplication",
		}),
		DedupDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_duplicates_total",
			Help:      "Total number of records merged into another record",
		}),
		DedupFuzzyWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_fuzzy_warnings_total",
			Help:      "Total number of low-confidence fuzzy title matches",
		}),
	}
}

// RecordBatchStarted records that a batch has started with the given number of queries.
func (m *Metrics) RecordBatchStarted(queries int) {
	if m == nil {
		return
	}
	m.BatchesStarted.Inc()
	m.QueriesPerBatch.Observe(float64(queries))
}

// RecordBatchFinished records the end of a batch.
func (m *Metrics) RecordBatchFinished(timedOut bool, durationSeconds float64) {
	if m == nil {
		return
	}
	if timedOut {
		m.BatchesTimedOut.Inc()
	} else {
		m.BatchesCompleted.Inc()
	}
	m.BatchDuration.Observe(durationSeconds)
}

// RecordTaskFinished records a finished task by outcome.
func (m *Metrics) RecordTaskFinished(outcome string) {
	if m == nil {
		return
	}
	m.TasksFinished.WithLabelValues(outcome).Inc()
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted(source string) {
	if m == nil {
		return
	}
	m.SearchesStarted.WithLabelValues(source).Inc()
}

// RecordSearchCompleted records that a search has completed.
func (m *Metrics) RecordSearchCompleted(source string, paperCount int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesCompleted.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.PapersPerSearch.WithLabelValues(source).Observe(float64(paperCount))
}

// RecordSearchFailed records that a search has failed.
func (m *Metrics) RecordSearchFailed(source string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesFailed.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordPaperMapped records a mapped record by its PDF tier.
func (m *Metrics) RecordPaperMapped(pdfSource string) {
	if m == nil {
		return
	}
	m.PapersByPDFSource.WithLabelValues(pdfSource).Inc()
}

// RecordItemSkipped records a provider item that could not be mapped.
func (m *Metrics) RecordItemSkipped(source string) {
	if m == nil {
		return
	}
	m.ItemsSkipped.WithLabelValues(source).Inc()
}

// RecordSourceRequest records a request to a paper source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a paper source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	if m == nil {
		return
	}
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordPDFProbe records the result of a fallback accessibility probe.
func (m *Metrics) RecordPDFProbe(result string) {
	if m == nil {
		return
	}
	m.PDFProbes.WithLabelValues(result).Inc()
}

// RecordEnrichment records the result of a metadata enrichment lookup.
func (m *Metrics) RecordEnrichment(result string) {
	if m == nil {
		return
	}
	m.Enrichments.WithLabelValues(result).Inc()
}

// RecordDedup records the outcome of one deduplication pass.
func (m *Metrics) RecordDedup(inputs, clusters, fuzzyWarnings int) {
	if m == nil {
		return
	}
	m.DedupInputRecords.Add(float64(inputs))
	m.DedupClusters.Add(float64(clusters))
	if inputs > clusters {
		m.DedupDuplicates.Add(float64(inputs - clusters))
	}
	m.DedupFuzzyWarnings.Add(float64(fuzzyWarnings))
}
