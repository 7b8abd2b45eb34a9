package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	// Use unique namespace to avoid conflicts with other tests
	m := NewMetrics("test_harvest_new")

	assert.NotNil(t, m.BatchesStarted)
	assert.NotNil(t, m.BatchesCompleted)
	assert.NotNil(t, m.BatchesTimedOut)
	assert.NotNil(t, m.BatchDuration)
	assert.NotNil(t, m.TasksFinished)
	assert.NotNil(t, m.SearchesStarted)
	assert.NotNil(t, m.SearchesCompleted)
	assert.NotNil(t, m.SearchesFailed)
	assert.NotNil(t, m.PapersByPDFSource)
	assert.NotNil(t, m.SourceRequestsTotal)
	assert.NotNil(t, m.SourceRequestsFailed)
	assert.NotNil(t, m.PDFProbes)
	assert.NotNil(t, m.Enrichments)
	assert.NotNil(t, m.DedupClusters)
}

func TestRecordBatchStarted(t *testing.T) {
	m := NewMetrics("test_batch_started")

	m.RecordBatchStarted(12)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchesStarted))

	histCount, err := getHistogramSampleCount(m.QueriesPerBatch)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

func TestRecordBatchFinished(t *testing.T) {
	m := NewMetrics("test_batch_finished")

	m.RecordBatchFinished(false, 3.5)
	m.RecordBatchFinished(true, 120)
	m.RecordBatchFinished(true, 120)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchesCompleted))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BatchesTimedOut))

	// Check histogram
	histCount, err := getHistogramSampleCount(m.BatchDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), histCount)
}

func TestRecordTaskFinished(t *testing.T) {
	m := NewMetrics("test_task_finished")

	m.RecordTaskFinished("ok")
	m.RecordTaskFinished("ok")
	m.RecordTaskFinished("failed")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TasksFinished.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksFinished.WithLabelValues("failed")))
}

func TestRecordSearchStarted(t *testing.T) {
	m := NewMetrics("test_search_started")

	m.RecordSearchStarted("semantic_scholar")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesStarted.WithLabelValues("semantic_scholar")))
}

func TestRecordSearchCompleted(t *testing.T) {
	m := NewMetrics("test_search_completed")

	m.RecordSearchCompleted("semantic_scholar", 42, 2.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesCompleted.WithLabelValues("semantic_scholar")))
}

func TestRecordSearchFailed(t *testing.T) {
	m := NewMetrics("test_search_failed")

	m.RecordSearchFailed("semantic_scholar", 1.0)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesFailed.WithLabelValues("semantic_scholar")))
}

func TestRecordPaperMapped(t *testing.T) {
	m := NewMetrics("test_paper_mapped")

	m.RecordPaperMapped("primary")
	m.RecordPaperMapped("none")
	m.RecordPaperMapped("primary")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PapersByPDFSource.WithLabelValues("primary")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PapersByPDFSource.WithLabelValues("none")))
}

func TestRecordItemSkipped(t *testing.T) {
	m := NewMetrics("test_item_skipped")

	m.RecordItemSkipped("semantic_scholar")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ItemsSkipped.WithLabelValues("semantic_scholar")))
}

func TestRecordSourceRequest(t *testing.T) {
	m := NewMetrics("test_source_request")

	m.RecordSourceRequest("semantic_scholar", "search", 0.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsTotal.WithLabelValues("semantic_scholar", "search")))
}

func TestRecordSourceRequestFailed(t *testing.T) {
	m := NewMetrics("test_source_request_failed")

	m.RecordSourceRequestFailed("openalex", "works", "timeout")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsFailed.WithLabelValues("openalex", "works", "timeout")))
}

func TestRecordSourceRateLimited(t *testing.T) {
	m := NewMetrics("test_source_rate_limited")

	m.RecordSourceRateLimited("semantic_scholar")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRateLimited.WithLabelValues("semantic_scholar")))
}

func TestRecordPDFProbe(t *testing.T) {
	m := NewMetrics("test_pdf_probe")

	m.RecordPDFProbe("accessible")
	m.RecordPDFProbe("error")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PDFProbes.WithLabelValues("accessible")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PDFProbes.WithLabelValues("error")))
}

func TestRecordEnrichment(t *testing.T) {
	m := NewMetrics("test_enrichment")

	m.RecordEnrichment("ok")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Enrichments.WithLabelValues("ok")))
}

func TestRecordDedup(t *testing.T) {
	m := NewMetrics("test_dedup")

	m.RecordDedup(10, 7, 2)
	assert.Equal(t, float64(10), testutil.ToFloat64(m.DedupInputRecords))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.DedupClusters))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.DedupDuplicates))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DedupFuzzyWarnings))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordBatchStarted(1)
		m.RecordBatchFinished(true, 1)
		m.RecordTaskFinished("ok")
		m.RecordSearchStarted("s")
		m.RecordSearchCompleted("s", 1, 1)
		m.RecordSearchFailed("s", 1)
		m.RecordPaperMapped("none")
		m.RecordItemSkipped("s")
		m.RecordSourceRequest("s", "e", 1)
		m.RecordSourceRequestFailed("s", "e", "t")
		m.RecordSourceRateLimited("s")
		m.RecordPDFProbe("error")
		m.RecordEnrichment("error")
		m.RecordDedup(1, 1, 0)
	})
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}
