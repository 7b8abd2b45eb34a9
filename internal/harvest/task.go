package harvest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/normalize"
	"github.com/helixir/paper-harvester/internal/observability"
	"github.com/helixir/paper-harvester/internal/papersources"
)

const (
	// DefaultProbeTimeout bounds one fallback accessibility probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultEnrichTimeout bounds one enrichment lookup.
	DefaultEnrichTimeout = 5 * time.Second

	arxivPDFBase = "https://arxiv.org/pdf/"
)

// Task outcomes recorded in metrics.
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeDiscarded = "discarded"
)

var arxivDOIPattern = regexp.MustCompile(`^10\.48550/arxiv\.(.+)$`)

// Task is one (group, query) pair to search.
type Task struct {
	Group string `json:"group"`
	Query string `json:"query"`

	// Limit overrides the runner's per-query limit when positive.
	Limit int `json:"limit,omitempty"`
}

// TaskResult is what one task contributes to a batch. Err is informational
// only; a failed task still reports empty Found and Missing lists.
type TaskResult struct {
	Task       Task
	Found      []*domain.PaperRecord
	Missing    []*domain.PaperRecord
	Skipped    int
	Err        error
	FinishedAt time.Time
}

// Papers returns the number of records the task produced.
func (r TaskResult) Papers() int {
	return len(r.Found) + len(r.Missing)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// PerQueryLimit caps the items taken from one search.
	PerQueryLimit int

	// ProbeTimeout bounds one fallback accessibility probe.
	ProbeTimeout time.Duration

	// EnrichTimeout bounds one enrichment lookup.
	EnrichTimeout time.Duration
}

// Runner executes provider tasks. The searcher is required; the prober and
// enricher are optional. It is safe for concurrent use.
type Runner struct {
	searcher papersources.Searcher
	prober   papersources.AccessibilityProber
	enricher papersources.Enricher
	mapper   *Mapper
	config   RunnerConfig
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewRunner creates a Runner. prober and enricher may be nil.
func NewRunner(
	cfg RunnerConfig,
	searcher papersources.Searcher,
	prober papersources.AccessibilityProber,
	enricher papersources.Enricher,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Runner {
	if cfg.PerQueryLimit < 1 {
		cfg.PerQueryLimit = 1
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = DefaultEnrichTimeout
	}

	return &Runner{
		searcher: searcher,
		prober:   prober,
		enricher: enricher,
		mapper:   NewMapper(),
		config:   cfg,
		logger:   logger.With().Str("component", "provider-task").Logger(),
		metrics:  metrics,
	}
}

// Run searches for the task's query and classifies every mapped record by
// PDF accessibility. It never returns an error: a failed search yields an
// empty result with Err set, and per-item failures skip only that item.
func (r *Runner) Run(ctx context.Context, task Task) (result TaskResult) {
	result.Task = task
	logger := observability.WithQueryContext(r.logger, task.Group, task.Query)
	source := r.searcher.Name()

	defer func() {
		if p := recover(); p != nil {
			result.Found, result.Missing = nil, nil
			result.Err = fmt.Errorf("task panicked: %v", p)
			logger.Warn().Err(result.Err).Msg("provider task failed")
		}
		result.FinishedAt = time.Now()
	}()

	r.metrics.RecordSearchStarted(source)
	start := time.Now()

	limit := r.config.PerQueryLimit
	if task.Limit > 0 {
		limit = task.Limit
	}

	items, err := r.searcher.Search(ctx, task.Query, limit)
	if err != nil {
		r.metrics.RecordSearchFailed(source, time.Since(start).Seconds())
		result.Err = fmt.Errorf("searching %s: %w", source, err)
		logger.Warn().Err(err).Str("source", source).Msg("provider search failed")
		return result
	}
	if len(items) > limit {
		items = items[:limit]
	}

	for i, item := range items {
		rec, degraded, err := r.mapper.Map(item, task.Group, task.Query)
		if err != nil {
			result.Skipped++
			r.metrics.RecordItemSkipped(source)
			logger.Debug().Err(err).Int("index", i).Msg("skipping search item")
			continue
		}
		if len(degraded) > 0 {
			logger.Debug().Strs("fields", degraded).Str("paper_id", rec.ID).Msg("search item fields defaulted")
		}

		paperLogger := observability.WithPaperContext(logger, rec.ID, rec.DOI)
		r.enrich(ctx, rec, paperLogger)
		r.classify(ctx, rec, paperLogger)
		r.metrics.RecordPaperMapped(rec.PDFSource.String())

		if rec.PDFSource.IsAccessible() {
			result.Found = append(result.Found, rec)
		} else {
			result.Missing = append(result.Missing, rec)
		}
	}

	r.metrics.RecordSearchCompleted(source, result.Papers(), time.Since(start).Seconds())
	logger.Debug().
		Int("found", len(result.Found)).
		Int("missing", len(result.Missing)).
		Int("skipped", result.Skipped).
		Dur("duration", time.Since(start)).
		Msg("provider task completed")

	return result
}

// enrich fills concepts, venue and impact. Failures leave the fields as
// they are.
func (r *Runner) enrich(ctx context.Context, rec *domain.PaperRecord, logger zerolog.Logger) {
	if r.enricher == nil || rec.DOI == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.EnrichTimeout)
	defer cancel()

	e, err := r.enricher.Enrich(ctx, rec.DOI)
	switch {
	case err != nil:
		r.metrics.RecordEnrichment("error")
		logger.Debug().Err(err).Msg("enrichment failed")
		return
	case e.IsEmpty():
		r.metrics.RecordEnrichment("empty")
		return
	}

	r.metrics.RecordEnrichment("enriched")
	if len(e.Concepts) > 0 {
		rec.Concepts = append([]string(nil), e.Concepts[:min(len(e.Concepts), domain.MaxConcepts)]...)
	}
	if e.Venue != "" {
		rec.Venue = e.Venue
		rec.VenueType = e.VenueType
	}
	if e.Impact > 0 {
		rec.Impact = e.Impact
	}
}

// classify assigns the PDF source tier: the search provider's own link,
// then a fallback probe hit, then a preprint link, then none.
func (r *Runner) classify(ctx context.Context, rec *domain.PaperRecord, logger zerolog.Logger) {
	if rec.PDFURL != "" {
		rec.PDFSource = domain.PDFSourcePrimary
		return
	}

	if id := arxivID(rec); id != "" {
		rec.PDFURL = arxivPDFBase + id
		rec.PDFSource = domain.PDFSourcePreprint
	}

	if r.prober == nil || rec.DOI == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.ProbeTimeout)
	defer cancel()

	url, err := r.prober.ProbeAccessibility(ctx, rec.DOI)
	if err != nil {
		logger.Debug().Err(err).Str("prober", r.prober.Name()).Msg("accessibility probe failed")
		return
	}
	if url != "" {
		rec.PDFURL = url
		rec.PDFSource = domain.PDFSourceFallback
	}
}

// arxivID returns the record's arXiv identifier from its external ids or an
// arXiv DOI.
func arxivID(rec *domain.PaperRecord) string {
	if id := strings.TrimSpace(lookupFold(rec.ExternalIDs, "ArXiv")); id != "" {
		return id
	}
	if m := arxivDOIPattern.FindStringSubmatch(normalize.DOI(rec.DOI)); m != nil {
		return m[1]
	}
	return ""
}
