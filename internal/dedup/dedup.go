// Package dedup links records that describe the same scholarly work and
// merges each group into one canonical record.
//
// Linkage uses exact keys first (DOI, external identifiers, title|year|first
// author, normalized title), then a fuzzy title ratio, then the normalized PDF
// URL. A DOI disagreement always blocks the non-identifier steps.
package dedup

import (
	"github.com/rs/zerolog"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/observability"
)

// Deduplicator clusters a batch of records and merges each cluster.
type Deduplicator struct {
	opts    Options
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewDeduplicator creates a Deduplicator. The metrics parameter may be nil.
func NewDeduplicator(opts Options, logger zerolog.Logger, metrics *observability.Metrics) *Deduplicator {
	return &Deduplicator{
		opts:    opts,
		logger:  logger.With().Str("component", "dedup").Logger(),
		metrics: metrics,
	}
}

// Deduplicate returns one canonical record per cluster, in cluster creation
// order, together with merge statistics.
func (d *Deduplicator) Deduplicate(records []*domain.PaperRecord) ([]domain.CanonicalRecord, domain.MergeStats) {
	stats := domain.MergeStats{
		InputCount:    len(records),
		FuzzyWarnings: []string{},
	}
	if len(records) == 0 {
		return []domain.CanonicalRecord{}, stats
	}

	b := NewBuilder(d.opts, d.logger)
	matched := make(map[MatchKind]int)
	for _, r := range records {
		if r == nil {
			stats.InputCount--
			continue
		}
		_, kind := b.Add(r)
		matched[kind]++
	}

	clusters := b.Clusters()
	merged := make([]domain.CanonicalRecord, 0, len(clusters))
	for _, c := range clusters {
		merged = append(merged, Merge(c))
	}

	stats.ClusterCount = len(clusters)
	stats.OutputCount = len(merged)
	stats.FuzzyWarnings = append(stats.FuzzyWarnings, b.FuzzyWarnings()...)

	d.logger.Debug().
		Int("input", stats.InputCount).
		Int("clusters", stats.ClusterCount).
		Int("by_doi", matched[MatchDOI]).
		Int("by_external_id", matched[MatchExternalID]).
		Int("by_composite", matched[MatchComposite]).
		Int("by_title", matched[MatchTitle]).
		Int("by_fuzzy_title", matched[MatchFuzzyTitle]).
		Int("by_pdf_url", matched[MatchPDFURL]).
		Int("fuzzy_warnings", len(stats.FuzzyWarnings)).
		Msg("deduplication completed")

	d.metrics.RecordDedup(stats.InputCount, stats.ClusterCount, len(stats.FuzzyWarnings))

	return merged, stats
}

// Deduplicate clusters and merges records with the given options and no
// logging or metrics.
func Deduplicate(records []*domain.PaperRecord, opts Options) ([]domain.CanonicalRecord, domain.MergeStats) {
	return NewDeduplicator(opts, zerolog.Nop(), nil).Deduplicate(records)
}

// Split partitions canonical records by whether their merged PDF source is
// accessible.
func Split(records []domain.CanonicalRecord) (found, missing []domain.CanonicalRecord) {
	found = make([]domain.CanonicalRecord, 0, len(records))
	missing = make([]domain.CanonicalRecord, 0, len(records))
	for _, r := range records {
		if r.PDFSource.IsAccessible() {
			found = append(found, r)
		} else {
			missing = append(missing, r)
		}
	}
	return found, missing
}
