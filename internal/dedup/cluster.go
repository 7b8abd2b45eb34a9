package dedup

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/normalize"
)

const (
	// DefaultFuzzyThreshold is the minimum title similarity for a fuzzy match.
	DefaultFuzzyThreshold = 0.95

	// DefaultWarningBand is the width above the threshold in which an accepted
	// fuzzy match is reported as low confidence.
	DefaultWarningBand = 0.02

	warningTitleLimit = 80
)

// MatchKind identifies which linkage key assigned a record to its cluster.
type MatchKind string

const (
	MatchNone       MatchKind = "none"
	MatchDOI        MatchKind = "doi"
	MatchExternalID MatchKind = "external_id"
	MatchComposite  MatchKind = "title_year_author"
	MatchTitle      MatchKind = "title"
	MatchFuzzyTitle MatchKind = "fuzzy_title"
	MatchPDFURL     MatchKind = "pdf_url"
)

// Options configures the cluster builder.
type Options struct {
	// FuzzyThreshold is the similarity ratio at or above which two titles are
	// considered the same work (e.g. 0.95).
	FuzzyThreshold float64

	// WarningBand marks accepted fuzzy matches below FuzzyThreshold+WarningBand
	// as low confidence.
	WarningBand float64
}

// DefaultOptions returns the default builder options.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold: DefaultFuzzyThreshold,
		WarningBand:    DefaultWarningBand,
	}
}

// Cluster is a group of records judged to describe the same work. Clusters
// only grow; they are never split or joined with one another.
type Cluster struct {
	// Members holds the records in arrival order.
	Members []*domain.PaperRecord

	// DOIs holds every normalized DOI seen among the members.
	DOIs map[string]struct{}

	// Title is the representative normalized title.
	Title string
}

// conflictsWith reports whether doi disagrees with the DOIs already in the
// cluster. A record without a DOI never conflicts.
func (c *Cluster) conflictsWith(doi string) bool {
	if doi == "" || len(c.DOIs) == 0 {
		return false
	}
	_, ok := c.DOIs[doi]
	return !ok
}

// Builder assigns records to clusters using priority-ordered key lookups.
// It is not safe for concurrent use.
type Builder struct {
	opts     Options
	logger   zerolog.Logger
	clusters []*Cluster

	byDOI        map[string]int
	byExternalID map[string]int
	byComposite  map[string]int
	byTitle      map[string]int
	byPDFURL     map[string]int

	warnings []string
}

// NewBuilder creates an empty Builder. A non-positive threshold or negative
// warning band falls back to the default.
func NewBuilder(opts Options, logger zerolog.Logger) *Builder {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if opts.WarningBand < 0 {
		opts.WarningBand = DefaultWarningBand
	}
	return &Builder{
		opts:         opts,
		logger:       logger,
		byDOI:        make(map[string]int),
		byExternalID: make(map[string]int),
		byComposite:  make(map[string]int),
		byTitle:      make(map[string]int),
		byPDFURL:     make(map[string]int),
	}
}

// Add places rec into an existing cluster or a new singleton and returns the
// cluster index and the key that decided it.
//
// Candidates are tried in order: DOI, external id, title|year|first author,
// exact title, fuzzy title, PDF URL. The first hit wins. Every step after the
// identifier lookups is rejected when the candidate cluster already holds a
// different DOI.
func (b *Builder) Add(rec *domain.PaperRecord) (int, MatchKind) {
	keys := normalize.For(rec)
	idx, kind := b.match(keys)
	if idx < 0 {
		idx = len(b.clusters)
		b.clusters = append(b.clusters, &Cluster{
			DOIs:  make(map[string]struct{}),
			Title: keys.Title,
		})
		kind = MatchNone
	}
	b.attach(idx, rec, keys)
	return idx, kind
}

// Clusters returns the clusters built so far in creation order.
func (b *Builder) Clusters() []*Cluster {
	return b.clusters
}

// FuzzyWarnings returns the low-confidence fuzzy matches recorded so far.
func (b *Builder) FuzzyWarnings() []string {
	return b.warnings
}

func (b *Builder) match(keys normalize.Keys) (int, MatchKind) {
	if keys.DOI != "" {
		if idx, ok := b.byDOI[keys.DOI]; ok {
			return idx, MatchDOI
		}
	}

	for _, ext := range keys.ExternalIDs {
		if idx, ok := b.byExternalID[ext]; ok {
			return idx, MatchExternalID
		}
	}

	if composite := keys.Composite(); composite != "" {
		if idx, ok := b.byComposite[composite]; ok && !b.clusters[idx].conflictsWith(keys.DOI) {
			return idx, MatchComposite
		}
	}

	if keys.Title != "" {
		if idx, ok := b.byTitle[keys.Title]; ok && !b.clusters[idx].conflictsWith(keys.DOI) {
			return idx, MatchTitle
		}
		if idx := b.fuzzyTitleMatch(keys.Title, keys.DOI); idx >= 0 {
			return idx, MatchFuzzyTitle
		}
	}

	if keys.PDFURL != "" {
		if idx, ok := b.byPDFURL[keys.PDFURL]; ok && !b.clusters[idx].conflictsWith(keys.DOI) {
			return idx, MatchPDFURL
		}
	}

	return -1, MatchNone
}

// fuzzyTitleMatch scans every cluster with a representative title and returns
// the best-scoring one if it clears the threshold. Clusters whose DOIs
// conflict with doi are not candidates. Ties keep the earliest cluster.
func (b *Builder) fuzzyTitleMatch(title, doi string) int {
	bestIdx := -1
	bestRatio := 0.0
	for i, c := range b.clusters {
		if c.Title == "" || c.conflictsWith(doi) {
			continue
		}
		ratio := TitleSimilarity(title, c.Title)
		if ratio > bestRatio {
			bestRatio = ratio
			bestIdx = i
		}
	}
	if bestIdx < 0 || bestRatio < b.opts.FuzzyThreshold {
		return -1
	}
	if bestRatio < b.opts.FuzzyThreshold+b.opts.WarningBand {
		warning := fmt.Sprintf("title similarity %.2f for '%s'", bestRatio, truncateRunes(title, warningTitleLimit))
		b.warnings = append(b.warnings, warning)
		b.logger.Info().
			Float64("ratio", bestRatio).
			Str("title", title).
			Str("matched_title", b.clusters[bestIdx].Title).
			Msg("low-confidence fuzzy title match")
	}
	return bestIdx
}

// attach adds rec to cluster idx and indexes its keys. Each key keeps the
// first cluster that claimed it.
func (b *Builder) attach(idx int, rec *domain.PaperRecord, keys normalize.Keys) {
	c := b.clusters[idx]
	c.Members = append(c.Members, rec)
	if keys.DOI != "" {
		c.DOIs[keys.DOI] = struct{}{}
	}
	if c.Title == "" {
		c.Title = keys.Title
	}

	setDefault(b.byDOI, keys.DOI, idx)
	for _, ext := range keys.ExternalIDs {
		setDefault(b.byExternalID, ext, idx)
	}
	setDefault(b.byComposite, keys.Composite(), idx)
	setDefault(b.byTitle, keys.Title, idx)
	setDefault(b.byPDFURL, keys.PDFURL, idx)
}

func setDefault(m map[string]int, key string, idx int) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = idx
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
