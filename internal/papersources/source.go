// Package papersources provides the capabilities the harvester needs from
// external academic services, plus the shared HTTP plumbing they are built on.
//
// Three capabilities are defined:
//
//   - Searcher runs a keyword search and returns loosely structured items.
//   - AccessibilityProber checks whether a DOI resolves to a retrievable PDF.
//   - Enricher looks up concepts, venue and impact for a DOI.
//
// Implementations live in sub-packages (semanticscholar, elsevier, openalex)
// and must be safe for concurrent use by many harvest tasks.
//
// Example usage:
//
//	searcher := semanticscholar.NewClient(cfg, nil)
//	items, err := searcher.Search(ctx, "CRISPR gene editing", 10)
package papersources

import (
	"bytes"
	"context"
	"encoding/json"
)

// RawItem is one native search hit keyed by the provider's field names.
// Values are left undecoded so that a malformed field only affects itself.
type RawItem map[string]json.RawMessage

// Has reports whether the item carries a non-null value for key.
func (i RawItem) Has(key string) bool {
	v := bytes.TrimSpace(i[key])
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// Searcher is the provider-search capability.
type Searcher interface {
	// Search returns at most limit items for query. The context should be used
	// for cancellation and deadline propagation.
	Search(ctx context.Context, query string, limit int) ([]RawItem, error)

	// Name returns a human-readable name for logs and metrics.
	Name() string
}

// AccessibilityProber is the fallback PDF accessibility capability.
type AccessibilityProber interface {
	// ProbeAccessibility returns a retrievable PDF URL for doi, or "" when the
	// document is not accessible.
	ProbeAccessibility(ctx context.Context, doi string) (string, error)

	// Name returns a human-readable name for logs and metrics.
	Name() string
}

// Enricher is the metadata enrichment capability.
type Enricher interface {
	// Enrich returns metadata for doi. A nil Enrichment with a nil error means
	// the service knows nothing about the DOI.
	Enrich(ctx context.Context, doi string) (*Enrichment, error)

	// Name returns a human-readable name for logs and metrics.
	Name() string
}

// Enrichment is the metadata returned by an Enricher.
type Enrichment struct {
	// Concepts holds the highest-scoring subject concepts, best first.
	Concepts []string

	// Venue is the display name of the publishing source.
	Venue string

	// VenueType is the kind of source (journal, repository, conference, ...).
	VenueType string

	// Impact is the two-year mean citedness of the venue.
	Impact float64
}

// IsEmpty reports whether the enrichment carries no usable field.
func (e *Enrichment) IsEmpty() bool {
	return e == nil || (len(e.Concepts) == 0 && e.Venue == "" && e.VenueType == "" && e.Impact == 0)
}
