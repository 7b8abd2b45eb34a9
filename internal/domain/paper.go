// Package domain provides the record types shared by the harvest, dedup and
// server layers of the paper harvester.
package domain

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Placeholder values written by the search mapper when upstream data is missing.
const (
	PlaceholderTitle    = "Untitled"
	PlaceholderYear     = "N/A"
	PlaceholderAbstract = "No abstract."
	PlaceholderSummary  = "No AI summary available."
	UnknownAuthor       = "Unknown"
)

// MaxConcepts is the number of meaningful concepts kept per record.
const MaxConcepts = 3

// PDFSource is the tier a record's PDF URL came from.
type PDFSource string

const (
	// PDFSourcePrimary is an open-access PDF reported by the search provider itself.
	PDFSourcePrimary PDFSource = "primary"
	// PDFSourceFallback is a PDF confirmed by the fallback accessibility probe.
	PDFSourceFallback PDFSource = "fallback"
	// PDFSourcePreprint is a PDF derived from a preprint server identifier.
	PDFSourcePreprint PDFSource = "preprint"
	// PDFSourceNone means no accessible PDF is known.
	PDFSourceNone PDFSource = "none"
)

// String returns the string representation of the PDF source.
func (s PDFSource) String() string {
	return string(s)
}

// IsAccessible reports whether the tier denotes an accessible PDF.
func (s PDFSource) IsAccessible() bool {
	return s != PDFSourceNone && s != ""
}

// PaperRecord is one search hit mapped from a provider response. The ID is
// generated at creation and only lives for the duration of a batch.
type PaperRecord struct {
	ID                       string            `json:"id"`
	Title                    string            `json:"title"`
	Year                     string            `json:"year"`
	Authors                  []string          `json:"authors"`
	CitationCount            int               `json:"citation_count"`
	InfluentialCitationCount int               `json:"influential_citation_count"`
	Abstract                 string            `json:"abstract"`
	Summary                  string            `json:"summary"`
	DOI                      string            `json:"doi,omitempty"`
	ExternalIDs              map[string]string `json:"external_ids,omitempty"`
	PDFURL                   string            `json:"pdf_url,omitempty"`
	PDFSource                PDFSource         `json:"pdf_source"`
	Concepts                 []string          `json:"concepts"`
	Venue                    string            `json:"venue,omitempty"`
	VenueType                string            `json:"venue_type,omitempty"`
	Impact                   float64           `json:"impact,omitempty"`
	Query                    string            `json:"query"`
	Group                    string            `json:"group"`
}

// NewPaperRecord creates a record with a fresh ephemeral ID and placeholder
// text fields, tagged with the query that produced it.
func NewPaperRecord(group, query string) *PaperRecord {
	return &PaperRecord{
		ID:        uuid.NewString(),
		Title:     PlaceholderTitle,
		Year:      PlaceholderYear,
		Authors:   []string{UnknownAuthor},
		Abstract:  PlaceholderAbstract,
		Summary:   PlaceholderSummary,
		PDFSource: PDFSourceNone,
		Concepts:  []string{},
		Query:     query,
		Group:     group,
	}
}

// PDFRank orders records by the quality of their PDF link. A record without a
// URL ranks lowest regardless of its declared source.
func (p *PaperRecord) PDFRank() int {
	if p.PDFURL == "" {
		return 0
	}
	switch p.PDFSource {
	case PDFSourcePrimary:
		return 3
	case PDFSourceFallback:
		return 2
	default:
		return 1
	}
}

// HasAbstract reports whether the record carries a real abstract.
func (p *PaperRecord) HasAbstract() bool {
	return HasRealText(p.Abstract, PlaceholderAbstract)
}

// HasSummary reports whether the record carries a real AI summary.
func (p *PaperRecord) HasSummary() bool {
	return HasRealText(p.Summary, PlaceholderSummary)
}

// Clone returns a deep copy of the record.
func (p *PaperRecord) Clone() *PaperRecord {
	c := *p
	c.Authors = slices.Clone(p.Authors)
	c.Concepts = slices.Clone(p.Concepts)
	if p.ExternalIDs != nil {
		c.ExternalIDs = make(map[string]string, len(p.ExternalIDs))
		for k, v := range p.ExternalIDs {
			c.ExternalIDs[k] = v
		}
	}
	return &c
}

// HasRealText reports whether text is non-blank and not the given placeholder.
func HasRealText(text, placeholder string) bool {
	cleaned := strings.TrimSpace(text)
	return cleaned != "" && cleaned != placeholder
}

// CanonicalRecord is the merged representation of one cluster of records.
type CanonicalRecord struct {
	PaperRecord
	DuplicateIDs        []string `json:"duplicate_ids"`
	ContributingQueries []string `json:"contributing_queries"`
	ContributingGroups  []string `json:"contributing_groups"`
}

// MergeStats summarizes one deduplication pass.
type MergeStats struct {
	InputCount    int      `json:"input_count"`
	ClusterCount  int      `json:"cluster_count"`
	OutputCount   int      `json:"output_count"`
	FuzzyWarnings []string `json:"fuzzy_warnings"`
}
