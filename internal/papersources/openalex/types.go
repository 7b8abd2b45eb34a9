// Package openalex provides DOI enrichment backed by the OpenAlex API.
//
// OpenAlex is a free, open catalog of scholarly works, sources and concepts.
// The client looks up a work by DOI and returns its top concepts, publishing
// venue and the venue's two-year mean citedness. When the work response does
// not carry venue statistics, the source is looked up by ISSN.
//
// API Documentation: https://docs.openalex.org/
package openalex

// Work represents the parts of an OpenAlex work used for enrichment.
type Work struct {
	ID              string    `json:"id"`
	DOI             string    `json:"doi"`
	DisplayName     string    `json:"display_name"`
	Concepts        []Concept `json:"concepts"`
	PrimaryLocation *Location `json:"primary_location"`
}

// Concept is a machine-tagged subject attached to a work.
type Concept struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Level       int     `json:"level"`
	Score       float64 `json:"score"`
}

// Location represents where a work is available.
type Location struct {
	Source  *Source `json:"source"`
	PDFURL  string  `json:"pdf_url"`
	Version string  `json:"version"`
}

// Source represents a publication venue (journal, repository, etc.).
type Source struct {
	ID           string        `json:"id"`
	DisplayName  string        `json:"display_name"`
	Type         string        `json:"type"`
	ISSNL        string        `json:"issn_l"`
	ISSN         []string      `json:"issn"`
	SummaryStats *SummaryStats `json:"summary_stats"`
}

// SummaryStats holds citation statistics of a source.
type SummaryStats struct {
	TwoYearMeanCitedness float64 `json:"2yr_mean_citedness"`
	HIndex               int     `json:"h_index"`
	I10Index             int     `json:"i10_index"`
}

// VenueImpact is the result of a source lookup by ISSN.
type VenueImpact struct {
	// Name is the source display name.
	Name string

	// Impact is the two-year mean citedness.
	Impact float64
}
