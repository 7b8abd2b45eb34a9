// Package semanticscholar provides the search capability backed by the
// Semantic Scholar Graph API.
//
// Search results are returned as papersources.RawItem values keyed by the
// Graph API field names (paperId, title, year, authors, tldr, openAccessPdf,
// externalIds, ...). Field coercion happens in the harvest mapper so that one
// malformed field never discards a whole page.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

import "encoding/json"

// SearchResponse represents the response from the paper search endpoint.
// Data items are kept raw and decoded one by one.
type SearchResponse struct {
	// Total is the total number of papers matching the query.
	Total int `json:"total"`

	// Offset is the current offset in the result set.
	Offset int `json:"offset"`

	// Next is the offset for the next page of results.
	// A value of 0 indicates no more results.
	Next int `json:"next"`

	// Data contains the papers returned by the search.
	Data []json.RawMessage `json:"data"`
}

// ErrorResponse represents an error response from the Semantic Scholar API.
type ErrorResponse struct {
	// Error is the error message from the API.
	Error string `json:"error,omitempty"`

	// Message is an alternative error message field.
	Message string `json:"message,omitempty"`
}
