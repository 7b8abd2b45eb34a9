package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaperRecord(t *testing.T) {
	rec := NewPaperRecord("section 1", "graph neural networks")

	_, err := uuid.Parse(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderTitle, rec.Title)
	assert.Equal(t, PlaceholderYear, rec.Year)
	assert.Equal(t, []string{UnknownAuthor}, rec.Authors)
	assert.Equal(t, PlaceholderAbstract, rec.Abstract)
	assert.Equal(t, PlaceholderSummary, rec.Summary)
	assert.Equal(t, PDFSourceNone, rec.PDFSource)
	assert.NotNil(t, rec.Concepts)
	assert.Empty(t, rec.Concepts)
	assert.Equal(t, "section 1", rec.Group)
	assert.Equal(t, "graph neural networks", rec.Query)

	other := NewPaperRecord("section 1", "graph neural networks")
	assert.NotEqual(t, rec.ID, other.ID)
}

func TestPDFSource_IsAccessible(t *testing.T) {
	tests := []struct {
		source   PDFSource
		expected bool
	}{
		{PDFSourcePrimary, true},
		{PDFSourceFallback, true},
		{PDFSourcePreprint, true},
		{PDFSourceNone, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.source.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.source.IsAccessible())
		})
	}
}

func TestPaperRecord_PDFRank(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		source   PDFSource
		expected int
	}{
		{name: "primary", url: "https://a/x.pdf", source: PDFSourcePrimary, expected: 3},
		{name: "fallback", url: "https://a/x.pdf", source: PDFSourceFallback, expected: 2},
		{name: "preprint", url: "https://arxiv.org/pdf/1", source: PDFSourcePreprint, expected: 1},
		{name: "source without url", url: "", source: PDFSourcePrimary, expected: 0},
		{name: "none", url: "", source: PDFSourceNone, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &PaperRecord{PDFURL: tt.url, PDFSource: tt.source}
			assert.Equal(t, tt.expected, rec.PDFRank())
		})
	}
}

func TestPaperRecord_HasAbstractAndSummary(t *testing.T) {
	rec := NewPaperRecord("", "")
	assert.False(t, rec.HasAbstract())
	assert.False(t, rec.HasSummary())

	rec.Abstract = "   "
	rec.Summary = "  " + PlaceholderSummary + "  "
	assert.False(t, rec.HasAbstract())
	assert.False(t, rec.HasSummary())

	rec.Abstract = "We study attention."
	rec.Summary = "Attention works."
	assert.True(t, rec.HasAbstract())
	assert.True(t, rec.HasSummary())
}

func TestPaperRecord_Clone(t *testing.T) {
	rec := NewPaperRecord("g", "q")
	rec.Authors = []string{"A", "B"}
	rec.Concepts = []string{"Physics"}
	rec.ExternalIDs = map[string]string{"DOI": "10.1/x"}

	c := rec.Clone()
	require.Equal(t, rec, c)

	c.Authors[0] = "changed"
	c.Concepts[0] = "changed"
	c.ExternalIDs["DOI"] = "changed"
	c.Title = "changed"

	assert.Equal(t, "A", rec.Authors[0])
	assert.Equal(t, "Physics", rec.Concepts[0])
	assert.Equal(t, "10.1/x", rec.ExternalIDs["DOI"])
	assert.Equal(t, PlaceholderTitle, rec.Title)
}

func TestPaperRecord_CloneNilExternalIDs(t *testing.T) {
	rec := NewPaperRecord("g", "q")
	assert.Nil(t, rec.Clone().ExternalIDs)
}

func TestHasRealText(t *testing.T) {
	assert.False(t, HasRealText("", "x"))
	assert.False(t, HasRealText(" \t", "x"))
	assert.False(t, HasRealText(" x ", "x"))
	assert.True(t, HasRealText("y", "x"))
}

func TestErrors(t *testing.T) {
	t.Run("validation error unwraps to ErrInvalidInput", func(t *testing.T) {
		err := NewValidationError("Workers", "must be greater than 0")
		assert.True(t, errors.Is(err, ErrInvalidInput))
		assert.Equal(t, "validation error: Workers: must be greater than 0", err.Error())

		var verr *ValidationError
		wrapped := fmt.Errorf("building dispatcher: %w", err)
		require.True(t, errors.As(wrapped, &verr))
		assert.Equal(t, "Workers", verr.Field)
	})

	t.Run("rate limit error unwraps to ErrRateLimited", func(t *testing.T) {
		err := NewRateLimitError("Semantic Scholar", 2*time.Second)
		assert.True(t, errors.Is(err, ErrRateLimited))
		assert.Contains(t, err.Error(), "retry after 2s")
	})

	t.Run("external API error unwraps to its cause", func(t *testing.T) {
		err := NewExternalAPIError("OpenAlex", 503, "unavailable", ErrServiceUnavailable)
		assert.True(t, errors.Is(err, ErrServiceUnavailable))
		assert.False(t, errors.Is(err, ErrRateLimited))
		assert.Equal(t, "OpenAlex API error (status 503): unavailable", err.Error())

		bare := NewExternalAPIError("OpenAlex", 400, "bad request", nil)
		assert.Nil(t, errors.Unwrap(bare))
	})
}

func TestPaperRecord_ClonePreservesEmptyConcepts(t *testing.T) {
	c := NewPaperRecord("g", "q").Clone()
	assert.NotNil(t, c.Concepts)
	assert.Empty(t, c.Concepts)
}
