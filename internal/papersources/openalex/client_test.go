package openalex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/papersources"
)

// newTestClient creates a client configured for testing with the given server URL.
func newTestClient(serverURL string) *Client {
	cfg := Config{
		BaseURL: serverURL,
		Email:   "test@example.com",
		Timeout: 5 * time.Second,
	}

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  -1,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		UserAgent:  "TestClient/1.0",
	})

	return NewWithHTTPClient(cfg, httpClient)
}

const sampleWork = `{
	"id": "https://openalex.org/W1",
	"doi": "https://doi.org/10.1038/nature12373",
	"display_name": "CRISPR-Cas Systems",
	"concepts": [
		{"display_name": "Biology", "score": 0.4},
		{"display_name": "CRISPR", "score": 0.9},
		{"display_name": "", "score": 0.95},
		{"display_name": "Genome editing", "score": 0.8},
		{"display_name": "Cas9", "score": 0.7}
	],
	"primary_location": {
		"source": {
			"display_name": "Nature",
			"type": "journal",
			"issn_l": "0028-0836",
			"summary_stats": {"2yr_mean_citedness": 21.5}
		}
	}
}`

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		client := New(Config{})

		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultTimeout, client.config.Timeout)
		assert.Equal(t, DefaultSourceTimeout, client.config.SourceTimeout)
		assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
		assert.Equal(t, "OpenAlex", client.Name())
	})
}

func TestClient_Enrich(t *testing.T) {
	t.Run("returns top concepts venue and impact", func(t *testing.T) {
		var gotPath, gotMailto string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotMailto = r.URL.Query().Get("mailto")
			fmt.Fprint(w, sampleWork)
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).Enrich(context.Background(), "https://doi.org/10.1038/NATURE12373")
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, "/works/doi:10.1038/nature12373", gotPath)
		assert.Equal(t, "test@example.com", gotMailto)
		assert.Equal(t, []string{"CRISPR", "Genome editing", "Cas9"}, got.Concepts)
		assert.Equal(t, "Nature", got.Venue)
		assert.Equal(t, "journal", got.VenueType)
		assert.Equal(t, 21.5, got.Impact)
	})

	t.Run("falls back to ISSN source lookup for impact", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/works/doi:10.1/x":
				fmt.Fprint(w, `{"primary_location": {"source": {"display_name": "J Test", "type": "journal", "issn": ["1234-5678"]}}}`)
			case "/sources/issn:1234-5678":
				fmt.Fprint(w, `{"display_name": "Journal of Tests", "summary_stats": {"2yr_mean_citedness": 3.25}}`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).Enrich(context.Background(), "10.1/x")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "J Test", got.Venue)
		assert.Equal(t, 3.25, got.Impact)
		assert.Empty(t, got.Concepts)
	})

	t.Run("unknown DOI returns nil", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).Enrich(context.Background(), "10.1/missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("empty DOI makes no request", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).Enrich(context.Background(), "  ")
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("work without metadata returns nil", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id": "https://openalex.org/W9", "concepts": [], "primary_location": null}`)
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).Enrich(context.Background(), "10.1/bare")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("server error is returned", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "forbidden")
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Enrich(context.Background(), "10.1/x")
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})
}

func TestClient_SourceImpact(t *testing.T) {
	t.Run("returns name and impact", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/sources/issn:0028-0836", r.URL.Path)
			fmt.Fprint(w, `{"display_name": "Nature", "summary_stats": {"2yr_mean_citedness": 21.5}}`)
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).SourceImpact(context.Background(), "0028-0836")
		require.NoError(t, err)
		assert.Equal(t, &VenueImpact{Name: "Nature", Impact: 21.5}, got)
	})

	t.Run("missing name uses placeholder", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		}))
		defer server.Close()

		got, err := newTestClient(server.URL).SourceImpact(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, "Unknown Venue", got.Name)
		assert.Zero(t, got.Impact)
	})

	t.Run("blank ISSN", func(t *testing.T) {
		got, err := newTestClient("http://127.0.0.1:1").SourceImpact(context.Background(), "")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("times out", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		client.config.SourceTimeout = 50 * time.Millisecond

		start := time.Now()
		_, err := client.SourceImpact(context.Background(), "1234-5678")
		require.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestTopConcepts(t *testing.T) {
	concepts := []Concept{
		{DisplayName: "A", Score: 0.5},
		{DisplayName: "B", Score: 0.5},
		{DisplayName: "C", Score: 0.9},
	}

	assert.Equal(t, []string{"C", "A"}, topConcepts(concepts, 2))
	assert.Empty(t, topConcepts(nil, 3))
}
