package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/normalize"
	"github.com/helixir/paper-harvester/internal/observability"
	"github.com/helixir/paper-harvester/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout for work lookups.
	DefaultTimeout = 5 * time.Second

	// DefaultSourceTimeout bounds the ISSN source lookup.
	DefaultSourceTimeout = 2 * time.Second

	metricsSource = "openalex"
	sourceName    = "OpenAlex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// Timeout is the request timeout.
	// Defaults to 5 seconds.
	Timeout time.Duration

	// SourceTimeout bounds the ISSN source lookup.
	// Defaults to 2 seconds.
	SourceTimeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 10 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to 10.
	BurstSize int

	// Metrics is passed to the HTTP client when one is created. May be nil.
	Metrics *observability.Metrics
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SourceTimeout == 0 {
		c.SourceTimeout = DefaultSourceTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client implements papersources.Enricher for OpenAlex.
// It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements the Enricher interface.
var _ papersources.Enricher = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := "Helixir-PaperHarvester/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     metricsSource,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: 1,
		UserAgent:  userAgent,
		Metrics:    cfg.Metrics,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Enrich looks up a work by DOI and returns its top concepts, venue and
// venue impact. An unknown DOI returns (nil, nil).
func (c *Client) Enrich(ctx context.Context, doi string) (*papersources.Enrichment, error) {
	clean := normalize.DOI(doi)
	if clean == "" {
		return nil, nil
	}

	work, err := c.getWork(ctx, clean)
	if err != nil || work == nil {
		return nil, err
	}

	enrichment := &papersources.Enrichment{
		Concepts: topConcepts(work.Concepts, domain.MaxConcepts),
	}

	var source *Source
	if work.PrimaryLocation != nil {
		source = work.PrimaryLocation.Source
	}
	if source != nil {
		enrichment.Venue = source.DisplayName
		enrichment.VenueType = source.Type
		if source.SummaryStats != nil {
			enrichment.Impact = source.SummaryStats.TwoYearMeanCitedness
		}
		if enrichment.Impact == 0 {
			if issn := sourceISSN(source); issn != "" {
				// The venue lookup is best effort; its failure keeps the work data.
				if venue, err := c.SourceImpact(ctx, issn); err == nil && venue != nil {
					enrichment.Impact = venue.Impact
					if enrichment.Venue == "" {
						enrichment.Venue = venue.Name
					}
				}
			}
		}
	}

	if enrichment.IsEmpty() {
		return nil, nil
	}
	return enrichment, nil
}

// SourceImpact looks up a source by ISSN and returns its name and two-year
// mean citedness. An unknown ISSN returns (nil, nil).
func (c *Client) SourceImpact(ctx context.Context, issn string) (*VenueImpact, error) {
	issn = strings.TrimSpace(issn)
	if issn == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.SourceTimeout)
	defer cancel()

	var source Source
	found, err := c.getJSON(ctx, "sources", "issn:"+issn, &source)
	if err != nil || !found {
		return nil, err
	}

	impact := &VenueImpact{Name: source.DisplayName}
	if impact.Name == "" {
		impact.Name = "Unknown Venue"
	}
	if source.SummaryStats != nil {
		impact.Impact = source.SummaryStats.TwoYearMeanCitedness
	}
	return impact, nil
}

func (c *Client) getWork(ctx context.Context, doi string) (*Work, error) {
	var work Work
	found, err := c.getJSON(ctx, "works", "doi:"+doi, &work)
	if err != nil || !found {
		return nil, err
	}
	return &work, nil
}

// getJSON fetches {base}/{entity}/{id} into out. A 404 reports found=false.
func (c *Client) getJSON(ctx context.Context, entity, id string, out interface{}) (bool, error) {
	fetchURL, err := c.buildURL(entity, id)
	if err != nil {
		return false, fmt.Errorf("building %s URL: %w", entity, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.DoEndpoint(req, entity)
	if err != nil {
		return false, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return false, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}

// buildURL returns {base}/{entity}/{id} with the polite-pool mailto parameter.
func (c *Client) buildURL(entity, id string) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	u := base.JoinPath(entity, id)
	if c.config.Email != "" {
		q := u.Query()
		q.Set("mailto", c.config.Email)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// topConcepts returns up to n concept names ordered by descending score.
// Equal scores keep the API order.
func topConcepts(concepts []Concept, n int) []string {
	sorted := append([]Concept(nil), concepts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	names := make([]string, 0, n)
	for _, c := range sorted {
		if len(names) == n {
			break
		}
		if name := strings.TrimSpace(c.DisplayName); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func sourceISSN(s *Source) string {
	if s.ISSNL != "" {
		return s.ISSNL
	}
	if len(s.ISSN) > 0 {
		return s.ISSN[0]
	}
	return ""
}
