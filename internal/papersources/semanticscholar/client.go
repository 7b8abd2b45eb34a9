package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/observability"
	"github.com/helixir/paper-harvester/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated requests.
	// With an API key, this can be increased.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the largest page the search endpoint accepts.
	MaxPageSize = 100

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,externalIds,title,abstract,year,venue,authors,citationCount,influentialCitationCount,openAccessPdf,tldr"

	// metricsSource labels metrics for this client.
	metricsSource = "semantic_scholar"

	// sourceName is the human-readable name for this source.
	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	APIKey string

	// Timeout is the HTTP request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// Metrics is passed to the HTTP client when one is created. May be nil.
	Metrics *observability.Metrics
}

// Client implements papersources.Searcher for Semantic Scholar.
// It is safe for concurrent use.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

// Compile-time check that Client implements papersources.Searcher.
var _ papersources.Searcher = (*Client)(nil)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one will be created with the configuration settings.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}

	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:       metricsSource,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
			Metrics:      cfg.Metrics,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search returns at most limit raw items for query, fetching as many pages
// as needed. Items that are not JSON objects are returned as nil so the
// caller can count them as skipped.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]papersources.RawItem, error) {
	if limit <= 0 {
		return []papersources.RawItem{}, nil
	}

	items := make([]papersources.RawItem, 0, limit)
	offset := 0
	for len(items) < limit {
		pageSize := limit - len(items)
		if pageSize > MaxPageSize {
			pageSize = MaxPageSize
		}

		page, err := c.searchPage(ctx, query, offset, pageSize)
		if err != nil {
			if len(items) > 0 {
				// Keep what earlier pages returned.
				return items, nil
			}
			return nil, err
		}

		for _, raw := range page.Data {
			if len(items) == limit {
				break
			}
			items = append(items, decodeItem(raw))
		}

		if page.Next <= offset || len(page.Data) == 0 {
			break
		}
		offset = page.Next
	}

	return items, nil
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

func (c *Client) searchPage(ctx context.Context, query string, offset, pageSize int) (*SearchResponse, error) {
	searchURL, err := c.buildSearchURL(query, offset, pageSize)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.DoEndpoint(req, "search")
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &searchResp, nil
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(query string, offset, pageSize int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("paper", "search")

	q := searchURL.Query()
	q.Set("query", query)
	q.Set("fields", paperFields)
	q.Set("limit", strconv.Itoa(pageSize))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// handleErrorResponse checks for API errors and returns appropriate error types.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read the error body (limit to 1MB to prevent resource exhaustion)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
	}

	return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
}

// decodeItem decodes one search hit. Anything other than a JSON object yields nil.
func decodeItem(raw json.RawMessage) papersources.RawItem {
	var item papersources.RawItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil
	}
	return item
}
