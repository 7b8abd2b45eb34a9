// Package elsevier implements the fallback PDF accessibility probe against
// the Elsevier article retrieval API.
//
// The probe issues a single HEAD request per DOI asking for the PDF
// representation. A 200 response means the configured API key grants access
// to the full text and the article URL is returned; any other status means
// the document is not accessible.
package elsevier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/normalize"
	"github.com/helixir/paper-harvester/internal/observability"
	"github.com/helixir/paper-harvester/internal/papersources"
)

const (
	// DefaultBaseURL is the article-by-DOI endpoint of the Elsevier API.
	DefaultBaseURL = "https://api.elsevier.com/content/article/doi"

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 5 * time.Second

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// apiKeyHeader is the HTTP header carrying the Elsevier API key.
	apiKeyHeader = "X-ELS-APIKey"

	metricsSource = "elsevier"
	sourceName    = "Elsevier"
)

// Probe results recorded in metrics.
const (
	resultAccessible   = "accessible"
	resultInaccessible = "inaccessible"
	resultError        = "error"
)

// Config holds configuration for the Elsevier prober.
type Config struct {
	// BaseURL is the article-by-DOI endpoint.
	BaseURL string

	// APIKey is the Elsevier API key. The prober reports every DOI as
	// inaccessible without one.
	APIKey string

	// Timeout bounds a single probe.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// Metrics records probe outcomes. May be nil.
	Metrics *observability.Metrics
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client implements papersources.AccessibilityProber for Elsevier.
// It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements the AccessibilityProber interface.
var _ papersources.AccessibilityProber = (*Client)(nil)

// New creates a prober with its own rate-limited HTTP client. Probes are
// never retried.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:         metricsSource,
		Timeout:        cfg.Timeout,
		RateLimit:      cfg.RateLimit,
		BurstSize:      cfg.BurstSize,
		DisableRetries: true,
		Metrics:        cfg.Metrics,
	})

	return NewWithHTTPClient(cfg, httpClient)
}

// NewWithHTTPClient creates a prober with a custom HTTP client.
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

// Configured reports whether the prober has a credential to probe with.
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

// ProbeAccessibility returns the article URL when the Elsevier API serves
// the PDF representation of doi, and "" otherwise. Only transport failures
// are returned as errors.
func (c *Client) ProbeAccessibility(ctx context.Context, doi string) (string, error) {
	clean := normalize.DOI(doi)
	if clean == "" || !c.Configured() {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	articleURL := strings.TrimRight(c.config.BaseURL, "/") + "/" + escapeDOI(clean)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, articleURL, nil)
	if err != nil {
		c.config.Metrics.RecordPDFProbe(resultError)
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.config.APIKey)
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.DoEndpoint(req, "article")
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrServiceUnavailable) {
			// Exhausted 429/5xx responses are an answer, not a transport failure.
			c.config.Metrics.RecordPDFProbe(resultInaccessible)
			return "", nil
		}
		c.config.Metrics.RecordPDFProbe(resultError)
		return "", fmt.Errorf("probing %s: %w", clean, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.config.Metrics.RecordPDFProbe(resultInaccessible)
		return "", nil
	}

	c.config.Metrics.RecordPDFProbe(resultAccessible)
	return articleURL, nil
}

// subDelimUnescaper restores the RFC 3986 sub-delimiters that
// url.PathEscape encodes but DOIs commonly carry, such as the SICI form.
var subDelimUnescaper = strings.NewReplacer(
	"%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*",
)

// escapeDOI escapes each path segment of a DOI while keeping its slashes and
// sub-delimiters.
func escapeDOI(doi string) string {
	parts := strings.Split(doi, "/")
	for i, p := range parts {
		parts[i] = subDelimUnescaper.Replace(url.PathEscape(p))
	}
	return strings.Join(parts, "/")
}
