// Package config provides configuration management for the paper harvester.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "LITHARVEST"

// Config holds all configuration for the paper harvester.
type Config struct {
	// Harvest contains dispatcher, provider task and dedup settings.
	Harvest HarvestConfig `mapstructure:"harvest"`
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// PaperSources contains external API configurations.
	PaperSources PaperSourcesConfig `mapstructure:"paper_sources"`
}

// HarvestConfig holds batch execution settings.
type HarvestConfig struct {
	// Workers is the worker pool width (default: 5).
	Workers int `mapstructure:"workers"`
	// Timeout is the wall-clock budget of one batch (default: 120s).
	Timeout time.Duration `mapstructure:"timeout"`
	// PerQueryLimit is the number of results taken per query (default: 10).
	PerQueryLimit int `mapstructure:"per_query_limit"`
	// PollInterval is the status reporting period (default: 1s).
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// ProbeTimeout bounds one fallback accessibility probe (default: 5s).
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// EnrichTimeout bounds one enrichment lookup (default: 5s).
	EnrichTimeout time.Duration `mapstructure:"enrich_timeout"`
	// FuzzyThreshold is the title similarity at which records merge (default: 0.95).
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	// FuzzyWarningBand marks accepted fuzzy merges as low confidence (default: 0.02).
	FuzzyWarningBand float64 `mapstructure:"fuzzy_warning_band"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response. It must
	// leave room for a full harvest batch.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxTimeout caps the timeout a client may request for one batch.
	MaxTimeout time.Duration `mapstructure:"max_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// PaperSourcesConfig holds configuration for the external APIs.
type PaperSourcesConfig struct {
	// SemanticScholar is the search provider.
	SemanticScholar PaperSourceConfig `mapstructure:"semantic_scholar"`
	// OpenAlex is the enrichment provider.
	OpenAlex PaperSourceConfig `mapstructure:"openalex"`
	// Elsevier is the fallback accessibility prober.
	Elsevier PaperSourceConfig `mapstructure:"elsevier"`
}

// PaperSourceConfig holds configuration for a single external API.
type PaperSourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g. LITHARVEST_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Email is the contact address sent to OpenAlex for the polite pool.
	Email string `mapstructure:"email"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration like Load, reading path instead of searching
// the default locations when path is not empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/paper-harvester")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.PaperSources.SemanticScholar.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.PaperSources.Elsevier.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_ELSEVIER_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Harvest defaults
	v.SetDefault("harvest.workers", 5)
	v.SetDefault("harvest.timeout", "120s")
	v.SetDefault("harvest.per_query_limit", 10)
	v.SetDefault("harvest.poll_interval", "1s")
	v.SetDefault("harvest.probe_timeout", "5s")
	v.SetDefault("harvest.enrich_timeout", "5s")
	v.SetDefault("harvest.fuzzy_threshold", 0.95)
	v.SetDefault("harvest.fuzzy_warning_band", 0.02)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "330s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_timeout", "300s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "paper_harvester")

	// Semantic Scholar: the unauthenticated pool allows about one request per second.
	v.SetDefault("paper_sources.semantic_scholar.enabled", true)
	v.SetDefault("paper_sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("paper_sources.semantic_scholar.timeout", "30s")
	v.SetDefault("paper_sources.semantic_scholar.rate_limit", 1.0)

	// OpenAlex
	v.SetDefault("paper_sources.openalex.enabled", true)
	v.SetDefault("paper_sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("paper_sources.openalex.timeout", "5s")
	v.SetDefault("paper_sources.openalex.rate_limit", 10.0)
	v.SetDefault("paper_sources.openalex.email", "")

	// Elsevier (only used when an API key is set)
	v.SetDefault("paper_sources.elsevier.enabled", true)
	v.SetDefault("paper_sources.elsevier.base_url", "https://api.elsevier.com/content/article/doi")
	v.SetDefault("paper_sources.elsevier.timeout", "5s")
	v.SetDefault("paper_sources.elsevier.rate_limit", 5.0)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate harvest settings
	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("harvest workers must be positive, got %d", c.Harvest.Workers)
	}
	if c.Harvest.Timeout <= 0 {
		return fmt.Errorf("harvest timeout must be positive, got %s", c.Harvest.Timeout)
	}
	if c.Harvest.PerQueryLimit <= 0 {
		return fmt.Errorf("harvest per_query_limit must be positive, got %d", c.Harvest.PerQueryLimit)
	}
	if c.Harvest.PollInterval < 0 || c.Harvest.ProbeTimeout < 0 || c.Harvest.EnrichTimeout < 0 {
		return fmt.Errorf("harvest intervals must not be negative")
	}
	if c.Harvest.FuzzyThreshold <= 0 || c.Harvest.FuzzyThreshold > 1 {
		return fmt.Errorf("harvest fuzzy_threshold must be in (0, 1], got %g", c.Harvest.FuzzyThreshold)
	}
	if c.Harvest.FuzzyWarningBand < 0 {
		return fmt.Errorf("harvest fuzzy_warning_band must not be negative")
	}

	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MaxTimeout <= 0 {
		return fmt.Errorf("server max_timeout must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// The search provider is the one required capability.
	if !c.PaperSources.SemanticScholar.Enabled {
		return fmt.Errorf("paper_sources.semantic_scholar must be enabled")
	}
	for name, src := range map[string]PaperSourceConfig{
		"semantic_scholar": c.PaperSources.SemanticScholar,
		"openalex":         c.PaperSources.OpenAlex,
		"elsevier":         c.PaperSources.Elsevier,
	} {
		if src.Enabled && src.BaseURL == "" {
			return fmt.Errorf("paper_sources.%s base_url is required when enabled", name)
		}
		if src.Timeout < 0 {
			return fmt.Errorf("paper_sources.%s timeout must not be negative", name)
		}
	}

	return nil
}
