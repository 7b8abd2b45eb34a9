package pipeline

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-harvester/internal/config"
	"github.com/helixir/paper-harvester/internal/dedup"
	"github.com/helixir/paper-harvester/internal/harvest"
	"github.com/helixir/paper-harvester/internal/observability"
	"github.com/helixir/paper-harvester/internal/papersources"
	"github.com/helixir/paper-harvester/internal/papersources/elsevier"
	"github.com/helixir/paper-harvester/internal/papersources/openalex"
	"github.com/helixir/paper-harvester/internal/papersources/semanticscholar"
)

// RegisterPaperSources registers the enabled capabilities with the registry:
// Semantic Scholar as searcher, OpenAlex as enricher and Elsevier as prober.
// Elsevier is skipped without an API key.
func RegisterPaperSources(registry *papersources.Registry, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) {
	// Semantic Scholar.
	if cfg.PaperSources.SemanticScholar.Enabled {
		ssCfg := cfg.PaperSources.SemanticScholar
		registry.RegisterSearcher(semanticscholar.NewClient(semanticscholar.Config{
			BaseURL:   ssCfg.BaseURL,
			APIKey:    ssCfg.APIKey,
			Timeout:   ssCfg.Timeout,
			RateLimit: ssCfg.RateLimit,
			Metrics:   metrics,
		}, nil))
		logger.Info().Bool("api_key", ssCfg.APIKey != "").Msg("registered searcher: Semantic Scholar")
	}

	// OpenAlex.
	if cfg.PaperSources.OpenAlex.Enabled {
		oaCfg := cfg.PaperSources.OpenAlex
		registry.SetEnricher(openalex.New(openalex.Config{
			BaseURL:   oaCfg.BaseURL,
			Email:     oaCfg.Email,
			Timeout:   oaCfg.Timeout,
			RateLimit: oaCfg.RateLimit,
			Metrics:   metrics,
		}))
		logger.Info().Msg("registered enricher: OpenAlex")
	}

	// Elsevier (only if API key is provided).
	if cfg.PaperSources.Elsevier.Enabled && cfg.PaperSources.Elsevier.APIKey != "" {
		elCfg := cfg.PaperSources.Elsevier
		registry.SetProber(elsevier.New(elsevier.Config{
			BaseURL:   elCfg.BaseURL,
			APIKey:    elCfg.APIKey,
			Timeout:   elCfg.Timeout,
			RateLimit: elCfg.RateLimit,
			Metrics:   metrics,
		}))
		logger.Info().Msg("registered prober: Elsevier")
	}
}

// OptionsFromConfig returns the dispatcher options configured for a batch.
func OptionsFromConfig(cfg config.HarvestConfig) harvest.Options {
	return harvest.Options{
		Workers:       cfg.Workers,
		PerQueryLimit: cfg.PerQueryLimit,
		Timeout:       cfg.Timeout,
		PollInterval:  cfg.PollInterval,
	}
}

// NewFromRegistry builds a Pipeline around the registry's default searcher
// and its optional prober and enricher.
func NewFromRegistry(cfg config.HarvestConfig, registry *papersources.Registry, metrics *observability.Metrics, logger zerolog.Logger) (*Pipeline, error) {
	searcher, ok := registry.Searcher("")
	if !ok {
		return nil, fmt.Errorf("no search provider registered")
	}

	runner := harvest.NewRunner(harvest.RunnerConfig{
		PerQueryLimit: cfg.PerQueryLimit,
		ProbeTimeout:  cfg.ProbeTimeout,
		EnrichTimeout: cfg.EnrichTimeout,
	}, searcher, registry.Prober(), registry.Enricher(), logger, metrics)

	dedupOpts := dedup.Options{
		FuzzyThreshold: cfg.FuzzyThreshold,
		WarningBand:    cfg.FuzzyWarningBand,
	}
	return New(runner, dedupOpts, logger, metrics), nil
}
