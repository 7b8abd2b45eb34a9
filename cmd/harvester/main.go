// Package main provides a CLI that runs one harvest batch from a query file
// and writes the deduplicated result as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helixir/paper-harvester/internal/config"
	"github.com/helixir/paper-harvester/internal/harvest"
	"github.com/helixir/paper-harvester/internal/observability"
	"github.com/helixir/paper-harvester/internal/papersources"
	"github.com/helixir/paper-harvester/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Define CLI flags.
	queriesPath := flag.String("queries", "", "YAML file of grouped search queries (required)")
	configPath := flag.String("config", "", "Config file path (default: search ./config.yaml, ./config/, /etc/paper-harvester/)")
	limit := flag.Int("limit", 0, "Results per query (overrides harvest.per_query_limit)")
	timeout := flag.Duration("timeout", 0, "Batch wall-clock budget (overrides harvest.timeout)")
	workers := flag.Int("workers", 0, "Concurrent provider tasks (overrides harvest.workers)")
	outPath := flag.String("out", "-", "Output file for the JSON result, - for stdout")
	flag.Parse()

	if *queriesPath == "" {
		flag.Usage()
		return fmt.Errorf("-queries is required")
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The CLI always logs to stderr so that stdout can carry the result.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     "console",
		Output:     "stderr",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", "harvester").Logger()

	groups, err := harvest.LoadQueryFile(*queriesPath)
	if err != nil {
		return fmt.Errorf("load queries: %w", err)
	}

	opts := pipeline.OptionsFromConfig(cfg.Harvest)
	if *limit > 0 {
		opts.PerQueryLimit = *limit
	}
	if *timeout > 0 {
		opts.Timeout = *timeout
	}
	if *workers > 0 {
		opts.Workers = *workers
	}
	opts.OnTick = func(st harvest.Status) {
		logger.Debug().
			Int("completed", st.Completed).
			Int("total", st.Total).
			Int("found", st.Found).
			Int("missing", st.Missing).
			Dur("remaining", st.Remaining).
			Msg("harvest status")
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	registry := papersources.NewRegistry()
	pipeline.RegisterPaperSources(registry, cfg, metrics, logger)

	harvestCfg := cfg.Harvest
	harvestCfg.PerQueryLimit = opts.PerQueryLimit
	p, err := pipeline.NewFromRegistry(harvestCfg, registry, metrics, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	// Set up context with cancellation via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Int("queries", len(harvest.Flatten(groups))).
		Int("groups", len(groups)).
		Int("per_query_limit", opts.PerQueryLimit).
		Dur("timeout", opts.Timeout).
		Msg("harvest starting")

	result, err := p.Run(ctx, groups, opts, func(completed, total int) {
		logger.Info().Int("completed", completed).Int("total", total).Msg("query finished")
	})
	if err != nil {
		return fmt.Errorf("run harvest: %w", err)
	}

	if err := writeResult(*outPath, result); err != nil {
		return err
	}

	logger.Info().
		Str("batch_id", result.BatchID).
		Bool("timed_out", result.TimedOut).
		Int("found", len(result.Found)).
		Int("missing", len(result.Missing)).
		Int("duplicates_merged", result.Stats.InputCount-result.Stats.OutputCount).
		Msg("harvest complete")
	return nil
}

// writeResult writes result to path, or to stdout when path is "-".
func writeResult(path string, result *pipeline.Result) error {
	var w io.Writer = os.Stdout
	if path != "-" && path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := result.WriteJSON(w); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
