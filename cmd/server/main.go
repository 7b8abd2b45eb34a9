// Package main provides the entry point for the paper harvester HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/paper-harvester/internal/config"
	"github.com/helixir/paper-harvester/internal/observability"
	"github.com/helixir/paper-harvester/internal/papersources"
	"github.com/helixir/paper-harvester/internal/pipeline"
	httpserver "github.com/helixir/paper-harvester/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-harvester server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create metrics (optional).
	var metrics *observability.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
		metricsHandler = promhttp.Handler()
	}

	// Register external capabilities.
	registry := papersources.NewRegistry()
	pipeline.RegisterPaperSources(registry, cfg, metrics, logger)

	p, err := pipeline.NewFromRegistry(cfg.Harvest, registry, metrics, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxTimeout:      cfg.Server.MaxTimeout,
		MetricsPath:     cfg.Metrics.Path,
	}

	httpSrv := httpserver.NewServer(
		httpCfg,
		p,
		registry,
		pipeline.OptionsFromConfig(cfg.Harvest),
		metricsHandler,
		logger,
	)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	// Start HTTP server in background.
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Strs("searchers", registry.SearcherNames()).
		Bool("metrics", metricsHandler != nil).
		Msg("paper-harvester is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down paper-harvester")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("paper-harvester shutdown complete")
	return nil
}
