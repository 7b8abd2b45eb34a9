// Package httpserver provides the HTTP API of the paper harvester.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-harvester/internal/harvest"
	"github.com/helixir/paper-harvester/internal/pipeline"
)

// Harvester runs one harvest batch end to end. *pipeline.Pipeline
// implements it.
type Harvester interface {
	Run(ctx context.Context, groups map[string][]string, opts harvest.Options, onProgress harvest.ProgressFunc) (*pipeline.Result, error)
}

// ReadinessChecker reports whether the external capabilities needed to
// serve a harvest are configured. *papersources.Registry implements it.
type ReadinessChecker interface {
	Ready() bool
	SearcherNames() []string
}

// Server is the HTTP API server.
type Server struct {
	router         chi.Router
	httpServer     *http.Server
	harvester      Harvester
	readiness      ReadinessChecker
	defaults       harvest.Options
	maxTimeout     time.Duration
	metricsPath    string
	metricsHandler http.Handler
	logger         zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxTimeout caps the batch timeout a client may request.
	MaxTimeout time.Duration

	// MetricsPath is where metricsHandler is mounted (default: /metrics).
	MetricsPath string
}

// NewServer creates a new HTTP server. defaults supplies the dispatcher
// options a request does not override. metricsHandler may be nil, in which
// case no metrics endpoint is mounted.
func NewServer(
	cfg Config,
	harvester Harvester,
	readiness ReadinessChecker,
	defaults harvest.Options,
	metricsHandler http.Handler,
	logger zerolog.Logger,
) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = defaults.Timeout
	}

	s := &Server{
		harvester:      harvester,
		readiness:      readiness,
		defaults:       defaults,
		maxTimeout:     cfg.MaxTimeout,
		metricsPath:    cfg.MetricsPath,
		metricsHandler: metricsHandler,
		logger:         logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogger(s.logger))

	if s.metricsHandler != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		// Health endpoints
		r.Get("/healthz", s.healthHandler)
		r.Get("/readyz", s.readinessHandler)

		r.Route("/api/v1/harvests", func(r chi.Router) {
			r.Post("/", s.createHarvest)
			r.Post("/stream", s.streamHarvest)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports ready once a search capability is configured.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.readiness == nil || !s.readiness.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"error":  "no search provider configured",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"searchers": s.readiness.SearcherNames(),
	})
}
