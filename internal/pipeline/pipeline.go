// Package pipeline joins the harvest and dedup stages: it dispatches a batch
// of grouped queries, deduplicates everything that came back and splits the
// canonical records by PDF accessibility.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-harvester/internal/dedup"
	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/harvest"
	"github.com/helixir/paper-harvester/internal/observability"
)

// Result is the output of one pipeline run.
type Result struct {
	BatchID   string                   `json:"batch_id"`
	TimedOut  bool                     `json:"timed_out"`
	Completed int                      `json:"completed"`
	Total     int                      `json:"total"`
	Failed    int                      `json:"failed"`
	Elapsed   float64                  `json:"elapsed_seconds"`
	Found     []domain.CanonicalRecord `json:"found"`
	Missing   []domain.CanonicalRecord `json:"missing"`
	Stats     domain.MergeStats        `json:"stats"`
}

// WriteJSON writes the result as indented JSON.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

// Pipeline runs harvest batches end to end. It is safe for concurrent use;
// every Run gets its own dispatcher.
type Pipeline struct {
	runner  harvest.TaskRunner
	dedup   *dedup.Deduplicator
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates a Pipeline around runner.
func New(runner harvest.TaskRunner, dedupOpts dedup.Options, logger zerolog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		runner:  runner,
		dedup:   dedup.NewDeduplicator(dedupOpts, logger, metrics),
		logger:  logger.With().Str("component", "pipeline").Logger(),
		metrics: metrics,
	}
}

// Run dispatches groups with opts, then deduplicates the found and missing
// records together so that one work found by several queries is reported
// once. Invalid options are returned as a *domain.ValidationError; a timed
// out batch is not an error.
func (p *Pipeline) Run(ctx context.Context, groups map[string][]string, opts harvest.Options, onProgress harvest.ProgressFunc) (*Result, error) {
	dispatcher, err := harvest.NewDispatcher(opts, p.runner, p.logger, p.metrics)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	ctx = observability.WithBatchID(ctx, batchID)
	logger := observability.LoggerFromContext(ctx, p.logger)

	start := time.Now()
	batch := dispatcher.Dispatch(ctx, groups, onProgress)

	records := make([]*domain.PaperRecord, 0, len(batch.Found)+len(batch.Missing))
	records = append(records, batch.Found...)
	records = append(records, batch.Missing...)

	canonical, stats := p.dedup.Deduplicate(records)
	found, missing := dedup.Split(canonical)

	result := &Result{
		BatchID:   batchID,
		TimedOut:  batch.TimedOut,
		Completed: batch.Completed,
		Total:     batch.Total,
		Failed:    batch.Failed,
		Elapsed:   time.Since(start).Seconds(),
		Found:     found,
		Missing:   missing,
		Stats:     stats,
	}

	logger.Info().
		Bool("timed_out", result.TimedOut).
		Int("raw_records", len(records)).
		Int("canonical", stats.OutputCount).
		Int("found", len(found)).
		Int("missing", len(missing)).
		Int("fuzzy_warnings", len(stats.FuzzyWarnings)).
		Msg("harvest pipeline finished")

	return result, nil
}
