package harvest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/observability"
)

const (
	// DefaultWorkers is the default worker pool width.
	DefaultWorkers = 5

	// DefaultPerQueryLimit is the default number of items taken per query.
	DefaultPerQueryLimit = 10

	// DefaultTimeout is the default wall-clock budget of one batch.
	DefaultTimeout = 120 * time.Second

	// DefaultPollInterval is how often a running batch reports its status.
	DefaultPollInterval = time.Second
)

// ProgressFunc is called once per completed task with running totals.
type ProgressFunc func(completed, total int)

// TickFunc receives a status snapshot on every poll interval.
type TickFunc func(Status)

// TaskRunner executes one task. Implementations must be safe for
// concurrent use and must not return before the task is done. A result
// with a zero FinishedAt is stamped by the dispatcher when Run returns.
type TaskRunner interface {
	Run(ctx context.Context, task Task) TaskResult
}

// Options configures a Dispatcher.
type Options struct {
	// Workers is the number of tasks run at once.
	Workers int `validate:"gt=0"`

	// PerQueryLimit caps the items taken from each query.
	PerQueryLimit int `validate:"gt=0"`

	// Timeout is the wall-clock budget of a batch.
	Timeout time.Duration `validate:"gt=0"`

	// PollInterval is the status reporting period. Zero uses the default.
	PollInterval time.Duration `validate:"gte=0"`

	// OnTick, if set, receives a status snapshot every PollInterval.
	OnTick TickFunc `validate:"-"`
}

// DefaultOptions returns the default dispatcher options.
func DefaultOptions() Options {
	return Options{
		Workers:       DefaultWorkers,
		PerQueryLimit: DefaultPerQueryLimit,
		Timeout:       DefaultTimeout,
		PollInterval:  DefaultPollInterval,
	}
}

// Status is a live snapshot of a running batch.
type Status struct {
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Found     int           `json:"found"`
	Missing   int           `json:"missing"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
}

// Batch is the accumulated outcome of one dispatch. Record order follows
// task completion order and carries no meaning.
type Batch struct {
	Found     []*domain.PaperRecord
	Missing   []*domain.PaperRecord
	Completed int
	Total     int
	Failed    int
	Skipped   int
	TimedOut  bool
	Elapsed   time.Duration
}

// Dispatcher runs provider tasks on a fixed-width worker pool under a
// wall-clock deadline.
type Dispatcher struct {
	runner  TaskRunner
	opts    Options
	logger  zerolog.Logger
	metrics *observability.Metrics
}

var optionsValidator = validator.New()

// NewDispatcher validates opts and creates a Dispatcher. A non-positive
// worker count, per-query limit or timeout is rejected with a
// *domain.ValidationError.
func NewDispatcher(opts Options, runner TaskRunner, logger zerolog.Logger, metrics *observability.Metrics) (*Dispatcher, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, domain.NewValidationError("runner", "is required")
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}

	return &Dispatcher{
		runner:  runner,
		opts:    opts,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		metrics: metrics,
	}, nil
}

func validateOptions(opts Options) error {
	err := optionsValidator.Struct(opts)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(fe.Field(), fmt.Sprintf("must satisfy %s=%s, got %v", fe.Tag(), fe.Param(), fe.Value()))
	}
	return domain.NewValidationError("options", err.Error())
}

// Dispatch runs one task per (group, query) pair and accumulates their
// results until every task has finished or the timeout elapses. On timeout
// the remaining tasks are abandoned: their context is cancelled and any
// result they produce later is dropped. Cancelling ctx ends the batch the
// same way. onProgress may be nil; it runs on the caller's goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, groups map[string][]string, onProgress ProgressFunc) *Batch {
	tasks := Flatten(groups)
	total := len(tasks)
	batch := &Batch{
		Found:   []*domain.PaperRecord{},
		Missing: []*domain.PaperRecord{},
		Total:   total,
	}

	logger := observability.LoggerFromContext(ctx, d.logger)
	if total == 0 {
		logger.Warn().Msg("no queries to dispatch")
		return batch
	}

	start := time.Now()
	deadline := start.Add(d.opts.Timeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	d.metrics.RecordBatchStarted(total)
	logger.Info().
		Int("tasks", total).
		Int("workers", d.opts.Workers).
		Dur("timeout", d.opts.Timeout).
		Msg("dispatching provider tasks")

	// Buffered to total so abandoned workers never block on send.
	results := make(chan TaskResult, total)
	queue := make(chan Task)

	for i := 0; i < min(d.opts.Workers, total); i++ {
		go func() {
			for task := range queue {
				if runCtx.Err() != nil {
					continue
				}
				res := d.runner.Run(runCtx, task)
				if res.FinishedAt.IsZero() {
					res.FinishedAt = time.Now()
				}
				results <- res
			}
		}()
	}

	go func() {
		defer close(queue)
		for _, task := range tasks {
			task.Limit = d.opts.PerQueryLimit
			select {
			case queue <- task:
			case <-runCtx.Done():
				return
			}
		}
	}()

	accept := func(res TaskResult) bool {
		if res.FinishedAt.After(deadline) {
			return false
		}
		batch.Completed++
		batch.Skipped += res.Skipped
		if res.Err != nil {
			batch.Failed++
			d.metrics.RecordTaskFinished(outcomeFailed)
		} else {
			batch.Found = append(batch.Found, res.Found...)
			batch.Missing = append(batch.Missing, res.Missing...)
			d.metrics.RecordTaskFinished(outcomeSucceeded)
		}
		if onProgress != nil {
			onProgress(batch.Completed, total)
		}
		return true
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

wait:
	for batch.Completed < total {
		select {
		case res := <-results:
			if !accept(res) {
				batch.TimedOut = true
				break wait
			}
		case <-ticker.C:
			if d.opts.OnTick != nil {
				d.opts.OnTick(d.status(batch, start, deadline))
			}
		case <-runCtx.Done():
			batch.TimedOut = true
			break wait
		}
	}

	if batch.TimedOut {
		// Take results that finished inside the window but were not yet read.
	drain:
		for {
			select {
			case res := <-results:
				accept(res)
			default:
				break drain
			}
		}
		for i := batch.Completed; i < total; i++ {
			d.metrics.RecordTaskFinished(outcomeDiscarded)
		}
	}

	batch.Elapsed = time.Since(start)
	d.metrics.RecordBatchFinished(batch.TimedOut, batch.Elapsed.Seconds())

	event := logger.Info()
	if batch.TimedOut {
		event = logger.Warn()
	}
	event.
		Bool("timed_out", batch.TimedOut).
		Int("completed", batch.Completed).
		Int("total", total).
		Int("failed", batch.Failed).
		Int("found", len(batch.Found)).
		Int("missing", len(batch.Missing)).
		Dur("elapsed", batch.Elapsed).
		Msg("dispatch finished")

	return batch
}

func (d *Dispatcher) status(b *Batch, start, deadline time.Time) Status {
	now := time.Now()
	remaining := deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Completed: b.Completed,
		Total:     b.Total,
		Found:     len(b.Found),
		Missing:   len(b.Missing),
		Elapsed:   now.Sub(start),
		Remaining: remaining,
	}
}

// Flatten turns grouped queries into tasks in sorted group order, keeping
// query order within a group. Blank queries and empty groups are dropped.
func Flatten(groups map[string][]string) []Task {
	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var tasks []Task
	for _, label := range labels {
		for _, q := range groups[label] {
			if q = strings.TrimSpace(q); q != "" {
				tasks = append(tasks, Task{Group: label, Query: q})
			}
		}
	}
	return tasks
}
