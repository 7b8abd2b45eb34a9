package harvest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/observability"
	"github.com/helixir/paper-harvester/internal/papersources"
)

// funcRunner adapts a function to TaskRunner.
type funcRunner func(ctx context.Context, task Task) TaskResult

func (f funcRunner) Run(ctx context.Context, task Task) TaskResult { return f(ctx, task) }

// instantRunner returns one found record per task.
func instantRunner() funcRunner {
	return func(ctx context.Context, task Task) TaskResult {
		rec := domain.NewPaperRecord(task.Group, task.Query)
		rec.Title = task.Query
		rec.PDFURL = "https://x.org/" + task.Query + ".pdf"
		rec.PDFSource = domain.PDFSourcePrimary
		return TaskResult{Task: task, Found: []*domain.PaperRecord{rec}, FinishedAt: time.Now()}
	}
}

func queries(n int) map[string][]string {
	groups := map[string][]string{}
	for i := 0; i < n; i++ {
		label := fmt.Sprintf("group-%d", i%4)
		groups[label] = append(groups[label], fmt.Sprintf("query-%02d", i))
	}
	return groups
}

func testOptions() Options {
	return Options{
		Workers:       5,
		PerQueryLimit: 10,
		Timeout:       5 * time.Second,
		PollInterval:  10 * time.Millisecond,
	}
}

func TestNewDispatcher(t *testing.T) {
	t.Run("accepts valid options", func(t *testing.T) {
		d, err := NewDispatcher(testOptions(), instantRunner(), zerolog.Nop(), nil)
		require.NoError(t, err)
		assert.NotNil(t, d)
	})

	t.Run("zero poll interval uses default", func(t *testing.T) {
		opts := testOptions()
		opts.PollInterval = 0

		d, err := NewDispatcher(opts, instantRunner(), zerolog.Nop(), nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultPollInterval, d.opts.PollInterval)
	})

	tests := []struct {
		name   string
		mutate func(*Options)
		field  string
	}{
		{"zero workers", func(o *Options) { o.Workers = 0 }, "Workers"},
		{"negative workers", func(o *Options) { o.Workers = -1 }, "Workers"},
		{"zero per-query limit", func(o *Options) { o.PerQueryLimit = 0 }, "PerQueryLimit"},
		{"zero timeout", func(o *Options) { o.Timeout = 0 }, "Timeout"},
		{"negative timeout", func(o *Options) { o.Timeout = -time.Second }, "Timeout"},
	}

	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)

			d, err := NewDispatcher(opts, instantRunner(), zerolog.Nop(), nil)
			require.Error(t, err)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	t.Run("rejects nil runner", func(t *testing.T) {
		_, err := NewDispatcher(testOptions(), nil, zerolog.Nop(), nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Run("collects every task", func(t *testing.T) {
		d, err := NewDispatcher(testOptions(), instantRunner(), zerolog.Nop(), nil)
		require.NoError(t, err)

		var progress []int
		batch := d.Dispatch(context.Background(), queries(12), func(completed, total int) {
			assert.Equal(t, 12, total)
			progress = append(progress, completed)
		})

		assert.False(t, batch.TimedOut)
		assert.Equal(t, 12, batch.Total)
		assert.Equal(t, 12, batch.Completed)
		assert.Len(t, batch.Found, 12)
		assert.Empty(t, batch.Missing)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, progress)
	})

	t.Run("passes the per-query limit to tasks", func(t *testing.T) {
		var limits sync.Map
		runner := funcRunner(func(ctx context.Context, task Task) TaskResult {
			limits.Store(task.Query, task.Limit)
			return TaskResult{Task: task, FinishedAt: time.Now()}
		})
		opts := testOptions()
		opts.PerQueryLimit = 7

		d, err := NewDispatcher(opts, runner, zerolog.Nop(), nil)
		require.NoError(t, err)
		d.Dispatch(context.Background(), map[string][]string{"g": {"a", "b"}}, nil)

		v, ok := limits.Load("a")
		require.True(t, ok)
		assert.Equal(t, 7, v)
	})

	t.Run("bounds concurrency to the worker count", func(t *testing.T) {
		var running, peak atomic.Int32
		runner := funcRunner(func(ctx context.Context, task Task) TaskResult {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return TaskResult{Task: task, FinishedAt: time.Now()}
		})
		opts := testOptions()
		opts.Workers = 3

		d, err := NewDispatcher(opts, runner, zerolog.Nop(), nil)
		require.NoError(t, err)
		batch := d.Dispatch(context.Background(), queries(12), nil)

		assert.Equal(t, 12, batch.Completed)
		assert.LessOrEqual(t, peak.Load(), int32(3))
		assert.Equal(t, int32(3), peak.Load())
	})

	t.Run("failed tasks complete with nothing", func(t *testing.T) {
		runner := funcRunner(func(ctx context.Context, task Task) TaskResult {
			if task.Query == "bad" {
				return TaskResult{Task: task, Err: fmt.Errorf("provider down"), FinishedAt: time.Now()}
			}
			return instantRunner()(ctx, task)
		})

		d, err := NewDispatcher(testOptions(), runner, zerolog.Nop(), nil)
		require.NoError(t, err)
		batch := d.Dispatch(context.Background(), map[string][]string{"g": {"good", "bad"}}, nil)

		assert.False(t, batch.TimedOut)
		assert.Equal(t, 2, batch.Completed)
		assert.Equal(t, 1, batch.Failed)
		assert.Len(t, batch.Found, 1)
	})

	t.Run("empty input returns an empty batch", func(t *testing.T) {
		d, err := NewDispatcher(testOptions(), instantRunner(), zerolog.Nop(), nil)
		require.NoError(t, err)

		batch := d.Dispatch(context.Background(), map[string][]string{"empty": {}, "blank": {"  "}}, nil)
		assert.Equal(t, 0, batch.Total)
		assert.False(t, batch.TimedOut)
		assert.NotNil(t, batch.Found)
		assert.NotNil(t, batch.Missing)
	})

	t.Run("reports status on every tick", func(t *testing.T) {
		runner := funcRunner(func(ctx context.Context, task Task) TaskResult {
			time.Sleep(60 * time.Millisecond)
			return instantRunner()(ctx, task)
		})

		var ticks []Status
		var mu sync.Mutex
		opts := testOptions()
		opts.Workers = 1
		opts.OnTick = func(s Status) {
			mu.Lock()
			ticks = append(ticks, s)
			mu.Unlock()
		}

		d, err := NewDispatcher(opts, runner, zerolog.Nop(), nil)
		require.NoError(t, err)
		d.Dispatch(context.Background(), map[string][]string{"g": {"a", "b"}}, nil)

		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, ticks)
		for _, s := range ticks {
			assert.Equal(t, 2, s.Total)
			assert.LessOrEqual(t, s.Completed, 2)
			assert.Equal(t, s.Completed, s.Found)
			assert.Greater(t, s.Remaining, time.Duration(0))
		}
	})

	t.Run("stamps unstamped results and drops late ones", func(t *testing.T) {
		runner := funcRunner(func(ctx context.Context, task Task) TaskResult {
			if task.Query == "slow" {
				time.Sleep(250 * time.Millisecond)
			}
			rec := domain.NewPaperRecord(task.Group, task.Query)
			rec.Title = task.Query
			return TaskResult{Task: task, Missing: []*domain.PaperRecord{rec}}
		})

		opts := testOptions()
		opts.Workers = 2
		opts.Timeout = 100 * time.Millisecond

		d, err := NewDispatcher(opts, runner, zerolog.Nop(), nil)
		require.NoError(t, err)

		// Holding the first progress callback past the slow task's finish
		// leaves its result buffered when the dispatcher looks again.
		onProgress := func(completed, total int) {
			time.Sleep(400 * time.Millisecond)
		}
		batch := d.Dispatch(context.Background(), map[string][]string{"g": {"fast", "slow"}}, onProgress)

		assert.True(t, batch.TimedOut)
		assert.Equal(t, 1, batch.Completed)
		require.Len(t, batch.Missing, 1)
		assert.Equal(t, "fast", batch.Missing[0].Title)
	})

	t.Run("times out when every provider call is too slow", func(t *testing.T) {
		searcher := &fakeSearcher{
			items: []papersources.RawItem{rawItem(`{"title": "Late", "openAccessPdf": {"url": "https://x.org/late.pdf"}}`)},
			delay: 500 * time.Millisecond,
		}
		runner := NewRunner(RunnerConfig{PerQueryLimit: 10}, searcher, nil, nil, zerolog.Nop(), nil)

		opts := testOptions()
		opts.Workers = 5
		opts.Timeout = 100 * time.Millisecond

		d, err := NewDispatcher(opts, runner, zerolog.Nop(), nil)
		require.NoError(t, err)

		start := time.Now()
		batch := d.Dispatch(context.Background(), queries(20), nil)
		elapsed := time.Since(start)

		assert.True(t, batch.TimedOut)
		assert.Equal(t, 20, batch.Total)
		assert.Less(t, batch.Completed, batch.Total)
		assert.Zero(t, batch.Completed)
		assert.Empty(t, batch.Found)
		assert.Empty(t, batch.Missing)
		assert.Less(t, elapsed, 400*time.Millisecond)
		assert.LessOrEqual(t, searcher.calls.Load(), int32(5))
	})

	t.Run("drops results that finish after the deadline", func(t *testing.T) {
		searcher := &fakeSearcher{
			items:        []papersources.RawItem{rawItem(`{"title": "Stubborn"}`)},
			delay:        150 * time.Millisecond,
			ignoreCancel: true,
		}
		runner := NewRunner(RunnerConfig{PerQueryLimit: 10}, searcher, nil, nil, zerolog.Nop(), nil)

		opts := testOptions()
		opts.Timeout = 50 * time.Millisecond

		d, err := NewDispatcher(opts, runner, zerolog.Nop(), nil)
		require.NoError(t, err)

		batch := d.Dispatch(context.Background(), queries(4), nil)
		assert.True(t, batch.TimedOut)
		assert.Zero(t, batch.Completed)
		assert.Empty(t, batch.Missing)

		// Let the abandoned tasks finish; the batch must not change.
		time.Sleep(200 * time.Millisecond)
		assert.Zero(t, batch.Completed)
		assert.Empty(t, batch.Missing)
	})

	t.Run("keeps results that finish inside the window", func(t *testing.T) {
		runner := funcRunner(func(ctx context.Context, task Task) TaskResult {
			if task.Query == "slow" {
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
				}
				rec := domain.NewPaperRecord(task.Group, task.Query)
				return TaskResult{Task: task, Missing: []*domain.PaperRecord{rec}, FinishedAt: time.Now()}
			}
			return instantRunner()(ctx, task)
		})

		opts := testOptions()
		opts.Timeout = 100 * time.Millisecond

		d, err := NewDispatcher(opts, runner, zerolog.Nop(), nil)
		require.NoError(t, err)

		var calls int
		batch := d.Dispatch(context.Background(), map[string][]string{"g": {"fast-1", "slow", "fast-2"}}, func(completed, total int) {
			calls++
		})

		assert.True(t, batch.TimedOut)
		assert.Equal(t, 2, batch.Completed)
		assert.Equal(t, 2, calls)
		assert.Len(t, batch.Found, 2)
		assert.Empty(t, batch.Missing)
	})

	t.Run("parent cancellation ends the batch", func(t *testing.T) {
		runner := funcRunner(func(ctx context.Context, task Task) TaskResult {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return TaskResult{Task: task, Err: ctx.Err(), FinishedAt: time.Now()}
		})

		d, err := NewDispatcher(testOptions(), runner, zerolog.Nop(), nil)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(30*time.Millisecond, cancel)

		start := time.Now()
		batch := d.Dispatch(ctx, queries(3), nil)
		assert.True(t, batch.TimedOut)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("records batch metrics", func(t *testing.T) {
		metrics := observability.NewMetrics("test_dispatcher")

		d, err := NewDispatcher(testOptions(), instantRunner(), zerolog.Nop(), metrics)
		require.NoError(t, err)
		d.Dispatch(context.Background(), queries(6), nil)

		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchesStarted))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchesCompleted))
		assert.Equal(t, 0.0, testutil.ToFloat64(metrics.BatchesTimedOut))
		assert.Equal(t, 6.0, testutil.ToFloat64(metrics.TasksFinished.WithLabelValues("succeeded")))
	})
}

func TestFlatten(t *testing.T) {
	tasks := Flatten(map[string][]string{
		"zeta":  {"z1", "  ", "z2"},
		"alpha": {" a1 "},
		"empty": nil,
	})

	assert.Equal(t, []Task{
		{Group: "alpha", Query: "a1"},
		{Group: "zeta", Query: "z1"},
		{Group: "zeta", Query: "z2"},
	}, tasks)
	assert.Empty(t, Flatten(nil))
}
