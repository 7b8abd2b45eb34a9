package harvest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixir/paper-harvester/internal/papersources"
)

// fakeSearcher returns canned items, optionally after a delay.
type fakeSearcher struct {
	items        []papersources.RawItem
	err          error
	delay        time.Duration
	ignoreCancel bool

	calls     atomic.Int32
	mu        sync.Mutex
	lastLimit int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]papersources.RawItem, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastLimit = limit
	f.mu.Unlock()

	if f.delay > 0 {
		if f.ignoreCancel {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeSearcher) Name() string { return "fake" }

// fakeProber resolves DOIs from a fixed table.
type fakeProber struct {
	urls  map[string]string
	err   error
	calls atomic.Int32
}

func (f *fakeProber) ProbeAccessibility(ctx context.Context, doi string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.urls[doi], nil
}

func (f *fakeProber) Name() string { return "fake-prober" }

// fakeEnricher returns the same enrichment for every DOI.
type fakeEnricher struct {
	result *papersources.Enrichment
	err    error
}

func (f *fakeEnricher) Enrich(ctx context.Context, doi string) (*papersources.Enrichment, error) {
	return f.result, f.err
}

func (f *fakeEnricher) Name() string { return "fake-enricher" }

// rawItem builds a RawItem from a JSON object literal.
func rawItem(js string) papersources.RawItem {
	var item papersources.RawItem
	if err := json.Unmarshal([]byte(js), &item); err != nil {
		panic(err)
	}
	return item
}
