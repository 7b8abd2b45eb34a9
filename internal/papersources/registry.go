package papersources

import (
	"sort"
	"sync"
)

// Registry holds the capabilities configured for the process. Searchers are
// keyed by name; at most one prober and one enricher are kept.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	searchers map[string]Searcher
	order     []string
	prober    AccessibilityProber
	enricher  Enricher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		searchers: make(map[string]Searcher),
	}
}

// RegisterSearcher adds a searcher under its Name. A searcher with the same
// name replaces the previous one. The first registered searcher is the default.
func (r *Registry) RegisterSearcher(s Searcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if _, ok := r.searchers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.searchers[name] = s
}

// SetProber sets the fallback accessibility prober. Nil disables probing.
func (r *Registry) SetProber(p AccessibilityProber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prober = p
}

// SetEnricher sets the metadata enricher. Nil disables enrichment.
func (r *Registry) SetEnricher(e Enricher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enricher = e
}

// Searcher returns the searcher registered under name. An empty name selects
// the default searcher.
func (r *Registry) Searcher(name string) (Searcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		if len(r.order) == 0 {
			return nil, false
		}
		name = r.order[0]
	}
	s, ok := r.searchers[name]
	return s, ok
}

// SearcherNames returns the registered searcher names in sorted order.
func (r *Registry) SearcherNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Prober returns the configured prober, or nil.
func (r *Registry) Prober() AccessibilityProber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prober
}

// Enricher returns the configured enricher, or nil.
func (r *Registry) Enricher() Enricher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enricher
}

// Ready reports whether at least one searcher is registered.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.searchers) > 0
}
