// Package harvest runs grouped metadata searches against an external paper
// provider.
//
// A Runner executes one provider task: it searches a single query, maps each
// loosely structured hit into a domain.PaperRecord, optionally enriches it by
// DOI and classifies it by PDF accessibility. A Dispatcher fans a batch of
// tasks out over a fixed-width worker pool under a wall-clock deadline and
// returns whatever finished in time.
//
// Failures never cross a task boundary. A malformed field degrades to its
// placeholder, a malformed item is skipped, and a failed search contributes
// nothing to the batch.
package harvest
