// Package observability provides logging and metrics support for the paper
// harvester.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for batches, searches, sources and deduplication
//   - Context helpers for propagating request and batch identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("batch_id", batchID).Msg("harvest started")
//
// Add query context to a logger:
//
//	logger = observability.WithQueryContext(logger, group, query)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("paper_harvester")
//
// Record metrics:
//
//	metrics.RecordBatchStarted(len(queries))
//	metrics.RecordSearchCompleted("semantic_scholar", 10, 1.2)
//	metrics.RecordDedup(inputs, clusters, warnings)
//
// A nil *Metrics accepts every Record call and does nothing.
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithBatchID(ctx, batchID)
//	ctx = observability.WithTraceSpan(ctx, traceID, spanID)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	logger = observability.LoggerFromContext(ctx, logger)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - batch_id: Harvest batch identifier
//   - group: Query group label
//   - query: Search query text
//   - source: Paper source (semantic_scholar, openalex, elsevier)
//   - paper_id: Ephemeral record identifier
//   - doi: Normalized DOI
//   - trace_id, span_id: From an incoming traceparent header
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
