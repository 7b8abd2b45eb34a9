package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/helixir/paper-harvester/internal/harvest"
	"github.com/helixir/paper-harvester/internal/observability"
	"github.com/helixir/paper-harvester/internal/pipeline"
)

// sseBufferSize bounds the events queued between the batch and the writer.
const sseBufferSize = 100

// SSE event types.
const (
	eventStarted   = "started"
	eventProgress  = "progress"
	eventTick      = "tick"
	eventCompleted = "completed"
	eventError     = "error"
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType string           `json:"event_type"`
	Completed int              `json:"completed,omitempty"`
	Total     int              `json:"total,omitempty"`
	Status    *statusResponse  `json:"status,omitempty"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// statusResponse is the wire form of harvest.Status.
type statusResponse struct {
	Completed        int     `json:"completed"`
	Total            int     `json:"total"`
	Found            int     `json:"found"`
	Missing          int     `json:"missing"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func newStatusResponse(st harvest.Status) *statusResponse {
	return &statusResponse{
		Completed:        st.Completed,
		Total:            st.Total,
		Found:            st.Found,
		Missing:          st.Missing,
		ElapsedSeconds:   st.Elapsed.Seconds(),
		RemainingSeconds: st.Remaining.Seconds(),
	}
}

type runOutcome struct {
	result *pipeline.Result
	err    error
}

// streamHarvest handles POST /api/v1/harvests/stream (SSE).
// Progress and status events are streamed while the batch runs; the final
// event carries the deduplicated result.
func (s *Server) streamHarvest(w http.ResponseWriter, r *http.Request) {
	groups, opts, err := s.decodeHarvestRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, s.logger)
	events := make(chan sseEvent, sseBufferSize)

	// Callbacks run on the batch goroutine; they never block on the client.
	publish := func(event sseEvent) {
		select {
		case events <- event:
		default:
			logger.Warn().Str("event_type", event.EventType).Msg("SSE event buffer full, dropping event")
		}
	}
	opts.OnTick = func(st harvest.Status) {
		publish(sseEvent{EventType: eventTick, Status: newStatusResponse(st), Timestamp: time.Now()})
	}
	onProgress := func(completed, total int) {
		publish(sseEvent{EventType: eventProgress, Completed: completed, Total: total, Timestamp: time.Now()})
	}

	done := make(chan runOutcome, 1)
	go func() {
		result, runErr := s.harvester.Run(ctx, groups, opts, onProgress)
		done <- runOutcome{result: result, err: runErr}
	}()

	sendSSEEvent(w, flusher, sseEvent{
		EventType: eventStarted,
		Total:     len(harvest.Flatten(groups)),
		Message:   "harvest started",
		Timestamp: time.Now(),
	})

	for {
		select {
		case <-ctx.Done():
			// Client went away; the batch sees the same cancellation.
			return

		case event := <-events:
			sendSSEEvent(w, flusher, event)

		case outcome := <-done:
			// Flush what the batch published before it returned.
			for drained := false; !drained; {
				select {
				case event := <-events:
					sendSSEEvent(w, flusher, event)
				default:
					drained = true
				}
			}

			if outcome.err != nil {
				logger.Error().Err(outcome.err).Msg("streamed harvest failed")
				sendSSEEvent(w, flusher, sseEvent{
					EventType: eventError,
					Message:   outcome.err.Error(),
					Timestamp: time.Now(),
				})
				return
			}
			sendSSEEvent(w, flusher, sseEvent{
				EventType: eventCompleted,
				Result:    outcome.result,
				Message:   "harvest completed",
				Timestamp: time.Now(),
			})
			return
		}
	}
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
