package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kozaktomas/photo-dedup/internal/pipeline"
)

// isTerminalEvent returns true if the event ends a run.
func isTerminalEvent(eventType string) bool {
	return eventType == pipeline.EventCompleted || eventType == pipeline.EventFailed || eventType == pipeline.EventCancelled
}

// setupSSEConnection sets the event-stream headers.
// On failure, writes an error response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return flusher, true
}

// streamSSEEvents streams pipeline events until the run ends, the client
// disconnects, or the event channel closes. The listener is registered before
// the initial status is read so no terminal event can slip in between.
func streamSSEEvents(w http.ResponseWriter, r *http.Request, analyzer Analyzer) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := analyzer.AddListener()
	defer analyzer.RemoveListener(eventCh)

	state := analyzer.State()
	sendSSEEvent(w, flusher, "status", summarize(state))
	if !state.IsAnalyzing {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if isTerminalEvent(event.Type) {
				return
			}
		}
	}
}

// sendSSEEvent writes a single SSE event and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
