package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/beaconhq/beacon/internal/log"
)

// EventsHandler streams session lifecycle events over SSE.
type EventsHandler struct {
	manager SessionManager
	logger  log.Logger
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(manager SessionManager, logger log.Logger) *EventsHandler {
	return &EventsHandler{manager: manager, logger: logger}
}

// RegisterRoutes registers the event stream route on the given mux.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/session/events", h.stream)
}

// stream sends session events as server-sent events until the client
// disconnects. A subscriber attaching during pairing immediately receives
// the cached pairing event.
func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "messaging session not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, subID := h.manager.Subscribe(r.Context())
	h.logger.Debug("event stream attached", "sub_id", subID)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("encoding session event failed", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
