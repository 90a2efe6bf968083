package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/beaconhq/beacon/internal/engine"
	"github.com/beaconhq/beacon/internal/log"
	"github.com/beaconhq/beacon/internal/memory"
	"github.com/beaconhq/beacon/internal/provider"
	"github.com/beaconhq/beacon/internal/settings"
)

// MaxQueryLength bounds a single query.
const MaxQueryLength = 8000

// ChatHandler handles the answering endpoint.
type ChatHandler struct {
	engine Answerer
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(engine Answerer, logger log.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
}

// chatRequest is the answering request body. Memory is the opaque handle
// returned by a previous call; omit it to start a fresh conversation.
type chatRequest struct {
	Query   string          `json:"query"`
	Channel string          `json:"channel,omitempty"`
	Memory  json.RawMessage `json:"memory,omitempty"`
}

type chatResponse struct {
	Answer string        `json:"answer"`
	Memory memory.Buffer `json:"memory"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if len(req.Query) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long")
		return
	}

	ch := req.Channel
	if ch == "" {
		ch = settings.ChannelDefault
	}
	if !validChannel(ch) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown channel")
		return
	}

	// A malformed handle means no usable history; start fresh.
	mem := memory.Decode(req.Memory)

	answer, mem, err := h.engine.Answer(r.Context(), req.Query, mem, ch)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		case errors.Is(err, provider.ErrUnavailable):
			h.logger.Error("answering failed, provider unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "model provider unavailable")
		default:
			h.logger.Error("answering failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to answer query")
		}
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Answer: answer, Memory: mem})
}

// validChannel reports whether the tag names a known channel.
func validChannel(ch string) bool {
	return ch == settings.ChannelDefault || ch == settings.ChannelMessaging
}
