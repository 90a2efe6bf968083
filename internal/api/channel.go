package api

import (
	"encoding/json"
	"net/http"

	"github.com/beaconhq/beacon/internal/channel"
	"github.com/beaconhq/beacon/internal/log"
	"github.com/beaconhq/beacon/internal/settings"
)

// MaxInstructionsLength bounds stored instruction text.
const MaxInstructionsLength = 10000

// ChannelHandler handles channel settings and session status endpoints.
type ChannelHandler struct {
	settings settings.Store
	manager  SessionManager
	logger   log.Logger
}

// NewChannelHandler creates a channel handler.
func NewChannelHandler(store settings.Store, manager SessionManager, logger log.Logger) *ChannelHandler {
	return &ChannelHandler{settings: store, manager: manager, logger: logger}
}

// RegisterRoutes registers channel routes on the given mux.
func (h *ChannelHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/channels/{channel}/instructions", h.getInstructions)
	mux.HandleFunc("PUT /api/channels/{channel}/instructions", h.setInstructions)
	mux.HandleFunc("PUT /api/channels/{channel}/active", h.setActive)
	mux.HandleFunc("GET /api/channels/{channel}/status", h.status)
}

// channelParam validates the path channel tag, writing a 400 on failure.
func channelParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	ch := r.PathValue("channel")
	if !validChannel(ch) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown channel")
		return "", false
	}
	return ch, true
}

func (h *ChannelHandler) getInstructions(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelParam(w, r)
	if !ok {
		return
	}

	text, err := h.settings.Instructions(r.Context(), ch)
	if err != nil {
		h.logger.Error("reading instructions failed", "error", err, "channel", ch)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read instructions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": ch, "instructions": text})
}

type instructionsRequest struct {
	Instructions string `json:"instructions"`
}

func (h *ChannelHandler) setInstructions(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelParam(w, r)
	if !ok {
		return
	}

	var req instructionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if len(req.Instructions) > MaxInstructionsLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "instructions too long")
		return
	}

	if err := h.settings.SetInstructions(r.Context(), ch, req.Instructions); err != nil {
		h.logger.Error("storing instructions failed", "error", err, "channel", ch)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to store instructions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (h *ChannelHandler) setActive(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelParam(w, r)
	if !ok {
		return
	}

	var req activeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	if err := h.settings.SetActive(r.Context(), ch, req.Active); err != nil {
		h.logger.Error("storing activation flag failed", "error", err, "channel", ch)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to store activation flag")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": ch, "active": req.Active})
}

func (h *ChannelHandler) status(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelParam(w, r)
	if !ok {
		return
	}

	active, err := h.settings.Active(r.Context(), ch)
	if err != nil {
		h.logger.Error("reading activation flag failed", "error", err, "channel", ch)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read status")
		return
	}

	// Only the messaging channel has a paired transport behind it.
	connected := false
	if ch == settings.ChannelMessaging && h.manager != nil {
		connected = h.manager.State() == channel.StateReady
	}

	writeJSON(w, http.StatusOK, channel.Status{Active: active, Connected: connected})
}
