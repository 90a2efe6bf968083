package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/knowledge"
	"github.com/beaconhq/beacon/internal/log"
	"github.com/beaconhq/beacon/internal/provider"
)

// Ingestion bounds.
const (
	MaxIngestBytes  = 4 << 20 // 4 MiB of raw text per call
	MaxSourceLength = 500
	MaxDeleteIDs    = 1000
)

// KnowledgeHandler handles ingestion and chunk management endpoints.
type KnowledgeHandler struct {
	ingestor Ingestor
	store    knowledge.Store
	client   *http.Client
	logger   log.Logger
}

// NewKnowledgeHandler creates a knowledge handler. The client is used to
// fetch pages for URL ingestion; nil falls back to http.DefaultClient.
func NewKnowledgeHandler(ingestor Ingestor, store knowledge.Store, client *http.Client, logger log.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{ingestor: ingestor, store: store, client: client, logger: logger}
}

// RegisterRoutes registers knowledge routes on the given mux.
func (h *KnowledgeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest", h.ingest)
	mux.HandleFunc("POST /api/ingest/url", h.ingestURL)
	mux.HandleFunc("GET /api/sources", h.listSources)
	mux.HandleFunc("DELETE /api/sources/{source}", h.deleteSource)
	mux.HandleFunc("DELETE /api/chunks/{id}", h.deleteChunk)
	mux.HandleFunc("DELETE /api/chunks", h.deleteChunks)
}

type ingestRequest struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

func (h *KnowledgeHandler) ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxIngestBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.Source == "" || len(req.Source) > MaxSourceLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "source is required")
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), req.Source, req.Text)
	if err != nil {
		h.writeIngestError(w, err, req.Source)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source":      result.Source,
		"chunk_count": result.Chunks,
	})
}

type ingestURLRequest struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// ingestURL fetches a web page, extracts its readable text, and ingests it.
// The source defaults to the URL itself so the page can be re-ingested or
// deleted by address.
func (h *KnowledgeHandler) ingestURL(w http.ResponseWriter, r *http.Request) {
	var req ingestURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}
	source := req.Source
	if source == "" {
		source = req.URL
	}
	if len(source) > MaxSourceLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "source is too long")
		return
	}

	article, err := knowledge.FetchArticle(r.Context(), h.client, req.URL)
	if err != nil {
		h.logger.Error("fetching page failed", "error", err, "url", req.URL)
		writeError(w, http.StatusBadGateway, "fetch_failed", "failed to fetch readable content from url")
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), source, article.Text)
	if err != nil {
		h.writeIngestError(w, err, source)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source":      result.Source,
		"title":       article.Title,
		"chunk_count": result.Chunks,
	})
}

func (h *KnowledgeHandler) writeIngestError(w http.ResponseWriter, err error, source string) {
	switch {
	case errors.Is(err, provider.ErrUnavailable):
		h.logger.Error("ingestion failed, provider unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "embedding provider unavailable")
	case errors.Is(err, knowledge.ErrDimensionMismatch):
		h.logger.Error("ingestion failed, dimension mismatch", "error", err)
		writeError(w, http.StatusBadRequest, "invalid_request", "embedding dimension mismatch")
	default:
		h.logger.Error("ingestion failed", "error", err, "source", source)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to ingest text")
	}
}

func (h *KnowledgeHandler) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.ListSources(r.Context())
	if err != nil {
		h.logger.Error("listing sources failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list sources")
		return
	}
	if sources == nil {
		sources = []knowledge.SourceSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (h *KnowledgeHandler) deleteSource(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")

	deleted, err := h.store.DeleteBySource(r.Context(), source)
	if err != nil {
		h.logger.Error("deleting source failed", "error", err, "source", source)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete source")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *KnowledgeHandler) deleteChunk(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return
	}

	// Deletion is idempotent; an absent id still succeeds.
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("deleting chunk failed", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete chunk")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type deleteChunksRequest struct {
	IDs []string `json:"ids"`
}

func (h *KnowledgeHandler) deleteChunks(w http.ResponseWriter, r *http.Request) {
	var req deleteChunksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if len(req.IDs) > MaxDeleteIDs {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many ids")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "ids must be UUIDs")
			return
		}
		ids = append(ids, id)
	}

	deleted, err := h.store.DeleteMany(r.Context(), ids)
	if err != nil {
		h.logger.Error("deleting chunks failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete chunks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
