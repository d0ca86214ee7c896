// Package handler serves the document write API. Writes are applied to the
// engine synchronously by default; ?async=true routes an add or remove
// through the document-events topic instead and answers 202.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/logger"
)

const maxBodyBytes = 2 << 20

// Applier applies writes to the engine. *consumer.Applier implements it.
type Applier interface {
	Add(ctx context.Context, ev ingestion.DocumentEvent, source string) error
	Remove(ctx context.Context, id int, source string) error
	RemoveDuplicates(ctx context.Context) ([]int, error)
}

// Publisher queues writes for the index consumer. *publisher.Publisher
// implements it.
type Publisher interface {
	Publish(ctx context.Context, ev ingestion.DocumentEvent) (*ingestion.DocumentResponse, error)
}

type Handler struct {
	applier   Applier
	publisher Publisher
	source    string
	logger    *slog.Logger
}

// New creates a Handler. pub may be nil, in which case async writes fail
// with 503. A nil applier makes every write asynchronous, for a front end
// that only publishes.
func New(applier Applier, pub Publisher, source string) *Handler {
	return &Handler{
		applier:   applier,
		publisher: pub,
		source:    source,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// AddDocument handles POST /api/v1/documents.
func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.AddDocumentRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateAddRequest(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	ev := req.AddEvent()
	if h.async(r) {
		h.publish(w, r, ev)
		return
	}
	if err := h.applier.Add(ctx, ev, h.source); err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Warn("add document failed", "doc_id", req.ID, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, err.Error())
		return
	}
	log.Info("document added", "doc_id", req.ID, "status", req.Status)
	h.writeJSON(w, http.StatusCreated, &ingestion.DocumentResponse{
		ID:     req.ID,
		Status: req.Status.String(),
		State:  "INDEXED",
	})
}

// RemoveDocument handles DELETE /api/v1/documents/{id}.
func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		h.writeError(w, http.StatusBadRequest, "document id must be a non-negative integer")
		return
	}
	if h.async(r) {
		h.publish(w, r, ingestion.DocumentEvent{Op: ingestion.OpRemove, ID: id})
		return
	}
	if err := h.applier.Remove(ctx, id, h.source); err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	logger.FromContext(ctx).Info("document removed", "doc_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// RemoveDuplicates handles POST /api/v1/documents/deduplicate.
func (h *Handler) RemoveDuplicates(w http.ResponseWriter, r *http.Request) {
	if h.applier == nil {
		h.writeError(w, http.StatusServiceUnavailable, "deduplication runs on search replicas")
		return
	}
	removed, err := h.applier.RemoveDuplicates(r.Context())
	if err != nil {
		// The engine is already deduplicated; only persistence failed.
		logger.FromContext(r.Context()).Error("removing duplicates from store failed", "error", err)
	}
	if removed == nil {
		removed = []int{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"removed": removed,
		"count":   len(removed),
	})
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request, ev ingestion.DocumentEvent) {
	if h.publisher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "asynchronous ingestion is disabled")
		return
	}
	resp, err := h.publisher.Publish(r.Context(), ev)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		logger.FromContext(r.Context()).Error("publish document event failed",
			"doc_id", ev.ID,
			"op", ev.Op,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) async(r *http.Request) bool {
	if h.applier == nil {
		return true
	}
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return async
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
