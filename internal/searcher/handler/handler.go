// Package handler serves the read side of the HTTP API: ranked search,
// batched search, per-document matching and corpus introspection.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/logger"
)

const maxBatchQueries = 1000

type SearchExecutor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
	Bind(ctx context.Context, status index.Status, mode ranker.Mode) executor.Searcher
}

type Options struct {
	DefaultStatus    index.Status
	DefaultMode      ranker.Mode
	BatchConcurrency int
}

type Handler struct {
	executor SearchExecutor
	engine   *indexer.Engine
	cache    *cache.ResultCache
	opts     Options
	logger   *slog.Logger
}

// New creates a Handler. queryCache may be nil.
func New(exec SearchExecutor, engine *indexer.Engine, queryCache *cache.ResultCache, opts Options) *Handler {
	return &Handler{
		executor: exec,
		engine:   engine,
		cache:    queryCache,
		opts:     opts,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/v1/search?q=&status=&mode=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")
	status, mode, err := h.filterParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.executor.Execute(ctx, executor.Request{Query: query, Status: status, Mode: mode})
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		logger.FromContext(ctx).Warn("search failed", "query", query, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, err.Error())
		return
	}
	logger.FromContext(ctx).Info("search completed",
		"query", query,
		"returned", len(result.Results),
		"cache_hit", result.CacheHit,
	)
	h.writeJSON(w, http.StatusOK, result)
}

type batchRequest struct {
	Queries []string `json:"queries"`
	Status  string   `json:"status"`
	Mode    string   `json:"mode"`
	Joined  bool     `json:"joined"`
}

type batchResponse struct {
	Results [][]ranker.ScoredDoc `json:"results,omitempty"`
	Joined  []ranker.ScoredDoc   `json:"joined,omitempty"`
}

// SearchBatch handles POST /api/v1/search/batch. Results keep the order of
// the submitted queries; with "joined" they are flattened into one list.
func (h *Handler) SearchBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Queries) > maxBatchQueries {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d queries per batch", maxBatchQueries))
		return
	}
	status, mode, err := h.parseFilter(req.Status, req.Mode)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := h.executor.Bind(ctx, status, mode)
	if req.Joined {
		joined, err := executor.ProcessQueriesJoinedN(ctx, s, req.Queries, h.opts.BatchConcurrency)
		if err != nil {
			h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, batchResponse{Joined: joined})
		return
	}
	results, err := executor.ProcessQueriesN(ctx, s, req.Queries, h.opts.BatchConcurrency)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	for i := range results {
		if results[i] == nil {
			results[i] = []ranker.ScoredDoc{}
		}
	}
	h.writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

// MatchDocument handles GET /api/v1/documents/{id}/match?q=.
func (h *Handler) MatchDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	words, status, err := h.engine.MatchDocument(r.URL.Query().Get("q"), id)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"words":  words,
		"status": status,
	})
}

// WordFrequencies handles GET /api/v1/documents/{id}/terms. Unknown ids
// yield an empty map.
func (h *Handler) WordFrequencies(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":    id,
		"terms": h.engine.TermFrequencies(id),
	})
}

// Documents handles GET /api/v1/documents. With ?index=N it returns the id
// at insertion position N; otherwise every id in insertion order.
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("index"); raw != "" {
		pos, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "index must be an integer")
			return
		}
		id, err := h.engine.DocumentID(pos)
		if err != nil {
			h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]int{"index": pos, "id": id})
		return
	}
	ids := h.engine.IDs()
	if ids == nil {
		ids = []int{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"count": len(ids),
		"ids":   ids,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) filterParams(r *http.Request) (index.Status, ranker.Mode, error) {
	q := r.URL.Query()
	return h.parseFilter(q.Get("status"), q.Get("mode"))
}

func (h *Handler) parseFilter(rawStatus, rawMode string) (index.Status, ranker.Mode, error) {
	status, mode := h.opts.DefaultStatus, h.opts.DefaultMode
	var err error
	if rawStatus != "" {
		if status, err = index.ParseStatus(rawStatus); err != nil {
			return 0, 0, err
		}
	}
	if rawMode != "" {
		if mode, err = ranker.ParseMode(rawMode); err != nil {
			return 0, 0, err
		}
	}
	return status, mode, nil
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document id must be an integer")
		return 0, false
	}
	return id, true
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
