package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	aggregator *Aggregator
	tracker    *RequestTracker
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator, tracker *RequestTracker) *Handler {
	return &Handler{
		aggregator: aggregator,
		tracker:    tracker,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// RequestStats serves the recent-request window.
func (h *Handler) RequestStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.tracker.Stats())
}

// Stats serves the aggregated search and indexing totals.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.aggregator.Stats())
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
