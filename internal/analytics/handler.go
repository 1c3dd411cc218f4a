package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultSnapshotLimit = 10
	maxSnapshotLimit     = 100
)

// SnapshotLister reads saved aggregates, newest first.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
}

// Handler serves the live aggregate and, when a lister is set, the saved
// snapshot history.
type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotLister
	logger     *slog.Logger
}

// NewHandler returns a handler over aggregator. snapshots may be nil.
func NewHandler(aggregator *Aggregator, snapshots SnapshotLister) *Handler {
	return &Handler{
		aggregator: aggregator,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Register mounts GET /api/v1/analytics and, with a lister,
// GET /api/v1/analytics/snapshots.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	if h.snapshots != nil {
		mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	}
}

// Stats serves the live aggregate. ?top=N sets the length of the top and
// zero-result query lists.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top, err := intParam(r, "top", DefaultTopQueries, MaxTopQueries)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.StatsTop(top))
}

// Snapshots serves up to ?limit=N saved aggregates, newest first.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultSnapshotLimit, maxSnapshotLimit)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	list, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing analytics snapshots", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshots unavailable"})
		return
	}
	if list == nil {
		list = []AggregatedStats{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"snapshots": list, "count": len(list)})
}

func intParam(r *http.Request, name string, def, maxValue int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxValue {
		return 0, fmt.Errorf("%s must be an integer between 1 and %d", name, maxValue)
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
