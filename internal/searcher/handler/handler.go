package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/middleware"
)

type SearchExecutor interface {
	ExecuteOn(ctx context.Context, snap *indexer.Snapshot, req *executor.Request) (*executor.Result, error)
}

// Options wires the handler. Cache, Tracker, Analytics and Metrics are
// optional.
type Options struct {
	Engine    *indexer.Engine
	Executor  SearchExecutor
	Cache     *cache.QueryCache
	Tracker   analytics.Tracker
	Analytics *analytics.Handler
	Limits    validator.Limits
	Metrics   *metrics.Metrics
}

type Handler struct {
	engine    *indexer.Engine
	executor  SearchExecutor
	cache     *cache.QueryCache
	tracker   analytics.Tracker
	analytics *analytics.Handler
	limits    validator.Limits
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(opts Options) *Handler {
	return &Handler{
		engine:    opts.Engine,
		executor:  opts.Executor,
		cache:     opts.Cache,
		tracker:   opts.Tracker,
		analytics: opts.Analytics,
		limits:    opts.Limits,
		metrics:   opts.Metrics,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /recipes", h.LegacySearch)
	mux.HandleFunc("GET /api/v1/recipes/search", h.SearchGET)
	mux.HandleFunc("POST /api/v1/recipes/search", h.SearchPOST)
	mux.HandleFunc("GET /api/v1/recipes/{id}", h.GetRecipe)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if h.analytics != nil {
		h.analytics.Register(mux)
	}
}

// legacyRecipe is the result shape of the original /recipes route.
type legacyRecipe struct {
	Name             string    `json:"name"`
	Instructions     string    `json:"instructions"`
	AggregatedRating float64   `json:"aggregated_rating"`
	Image            string    `json:"image"`
	URL              string    `json:"Url"`
	SimilarityScores []float64 `json:"similarity_scores"`
}

// LegacySearch serves /recipes?title0=..&vegan=true and answers with a bare
// array. Unknown parameters are ignored.
func (h *Handler) LegacySearch(w http.ResponseWriter, r *http.Request) {
	in, err := inputFromQuery(r.URL.Query(), true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.search(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]legacyRecipe, 0, len(result.Recipes))
	for _, rv := range result.Recipes {
		out = append(out, legacyRecipe{
			Name:             rv.Name,
			Instructions:     rv.Instructions,
			AggregatedRating: rv.AggregatedRating,
			Image:            rv.Image,
			URL:              rv.URL,
			SimilarityScores: rv.SimilarityScores,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SearchGET(w http.ResponseWriter, r *http.Request) {
	in, err := inputFromQuery(r.URL.Query(), false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, in)
}

func (h *Handler) SearchPOST(w http.ResponseWriter, r *http.Request) {
	var in validator.SearchInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		h.writeError(w, apperrors.Invalid("malformed request body: %v", err))
		return
	}
	h.respond(w, r, in)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, in validator.SearchInput) {
	result, err := h.search(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) search(ctx context.Context, in validator.SearchInput) (*executor.Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	req, err := validator.ValidateSearch(in, h.limits)
	if err != nil {
		return nil, err
	}
	snap, err := h.engine.Snapshot()
	if err != nil {
		return nil, err
	}

	var result *executor.Result
	cacheStatus := "disabled"
	if h.cache != nil {
		var hit bool
		generation := strconv.FormatInt(snap.BuiltAt.UnixNano(), 10)
		result, hit, err = h.cache.GetOrCompute(ctx, req, generation, func() (*executor.Result, error) {
			return h.executor.ExecuteOn(ctx, snap, req)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.executor.ExecuteOn(ctx, snap, req)
	}
	if err != nil {
		log.Error("search failed", "queries", req.Queries, "error", err)
		return nil, err
	}

	took := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(took.Seconds())
	}
	log.Info("search completed",
		"queries", len(req.Queries),
		"require", req.Require.Names(),
		"returned", len(result.Recipes),
		"cache", cacheStatus,
		"latency_ms", took.Milliseconds(),
	)
	if h.tracker != nil {
		h.tracker.TrackSearch(analytics.SearchEvent{
			Queries:     req.Queries,
			Require:     req.Require.Names(),
			Candidates:  result.Candidates,
			Returned:    len(result.Recipes),
			Corrections: len(result.Corrections),
			LatencyMs:   took.Milliseconds(),
			CacheHit:    cacheStatus == "hit",
			Timestamp:   time.Now().UTC(),
			RequestID:   middleware.GetRequestID(ctx),
		})
	}
	return result, nil
}

// inputFromQuery reads titleN parameters in index order, then (outside the
// legacy route) repeated q and comma separated require parameters. Any
// parameter naming a dietary attribute with value "true" requires it.
func inputFromQuery(values url.Values, legacy bool) (validator.SearchInput, error) {
	var in validator.SearchInput
	for i := 0; i < len(values); i++ {
		if v, ok := values["title"+strconv.Itoa(i)]; ok {
			in.Queries = append(in.Queries, v[0])
		}
	}
	if !legacy {
		in.Queries = append(in.Queries, values["q"]...)
		for _, v := range values["require"] {
			for _, name := range strings.Split(v, ",") {
				if name = strings.TrimSpace(name); name != "" {
					in.Attributes = append(in.Attributes, name)
				}
			}
		}
	}
	for key, v := range values {
		if len(v) == 0 || v[0] != "true" {
			continue
		}
		if name, err := recipe.ParseAttribute(key); err == nil {
			in.Attributes = append(in.Attributes, name)
		}
	}
	if s := values.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return in, apperrors.Invalid("limit must be an integer")
		}
		in.Limit = n
	}
	return in, nil
}

func (h *Handler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, apperrors.Invalid("recipe id must be an integer"))
		return
	}
	snap, err := h.engine.Snapshot()
	if err != nil {
		h.writeError(w, err)
		return
	}
	rec, err := snap.Catalog.Lookup(index.DocID(id))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "cache invalidation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	body := errorBody{Error: err.Error()}
	var verr *validator.ValidationError
	if apperrors.As(err, &verr) {
		body.Error = "invalid search request"
		body.Fields = verr.Fields
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		body.Error = "search failed"
	}
	h.writeJSON(w, status, body)
}
