package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/filter"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/spell"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/tracing"
)

// Request is one search: several free-text queries whose rankings are fused,
// the dietary attributes every result must carry, and the page size.
type Request struct {
	Queries []string          `json:"queries"`
	Require recipe.Attributes `json:"require"`
	Limit   int               `json:"limit,omitempty"`
}

// RecipeView is one assembled result. SimilarityScores holds the cosine
// score against each query in request order, 0 where the recipe did not
// match that query.
type RecipeView struct {
	ID               index.DocID `json:"id"`
	Name             string      `json:"name"`
	Instructions     string      `json:"instructions"`
	AggregatedRating float64     `json:"aggregated_rating"`
	Image            string      `json:"image"`
	URL              string      `json:"url"`
	FusedScore       float64     `json:"fused_score"`
	SimilarityScores []float64   `json:"similarity_scores"`
}

type Result struct {
	Queries     []string          `json:"queries"`
	Terms       [][]string        `json:"terms"`
	Corrections map[string]string `json:"corrections,omitempty"`
	Dropped     []string          `json:"dropped,omitempty"`
	Policy      string            `json:"fusion_policy"`
	Candidates  int               `json:"candidates"`
	Matched     int               `json:"matched"`
	Recipes     []RecipeView      `json:"recipes"`
}

// Options configures how requests are answered.
type Options struct {
	Policy merger.Policy
	// Limit applies to requests that do not set one.
	Limit int
	// Corrector rewrites query terms before scoring; nil disables it.
	Corrector parser.Corrector
}

// Search answers req against one index build. It never fails: queries with
// no indexed terms simply contribute nothing, and recipes missing from the
// catalog are skipped.
func Search(b *index.Bundle, catalog *recipe.Catalog, req *Request, opts Options) *Result {
	result, _ := run(context.Background(), b, catalog, req, opts)
	return result
}

func run(ctx context.Context, b *index.Bundle, catalog *recipe.Catalog, req *Request, opts Options) (*Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = opts.Limit
	}
	if limit <= 0 {
		limit = filter.DefaultLimit
	}

	result := &Result{
		Queries: req.Queries,
		Terms:   make([][]string, len(req.Queries)),
		Policy:  opts.Policy.String(),
		Recipes: []RecipeView{},
	}
	if len(req.Queries) == 0 {
		return result, nil
	}

	lists := make([][]ranker.ScoredDoc, len(req.Queries))
	for i, raw := range req.Queries {
		stage := tracing.Child(ctx, "query_"+strconv.Itoa(i))
		plan := parser.Parse(raw, opts.Corrector)
		result.Terms[i] = plan.Terms
		for from, to := range plan.Corrections {
			if result.Corrections == nil {
				result.Corrections = make(map[string]string)
			}
			result.Corrections[from] = to
		}
		result.Dropped = append(result.Dropped, plan.Dropped...)
		if !plan.IsEmpty() {
			lists[i] = ranker.Score(plan.TermSet(), b)
		}
		stage.SetAttr("terms", len(plan.Terms))
		stage.SetAttr("scored", len(lists[i]))
		stage.End()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	stage := tracing.Child(ctx, "fuse")
	fused := merger.Fuse(lists, opts.Policy)
	result.Candidates = len(fused)
	stage.End()

	stage = tracing.Child(ctx, "filter")
	top, matched := filter.Apply(fused, req.Require, catalog.Attributes, limit)
	result.Matched = matched
	stage.SetAttr("dropped", result.Candidates-result.Matched)
	stage.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stage = tracing.Child(ctx, "assemble")
	defer stage.End()
	vectors := merger.ScoreVectors(lists, merger.IDs(top))
	result.Recipes = make([]RecipeView, 0, len(top))
	for _, doc := range top {
		r, ok := catalog.Get(doc.DocID)
		if !ok {
			continue
		}
		result.Recipes = append(result.Recipes, RecipeView{
			ID:               r.ID,
			Name:             r.Name,
			Instructions:     r.Instructions,
			AggregatedRating: r.AggregatedRating,
			Image:            r.Image,
			URL:              r.URL,
			FusedScore:       doc.Score,
			SimilarityScores: vectors[doc.DocID],
		})
	}
	return result, nil
}

// SpellOptions enables term correction against the current vocabulary.
type SpellOptions struct {
	Enabled bool
	spell.Options
}

// Executor answers requests against the engine's current snapshot.
type Executor struct {
	engine  *indexer.Engine
	opts    Options
	spell   SpellOptions
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu            sync.Mutex
	correctedSnap *indexer.Snapshot
	corrector     *spell.Corrector
}

// New returns an executor. m may be nil.
func New(engine *indexer.Engine, opts Options, spellOpts SpellOptions, m *metrics.Metrics) *Executor {
	return &Executor{
		engine:  engine,
		opts:    opts,
		spell:   spellOpts,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// Execute runs req against the current snapshot.
func (e *Executor) Execute(ctx context.Context, req *Request) (*Result, error) {
	snap, err := e.engine.Snapshot()
	if err != nil {
		return nil, err
	}
	return e.ExecuteOn(ctx, snap, req)
}

// ExecuteOn runs req against snap. Callers that key results by snapshot
// generation use it so the result and the key come from the same build.
func (e *Executor) ExecuteOn(ctx context.Context, snap *indexer.Snapshot, req *Request) (*Result, error) {
	start := time.Now()
	opts := e.opts
	if e.spell.Enabled {
		opts.Corrector = e.correctorFor(snap)
	}

	ctx, span := tracing.Start(ctx, "search")
	result, err := run(ctx, snap.Bundle, snap.Catalog, req, opts)
	span.End()
	if err != nil {
		e.observe("error", 0)
		return nil, fmt.Errorf("executing search: %w", err)
	}

	outcome := "ok"
	if len(result.Recipes) == 0 {
		outcome = "zero_result"
	}
	e.observe(outcome, len(result.Recipes))
	if e.metrics != nil {
		e.metrics.QueriesPerRequest.Observe(float64(len(req.Queries)))
		e.metrics.FilterDroppedTotal.Add(float64(result.Candidates - result.Matched))
		e.metrics.SpellCorrectionsTotal.WithLabelValues("corrected").Add(float64(len(result.Corrections)))
		e.metrics.SpellCorrectionsTotal.WithLabelValues("dropped").Add(float64(len(result.Dropped)))
	}

	logger.FromContext(ctx).Info("search executed",
		"component", "query-executor",
		"queries", len(req.Queries),
		"terms", result.Terms,
		"candidates", result.Candidates,
		"matched", result.Matched,
		"results", len(result.Recipes),
		"policy", result.Policy,
		"took", time.Since(start),
	)
	span.Log(ctx, e.logger)
	return result, nil
}

func (e *Executor) observe(outcome string, results int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchRequestsTotal.WithLabelValues(outcome).Inc()
	if outcome != "error" {
		e.metrics.SearchResultsCount.Observe(float64(results))
	}
}

// correctorFor returns the corrector for snap, building it on first use
// after each reload.
func (e *Executor) correctorFor(snap *indexer.Snapshot) *spell.Corrector {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.correctedSnap != snap {
		e.corrector = spell.New(snap.Bundle, e.spell.Options)
		e.correctedSnap = snap
		e.logger.Info("spell corrector built", "vocabulary", snap.Bundle.NumTerms())
	}
	return e.corrector
}
