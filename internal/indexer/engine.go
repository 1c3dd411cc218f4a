package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	apperrors "github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/metrics"
)

// Snapshot is one immutable build of the index and its catalog.
type Snapshot struct {
	Bundle  *index.Bundle
	Catalog *recipe.Catalog
	Source  string
	BuiltAt time.Time
	Took    time.Duration
}

// Stats describes the current snapshot for the stats endpoint.
type Stats struct {
	index.Stats
	Source  string    `json:"source"`
	BuiltAt time.Time `json:"built_at"`
	TookMS  int64     `json:"build_ms"`
}

// Engine owns the current snapshot. Readers take the snapshot pointer once
// per request and never lock; Reload builds a replacement off to the side
// and swaps it in.
type Engine struct {
	source   corpus.Source
	metrics  *metrics.Metrics
	logger   *slog.Logger
	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
	onBuild  func(*Snapshot)
}

// OnBuild registers fn to run after every successful Load. Call it before
// the first Load.
func (e *Engine) OnBuild(fn func(*Snapshot)) {
	e.onBuild = fn
}

// NewEngine returns an engine with no snapshot; call Load before serving.
// m may be nil.
func NewEngine(source corpus.Source, m *metrics.Metrics) *Engine {
	return &Engine{
		source:  source,
		metrics: m,
		logger:  logger.WithComponent("indexer"),
	}
}

// Load reads the corpus and installs a freshly built snapshot. On error the
// previous snapshot, if any, stays in place.
func (e *Engine) Load(ctx context.Context) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	start := time.Now()
	recipes, err := e.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus %s: %w", e.source.Name(), err)
	}
	snap, err := BuildSnapshot(recipes)
	if err != nil {
		return fmt.Errorf("indexing corpus %s: %w", e.source.Name(), err)
	}
	snap.Source = e.source.Name()
	snap.Took = time.Since(start)
	e.current.Store(snap)

	stats := snap.Bundle.Stats()
	if e.metrics != nil {
		e.metrics.IndexBuildDuration.Set(snap.Took.Seconds())
		e.metrics.IndexDocuments.Set(float64(snap.Bundle.NumDocs()))
		e.metrics.IndexTerms.Set(float64(stats.Terms))
	}
	e.logger.Info("index built",
		"source", snap.Source,
		"docs", stats.Documents,
		"recipes", snap.Catalog.Len(),
		"terms", stats.Terms,
		"postings", stats.Postings,
		"empty_docs", stats.EmptyDocs,
		"took", snap.Took.Round(time.Millisecond),
	)
	if e.onBuild != nil {
		e.onBuild(snap)
	}
	return nil
}

// BuildSnapshot indexes recipes and builds their catalog.
func BuildSnapshot(recipes []recipe.Recipe) (*Snapshot, error) {
	catalog, err := recipe.NewCatalog(recipes)
	if err != nil {
		return nil, err
	}
	bundle, err := index.Build(catalog.Documents())
	if err != nil {
		return nil, err
	}
	return &Snapshot{Bundle: bundle, Catalog: catalog, BuiltAt: time.Now().UTC()}, nil
}

// NewStaticEngine serves a prebuilt snapshot and cannot reload.
func NewStaticEngine(snap *Snapshot) *Engine {
	e := &Engine{logger: logger.WithComponent("indexer")}
	e.current.Store(snap)
	return e
}

// Snapshot returns the current snapshot or ErrIndexNotReady.
func (e *Engine) Snapshot() (*Snapshot, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, apperrors.ErrIndexNotReady
	}
	return snap, nil
}

// Ready reports whether a snapshot is installed.
func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

func (e *Engine) Stats() (Stats, error) {
	snap, err := e.Snapshot()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Stats:   snap.Bundle.Stats(),
		Source:  snap.Source,
		BuiltAt: snap.BuiltAt,
		TookMS:  snap.Took.Milliseconds(),
	}, nil
}

// StartReloadLoop rebuilds the index every interval until ctx is done.
// Failed rebuilds are logged and the old snapshot keeps serving.
func (e *Engine) StartReloadLoop(ctx context.Context, interval time.Duration) {
	if e.source == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("reload loop stopping")
				return
			case <-ticker.C:
				if err := e.Load(ctx); err != nil {
					e.logger.Error("periodic reload failed", "error", err)
				}
			}
		}
	}()
	e.logger.Info("reload loop started", "interval", interval)
}
