package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/recipe"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/validator"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/metrics"
)

var vegan = recipe.Attributes{Vegan: true, Vegetarian: true}

var limits = validator.Limits{MaxQueries: 16, MaxQueryLength: 512, MaxResults: 50, DefaultLimit: 10}

func testRecipes() []recipe.Recipe {
	return []recipe.Recipe{
		{ID: 1, Name: "vegan chocolate cake", Attributes: vegan, URL: "https://www.food.com/recipe/vegan-chocolate-cake-1"},
		{ID: 2, Name: "beef chocolate stew", Instructions: "Brown the beef.", AggregatedRating: 4.5},
		{ID: 3, Name: "vegan beef stew", Attributes: vegan},
		{ID: 4, Name: "garden salad", Attributes: vegan},
		{ID: 5, Name: "lemon tart"},
		{ID: 6, Name: "rice pilaf"},
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (r *recordingTracker) TrackSearch(e analytics.SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	mux     *http.ServeMux
	metrics *metrics.Metrics
	tracker *recordingTracker
	cache   *cache.QueryCache
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	snap, err := indexer.BuildSnapshot(testRecipes())
	if err != nil {
		t.Fatal(err)
	}
	engine := indexer.NewStaticEngine(snap)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	f := &fixture{mux: http.NewServeMux(), metrics: m, tracker: &recordingTracker{}}
	if withCache {
		f.cache = cache.New(&memStore{data: make(map[string][]byte)}, time.Minute, m)
	}
	agg := analytics.NewAggregator()
	h := New(Options{
		Engine:    engine,
		Executor:  executor.New(engine, executor.Options{Policy: merger.ScoreSum}, executor.SpellOptions{}, m),
		Cache:     f.cache,
		Tracker:   f.tracker,
		Analytics: analytics.NewHandler(agg, nil),
		Limits:    limits,
		Metrics:   m,
	})
	h.Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) executor.Result {
	t.Helper()
	var res executor.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	return res
}

func resultIDs(res executor.Result) []int64 {
	out := make([]int64, len(res.Recipes))
	for i, r := range res.Recipes {
		out[i] = int64(r.ID)
	}
	return out
}

func equal(got []int64, want ...int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestLegacyRecipesRoute(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/recipes?title0=chocolate&title1=stew&timeLimit=30", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	var raw []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if len(raw) != 3 {
		t.Fatalf("results = %d, want 3", len(raw))
	}
	if raw[0]["name"] != "beef chocolate stew" {
		t.Errorf("first = %v", raw[0]["name"])
	}
	if _, ok := raw[0]["Url"]; !ok {
		t.Error("legacy results must carry the Url field")
	}
	if scores, ok := raw[0]["similarity_scores"].([]any); !ok || len(scores) != 2 {
		t.Errorf("similarity_scores = %v", raw[0]["similarity_scores"])
	}
	if raw[2]["Url"] != "https://www.food.com/recipe/vegan-chocolate-cake-1" {
		t.Errorf("url = %v", raw[2]["Url"])
	}
}

func TestLegacyRouteDietaryFlags(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/recipes?title0=chocolate&title1=stew&vegan=true&dairy-free=false", "")
	var raw []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if len(raw) != 2 || raw[0]["name"] != "vegan beef stew" || raw[1]["name"] != "vegan chocolate cake" {
		t.Errorf("vegan results = %v", raw)
	}

	rec = f.do(t, http.MethodGet, "/recipes?title0=chocolate&gluten-free=true", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("gluten-free body = %q, want []", rec.Body.String())
	}
}

func TestLegacyRouteBlankTitleKeepsItsSlot(t *testing.T) {
	f := newFixture(t, false)
	for _, target := range []string{
		"/recipes?title0=&title1=chocolate",
		"/recipes?title0=%20&title1=chocolate",
		"/recipes?title0=!!!&title1=chocolate",
	} {
		rec := f.do(t, http.MethodGet, target, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
		var raw []legacyRecipe
		if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
			t.Fatal(err)
		}
		if len(raw) != 2 || raw[0].Name != "beef chocolate stew" {
			t.Fatalf("%s: results = %+v", target, raw)
		}
		scores := raw[0].SimilarityScores
		if len(scores) != 2 || scores[0] != 0 || scores[1] <= 0 {
			t.Errorf("%s: similarity_scores = %v, want [0 >0]", target, scores)
		}
	}
}

func TestSearchGET(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/recipes/search?q=chocolate&require=vegan", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	res := decodeResult(t, rec)
	if got := resultIDs(res); !equal(got, 1) {
		t.Errorf("ids = %v, want [1]", got)
	}
	if res.Policy != "score_sum" || res.Candidates != 2 || res.Matched != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestSearchGETLimitAndTitles(t *testing.T) {
	f := newFixture(t, false)
	res := decodeResult(t, f.do(t, http.MethodGet, "/api/v1/recipes/search?title0=chocolate&q=stew&limit=1", ""))
	if got := resultIDs(res); !equal(got, 2) {
		t.Errorf("ids = %v, want [2]", got)
	}
	if len(res.Queries) != 2 || res.Queries[0] != "chocolate" {
		t.Errorf("queries = %v", res.Queries)
	}
}

func TestSearchPOST(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/api/v1/recipes/search",
		`{"queries":["chocolate","stew"],"require":["Vegan"],"limit":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	if got := resultIDs(decodeResult(t, rec)); !equal(got, 3, 1) {
		t.Errorf("ids = %v, want [3 1]", got)
	}
}

func TestSearchValidationErrors(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		name, method, target, body string
		field                      string
	}{
		{"unknown attribute", http.MethodGet, "/api/v1/recipes/search?q=cake&require=keto", "", "require"},
		{"limit too large", http.MethodGet, "/api/v1/recipes/search?q=cake&limit=100", "", "limit"},
		{"limit not a number", http.MethodGet, "/api/v1/recipes/search?q=cake&limit=ten", "", ""},
		{"malformed body", http.MethodPost, "/api/v1/recipes/search", `{"queries":`, ""},
		{"unknown body field", http.MethodPost, "/api/v1/recipes/search", `{"queries":["cake"],"sort":"new"}`, ""},
		{"query too long", http.MethodPost, "/api/v1/recipes/search", `{"queries":["` + strings.Repeat("a", 513) + `"]}`, "queries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if tt.field != "" && body.Fields[tt.field] == "" {
				t.Errorf("expected field error for %q, got %+v", tt.field, body)
			}
		})
	}
}

func TestSearchWithNoQueriesIsEmpty(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/recipes/search", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if res := decodeResult(t, rec); len(res.Recipes) != 0 {
		t.Errorf("recipes = %v", res.Recipes)
	}
}

func TestGetRecipe(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/recipes/2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var r recipe.Recipe
	if err := json.NewDecoder(rec.Body).Decode(&r); err != nil {
		t.Fatal(err)
	}
	if r.Name != "beef chocolate stew" || r.AggregatedRating != 4.5 {
		t.Errorf("recipe = %+v", r)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/recipes/999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing recipe status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/recipes/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
}

func TestIndexStats(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/api/v1/index/stats", "")
	var stats map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats["documents"] != float64(6) {
		t.Errorf("stats = %v", stats)
	}
}

func TestNotReadyEngine(t *testing.T) {
	engine := indexer.NewEngine(nil, nil)
	h := New(Options{
		Engine:   engine,
		Executor: executor.New(engine, executor.Options{}, executor.SpellOptions{}, nil),
		Limits:   limits,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	for _, target := range []string{"/recipes?title0=cake", "/api/v1/index/stats", "/api/v1/recipes/1"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", target, rec.Code)
		}
	}
}

func TestCachedSearch(t *testing.T) {
	f := newFixture(t, true)
	target := "/api/v1/recipes/search?q=chocolate"
	first := decodeResult(t, f.do(t, http.MethodGet, target, ""))
	second := decodeResult(t, f.do(t, http.MethodGet, target, ""))
	if !equal(resultIDs(first), resultIDs(second)...) {
		t.Errorf("cached result differs: %v vs %v", resultIDs(first), resultIDs(second))
	}

	var stats cache.Stats
	if err := json.NewDecoder(f.do(t, http.MethodGet, "/api/v1/cache/stats", "").Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("cache stats = %+v", stats)
	}
	if n := testutil.CollectAndCount(f.metrics.SearchLatency); n != 2 {
		t.Errorf("latency series = %d, want hit and miss", n)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", "")
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["keys_deleted"] != float64(1) {
		t.Errorf("invalidate = %v", out)
	}

	f.tracker.mu.Lock()
	defer f.tracker.mu.Unlock()
	if len(f.tracker.events) != 2 || f.tracker.events[0].CacheHit || !f.tracker.events[1].CacheHit {
		t.Errorf("tracked events = %+v", f.tracker.events)
	}
}

type switchSource struct {
	recipes []recipe.Recipe
}

func (s *switchSource) Name() string { return "memory" }

func (s *switchSource) Load(ctx context.Context) ([]recipe.Recipe, error) {
	return s.recipes, nil
}

// reloadingExecutor rebuilds the index while the first search is in flight.
type reloadingExecutor struct {
	*executor.Executor
	engine *indexer.Engine
	source *switchSource
	once   sync.Once
	err    error
}

func (r *reloadingExecutor) ExecuteOn(ctx context.Context, snap *indexer.Snapshot, req *executor.Request) (*executor.Result, error) {
	r.once.Do(func() {
		r.source.recipes = append(testRecipes(), recipe.Recipe{ID: 7, Name: "chocolate fudge"})
		r.err = r.engine.Load(ctx)
	})
	return r.Executor.ExecuteOn(ctx, snap, req)
}

func TestCachedResultMatchesItsGeneration(t *testing.T) {
	src := &switchSource{recipes: testRecipes()}
	engine := indexer.NewEngine(src, nil)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	exec := &reloadingExecutor{
		Executor: executor.New(engine, executor.Options{}, executor.SpellOptions{}, nil),
		engine:   engine,
		source:   src,
	}
	mux := http.NewServeMux()
	New(Options{
		Engine:   engine,
		Executor: exec,
		Cache:    cache.New(&memStore{data: make(map[string][]byte)}, time.Minute, nil),
		Limits:   limits,
	}).Register(mux)
	search := func() executor.Result {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recipes/search?q=chocolate", nil))
		return decodeResult(t, rec)
	}

	if got := resultIDs(search()); !equal(got, 2, 1) {
		t.Errorf("search during reload = %v, want the pre-reload ranking [2 1]", got)
	}
	if exec.err != nil {
		t.Fatal(exec.err)
	}
	for i := 0; i < 2; i++ {
		if got := resultIDs(search()); len(got) != 3 {
			t.Errorf("search %d after reload = %v, want 3 results from the new build", i+2, got)
		}
	}
}

func TestCacheDisabled(t *testing.T) {
	f := newFixture(t, false)
	if rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d, want 503", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	if !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("stats body = %s", rec.Body)
	}
}

func TestTrackerReceivesRequirements(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodGet, "/recipes?title0=quinoa&vegan=true", "")
	f.tracker.mu.Lock()
	defer f.tracker.mu.Unlock()
	if len(f.tracker.events) != 1 {
		t.Fatalf("events = %d", len(f.tracker.events))
	}
	e := f.tracker.events[0]
	if e.Returned != 0 || len(e.Require) != 1 || e.Require[0] != "vegan" || e.Queries[0] != "quinoa" {
		t.Errorf("event = %+v", e)
	}
}

func TestAnalyticsRoute(t *testing.T) {
	f := newFixture(t, false)
	if rec := f.do(t, http.MethodGet, "/api/v1/analytics", ""); rec.Code != http.StatusOK {
		t.Errorf("analytics status = %d", rec.Code)
	}
}
