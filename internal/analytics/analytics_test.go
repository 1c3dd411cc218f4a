package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (f *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakePublisher) published() []kafka.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []kafka.Event
	for _, b := range f.batches {
		all = append(all, b...)
	}
	return all
}

func TestCollectorFlushPublishesBuffered(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 10, time.Hour)
	c.TrackSearch(SearchEvent{Queries: []string{"stew"}, Returned: 2})
	c.TrackSearch(SearchEvent{Queries: []string{"quinoa"}})
	c.TrackIndex(IndexEvent{Source: "json", Documents: 6})
	if c.BufferLen() != 3 {
		t.Fatalf("buffer = %d, want 3", c.BufferLen())
	}
	c.Flush(context.Background())
	if c.BufferLen() != 0 {
		t.Errorf("buffer after flush = %d", c.BufferLen())
	}
	events := pub.published()
	if len(events) != 3 {
		t.Fatalf("published %d events, want 3", len(events))
	}
	first := events[0].Value.(SearchEvent)
	if first.Type != EventSearch || first.Timestamp.IsZero() {
		t.Errorf("first event = %+v, want typed and timestamped", first)
	}
	if second := events[1].Value.(SearchEvent); second.Type != EventZeroResult {
		t.Errorf("zero-result event type = %s", second.Type)
	}
	if idx := events[2].Value.(IndexEvent); idx.Type != EventIndexBuild || events[2].Key != string(EventIndexBuild) {
		t.Errorf("index event = %+v key %q", idx, events[2].Key)
	}
}

func TestCollectorRequeuesOnPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 10, time.Hour)
	for i := 0; i < 4; i++ {
		c.TrackSearch(SearchEvent{Queries: []string{"cake"}, Returned: 1})
	}
	c.Flush(context.Background())
	if c.BufferLen() != 4 {
		t.Errorf("buffer after failed flush = %d, want 4", c.BufferLen())
	}

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	c.Flush(context.Background())
	if got := len(pub.published()); got != 4 {
		t.Errorf("published after recovery = %d, want 4", got)
	}
}

func TestCollectorFinalFlushOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.TrackSearch(SearchEvent{Queries: []string{"tart"}, Returned: 1})
	cancel()
	c.Close()
	if got := len(pub.published()); got != 1 {
		t.Errorf("published on shutdown = %d, want 1", got)
	}
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.TrackSearch(SearchEvent{Queries: []string{"Chocolate", "stew"}, Returned: 3, LatencyMs: 10, Require: []string{"vegan"}})
	agg.TrackSearch(SearchEvent{Queries: []string{"chocolate ", "STEW"}, Returned: 2, LatencyMs: 20, CacheHit: true})
	agg.TrackSearch(SearchEvent{Queries: []string{"quinoa"}, Returned: 0, LatencyMs: 30, Corrections: 1, Require: []string{"vegan"}})
	agg.RecordIndex(IndexEvent{Source: "csv", Documents: 6})

	s := agg.Stats()
	if s.TotalSearches != 3 || s.CacheHits != 1 || s.CacheMisses != 2 {
		t.Errorf("totals = %+v", s)
	}
	if s.ZeroResultCount != 1 || s.Corrections != 1 || s.IndexBuilds != 1 {
		t.Errorf("zero=%d corrections=%d builds=%d", s.ZeroResultCount, s.Corrections, s.IndexBuilds)
	}
	if s.AvgLatencyMs != 20 || s.P50LatencyMs != 20 || s.P99LatencyMs != 30 {
		t.Errorf("latency avg=%v p50=%d p99=%d", s.AvgLatencyMs, s.P50LatencyMs, s.P99LatencyMs)
	}
	if len(s.TopQueries) != 2 || s.TopQueries[0] != (QueryCount{Query: "chocolate | stew", Count: 2}) {
		t.Errorf("top queries = %+v", s.TopQueries)
	}
	if len(s.ZeroResultQueries) != 1 || s.ZeroResultQueries[0].Query != "quinoa" {
		t.Errorf("zero result queries = %+v", s.ZeroResultQueries)
	}
	if len(s.TopFilters) != 1 || s.TopFilters[0] != (QueryCount{Query: "vegan", Count: 2}) {
		t.Errorf("top filters = %+v", s.TopFilters)
	}
	if s.LastIndexBuild == nil || s.LastIndexBuild.Source != "csv" || s.LastIndexBuild.Type != EventIndexBuild {
		t.Errorf("last index build = %+v", s.LastIndexBuild)
	}
}

func TestAggregatorLatencyBufferIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+50; i++ {
		agg.TrackSearch(SearchEvent{Queries: []string{"x"}, Returned: 1, LatencyMs: 1})
	}
	if len(agg.latencies) != maxLatencySamples {
		t.Errorf("latency samples = %d, want %d", len(agg.latencies), maxLatencySamples)
	}
}

func TestAggregatorRestore(t *testing.T) {
	agg := NewAggregator()
	agg.Restore(AggregatedStats{
		TotalSearches: 40,
		CacheHits:     10,
		TopQueries:    []QueryCount{{Query: "stew", Count: 7}},
	})
	agg.TrackSearch(SearchEvent{Queries: []string{"stew"}, Returned: 1})
	s := agg.Stats()
	if s.TotalSearches != 41 || s.CacheHits != 10 {
		t.Errorf("restored totals = %+v", s)
	}
	if s.TopQueries[0] != (QueryCount{Query: "stew", Count: 8}) {
		t.Errorf("top query = %+v", s.TopQueries[0])
	}
}

func TestHandleEventDispatchesByType(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	search, _ := json.Marshal(SearchEvent{Type: EventZeroResult, Queries: []string{"quinoa"}})
	index, _ := json.Marshal(IndexEvent{Type: EventIndexBuild, Source: "sqlite", Documents: 3})
	for _, msg := range [][]byte{search, index, []byte("not json"), []byte(`{"type":"mystery"}`)} {
		if err := handle(ctx, nil, msg); err != nil {
			t.Fatalf("handler returned %v", err)
		}
	}
	s := agg.Stats()
	if s.TotalSearches != 1 || s.ZeroResultCount != 1 {
		t.Errorf("search totals = %+v", s)
	}
	if s.IndexBuilds != 1 || s.LastIndexBuild.Documents != 3 {
		t.Errorf("index builds = %d last = %+v", s.IndexBuilds, s.LastIndexBuild)
	}
}

func TestQueryKey(t *testing.T) {
	if got := QueryKey([]string{"  Beef   Stew ", "", "cake"}); got != "beef stew | cake" {
		t.Errorf("QueryKey = %q", got)
	}
}

func TestAggregatorRestoreRestartsRateWindow(t *testing.T) {
	restoredAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := restoredAt
	agg := NewAggregator()
	agg.now = func() time.Time { return now }
	agg.Restore(AggregatedStats{TotalSearches: 6000})

	now = restoredAt.Add(2 * time.Minute)
	for i := 0; i < 4; i++ {
		agg.TrackSearch(SearchEvent{Queries: []string{"stew"}, Returned: 1})
	}
	s := agg.Stats()
	if s.TotalSearches != 6004 {
		t.Errorf("total searches = %d, want 6004", s.TotalSearches)
	}
	if s.QueriesPerMinute != 2 {
		t.Errorf("queries per minute = %v, want 2 (restored totals excluded)", s.QueriesPerMinute)
	}
	if !s.Since.Equal(restoredAt) {
		t.Errorf("since = %v, want %v", s.Since, restoredAt)
	}
}

func TestAggregatorStatsTop(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"a", "b", "b", "c", "c", "c"} {
		agg.TrackSearch(SearchEvent{Queries: []string{q}, Returned: 0})
	}
	s := agg.StatsTop(2)
	if len(s.TopQueries) != 2 || s.TopQueries[0].Query != "c" || s.TopQueries[1].Query != "b" {
		t.Errorf("top 2 = %+v", s.TopQueries)
	}
	if len(s.ZeroResultQueries) != 2 {
		t.Errorf("zero result top 2 = %+v", s.ZeroResultQueries)
	}
	if got := agg.StatsTop(0).TopQueries; len(got) != 1 {
		t.Errorf("top clamped to 1, got %+v", got)
	}
}

type fakeLister struct {
	limit int
	list  []AggregatedStats
	err   error
}

func (f *fakeLister) ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.list, f.err
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandlerServesStats(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"stew", "cake", "cake"} {
		agg.TrackSearch(SearchEvent{Queries: []string{q}, Returned: 1})
	}
	h := NewHandler(agg, nil)

	rec := serve(h, "/api/v1/analytics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var s AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.TotalSearches != 3 || len(s.TopQueries) != 2 {
		t.Errorf("stats = %+v", s)
	}

	rec = serve(h, "/api/v1/analytics?top=1")
	s = AggregatedStats{}
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if len(s.TopQueries) != 1 || s.TopQueries[0] != (QueryCount{Query: "cake", Count: 2}) {
		t.Errorf("top=1 queries = %+v", s.TopQueries)
	}

	for _, bad := range []string{"0", "abc", "101"} {
		if rec := serve(h, "/api/v1/analytics?top="+bad); rec.Code != http.StatusBadRequest {
			t.Errorf("top=%s status = %d, want 400", bad, rec.Code)
		}
	}
	if rec := serve(h, "/api/v1/analytics/snapshots"); rec.Code != http.StatusNotFound {
		t.Errorf("snapshots without a lister status = %d, want 404", rec.Code)
	}
}

func TestHandlerServesSnapshots(t *testing.T) {
	lister := &fakeLister{list: []AggregatedStats{{TotalSearches: 9}, {TotalSearches: 4}}}
	h := NewHandler(NewAggregator(), lister)

	rec := serve(h, "/api/v1/analytics/snapshots?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Snapshots []AggregatedStats `json:"snapshots"`
		Count     int               `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if lister.limit != 2 || body.Count != 2 || body.Snapshots[0].TotalSearches != 9 {
		t.Errorf("limit = %d body = %+v", lister.limit, body)
	}

	serve(h, "/api/v1/analytics/snapshots")
	if lister.limit != defaultSnapshotLimit {
		t.Errorf("default limit = %d", lister.limit)
	}

	lister.err = errors.New("disk I/O error")
	if rec := serve(h, "/api/v1/analytics/snapshots"); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing lister status = %d, want 500", rec.Code)
	}
}
