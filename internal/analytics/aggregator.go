package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/kafka"
)

const (
	maxLatencySamples = 10000

	DefaultTopQueries = 10
	MaxTopQueries     = 100
	topFilters        = 5
)

// AggregatedStats is the aggregate served by the analytics endpoint and
// saved in snapshots. QueriesPerMinute covers searches since Since, which is
// the process start or the last restore.
type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	IndexBuilds       int64        `json:"index_builds"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	Corrections       int64        `json:"spell_corrections"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	TopFilters        []QueryCount `json:"top_filters"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Since             time.Time    `json:"since"`
	LastIndexBuild    *IndexEvent  `json:"last_index_build,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals of search and index events. Safe for
// concurrent use.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	windowSearches    int64
	indexBuilds       int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	corrections       int64
	latencies         []int64
	nextLatency       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	filterCounts      map[string]int64
	lastIndexBuild    *IndexEvent
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		filterCounts:      make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes search and index events from the analytics topic.
// Undecodable messages are logged and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var env envelope
		if err := json.Unmarshal(value, &env); err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventIndexBuild:
			event, err := kafka.DecodeJSON[IndexEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode index event", "error", err)
				return nil
			}
			agg.RecordIndex(event)
		case EventSearch, EventZeroResult:
			event, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode search event", "error", err)
				return nil
			}
			agg.TrackSearch(event)
		default:
			agg.logger.Warn("unknown analytics event type", "type", env.Type)
		}
		return nil
	}
}

// TrackSearch records a search event.
func (a *Aggregator) TrackSearch(event SearchEvent) {
	query := QueryKey(event.Queries)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	a.windowSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.corrections += int64(event.Corrections)
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.nextLatency] = event.LatencyMs
		a.nextLatency = (a.nextLatency + 1) % maxLatencySamples
	}
	if query != "" {
		a.queryCounts[query]++
	}
	if event.Returned == 0 {
		a.zeroResults++
		if query != "" {
			a.zeroResultQueries[query]++
		}
	}
	for _, f := range event.Require {
		a.filterCounts[f]++
	}
}

func (a *Aggregator) RecordIndex(event IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.indexBuilds++
	e := event.normalize()
	a.lastIndexBuild = &e
}

// Restore seeds the counters from a saved snapshot. Latency samples are not
// part of a snapshot and start empty, and the queries-per-minute window
// restarts so restored totals do not count as recent traffic.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches = s.TotalSearches
	a.windowSearches = 0
	a.startTime = a.now()
	a.indexBuilds = s.IndexBuilds
	a.cacheHits = s.CacheHits
	a.cacheMisses = s.CacheMisses
	a.zeroResults = s.ZeroResultCount
	a.corrections = s.Corrections
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] = q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] = q.Count
	}
	for _, f := range s.TopFilters {
		a.filterCounts[f.Query] = f.Count
	}
	a.lastIndexBuild = s.LastIndexBuild
}

// Stats returns the current totals with the default number of top queries.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTopQueries)
}

// StatsTop returns the current totals with up to n entries in the top and
// zero-result query lists. n is clamped to 1..MaxTopQueries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	n = min(max(n, 1), MaxTopQueries)

	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		IndexBuilds:     a.indexBuilds,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		Corrections:     a.corrections,
		Since:           a.startTime.UTC(),
		LastIndexBuild:  a.lastIndexBuild,
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	stats.TopFilters = topN(a.filterCounts, topFilters)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.windowSearches) / elapsed
	}
	return stats
}

// QueryKey is the form a multi-query request is counted under.
func QueryKey(queries []string) string {
	parts := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.Join(strings.Fields(strings.ToLower(q)), " "); q != "" {
			parts = append(parts, q)
		}
	}
	return strings.Join(parts, " | ")
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
