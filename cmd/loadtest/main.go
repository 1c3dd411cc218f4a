// Command loadtest drives a running recipe search service with a mix of
// legacy, GET and POST searches and reports throughput, latency percentiles,
// status codes and the zero-result rate.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Rate        float64
	Queries     [][]string
	Require     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	zeroResults   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]int64
	routes        map[string]int64
	mu            sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
		routes:      make(map[string]int64),
	}
}

func (s *Stats) Record(route string, duration time.Duration, statusCode int, zero bool, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
		if zero {
			s.zeroResults.Add(1)
		}
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.mu.Lock()
	s.statusCodes[statusCode]++
	s.routes[route]++
	s.mu.Unlock()
}

func main() {
	baseURL := pflag.String("url", "http://localhost:5000", "base URL of the recipe search service")
	concurrency := pflag.IntP("concurrency", "c", 10, "number of concurrent workers")
	duration := pflag.DurationP("duration", "d", 30*time.Second, "test duration")
	rps := pflag.Float64("rate", 0, "overall requests per second, 0 for unlimited")
	require := pflag.StringSlice("require", nil, "dietary attributes added to every search")
	pflag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Rate:        *rps,
		Require:     *require,
		Queries: [][]string{
			{"chocolate cake"},
			{"beef stew", "red wine"},
			{"vegan curry", "coconut milk", "chickpea"},
			{"lemon tart"},
			{"garlic bread", "tomato soup"},
			{"banana bread"},
			{"choclate chip cookies"},
			{"grilled chicken", "rice pilaf"},
			{"pumpkin pie", "cinnamon"},
			{"mushroom risotto"},
			{"quinoa salad", "feta"},
			{"pad thai"},
		},
	}

	fmt.Println("=== Recipe Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	if cfg.Rate > 0 {
		fmt.Printf("Rate:        %.0f req/s\n", cfg.Rate)
	}
	fmt.Printf("Searches:    %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

// buildRequest rotates between the legacy route, the GET API and the POST API.
func buildRequest(ctx context.Context, cfg Config, n int) (string, *http.Request, error) {
	queries := cfg.Queries[n%len(cfg.Queries)]
	switch n % 3 {
	case 0:
		v := url.Values{}
		for i, q := range queries {
			v.Set(fmt.Sprintf("title%d", i), q)
		}
		for _, attr := range cfg.Require {
			v.Set(attr, "true")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/recipes?"+v.Encode(), nil)
		return "legacy", req, err
	case 1:
		v := url.Values{"q": queries, "limit": {"10"}}
		for _, attr := range cfg.Require {
			v.Add("require", attr)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/recipes/search?"+v.Encode(), nil)
		return "get", req, err
	default:
		body, _ := json.Marshal(map[string]any{"queries": queries, "require": cfg.Require, "limit": 10})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/recipes/search", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return "post", req, err
	}
}

// zeroResult reports whether a successful response carried no recipes. The
// legacy route answers with a bare array, the API with an object.
func zeroResult(route string, body []byte) bool {
	if route == "legacy" {
		var out []json.RawMessage
		return json.Unmarshal(body, &out) == nil && len(out) == 0
	}
	var out struct {
		Recipes []json.RawMessage `json:"recipes"`
	}
	return json.Unmarshal(body, &out) == nil && len(out.Recipes) == 0
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for n := w; ; n += cfg.Concurrency {
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
				route, req, err := buildRequest(gctx, cfg, n)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				took := time.Since(start)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					stats.Record(route, took, 0, false, err)
					continue
				}
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				stats.Record(route, took, resp.StatusCode, zeroResult(route, body), nil)
			}
		})
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "\nload test aborted: %v\n", err)
	}
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Printf("Zero Results:    %.2f%%\n", float64(stats.zeroResults.Load())/float64(success)*100)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l) - float64(avg)
			sumSquared += diff * diff
		}
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	stats.mu.Lock()
	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}
	fmt.Println()
	fmt.Println("=== Routes ===")
	for _, route := range []string{"legacy", "get", "post"} {
		fmt.Printf("  %-7s %d\n", route+":", stats.routes[route])
	}
	stats.mu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
