package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
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

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/rpc"
)

type Config struct {
	BaseURL     string
	RPCAddr     string
	Mode        string
	APIKey      string
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func (s *Stats) RecordCacheHit() {
	s.cacheHits.Add(1)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the expansion service")
	rpcAddr := flag.String("rpc-addr", "localhost:9000", "rpc address of the expansion service")
	mode := flag.String("mode", "http", "transport to exercise: http or rpc")
	apiKey := flag.String("api-key", "", "api key sent as X-API-Key (optional)")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	if *mode != "http" && *mode != "rpc" {
		fmt.Fprintf(os.Stderr, "invalid -mode %q: must be http or rpc\n", *mode)
		os.Exit(1)
	}

	queries := []string{
		"big cat",
		"fast car",
		"machine learning",
		"query expansion",
		"relevance feedback",
		"climate change",
		"solar energy",
		"quantum computing",
		"spicy food recipes",
		"vintage movie posters",
		"marathon training plan",
		"jazz piano chords",
		"home network setup",
		"mountain hiking trails",
		"stock market basics",
	}

	cfg := Config{
		BaseURL:     *baseURL,
		RPCAddr:     *rpcAddr,
		Mode:        *mode,
		APIKey:      *apiKey,
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     queries,
	}

	fmt.Println("=== Expansion Service Load Test ===")
	if cfg.Mode == "rpc" {
		fmt.Printf("Target:      %s (rpc)\n", cfg.RPCAddr)
	} else {
		fmt.Printf("Target:      %s\n", cfg.BaseURL)
	}
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
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

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if cfg.Mode == "rpc" {
				runRPCWorker(ctx, cfg, stats, workerID)
				return
			}
			runHTTPWorker(ctx, cfg, client, stats, workerID)
		}(w)
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

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func runHTTPWorker(ctx context.Context, cfg Config, client *http.Client, stats *Stats, workerID int) {
	queryIdx := workerID

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		query := cfg.Queries[queryIdx%len(cfg.Queries)]
		queryIdx++

		expandURL := fmt.Sprintf("%s/api/v1/expand?q=%s&limit=10",
			cfg.BaseURL, url.QueryEscape(query))

		start := time.Now()
		resp, err := client.Do(mustNewRequest(ctx, expandURL, cfg.APIKey))
		duration := time.Since(start)

		if err != nil {
			stats.RecordRequest(duration, 0, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var body struct {
				CacheHit bool `json:"cache_hit"`
			}
			if json.NewDecoder(resp.Body).Decode(&body) == nil && body.CacheHit {
				stats.RecordCacheHit()
			}
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		stats.RecordRequest(duration, resp.StatusCode, nil)
	}
}

func runRPCWorker(ctx context.Context, cfg Config, stats *Stats, workerID int) {
	// One connection per worker: Call serializes on the connection.
	client, err := rpc.DialTimeout(cfg.RPCAddr, 10*time.Second)
	if err != nil {
		stats.RecordRequest(0, 0, err)
		return
	}
	defer func() { client.Close() }()

	queryIdx := workerID

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		query := cfg.Queries[queryIdx%len(cfg.Queries)]
		queryIdx++

		var resp proto.ExpandResponse
		start := time.Now()
		err := client.Call("Expander.Expand", proto.ExpandRequest{Query: query, Limit: 10}, &resp)
		duration := time.Since(start)

		if err != nil {
			stats.RecordRequest(duration, 0, err)
			if errors.Is(err, rpc.ErrClientBroken) {
				client.Close()
				client, err = rpc.DialTimeout(cfg.RPCAddr, 10*time.Second)
				if err != nil {
					return
				}
			}
			continue
		}
		stats.RecordRequest(duration, http.StatusOK, nil)
	}
}

func mustNewRequest(ctx context.Context, rawURL, apiKey string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()
	cacheHits := stats.cacheHits.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}
	if cacheHits > 0 && success > 0 {
		hitRate := float64(cacheHits) / float64(success) * 100
		fmt.Printf("Cache Hits:      %d (%.1f%% of successes)\n", cacheHits, hitRate)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

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
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

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
