package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/kafka"
)

// AggregatedStats is the JSON shape served by the analytics endpoints and
// persisted by the snapshot store.
type AggregatedStats struct {
	TotalLookups       int64        `json:"total_lookups"`
	CacheHits          int64        `json:"cache_hits"`
	CacheMisses        int64        `json:"cache_misses"`
	NoExpansionCount   int64        `json:"no_expansion_count"`
	FeedbackCount      int64        `json:"feedback_count"`
	AvgLatencyMs       float64      `json:"avg_latency_ms"`
	P50LatencyMs       int64        `json:"p50_latency_ms"`
	P95LatencyMs       int64        `json:"p95_latency_ms"`
	P99LatencyMs       int64        `json:"p99_latency_ms"`
	TopQueries         []QueryCount `json:"top_queries"`
	NoExpansionQueries []QueryCount `json:"no_expansion_queries"`
	LookupsPerMinute   float64      `json:"lookups_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds the analytics event stream into in-memory counters, a
// bounded latency sample, and per-query counts.
type Aggregator struct {
	mu                 sync.RWMutex
	totalLookups       atomic.Int64
	cacheHits          atomic.Int64
	cacheMisses        atomic.Int64
	noExpansions       atomic.Int64
	feedbackCount      atomic.Int64
	latencies          []int64
	latencySeen        int64
	sampleSize         int
	topQueries         int
	queryCounts        map[string]int64
	noExpansionQueries map[string]int64
	startTime          time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator reading from the given consumer.
// sampleSize bounds the latency reservoir; topQueries bounds the ranked
// query lists.
func NewAggregator(consumer *kafka.Consumer, sampleSize, topQueries int) *Aggregator {
	if sampleSize <= 0 {
		sampleSize = 10000
	}
	if topQueries <= 0 {
		topQueries = 10
	}
	return &Aggregator{
		latencies:          make([]int64, 0, sampleSize),
		sampleSize:         sampleSize,
		topQueries:         topQueries,
		queryCounts:        make(map[string]int64),
		noExpansionQueries: make(map[string]int64),
		startTime:          time.Now(),
		consumer:           consumer,
		logger:             slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start begins consuming analytics events. It blocks until ctx is
// cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent returns a Kafka MessageHandler that dispatches events to the
// aggregator by their type field. Undecodable events are logged and
// skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var probe struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &probe); err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}

		switch probe.Type {
		case EventFeedback:
			event, err := kafka.DecodeJSON[FeedbackActivityEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode feedback event", "error", err)
				return nil
			}
			agg.recordFeedbackEvent(event)
		default:
			event, err := kafka.DecodeJSON[ExpandEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode expand event", "error", err)
				return nil
			}
			agg.recordExpandEvent(event)
		}
		return nil
	}
}

func (a *Aggregator) recordExpandEvent(event ExpandEvent) {
	a.totalLookups.Add(1)

	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.TermCount == 0 {
		a.noExpansions.Add(1)
	}

	a.mu.Lock()
	a.sampleLatency(event.LatencyMs)
	a.queryCounts[event.Query]++
	if event.TermCount == 0 {
		a.noExpansionQueries[event.Query]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordFeedbackEvent(event FeedbackActivityEvent) {
	a.feedbackCount.Add(1)
}

// sampleLatency keeps a uniform reservoir of at most sampleSize latencies.
// Caller holds a.mu.
func (a *Aggregator) sampleLatency(ms int64) {
	a.latencySeen++
	if len(a.latencies) < a.sampleSize {
		a.latencies = append(a.latencies, ms)
		return
	}
	if idx := rand.Int63n(a.latencySeen); idx < int64(a.sampleSize) {
		a.latencies[idx] = ms
	}
}

// Stats returns a consistent view of the aggregated counters.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalLookups:     a.totalLookups.Load(),
		CacheHits:        a.cacheHits.Load(),
		CacheMisses:      a.cacheMisses.Load(),
		NoExpansionCount: a.noExpansions.Load(),
		FeedbackCount:    a.feedbackCount.Load(),
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

	stats.TopQueries = topN(a.queryCounts, a.topQueries)
	stats.NoExpansionQueries = topN(a.noExpansionQueries, a.topQueries)

	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.LookupsPerMinute = float64(stats.TotalLookups) / elapsed
	}
	return stats
}

// Restore seeds the counters and query counts from a persisted snapshot.
// Latency percentiles are not restorable from a snapshot and restart
// empty.
func (a *Aggregator) Restore(stats AggregatedStats) {
	a.totalLookups.Store(stats.TotalLookups)
	a.cacheHits.Store(stats.CacheHits)
	a.cacheMisses.Store(stats.CacheMisses)
	a.noExpansions.Store(stats.NoExpansionCount)
	a.feedbackCount.Store(stats.FeedbackCount)

	a.mu.Lock()
	for _, qc := range stats.TopQueries {
		a.queryCounts[qc.Query] = qc.Count
	}
	for _, qc := range stats.NoExpansionQueries {
		a.noExpansionQueries[qc.Query] = qc.Count
	}
	a.mu.Unlock()

	a.logger.Info("aggregator state restored",
		"total_lookups", stats.TotalLookups,
		"feedback_count", stats.FeedbackCount,
	)
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
