package analytics

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expandEventBytes(t *testing.T, event ExpandEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

func TestRecordExpandEvents(t *testing.T) {
	agg := NewAggregator(nil, 100, 5)
	handler := HandleEvent(agg)

	events := []ExpandEvent{
		{Type: EventExpand, Query: "cat", TermCount: 5, CacheHit: true, LatencyMs: 2},
		{Type: EventExpand, Query: "cat", TermCount: 5, CacheHit: false, LatencyMs: 10},
		{Type: EventExpand, Query: "dog", TermCount: 3, CacheHit: false, LatencyMs: 4},
		{Type: EventNoExpansion, Query: "xyzzy", TermCount: 0, CacheHit: false, LatencyMs: 1},
	}
	for _, event := range events {
		require.NoError(t, handler(context.Background(), nil, expandEventBytes(t, event)))
	}

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalLookups)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.NoExpansionCount)
	assert.InDelta(t, 4.25, stats.AvgLatencyMs, 0.001)

	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, "cat", stats.TopQueries[0].Query)
	assert.Equal(t, int64(2), stats.TopQueries[0].Count)

	require.Len(t, stats.NoExpansionQueries, 1)
	assert.Equal(t, "xyzzy", stats.NoExpansionQueries[0].Query)
}

func TestRecordFeedbackEvents(t *testing.T) {
	agg := NewAggregator(nil, 100, 5)
	handler := HandleEvent(agg)

	event := FeedbackActivityEvent{
		Type:       EventFeedback,
		FeedbackID: "fb-1",
		Query:      "cat",
		DocCount:   3,
		Timestamp:  time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), nil, data))
	require.NoError(t, handler(context.Background(), nil, data))

	stats := agg.Stats()
	assert.Equal(t, int64(2), stats.FeedbackCount)
	assert.Equal(t, int64(0), stats.TotalLookups)
}

func TestHandleEventMalformed(t *testing.T) {
	agg := NewAggregator(nil, 100, 5)
	handler := HandleEvent(agg)

	assert.NoError(t, handler(context.Background(), nil, []byte("{nope")))
	assert.Equal(t, int64(0), agg.Stats().TotalLookups)
}

func TestLatencyReservoirBounded(t *testing.T) {
	agg := NewAggregator(nil, 50, 5)
	handler := HandleEvent(agg)

	for i := 0; i < 500; i++ {
		event := ExpandEvent{Type: EventExpand, Query: "q", TermCount: 1, LatencyMs: int64(i)}
		require.NoError(t, handler(context.Background(), nil, expandEventBytes(t, event)))
	}

	agg.mu.RLock()
	sampled := len(agg.latencies)
	agg.mu.RUnlock()
	assert.Equal(t, 50, sampled)

	stats := agg.Stats()
	assert.Equal(t, int64(500), stats.TotalLookups)
	assert.GreaterOrEqual(t, stats.P99LatencyMs, stats.P50LatencyMs)
}

func TestTopQueriesBounded(t *testing.T) {
	agg := NewAggregator(nil, 100, 3)
	handler := HandleEvent(agg)

	for _, query := range []string{"a", "a", "a", "b", "b", "c", "d", "e"} {
		event := ExpandEvent{Type: EventExpand, Query: query, TermCount: 1}
		require.NoError(t, handler(context.Background(), nil, expandEventBytes(t, event)))
	}

	stats := agg.Stats()
	require.Len(t, stats.TopQueries, 3)
	assert.Equal(t, "a", stats.TopQueries[0].Query)
	assert.Equal(t, int64(3), stats.TopQueries[0].Count)
	assert.Equal(t, "b", stats.TopQueries[1].Query)
}

func TestRestore(t *testing.T) {
	agg := NewAggregator(nil, 100, 5)
	agg.Restore(AggregatedStats{
		TotalLookups:  120,
		CacheHits:     80,
		CacheMisses:   40,
		FeedbackCount: 7,
		TopQueries:    []QueryCount{{Query: "cat", Count: 50}},
	})

	stats := agg.Stats()
	assert.Equal(t, int64(120), stats.TotalLookups)
	assert.Equal(t, int64(80), stats.CacheHits)
	assert.Equal(t, int64(7), stats.FeedbackCount)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, "cat", stats.TopQueries[0].Query)

	// New events continue on top of the restored counts.
	handler := HandleEvent(agg)
	event := ExpandEvent{Type: EventExpand, Query: "cat", TermCount: 2, LatencyMs: 3}
	require.NoError(t, handler(context.Background(), nil, expandEventBytes(t, event)))
	assert.Equal(t, int64(121), agg.Stats().TotalLookups)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator(nil, 100, 5)
	handler := HandleEvent(agg)
	event := ExpandEvent{Type: EventExpand, Query: "cat", TermCount: 2, CacheHit: true, LatencyMs: 3}
	require.NoError(t, handler(context.Background(), nil, expandEventBytes(t, event)))

	h := NewHandler(agg, nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest("GET", "/api/v1/analytics", nil))

	require.Equal(t, 200, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalLookups)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestSnapshotsHandlerWithoutStore(t *testing.T) {
	h := NewHandler(NewAggregator(nil, 10, 3), nil)
	rec := httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest("GET", "/api/v1/analytics/snapshots", nil))
	assert.Equal(t, 503, rec.Code)
}
