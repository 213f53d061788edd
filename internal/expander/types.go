// Package expander defines the record and Kafka event types shared across
// the query-expansion pipeline, plus query-key normalization.
package expander

import (
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
)

// Expansion sources, recorded on each registered expansion.
const (
	SourceOffline  = "offline"
	SourceFeedback = "feedback"
	SourceSeed     = "seed"
)

// Record is a registered expansion for one normalized query.
type Record struct {
	QueryKey    string
	SourceQuery string
	Terms       expansion.ResultSet
	Source      string
	ComputedAt  time.Time
	UpdatedAt   time.Time
}

// ExpansionResultEvent is the Kafka message payload produced by the offline
// expansion jobs (and the seed tool) when a new term list is ready.
type ExpansionResultEvent struct {
	EventID    string            `json:"event_id"`
	Query      string            `json:"query"`
	Terms      []expansion.Entry `json:"terms"`
	Bound      int               `json:"bound"`
	Source     string            `json:"source"`
	ComputedAt time.Time         `json:"computed_at"`
}

// ExpandResult is the JSON shape returned by the expansion lookup endpoints.
type ExpandResult struct {
	Query      string            `json:"query"`
	Terms      []expansion.Entry `json:"terms"`
	Bound      int               `json:"bound"`
	TotalTerms int               `json:"total_terms"`
	Source     string            `json:"source"`
	CacheHit   bool              `json:"cache_hit"`
	LatencyMs  int64             `json:"latency_ms"`
}

// QueryKey normalizes a raw query into the canonical registry key:
// lowercased, whitespace-collapsed, tokens sorted. Token order does not
// change which expansion a query maps to.
func QueryKey(query string) string {
	tokens := strings.Fields(strings.ToLower(query))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TopEntries returns the first n entries of the result set in rank order.
// A non-positive n returns every entry.
func TopEntries(set expansion.ResultSet, n int) []expansion.Entry {
	if n <= 0 || n > set.Size() {
		n = set.Size()
	}
	out := make([]expansion.Entry, 0, n)
	for c := set.Begin(); !c.Equal(set.End()) && len(out) < n; c.Next() {
		out = append(out, c.Entry())
	}
	return out
}
