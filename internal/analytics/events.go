// Package analytics collects expansion lookup and feedback activity events,
// ships them through Kafka, and aggregates them into service-level stats.
package analytics

import "time"

type EventType string

const (
	EventExpand      EventType = "expand"
	EventCacheHit    EventType = "cache_hit"
	EventCacheMiss   EventType = "cache_miss"
	EventNoExpansion EventType = "no_expansion"
	EventFeedback    EventType = "feedback"
)

// ExpandEvent records one expansion lookup served by the expander.
type ExpandEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	QueryKey  string    `json:"query_key"`
	TermCount int       `json:"term_count"`
	Bound     int       `json:"bound"`
	Source    string    `json:"source"`
	CacheHit  bool      `json:"cache_hit"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// FeedbackActivityEvent records one accepted relevance feedback submission.
type FeedbackActivityEvent struct {
	Type       EventType `json:"type"`
	FeedbackID string    `json:"feedback_id"`
	Query      string    `json:"query"`
	DocCount   int       `json:"doc_count"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}
