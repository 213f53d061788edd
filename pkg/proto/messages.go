// Package proto defines the shared message types used for internal RPC
// communication between services.
//
// The types carry JSON struct tags for serialization over the lightweight
// JSON-over-TCP RPC layer (see pkg/rpc).
package proto

// ---------- Common ----------

// TermWeight is a single expansion term with its relevance weight.
type TermWeight struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// ---------- Expand ----------

// ExpandRequest is the input to the Expander.Expand RPC.
type ExpandRequest struct {
	Query string `json:"query"`
	Limit int32  `json:"limit"`
}

// ExpandResponse is the output of the Expander.Expand RPC.
type ExpandResponse struct {
	Query      string       `json:"query"`
	Terms      []TermWeight `json:"terms"`
	Bound      int32        `json:"bound"`
	TotalTerms int32        `json:"total_terms"`
	Source     string       `json:"source"`
	LatencyMs  int64        `json:"latency_ms"`
}

// ---------- Stats ----------

// StatsRequest is the input to the Expander.Stats RPC.
type StatsRequest struct{}

// ShardCount reports how many expansions one registry shard holds.
type ShardCount struct {
	Shard   int32 `json:"shard"`
	Entries int64 `json:"entries"`
}

// StatsResponse is the output of the Expander.Stats RPC.
type StatsResponse struct {
	Entries       int64        `json:"entries"`
	Shards        []ShardCount `json:"shards"`
	CacheHits     int64        `json:"cache_hits"`
	CacheMisses   int64        `json:"cache_misses"`
	UptimeSeconds int64        `json:"uptime_seconds"`
}
