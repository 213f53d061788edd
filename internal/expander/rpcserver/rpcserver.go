// Package rpcserver exposes the expansion registry over the internal
// JSON-over-TCP RPC transport so sibling services and tooling can query
// it without going through the public HTTP surface.
package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/cache"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/engine"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/rpc"
)

// Register wires the Expander RPC methods onto the server. qc and m may
// be nil.
func Register(s *rpc.Server, eng *engine.Engine, qc *cache.Cache, m *metrics.Metrics) {
	started := time.Now()
	s.Register("Expander.Expand", Expand(eng, m))
	s.Register("Expander.Stats", Stats(eng, qc, m, started))
	s.Register("Health.Check", HealthCheck(eng, m))
}

// Expand returns the handler for Expander.Expand: look up the expansion
// for a query and return its top weighted terms.
func Expand(eng *engine.Engine, m *metrics.Metrics) rpc.HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var req proto.ExpandRequest
		if err := json.Unmarshal(params, &req); err != nil {
			countRPC(m, "Expander.Expand", "error")
			return nil, fmt.Errorf("decoding expand request: %w", err)
		}

		start := time.Now()
		rec, err := eng.Lookup(req.Query)
		if err != nil {
			countRPC(m, "Expander.Expand", "error")
			return nil, err
		}

		entries := expander.TopEntries(rec.Terms, int(req.Limit))
		terms := make([]proto.TermWeight, len(entries))
		for i, e := range entries {
			terms[i] = proto.TermWeight{Term: e.Term, Weight: e.Weight}
		}

		countRPC(m, "Expander.Expand", "ok")
		return proto.ExpandResponse{
			Query:      rec.SourceQuery,
			Terms:      terms,
			Bound:      int32(rec.Terms.Bound()),
			TotalTerms: int32(rec.Terms.Size()),
			Source:     rec.Source,
			LatencyMs:  time.Since(start).Milliseconds(),
		}, nil
	}
}

// Stats returns the handler for Expander.Stats: registry size per shard
// plus cache counters when a cache is attached.
func Stats(eng *engine.Engine, qc *cache.Cache, m *metrics.Metrics, started time.Time) rpc.HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		st := eng.Stats()
		shards := make([]proto.ShardCount, len(st.ShardSizes))
		for i, n := range st.ShardSizes {
			shards[i] = proto.ShardCount{Shard: int32(i), Entries: int64(n)}
		}

		resp := proto.StatsResponse{
			Entries:       int64(st.Entries),
			Shards:        shards,
			UptimeSeconds: int64(time.Since(started).Seconds()),
		}
		if qc != nil {
			resp.CacheHits, resp.CacheMisses = qc.Stats()
		}

		countRPC(m, "Expander.Stats", "ok")
		return resp, nil
	}
}

// HealthCheck reports SERVING once the engine has loaded its snapshots.
func HealthCheck(eng *engine.Engine, m *metrics.Metrics) rpc.HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		status := "SERVING"
		if !eng.Ready() {
			status = "NOT_SERVING"
		}
		countRPC(m, "Health.Check", "ok")
		return proto.HealthCheckResponse{Status: status}, nil
	}
}

func countRPC(m *metrics.Metrics, method, status string) {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
}
