package rpcserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/engine"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/rpc"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.ExpanderConfig{
		Shards:           2,
		SnapshotDir:      t.TempDir(),
		SnapshotInterval: time.Minute,
		MaxTerms:         8,
		DefaultLimit:     5,
	}
	eng, err := engine.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, eng.LoadSnapshots())
	t.Cleanup(func() { eng.Close() })
	return eng
}

func record(query string, terms ...string) expander.Record {
	entries := make([]expansion.Entry, 0, len(terms))
	for i, term := range terms {
		entries = append(entries, expansion.Entry{Term: term, Weight: float64(len(terms) - i)})
	}
	now := time.Now().UTC()
	return expander.Record{
		QueryKey:    expander.QueryKey(query),
		SourceQuery: query,
		Terms:       expansion.New(entries, len(entries)+2),
		Source:      expander.SourceOffline,
		ComputedAt:  now,
		UpdatedAt:   now,
	}
}

func call(t *testing.T, fn rpc.HandlerFunc, params any) (any, error) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return fn(context.Background(), raw)
}

func TestExpandReturnsTopTerms(t *testing.T) {
	eng := newEngine(t)
	eng.Register(record("big cat", "feline", "tiger", "lion"))

	out, err := call(t, Expand(eng, nil), proto.ExpandRequest{Query: "big cat", Limit: 2})
	require.NoError(t, err)

	resp, ok := out.(proto.ExpandResponse)
	require.True(t, ok)
	assert.Equal(t, "big cat", resp.Query)
	assert.Equal(t, int32(5), resp.Bound)
	assert.Equal(t, int32(3), resp.TotalTerms)
	require.Len(t, resp.Terms, 2)
	assert.Equal(t, "feline", resp.Terms[0].Term)
	assert.Equal(t, "tiger", resp.Terms[1].Term)
	assert.Equal(t, expander.SourceOffline, resp.Source)
}

func TestExpandZeroLimitReturnsAllTerms(t *testing.T) {
	eng := newEngine(t)
	eng.Register(record("big cat", "feline", "tiger", "lion"))

	out, err := call(t, Expand(eng, nil), proto.ExpandRequest{Query: "big cat"})
	require.NoError(t, err)

	resp := out.(proto.ExpandResponse)
	assert.Len(t, resp.Terms, 3)
}

func TestExpandUnknownQuery(t *testing.T) {
	eng := newEngine(t)

	_, err := call(t, Expand(eng, nil), proto.ExpandRequest{Query: "nothing here"})
	assert.ErrorIs(t, err, apperrors.ErrExpansionNotFound)
}

func TestExpandRejectsMalformedParams(t *testing.T) {
	eng := newEngine(t)

	_, err := Expand(eng, nil)(context.Background(), json.RawMessage(`{"query":`))
	assert.Error(t, err)
}

func TestStatsCountsEntries(t *testing.T) {
	eng := newEngine(t)
	eng.Register(record("big cat", "feline"))
	eng.Register(record("fast car", "automobile"))

	out, err := call(t, Stats(eng, nil, nil, time.Now().Add(-2*time.Second)), proto.StatsRequest{})
	require.NoError(t, err)

	resp, ok := out.(proto.StatsResponse)
	require.True(t, ok)
	assert.Equal(t, int64(2), resp.Entries)
	assert.Len(t, resp.Shards, 2)

	var total int64
	for _, sc := range resp.Shards {
		total += sc.Entries
	}
	assert.Equal(t, int64(2), total)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(2))
}

func TestHealthCheckTracksReadiness(t *testing.T) {
	cfg := config.ExpanderConfig{
		Shards:           2,
		SnapshotDir:      t.TempDir(),
		SnapshotInterval: time.Minute,
		MaxTerms:         8,
		DefaultLimit:     5,
	}
	eng, err := engine.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	out, err := call(t, HealthCheck(eng, nil), proto.StatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, "NOT_SERVING", out.(proto.HealthCheckResponse).Status)

	require.NoError(t, eng.LoadSnapshots())

	out, err = call(t, HealthCheck(eng, nil), proto.StatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, "SERVING", out.(proto.HealthCheckResponse).Status)
}

func TestRegisterWiresAllMethods(t *testing.T) {
	eng := newEngine(t)
	srv := rpc.NewServer(time.Second)

	Register(srv, eng, nil, nil)

	assert.Equal(t, 3, srv.MethodCount())
}
