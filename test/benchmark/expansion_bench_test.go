package benchmark

import (
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/codec"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/engine"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/querybuilder"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
)

func makeSet(n int) expansion.ResultSet {
	entries := make([]expansion.Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = expansion.Entry{
			Term:   fmt.Sprintf("term-%04d", i),
			Weight: float64(n - i),
		}
	}
	return expansion.New(entries, n+n/2)
}

func makeRecord(key string, terms int) expander.Record {
	now := time.Unix(1700000000, 0).UTC()
	return expander.Record{
		QueryKey:    key,
		SourceQuery: key,
		Terms:       makeSet(terms),
		Source:      expander.SourceOffline,
		ComputedAt:  now,
		UpdatedAt:   now,
	}
}

// BenchmarkCursorWalk measures a full forward walk over result sets of
// varying sizes.
func BenchmarkCursorWalk(b *testing.B) {
	sizes := []int{10, 100, 1000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("terms_%d", n), func(b *testing.B) {
			set := makeSet(n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var sum float64
				for c := set.Begin(); !c.Equal(set.End()); c.Next() {
					sum += c.Weight()
				}
				_ = sum
			}
		})
	}
}

// BenchmarkCursorWalkBackward measures a reverse walk from the last entry
// down to the first.
func BenchmarkCursorWalkBackward(b *testing.B) {
	set := makeSet(1000)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var sum float64
		for c := set.Back(); ; c.Prev() {
			sum += c.Weight()
			if c.Equal(set.Begin()) {
				break
			}
		}
		_ = sum
	}
}

// BenchmarkResultSetCopy measures handle copying, which shares the backing
// entries rather than cloning them.
func BenchmarkResultSetCopy(b *testing.B) {
	set := makeSet(1000)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		dup := set
		_ = dup.Size()
	}
}

// BenchmarkQueryKey measures query normalization for queries of varying
// shapes.
func BenchmarkQueryKey(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "big cat"},
		{"mixed_case", "  Big   CAT  sightings "},
		{"long", "machine learning query expansion relevance feedback information retrieval ranking"},
	}

	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				key := expander.QueryKey(q.query)
				_ = key
			}
		})
	}
}

// BenchmarkCodecRoundTrip measures CBOR encode+decode of a single record
// for varying term counts.
func BenchmarkCodecRoundTrip(b *testing.B) {
	sizes := []int{10, 50}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("terms_%d", n), func(b *testing.B) {
			rec := makeRecord("big cat", n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				data, err := codec.EncodeRecord(rec)
				if err != nil {
					b.Fatal(err)
				}
				decoded, err := codec.DecodeRecord(data)
				if err != nil {
					b.Fatal(err)
				}
				_ = decoded
			}
		})
	}
}

// BenchmarkSnapshotEncode measures encoding a full shard snapshot.
func BenchmarkSnapshotEncode(b *testing.B) {
	sizes := []int{100, 1000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("records_%d", n), func(b *testing.B) {
			recs := make([]expander.Record, n)
			for i := 0; i < n; i++ {
				recs[i] = makeRecord(fmt.Sprintf("query %d", i), 20)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				data, err := codec.EncodeRecords(recs)
				if err != nil {
					b.Fatal(err)
				}
				_ = data
			}
		})
	}
}

func newBenchEngine(b *testing.B, entries int) *engine.Engine {
	b.Helper()
	cfg := config.ExpanderConfig{
		Shards:           4,
		SnapshotDir:      b.TempDir(),
		SnapshotInterval: time.Hour,
		MaxTerms:         50,
		DefaultLimit:     20,
	}
	eng, err := engine.New(cfg, nil)
	if err != nil {
		b.Fatal(err)
	}
	if err := eng.LoadSnapshots(); err != nil {
		b.Fatal(err)
	}
	for i := 0; i < entries; i++ {
		eng.Register(makeRecord(fmt.Sprintf("query %d", i), 20))
	}
	return eng
}

// BenchmarkEngineLookup measures registry hit latency at varying registry
// sizes.
func BenchmarkEngineLookup(b *testing.B) {
	sizes := []int{1000, 10000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("entries_%d", n), func(b *testing.B) {
			eng := newBenchEngine(b, n)
			defer eng.Close()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rec, err := eng.Lookup(fmt.Sprintf("query %d", i%n))
				if err != nil {
					b.Fatal(err)
				}
				_ = rec
			}
		})
	}
}

// BenchmarkEngineLookupParallel measures concurrent lookup throughput
// across the sharded registry.
func BenchmarkEngineLookupParallel(b *testing.B) {
	const entries = 10000
	eng := newBenchEngine(b, entries)
	defer eng.Close()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			rec, err := eng.Lookup(fmt.Sprintf("query %d", i%entries))
			if err != nil {
				b.Fatal(err)
			}
			_ = rec
			i++
		}
	})
}

// BenchmarkEngineRegister measures registration throughput including
// shard routing and replacement.
func BenchmarkEngineRegister(b *testing.B) {
	eng := newBenchEngine(b, 0)
	defer eng.Close()

	rec := makeRecord("register target", 20)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec.QueryKey = fmt.Sprintf("query %d", i%5000)
		eng.Register(rec)
	}
}

// BenchmarkQueryRewrite measures OR-rewrite construction from a result
// set.
func BenchmarkQueryRewrite(b *testing.B) {
	sizes := []int{5, 20, 50}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("terms_%d", n), func(b *testing.B) {
			builder := querybuilder.Builder{MaxTerms: n}
			set := makeSet(n * 2)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rewritten := builder.Build("big cat", set)
				_ = rewritten
			}
		})
	}
}

// BenchmarkTopEntries measures extracting the top-n slice from a result
// set.
func BenchmarkTopEntries(b *testing.B) {
	set := makeSet(100)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		top := expander.TopEntries(set, 10)
		_ = top
	}
}
