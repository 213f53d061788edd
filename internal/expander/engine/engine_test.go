package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/errors"
)

func testConfig(t *testing.T) config.ExpanderConfig {
	t.Helper()
	return config.ExpanderConfig{
		Shards:           4,
		SnapshotDir:      t.TempDir(),
		SnapshotInterval: 50 * time.Millisecond,
		MaxTerms:         50,
		DefaultLimit:     20,
	}
}

func newEngine(t *testing.T, cfg config.ExpanderConfig) *Engine {
	t.Helper()
	e, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, e.LoadSnapshots())
	return e
}

func record(query string, terms ...string) expander.Record {
	entries := make([]expansion.Entry, len(terms))
	for i, term := range terms {
		entries[i] = expansion.Entry{Term: term, Weight: float64(len(terms) - i)}
	}
	return expander.Record{
		QueryKey:    expander.QueryKey(query),
		SourceQuery: query,
		Terms:       expansion.New(entries, len(terms)+1),
		Source:      expander.SourceOffline,
		ComputedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestRegisterAndLookup(t *testing.T) {
	e := newEngine(t, testConfig(t))

	replaced := e.Register(record("cat", "feline", "kitten"))
	assert.False(t, replaced)

	rec, err := e.Lookup("cat")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Terms.Size())
	assert.Equal(t, "feline", rec.Terms.Begin().Term())
}

func TestLookupNormalizesQuery(t *testing.T) {
	e := newEngine(t, testConfig(t))
	e.Register(record("cat dog", "pet"))

	for _, query := range []string{"cat dog", "Dog Cat", "  DOG   cat  "} {
		rec, err := e.Lookup(query)
		require.NoError(t, err, "query %q", query)
		assert.Equal(t, "cat dog", rec.QueryKey)
	}
}

func TestLookupMissAndEmpty(t *testing.T) {
	e := newEngine(t, testConfig(t))

	_, err := e.Lookup("unknown")
	assert.True(t, errors.Is(err, apperrors.ErrExpansionNotFound))

	_, err = e.Lookup("   ")
	assert.True(t, errors.Is(err, apperrors.ErrEmptyQuery))
}

func TestDelete(t *testing.T) {
	e := newEngine(t, testConfig(t))
	e.Register(record("cat", "feline"))

	assert.True(t, e.Delete("CAT"))
	assert.False(t, e.Delete("cat"))
	_, err := e.Lookup("cat")
	assert.True(t, errors.Is(err, apperrors.ErrExpansionNotFound))
}

func TestSnapshotPersistence(t *testing.T) {
	cfg := testConfig(t)

	first := newEngine(t, cfg)
	for i := 0; i < 20; i++ {
		first.Register(record(fmt.Sprintf("query %d", i), "term-a", "term-b"))
	}
	require.NoError(t, first.FlushSnapshots())

	second := newEngine(t, cfg)
	assert.Equal(t, 20, second.Stats().Entries)

	rec, err := second.Lookup("query 7")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Terms.Size())
	assert.Equal(t, "term-a", rec.Terms.Begin().Term())
	assert.Equal(t, 3, rec.Terms.Bound())
}

func TestDeletePersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	first := newEngine(t, cfg)
	first.Register(record("cat", "feline"))
	first.Register(record("dog", "canine"))
	require.NoError(t, first.FlushSnapshots())

	first.Delete("cat")
	require.NoError(t, first.FlushSnapshots())

	second := newEngine(t, cfg)
	_, err := second.Lookup("cat")
	assert.True(t, errors.Is(err, apperrors.ErrExpansionNotFound))
	_, err = second.Lookup("dog")
	assert.NoError(t, err)
}

func TestCorruptSnapshotSkipped(t *testing.T) {
	cfg := testConfig(t)

	first := newEngine(t, cfg)
	first.Register(record("cat", "feline"))
	require.NoError(t, first.FlushSnapshots())

	// Damage one shard file and drop a valid record into another shard.
	entries, err := os.ReadDir(cfg.SnapshotDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	path := filepath.Join(cfg.SnapshotDir, entries[0].Name())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[snapshot.HeaderSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	second := newEngine(t, cfg)
	assert.True(t, second.Ready())
	assert.Equal(t, 0, second.Stats().Entries)
}

func TestFlushOnlyDirtyShards(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, cfg)

	e.Register(record("cat", "feline"))
	require.NoError(t, e.FlushSnapshots())

	written, err := os.ReadDir(cfg.SnapshotDir)
	require.NoError(t, err)
	assert.Len(t, written, 1)

	// Nothing dirty: flush writes nothing new.
	infoBefore, err := os.Stat(filepath.Join(cfg.SnapshotDir, written[0].Name()))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, e.FlushSnapshots())
	infoAfter, err := os.Stat(filepath.Join(cfg.SnapshotDir, written[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, infoBefore.ModTime(), infoAfter.ModTime())
}

func TestSnapshotLoopFlushesOnCancel(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	e.StartSnapshotLoop(ctx)
	e.Register(record("cat", "feline"))
	cancel()

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(cfg.SnapshotDir)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 20*time.Millisecond)

	second := newEngine(t, cfg)
	_, err := second.Lookup("cat")
	assert.NoError(t, err)
}

func TestListPagination(t *testing.T) {
	e := newEngine(t, testConfig(t))
	for i := 0; i < 25; i++ {
		e.Register(record(fmt.Sprintf("query%02d", i), "term"))
	}

	page := e.List("", 10)
	require.Len(t, page, 10)
	assert.Equal(t, "query00", page[0].QueryKey)

	rest := e.List(page[9].QueryKey, 0)
	assert.Len(t, rest, 15)
}

func TestStats(t *testing.T) {
	e := newEngine(t, testConfig(t))
	for i := 0; i < 12; i++ {
		e.Register(record(fmt.Sprintf("query %d", i), "term"))
	}

	stats := e.Stats()
	assert.Equal(t, 12, stats.Entries)
	assert.Len(t, stats.ShardSizes, 4)
	assert.True(t, stats.Ready)
}
