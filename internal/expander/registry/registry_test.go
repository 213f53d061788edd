package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
)

func record(key string, terms ...string) expander.Record {
	entries := make([]expansion.Entry, len(terms))
	for i, term := range terms {
		entries[i] = expansion.Entry{Term: term, Weight: float64(len(terms) - i)}
	}
	return expander.Record{
		QueryKey:    key,
		SourceQuery: key,
		Terms:       expansion.New(entries, len(terms)+2),
		Source:      expander.SourceOffline,
		ComputedAt:  time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()

	replaced := r.Register(record("cat", "feline", "kitten"))
	assert.False(t, replaced)
	assert.Equal(t, 1, r.Len())

	rec, ok := r.Lookup("cat")
	require.True(t, ok)
	assert.Equal(t, "cat", rec.QueryKey)
	assert.Equal(t, 2, rec.Terms.Size())
	assert.Equal(t, "feline", rec.Terms.Begin().Term())
}

func TestRegisterReplacesWholesale(t *testing.T) {
	r := New()
	r.Register(record("cat", "feline", "kitten", "tabby"))

	replaced := r.Register(record("cat", "moggy"))
	assert.True(t, replaced)
	assert.Equal(t, 1, r.Len())

	rec, ok := r.Lookup("cat")
	require.True(t, ok)
	assert.Equal(t, 1, rec.Terms.Size())
	assert.Equal(t, "moggy", rec.Terms.Begin().Term())
}

func TestLookupMissing(t *testing.T) {
	r := New()
	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	r := New()
	r.Register(record("cat", "feline"))

	assert.True(t, r.Delete("cat"))
	assert.False(t, r.Delete("cat"))
	assert.Equal(t, 0, r.Len())

	_, ok := r.Lookup("cat")
	assert.False(t, ok)
	assert.Empty(t, r.Keys("", 0))
}

func TestKeysOrderedPagination(t *testing.T) {
	r := New()
	for _, key := range []string{"delta", "alpha", "charlie", "bravo", "echo"} {
		r.Register(record(key, "term"))
	}

	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta", "echo"}, r.Keys("", 0))
	assert.Equal(t, []string{"alpha", "bravo"}, r.Keys("", 2))
	assert.Equal(t, []string{"charlie", "delta"}, r.Keys("bravo", 2))
	assert.Equal(t, []string{"echo"}, r.Keys("delta", 10))
	assert.Empty(t, r.Keys("echo", 10))
}

func TestKeysAfterNonexistentPivot(t *testing.T) {
	r := New()
	for _, key := range []string{"alpha", "charlie", "echo"} {
		r.Register(record(key, "term"))
	}
	// Pivot between existing keys starts at the next greater key.
	assert.Equal(t, []string{"charlie", "echo"}, r.Keys("bravo", 0))
}

func TestRecordsMatchKeys(t *testing.T) {
	r := New()
	for i := 0; i < 10; i++ {
		r.Register(record(fmt.Sprintf("query-%02d", i), "term"))
	}

	recs := r.Records("query-03", 4)
	require.Len(t, recs, 4)
	for i, rec := range recs {
		assert.Equal(t, fmt.Sprintf("query-%02d", i+4), rec.QueryKey)
	}
}

func TestSnapshotSorted(t *testing.T) {
	r := New()
	for _, key := range []string{"zebra", "apple", "mango"} {
		r.Register(record(key, "term"))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "apple", snap[0].QueryKey)
	assert.Equal(t, "mango", snap[1].QueryKey)
	assert.Equal(t, "zebra", snap[2].QueryKey)
}

func TestClear(t *testing.T) {
	r := New()
	r.Register(record("cat", "feline"))
	r.Register(record("dog", "canine"))

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())

	// Usable after Clear.
	r.Register(record("bird", "avian"))
	assert.Equal(t, 1, r.Len())
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			r.Register(record(fmt.Sprintf("query-%d", i%50), "term"))
		}
	}()

	for i := 0; i < 500; i++ {
		r.Lookup(fmt.Sprintf("query-%d", i%50))
		r.Keys("", 10)
	}
	<-done
}
