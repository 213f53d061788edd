package consumer

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
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(config.ExpanderConfig{
		Shards:      2,
		SnapshotDir: t.TempDir(),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, eng.LoadSnapshots())
	return eng
}

func eventBytes(t *testing.T, event expander.ExpansionResultEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

func TestHandleRegistersExpansion(t *testing.T) {
	eng := testEngine(t)
	handler := HandleExpansionResult(eng, nil, nil, nil, "expansion-complete")

	value := eventBytes(t, expander.ExpansionResultEvent{
		EventID: "evt-1",
		Query:   "Cat Dog",
		Terms: []expansion.Entry{
			{Term: "feline", Weight: 2.0},
			{Term: "canine", Weight: 1.5},
		},
		Bound:      6,
		Source:     expander.SourceOffline,
		ComputedAt: time.Now().UTC(),
	})

	require.NoError(t, handler(context.Background(), []byte("cat dog"), value))

	rec, err := eng.Lookup("dog cat")
	require.NoError(t, err)
	assert.Equal(t, "cat dog", rec.QueryKey)
	assert.Equal(t, "Cat Dog", rec.SourceQuery)
	assert.Equal(t, 2, rec.Terms.Size())
	assert.Equal(t, 6, rec.Terms.Bound())
	assert.Equal(t, "feline", rec.Terms.Begin().Term())
}

func TestHandleReplacesExisting(t *testing.T) {
	eng := testEngine(t)
	handler := HandleExpansionResult(eng, nil, nil, nil, "expansion-complete")

	first := eventBytes(t, expander.ExpansionResultEvent{
		Query: "cat",
		Terms: []expansion.Entry{{Term: "feline", Weight: 1.0}, {Term: "kitten", Weight: 0.5}},
		Bound: 4,
	})
	second := eventBytes(t, expander.ExpansionResultEvent{
		Query: "cat",
		Terms: []expansion.Entry{{Term: "moggy", Weight: 2.0}},
		Bound: 1,
	})

	require.NoError(t, handler(context.Background(), nil, first))
	require.NoError(t, handler(context.Background(), nil, second))

	rec, err := eng.Lookup("cat")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Terms.Size())
	assert.Equal(t, "moggy", rec.Terms.Begin().Term())
}

func TestHandleMalformedPayload(t *testing.T) {
	eng := testEngine(t)
	handler := HandleExpansionResult(eng, nil, nil, nil, "expansion-complete")

	// Malformed events are skipped without error so the offset advances.
	assert.NoError(t, handler(context.Background(), nil, []byte("{broken")))
	assert.Equal(t, 0, eng.Stats().Entries)
}

func TestHandleRejectsInvalidEvents(t *testing.T) {
	eng := testEngine(t)
	handler := HandleExpansionResult(eng, nil, nil, nil, "expansion-complete")

	tests := []struct {
		name  string
		event expander.ExpansionResultEvent
	}{
		{"empty query", expander.ExpansionResultEvent{
			Terms: []expansion.Entry{{Term: "x", Weight: 1}},
		}},
		{"whitespace query", expander.ExpansionResultEvent{
			Query: "   ",
			Terms: []expansion.Entry{{Term: "x", Weight: 1}},
		}},
		{"no terms", expander.ExpansionResultEvent{Query: "cat"}},
		{"empty term", expander.ExpansionResultEvent{
			Query: "cat",
			Terms: []expansion.Entry{{Term: "", Weight: 1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, handler(context.Background(), nil, eventBytes(t, tt.event)))
		})
	}
	assert.Equal(t, 0, eng.Stats().Entries)
}

func TestHandleDefaultsSourceAndTimestamp(t *testing.T) {
	eng := testEngine(t)
	handler := HandleExpansionResult(eng, nil, nil, nil, "expansion-complete")

	value := eventBytes(t, expander.ExpansionResultEvent{
		Query: "cat",
		Terms: []expansion.Entry{{Term: "feline", Weight: 1.0}},
	})
	require.NoError(t, handler(context.Background(), nil, value))

	rec, err := eng.Lookup("cat")
	require.NoError(t, err)
	assert.Equal(t, expander.SourceOffline, rec.Source)
	assert.WithinDuration(t, time.Now(), rec.ComputedAt, 5*time.Second)
}
