package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
)

func sampleRecord() expander.Record {
	return expander.Record{
		QueryKey:    "cat",
		SourceQuery: "Cat",
		Terms: expansion.New([]expansion.Entry{
			{Term: "feline", Weight: 2.5},
			{Term: "kitten", Weight: 1.125},
			{Term: "tabby", Weight: 0.5},
		}, 7),
		Source:     expander.SourceOffline,
		ComputedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC),
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := sampleRecord()

	data, err := EncodeRecord(rec)
	require.NoError(t, err)
	got, err := DecodeRecord(data)
	require.NoError(t, err)

	assert.Equal(t, rec.QueryKey, got.QueryKey)
	assert.Equal(t, rec.SourceQuery, got.SourceQuery)
	assert.Equal(t, rec.Source, got.Source)
	assert.True(t, rec.ComputedAt.Equal(got.ComputedAt))
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))

	require.Equal(t, rec.Terms.Size(), got.Terms.Size())
	assert.Equal(t, rec.Terms.Bound(), got.Terms.Bound())
	want := rec.Terms.Begin()
	have := got.Terms.Begin()
	for !want.Equal(rec.Terms.End()) {
		assert.Equal(t, want.Term(), have.Term())
		assert.Equal(t, want.Weight(), have.Weight())
		want.Next()
		have.Next()
	}
}

func TestEncodeDeterministic(t *testing.T) {
	rec := sampleRecord()
	first, err := EncodeRecord(rec)
	require.NoError(t, err)
	second, err := EncodeRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEmptyRecordRoundTrip(t *testing.T) {
	rec := expander.Record{QueryKey: "nothing"}

	data, err := EncodeRecord(rec)
	require.NoError(t, err)
	got, err := DecodeRecord(data)
	require.NoError(t, err)

	assert.Equal(t, "nothing", got.QueryKey)
	assert.True(t, got.Terms.Empty())
	assert.Equal(t, 0, got.Terms.Bound())
}

func TestRecordsRoundTripPreservesOrder(t *testing.T) {
	recs := []expander.Record{
		sampleRecord(),
		{
			QueryKey:    "dog",
			SourceQuery: "dog",
			Terms: expansion.New([]expansion.Entry{
				{Term: "canine", Weight: 3.0},
			}, 4),
			Source:     expander.SourceFeedback,
			ComputedAt: time.Now().UTC().Truncate(time.Second),
		},
	}

	data, err := EncodeRecords(recs)
	require.NoError(t, err)
	got, err := DecodeRecords(data)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "cat", got[0].QueryKey)
	assert.Equal(t, "dog", got[1].QueryKey)
	assert.Equal(t, 1, got[1].Terms.Size())
	assert.Equal(t, "canine", got[1].Terms.Begin().Term())
	assert.Equal(t, 4, got[1].Terms.Bound())
}

func TestEncodeRecordsEmptyBatch(t *testing.T) {
	data, err := EncodeRecords(nil)
	require.NoError(t, err)
	got, err := DecodeRecords(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := DecodeRecord([]byte("not cbor at all"))
	assert.Error(t, err)

	_, err = DecodeRecords([]byte{0xff, 0x00, 0x13})
	assert.Error(t, err)
}
