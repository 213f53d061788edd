package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/errors"
)

func sampleRecords() []expander.Record {
	return []expander.Record{
		{
			QueryKey:    "cat",
			SourceQuery: "cat",
			Terms: expansion.New([]expansion.Entry{
				{Term: "feline", Weight: 2.5},
				{Term: "kitten", Weight: 1.1},
			}, 5),
			Source:     expander.SourceOffline,
			ComputedAt: time.Now().UTC().Truncate(time.Second),
		},
		{
			QueryKey:    "dog",
			SourceQuery: "dog",
			Terms: expansion.New([]expansion.Entry{
				{Term: "canine", Weight: 3.0},
			}, 2),
			Source:     expander.SourceFeedback,
			ComputedAt: time.Now().UTC().Truncate(time.Second),
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	path, err := w.Write(3, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shard-3.qexs"), path)

	snap, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Shard)
	assert.WithinDuration(t, time.Now(), snap.CreatedAt, 5*time.Second)

	require.Len(t, snap.Records, 2)
	assert.Equal(t, "cat", snap.Records[0].QueryKey)
	assert.Equal(t, 2, snap.Records[0].Terms.Size())
	assert.Equal(t, 5, snap.Records[0].Terms.Bound())
	assert.Equal(t, "feline", snap.Records[0].Terms.Begin().Term())
	assert.Equal(t, "dog", snap.Records[1].QueryKey)
}

func TestWriteReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	_, err := w.Write(0, sampleRecords())
	require.NoError(t, err)
	path, err := w.Write(0, sampleRecords()[:1])
	require.NoError(t, err)

	snap, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, snap.Records, 1)

	// No leftover temp files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	path, err := w.Write(1, nil)
	require.NoError(t, err)

	snap, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Shard)
	assert.Empty(t, snap.Records)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "shard-0.qexs"))
	assert.Error(t, err)
	assert.False(t, errorsIsCorrupt(err))
}

func TestReadTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	path, err := w.Write(0, sampleRecords())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-5], 0644))

	_, err = Read(path)
	require.Error(t, err)
	assert.True(t, errorsIsCorrupt(err), "got: %v", err)
}

func TestReadBadMagic(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	path, err := w.Write(0, sampleRecords())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Read(path)
	require.Error(t, err)
	assert.True(t, errorsIsCorrupt(err), "got: %v", err)
}

func TestReadFlippedPayloadByte(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	path, err := w.Write(0, sampleRecords())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[HeaderSize+3] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Read(path)
	require.Error(t, err)
	assert.True(t, errorsIsCorrupt(err), "got: %v", err)
}

func TestReadUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	path, err := w.Write(0, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[4] = 0x63
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Read(path)
	require.Error(t, err)
	assert.True(t, errorsIsCorrupt(err), "got: %v", err)
}

func errorsIsCorrupt(err error) bool {
	return errors.Is(err, apperrors.ErrSnapshotCorrupt)
}
