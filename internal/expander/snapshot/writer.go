// Package snapshot persists per-shard registry contents as .qexs files so
// the expander can restore its in-memory state across restarts. Each file
// is a fixed header, a CBOR payload, and a CRC-32 footer, written to a
// temp file and renamed into place.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/codec"
)

// MagicBytes identifies a valid .qexs snapshot file.
const (
	MagicBytes    uint32 = 0x51455853
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
	FooterSize    int    = 8
	FileSuffix           = ".qexs"
)

// Header is the 32-byte header written at the start of every snapshot.
type Header struct {
	Magic       uint32
	Version     uint32
	Shard       uint32
	RecordCount uint32
	CreatedAt   int64
	PayloadSize int64
}

// Writer serializes shard registries into .qexs snapshot files.
type Writer struct {
	dir string
}

// NewWriter creates a Writer that writes snapshots into the given directory.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write atomically replaces the snapshot file for the given shard. An empty
// record slice is valid and produces an empty snapshot, so deletions do not
// resurrect on restart.
func (w *Writer) Write(shard int, records []expander.Record) (string, error) {
	finalPath := filepath.Join(w.dir, FileName(shard))
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	payload, err := codec.EncodeRecords(records)
	if err != nil {
		return "", fmt.Errorf("encoding shard %d records: %w", shard, err)
	}

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(shard))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(records)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(payload)))
	if _, err := f.Write(header); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	if _, err := f.Write(payload); err != nil {
		return "", fmt.Errorf("writing payload: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return finalPath, nil
}

// FileName returns the snapshot file name for a shard.
func FileName(shard int) string {
	return fmt.Sprintf("shard-%d%s", shard, FileSuffix)
}
