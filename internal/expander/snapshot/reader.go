package snapshot

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/codec"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/errors"
)

// Snapshot is the decoded contents of one .qexs file.
type Snapshot struct {
	Shard     int
	CreatedAt time.Time
	Records   []expander.Record
}

// Read loads and validates a snapshot file. Structural damage of any kind
// (bad magic, version mismatch, truncation, checksum failure) is reported
// as ErrSnapshotCorrupt.
func Read(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: file %s is %d bytes, smaller than header and footer", apperrors.ErrSnapshotCorrupt, path, len(data))
	}

	header := Header{
		Magic:       binary.LittleEndian.Uint32(data[0:4]),
		Version:     binary.LittleEndian.Uint32(data[4:8]),
		Shard:       binary.LittleEndian.Uint32(data[8:12]),
		RecordCount: binary.LittleEndian.Uint32(data[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(data[16:24])),
		PayloadSize: int64(binary.LittleEndian.Uint64(data[24:32])),
	}
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %#x in %s", apperrors.ErrSnapshotCorrupt, header.Magic, path)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d in %s", apperrors.ErrSnapshotCorrupt, header.Version, path)
	}
	if int64(len(data)) != int64(HeaderSize)+header.PayloadSize+int64(FooterSize) {
		return nil, fmt.Errorf("%w: %s is %d bytes, header declares %d payload bytes", apperrors.ErrSnapshotCorrupt, path, len(data), header.PayloadSize)
	}

	payload := data[HeaderSize : int64(HeaderSize)+header.PayloadSize]
	footer := data[len(data)-FooterSize:]
	if endMagic := binary.LittleEndian.Uint32(footer[4:8]); endMagic != MagicBytes {
		return nil, fmt.Errorf("%w: bad footer magic %#x in %s", apperrors.ErrSnapshotCorrupt, endMagic, path)
	}
	if sum := crc32.ChecksumIEEE(payload); sum != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("%w: checksum mismatch in %s", apperrors.ErrSnapshotCorrupt, path)
	}

	records, err := codec.DecodeRecords(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", apperrors.ErrSnapshotCorrupt, path, err)
	}
	if uint32(len(records)) != header.RecordCount {
		return nil, fmt.Errorf("%w: %s holds %d records, header declares %d", apperrors.ErrSnapshotCorrupt, path, len(records), header.RecordCount)
	}

	return &Snapshot{
		Shard:     int(header.Shard),
		CreatedAt: time.Unix(header.CreatedAt, 0).UTC(),
		Records:   records,
	}, nil
}
