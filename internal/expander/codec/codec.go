// Package codec serializes expansion records as deterministic CBOR for the
// snapshot files and the Redis cache. Struct fields are keyed by small
// integers so the wire form stays compact and stable across releases.
package codec

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
)

var (
	em = mustEncMode()
	dm = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building cbor enc mode: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building cbor dec mode: %v", err))
	}
	return dm
}

type wireTerm struct {
	Term   string  `cbor:"1,keyasint"`
	Weight float64 `cbor:"2,keyasint"`
}

type wireRecord struct {
	QueryKey    string     `cbor:"1,keyasint"`
	SourceQuery string     `cbor:"2,keyasint"`
	Terms       []wireTerm `cbor:"3,keyasint"`
	Bound       int64      `cbor:"4,keyasint"`
	Source      string     `cbor:"5,keyasint"`
	ComputedAt  int64      `cbor:"6,keyasint"`
	UpdatedAt   int64      `cbor:"7,keyasint"`
}

// EncodeRecord serializes a single record.
func EncodeRecord(rec expander.Record) ([]byte, error) {
	data, err := em.Marshal(toWire(rec))
	if err != nil {
		return nil, fmt.Errorf("encoding record %q: %w", rec.QueryKey, err)
	}
	return data, nil
}

// DecodeRecord deserializes a single record.
func DecodeRecord(data []byte) (expander.Record, error) {
	var w wireRecord
	if err := dm.Unmarshal(data, &w); err != nil {
		return expander.Record{}, fmt.Errorf("decoding record: %w", err)
	}
	return fromWire(w), nil
}

// EncodeRecords serializes a batch of records, preserving order.
func EncodeRecords(recs []expander.Record) ([]byte, error) {
	wires := make([]wireRecord, len(recs))
	for i, rec := range recs {
		wires[i] = toWire(rec)
	}
	data, err := em.Marshal(wires)
	if err != nil {
		return nil, fmt.Errorf("encoding %d records: %w", len(recs), err)
	}
	return data, nil
}

// DecodeRecords deserializes a batch of records.
func DecodeRecords(data []byte) ([]expander.Record, error) {
	var wires []wireRecord
	if err := dm.Unmarshal(data, &wires); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	recs := make([]expander.Record, len(wires))
	for i, w := range wires {
		recs[i] = fromWire(w)
	}
	return recs, nil
}

func toWire(rec expander.Record) wireRecord {
	terms := make([]wireTerm, 0, rec.Terms.Size())
	for c := rec.Terms.Begin(); !c.Equal(rec.Terms.End()); c.Next() {
		terms = append(terms, wireTerm{Term: c.Term(), Weight: c.Weight()})
	}
	return wireRecord{
		QueryKey:    rec.QueryKey,
		SourceQuery: rec.SourceQuery,
		Terms:       terms,
		Bound:       int64(rec.Terms.Bound()),
		Source:      rec.Source,
		ComputedAt:  rec.ComputedAt.Unix(),
		UpdatedAt:   rec.UpdatedAt.Unix(),
	}
}

func fromWire(w wireRecord) expander.Record {
	entries := make([]expansion.Entry, len(w.Terms))
	for i, t := range w.Terms {
		entries[i] = expansion.Entry{Term: t.Term, Weight: t.Weight}
	}
	return expander.Record{
		QueryKey:    w.QueryKey,
		SourceQuery: w.SourceQuery,
		Terms:       expansion.New(entries, int(w.Bound)),
		Source:      w.Source,
		ComputedAt:  time.Unix(w.ComputedAt, 0).UTC(),
		UpdatedAt:   time.Unix(w.UpdatedAt, 0).UTC(),
	}
}
