// Package registry provides the in-memory expansion store for a single
// shard. Records live in a map guarded by an RWMutex, with a B-tree over
// the query keys for ordered iteration and keyset pagination.
package registry

import (
	"sync"

	"github.com/google/btree"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
)

const btreeDegree = 32

type Registry struct {
	mu      sync.RWMutex
	records map[string]expander.Record
	keys    *btree.BTreeG[string]
}

func New() *Registry {
	return &Registry{
		records: make(map[string]expander.Record),
		keys:    btree.NewG(btreeDegree, func(a, b string) bool { return a < b }),
	}
}

// Register stores the record under its query key, replacing any previous
// record wholesale. Returns true when an existing record was replaced.
func (r *Registry) Register(rec expander.Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.records[rec.QueryKey]
	r.records[rec.QueryKey] = rec
	if !existed {
		r.keys.ReplaceOrInsert(rec.QueryKey)
	}
	return existed
}

func (r *Registry) Lookup(key string) (expander.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	return rec, ok
}

// Delete removes the record for key. Returns true if a record was removed.
func (r *Registry) Delete(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[key]; !ok {
		return false
	}
	delete(r.records, key)
	r.keys.Delete(key)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Keys returns up to limit query keys in ascending order, strictly after
// the given key. An empty after starts from the beginning; a non-positive
// limit returns all remaining keys.
func (r *Registry) Keys(after string, limit int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0)
	iter := func(key string) bool {
		if key == after {
			return true
		}
		keys = append(keys, key)
		return limit <= 0 || len(keys) < limit
	}
	if after == "" {
		r.keys.Ascend(iter)
	} else {
		r.keys.AscendGreaterOrEqual(after, iter)
	}
	return keys
}

// Records returns up to limit records in ascending key order, strictly
// after the given key.
func (r *Registry) Records(after string, limit int) []expander.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]expander.Record, 0)
	iter := func(key string) bool {
		if key == after {
			return true
		}
		recs = append(recs, r.records[key])
		return limit <= 0 || len(recs) < limit
	}
	if after == "" {
		r.keys.Ascend(iter)
	} else {
		r.keys.AscendGreaterOrEqual(after, iter)
	}
	return recs
}

// Snapshot returns every record in ascending key order.
func (r *Registry) Snapshot() []expander.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]expander.Record, 0, len(r.records))
	r.keys.Ascend(func(key string) bool {
		recs = append(recs, r.records[key])
		return true
	})
	return recs
}

// Clear removes every record.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]expander.Record)
	r.keys.Clear(false)
}
