// Package router provides hash-based shard routing over per-shard
// registries. Query keys are assigned to shards by FNV-1a, and listing
// merges the per-shard key ranges back into one ascending sequence.
package router

import (
	"container/heap"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/registry"
)

// Router maps query keys to dedicated registry shards.
type Router struct {
	shards []*registry.Registry
	logger *slog.Logger
}

// New creates a Router with numShards registries. A non-positive count
// falls back to a single shard.
func New(numShards int) *Router {
	if numShards <= 0 {
		numShards = 1
	}
	r := &Router{
		shards: make([]*registry.Registry, numShards),
		logger: slog.Default().With("component", "shard-router"),
	}
	for i := range r.shards {
		r.shards[i] = registry.New()
	}
	r.logger.Info("shard router ready", "num_shards", numShards)
	return r
}

// ShardFor returns the shard ID responsible for the given query key.
func (r *Router) ShardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(r.shards)))
}

// Route returns the registry for the given shard ID.
func (r *Router) Route(shard int) (*registry.Registry, error) {
	if shard < 0 || shard >= len(r.shards) {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shard, len(r.shards)-1)
	}
	return r.shards[shard], nil
}

// Register stores the record in the shard its query key hashes to.
// Returns the shard ID and whether an existing record was replaced.
func (r *Router) Register(rec expander.Record) (int, bool) {
	shard := r.ShardFor(rec.QueryKey)
	replaced := r.shards[shard].Register(rec)
	return shard, replaced
}

// Lookup finds the record for the given query key.
func (r *Router) Lookup(key string) (expander.Record, bool) {
	return r.shards[r.ShardFor(key)].Lookup(key)
}

// Delete removes the record for the given query key.
func (r *Router) Delete(key string) bool {
	return r.shards[r.ShardFor(key)].Delete(key)
}

// Len returns the total record count across all shards.
func (r *Router) Len() int {
	total := 0
	for _, shard := range r.shards {
		total += shard.Len()
	}
	return total
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return len(r.shards)
}

// ShardSizes returns the record count of each shard, indexed by shard ID.
func (r *Router) ShardSizes() []int {
	sizes := make([]int, len(r.shards))
	for i, shard := range r.shards {
		sizes[i] = shard.Len()
	}
	return sizes
}

// List merges the per-shard key ranges into one globally ascending page of
// up to limit records, strictly after the given key. A non-positive limit
// returns everything.
func (r *Router) List(after string, limit int) []expander.Record {
	h := &recordHeap{}
	heap.Init(h)
	for _, shard := range r.shards {
		for _, rec := range shard.Records(after, limit) {
			heap.Push(h, rec)
			if limit > 0 && h.Len() > limit {
				heap.Pop(h)
			}
		}
	}
	result := make([]expander.Record, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(expander.Record)
	}
	return result
}

// ClearAll empties every shard.
func (r *Router) ClearAll() {
	for _, shard := range r.shards {
		shard.Clear()
	}
}

// recordHeap is a max-heap on query key, capped at the page limit so only
// the smallest keys survive.
type recordHeap []expander.Record

func (h recordHeap) Len() int { return len(h) }

func (h recordHeap) Less(i, j int) bool {
	return h[i].QueryKey > h[j].QueryKey
}

func (h recordHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *recordHeap) Push(x interface{}) {
	*h = append(*h, x.(expander.Record))
}

func (h *recordHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
