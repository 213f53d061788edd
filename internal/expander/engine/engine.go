// Package engine ties the sharded registries to their disk snapshots. It
// owns the lookup, register, and delete paths used by the HTTP handler,
// the RPC server, and the Kafka consumer, and periodically checkpoints
// dirty shards to .qexs files.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/router"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/metrics"
)

// Stats summarizes the engine's in-memory state.
type Stats struct {
	Entries    int   `json:"entries"`
	ShardSizes []int `json:"shard_sizes"`
	Ready      bool  `json:"ready"`
}

type Engine struct {
	router  *router.Router
	writer  *snapshot.Writer
	cfg     config.ExpanderConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	dirtyMu sync.Mutex
	dirty   map[int]struct{}

	ready atomic.Bool
}

// New creates an Engine with cfg.Shards registry shards and a snapshot
// writer rooted at cfg.SnapshotDir. metrics may be nil.
func New(cfg config.ExpanderConfig, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(cfg.SnapshotDir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &Engine{
		router:  router.New(cfg.Shards),
		writer:  snapshot.NewWriter(cfg.SnapshotDir),
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "expansion-engine"),
		dirty:   make(map[int]struct{}),
	}, nil
}

// LoadSnapshots restores registry state from every .qexs file in the
// snapshot directory. Corrupt files are logged and skipped so one bad
// shard cannot block startup. The engine reports ready afterwards.
func (e *Engine) LoadSnapshots() error {
	entries, err := os.ReadDir(e.cfg.SnapshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			e.ready.Store(true)
			return nil
		}
		return fmt.Errorf("reading snapshot directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshot.FileSuffix) {
			continue
		}
		path := filepath.Join(e.cfg.SnapshotDir, entry.Name())
		snap, err := snapshot.Read(path)
		if err != nil {
			e.logger.Error("failed to read snapshot, skipping",
				"snapshot", entry.Name(),
				"error", err,
			)
			continue
		}
		for _, rec := range snap.Records {
			e.router.Register(rec)
		}
		loaded++
		e.logger.Info("loaded snapshot",
			"snapshot", entry.Name(),
			"shard", snap.Shard,
			"records", len(snap.Records),
		)
	}

	e.updateEntryGauges()
	e.ready.Store(true)
	e.logger.Info("snapshot recovery complete",
		"snapshots_loaded", loaded,
		"entries", e.router.Len(),
	)
	return nil
}

// Register stores the record and marks its shard dirty. Returns true when
// an existing record was replaced.
func (e *Engine) Register(rec expander.Record) bool {
	shard, replaced := e.router.Register(rec)
	e.markDirty(shard)
	if e.metrics != nil {
		e.metrics.ExpansionsRegistered.Inc()
		e.metrics.RegistryEntries.WithLabelValues(strconv.Itoa(shard)).Set(float64(e.shardLen(shard)))
	}
	e.logger.Debug("expansion registered",
		"query_key", rec.QueryKey,
		"shard", shard,
		"terms", rec.Terms.Size(),
		"replaced", replaced,
	)
	return replaced
}

// Lookup finds the expansion for a raw query. The query is normalized to
// its registry key first. Returns ErrExpansionNotFound on miss.
func (e *Engine) Lookup(query string) (expander.Record, error) {
	key := expander.QueryKey(query)
	if key == "" {
		return expander.Record{}, apperrors.ErrEmptyQuery
	}
	rec, ok := e.router.Lookup(key)
	if !ok {
		return expander.Record{}, apperrors.ErrExpansionNotFound
	}
	return rec, nil
}

// Delete removes the expansion for a raw query from the registry.
// Returns true if a record was removed.
func (e *Engine) Delete(query string) bool {
	key := expander.QueryKey(query)
	if key == "" {
		return false
	}
	shard := e.router.ShardFor(key)
	removed := e.router.Delete(key)
	if removed {
		e.markDirty(shard)
		if e.metrics != nil {
			e.metrics.RegistryEntries.WithLabelValues(strconv.Itoa(shard)).Set(float64(e.shardLen(shard)))
		}
	}
	return removed
}

// List returns a globally ordered page of records.
func (e *Engine) List(after string, limit int) []expander.Record {
	return e.router.List(after, limit)
}

// Stats reports entry counts per shard and readiness.
func (e *Engine) Stats() Stats {
	return Stats{
		Entries:    e.router.Len(),
		ShardSizes: e.router.ShardSizes(),
		Ready:      e.ready.Load(),
	}
}

// Ready reports whether snapshot recovery has completed.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// FlushSnapshots writes every dirty shard to disk. Shards that fail keep
// their dirty mark for the next cycle.
func (e *Engine) FlushSnapshots() error {
	e.dirtyMu.Lock()
	shards := make([]int, 0, len(e.dirty))
	for shard := range e.dirty {
		shards = append(shards, shard)
	}
	e.dirtyMu.Unlock()

	var firstErr error
	for _, shard := range shards {
		if err := e.flushShard(shard); err != nil {
			e.logger.Error("snapshot flush failed", "shard", shard, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.dirtyMu.Lock()
		delete(e.dirty, shard)
		e.dirtyMu.Unlock()
	}
	return firstErr
}

// StartSnapshotLoop periodically flushes dirty shards until ctx is
// cancelled, then performs a final flush.
func (e *Engine) StartSnapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("snapshot loop stopping, performing final flush")
				if err := e.FlushSnapshots(); err != nil {
					e.logger.Error("final snapshot flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.FlushSnapshots(); err != nil {
					e.logger.Error("periodic snapshot flush failed", "error", err)
				}
			}
		}
	}()
	e.logger.Info("snapshot loop started", "interval", e.cfg.SnapshotInterval)
}

// Close flushes outstanding dirty shards.
func (e *Engine) Close() error {
	return e.FlushSnapshots()
}

func (e *Engine) flushShard(shard int) error {
	reg, err := e.router.Route(shard)
	if err != nil {
		return err
	}
	records := reg.Snapshot()
	path, err := e.writer.Write(shard, records)
	if err != nil {
		if e.metrics != nil {
			e.metrics.SnapshotWritesTotal.WithLabelValues("error").Inc()
		}
		return err
	}
	if e.metrics != nil {
		e.metrics.SnapshotWritesTotal.WithLabelValues("success").Inc()
	}
	e.logger.Info("snapshot flushed",
		"shard", shard,
		"records", len(records),
		"path", path,
	)
	return nil
}

func (e *Engine) markDirty(shard int) {
	e.dirtyMu.Lock()
	e.dirty[shard] = struct{}{}
	e.dirtyMu.Unlock()
}

func (e *Engine) shardLen(shard int) int {
	reg, err := e.router.Route(shard)
	if err != nil {
		return 0
	}
	return reg.Len()
}

func (e *Engine) updateEntryGauges() {
	if e.metrics == nil {
		return
	}
	for shard, size := range e.router.ShardSizes() {
		e.metrics.RegistryEntries.WithLabelValues(strconv.Itoa(shard)).Set(float64(size))
	}
}
