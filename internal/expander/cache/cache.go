// Package cache fronts expansion lookups with Redis. Values are CBOR
// encoded records keyed by a hash of the normalized query, and concurrent
// misses for the same query collapse into one load via singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/codec"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/redis"
)

const keyPrefix = "expansion:v1:"

// Cache is a read-through Redis cache for expansion records.
type Cache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a Cache. metrics may be nil.
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *Cache {
	return &Cache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "expansion-cache"),
	}
}

// Get fetches the cached record for a query. Redis failures count as
// misses so lookups degrade to the registry rather than erroring.
func (c *Cache) Get(ctx context.Context, query string) (expander.Record, bool) {
	key := c.buildKey(query)
	data, err := c.client.GetBytes(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return expander.Record{}, false
	}
	rec, err := codec.DecodeRecord(data)
	if err != nil {
		c.logger.Error("cache decode failed", "key", key, "error", err)
		c.miss()
		return expander.Record{}, false
	}
	c.hit()
	c.logger.Debug("cache hit", "query", query, "key", key)
	return rec, true
}

// Set stores a record under the query's cache key with the configured TTL.
func (c *Cache) Set(ctx context.Context, query string, rec expander.Record) {
	key := c.buildKey(query)
	data, err := codec.EncodeRecord(rec)
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrLoad returns the cached record for a query, or runs loadFn exactly
// once per key across concurrent callers and caches the result. The bool
// reports whether the record came from cache.
func (c *Cache) GetOrLoad(
	ctx context.Context,
	query string,
	loadFn func() (expander.Record, error),
) (expander.Record, bool, error) {
	if rec, ok := c.Get(ctx, query); ok {
		return rec, true, nil
	}
	key := c.buildKey(query)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if rec, ok := c.Get(ctx, query); ok {
			return rec, nil
		}
		rec, err := loadFn()
		if err != nil {
			return expander.Record{}, err
		}
		c.Set(ctx, query, rec)
		return rec, nil
	})
	if err != nil {
		return expander.Record{}, false, err
	}
	return val.(expander.Record), false, nil
}

// Invalidate removes the cached entry for one query.
func (c *Cache) Invalidate(ctx context.Context, query string) error {
	key := c.buildKey(query)
	if err := c.client.Del(ctx, key); err != nil {
		return fmt.Errorf("invalidating cache key: %w", err)
	}
	return nil
}

// InvalidateAll removes every expansion cache entry.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counts since startup.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Ping reports whether the Redis backend is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

func (c *Cache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *Cache) buildKey(query string) string {
	hash := sha256.Sum256([]byte(expander.QueryKey(query)))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
