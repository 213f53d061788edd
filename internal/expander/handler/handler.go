package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/cache"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/engine"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/querybuilder"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/store"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/tracing"
)

// ExpansionEngine is the registry surface the handler serves from.
type ExpansionEngine interface {
	Lookup(query string) (expander.Record, error)
	Register(rec expander.Record) bool
	Delete(query string) bool
	List(after string, limit int) []expander.Record
	Stats() engine.Stats
	Ready() bool
}

type Handler struct {
	engine       ExpansionEngine
	cache        *cache.Cache
	store        *store.Store
	storeCB      *resilience.CircuitBreaker
	collector    *analytics.Collector
	builder      querybuilder.Builder
	metrics      *metrics.Metrics
	defaultLimit int
	maxTerms     int
	logger       *slog.Logger
}

type expansionSummary struct {
	QueryKey    string    `json:"query_key"`
	SourceQuery string    `json:"source_query"`
	TermCount   int       `json:"term_count"`
	Bound       int       `json:"bound"`
	Source      string    `json:"source"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// New builds a Handler. queryCache, st, collector and m may all be nil;
// lookups then go straight to the engine with no fallback tiers.
func New(eng ExpansionEngine, queryCache *cache.Cache, st *store.Store, collector *analytics.Collector, m *metrics.Metrics, cfg config.ExpanderConfig) *Handler {
	h := &Handler{
		engine:       eng,
		cache:        queryCache,
		store:        st,
		collector:    collector,
		builder:      querybuilder.Builder{MaxTerms: cfg.MaxTerms},
		metrics:      m,
		defaultLimit: cfg.DefaultLimit,
		maxTerms:     cfg.MaxTerms,
		logger:       slog.Default().With("component", "expansion-handler"),
	}
	if st != nil {
		h.storeCB = resilience.NewCircuitBreaker("expansion-store", resilience.CircuitBreakerConfig{
			FailureThreshold:    5,
			ResetTimeout:        15 * time.Second,
			HalfOpenMaxRequests: 2,
			OnStateChange: func(name string, _, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		})
	}
	return h
}

// Expand serves the ranked expansion terms for a query.
func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	rec, cacheHit, err := h.lookup(ctx, query)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyQuery) {
			h.writeError(w, http.StatusBadRequest, "query must contain at least one term")
			return
		}
		if errors.Is(err, apperrors.ErrExpansionNotFound) {
			h.countLookup("miss")
			log.Info("no expansion found", "query", query, "latency_ms", latencyMs)
			h.track(analytics.ExpandEvent{
				Type:      analytics.EventNoExpansion,
				Query:     query,
				QueryKey:  expander.QueryKey(query),
				LatencyMs: latencyMs,
				Timestamp: time.Now().UTC(),
				RequestID: middleware.GetRequestID(ctx),
			})
			h.writeError(w, http.StatusNotFound, "no expansion registered for this query")
			return
		}
		h.countLookup("error")
		log.Error("expansion lookup failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "expansion lookup failed")
		return
	}

	terms := expander.TopEntries(rec.Terms, limit)

	h.countLookup("hit")
	if h.metrics != nil {
		h.metrics.ExpansionLatency.WithLabelValues(rec.Source).Observe(time.Since(start).Seconds())
		h.metrics.ExpansionTermsReturned.Observe(float64(len(terms)))
	}

	log.Info("expansion served",
		"query", query,
		"query_key", rec.QueryKey,
		"returned", len(terms),
		"total_terms", rec.Terms.Size(),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)

	eventType := analytics.EventCacheMiss
	if cacheHit {
		eventType = analytics.EventCacheHit
	}
	h.track(analytics.ExpandEvent{
		Type:      eventType,
		Query:     query,
		QueryKey:  rec.QueryKey,
		TermCount: len(terms),
		Bound:     rec.Terms.Bound(),
		Source:    rec.Source,
		CacheHit:  cacheHit,
		LatencyMs: latencyMs,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})

	h.writeJSON(w, http.StatusOK, expander.ExpandResult{
		Query:      query,
		Terms:      terms,
		Bound:      rec.Terms.Bound(),
		TotalTerms: rec.Terms.Size(),
		Source:     rec.Source,
		CacheHit:   cacheHit,
		LatencyMs:  latencyMs,
	})
}

// RewriteQuery returns the query joined with its expansion terms as a
// boolean query string. A query with no registered expansion is returned
// unchanged with expanded=false rather than a 404, so callers can always
// forward the result to their search backend.
func (h *Handler) RewriteQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	rec, cacheHit, err := h.lookup(ctx, query)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyQuery) {
			h.writeError(w, http.StatusBadRequest, "query must contain at least one term")
			return
		}
		if errors.Is(err, apperrors.ErrExpansionNotFound) {
			h.writeJSON(w, http.StatusOK, map[string]any{
				"query":     query,
				"rewritten": query,
				"expanded":  false,
			})
			return
		}
		log.Error("query rewrite failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "query rewrite failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":     query,
		"rewritten": h.builder.Build(query, rec.Terms),
		"expanded":  true,
		"terms":     h.builder.Terms(rec.Terms, 0),
		"cache_hit": cacheHit,
	})
}

// ListExpansions pages through registered expansions in query-key order.
func (h *Handler) ListExpansions(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > 500 {
			parsed = 500
		}
		limit = parsed
	}

	records := h.engine.List(after, limit)
	items := make([]expansionSummary, 0, len(records))
	for _, rec := range records {
		items = append(items, expansionSummary{
			QueryKey:    rec.QueryKey,
			SourceQuery: rec.SourceQuery,
			TermCount:   rec.Terms.Size(),
			Bound:       rec.Terms.Bound(),
			Source:      rec.Source,
			UpdatedAt:   rec.UpdatedAt,
		})
	}

	resp := map[string]any{
		"expansions": items,
		"count":      len(items),
	}
	if len(records) == limit {
		resp["next_after"] = records[len(records)-1].QueryKey
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteExpansion removes a query's expansion from the registry, the
// cache, and the store. The response reflects the registry only; tier
// cleanup failures are logged and retried implicitly by later lookups.
func (h *Handler) DeleteExpansion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	removed := h.engine.Delete(query)

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, query); err != nil {
			log.Warn("cache invalidation after delete failed", "query", query, "error", err)
		}
	}
	if h.store != nil {
		err := h.storeCB.Execute(func() error {
			err := h.store.Delete(ctx, expander.QueryKey(query))
			if errors.Is(err, apperrors.ErrExpansionNotFound) {
				return nil
			}
			return err
		})
		if err != nil {
			log.Warn("store delete failed", "query", query, "error", err)
		}
	}

	if !removed {
		h.writeError(w, http.StatusNotFound, "no expansion registered for this query")
		return
	}

	log.Info("expansion deleted", "query", query, "query_key", expander.QueryKey(query))
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "deleted",
		"query_key": expander.QueryKey(query),
	})
}

// ExpansionStats reports registry, cache, and store counts in one place.
func (h *Handler) ExpansionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	resp := map[string]any{
		"entries":     stats.Entries,
		"shard_sizes": stats.ShardSizes,
		"ready":       stats.Ready,
	}

	if h.cache != nil {
		hits, misses := h.cache.Stats()
		resp["cache_hits"] = hits
		resp["cache_misses"] = misses
	}
	if h.store != nil {
		var stored int64
		err := h.storeCB.Execute(func() error {
			var countErr error
			stored, countErr = h.store.Count(r.Context())
			return countErr
		})
		if err != nil {
			h.logger.Warn("store count failed", "error", err)
		} else {
			resp["stored"] = stored
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.InvalidateAll(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports 503 until the engine has loaded its snapshots, so load
// balancers hold traffic during startup.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Ready() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// lookup runs the tiered read path: cache, then registry, then store.
func (h *Handler) lookup(ctx context.Context, query string) (expander.Record, bool, error) {
	ctx, span := tracing.StartChildSpan(ctx, "expansion_lookup")
	span.SetAttr("query", query)
	defer span.End()

	if h.cache != nil {
		rec, hit, err := h.cache.GetOrLoad(ctx, query, func() (expander.Record, error) {
			return h.resolve(ctx, query)
		})
		span.SetAttr("cache_hit", hit)
		return rec, hit, err
	}
	rec, err := h.resolve(ctx, query)
	return rec, false, err
}

// resolve reads the registry and falls back to the store on a miss. A
// store hit re-registers the record, warming the registry for the next
// lookup. The store sits behind a circuit breaker; a tripped breaker
// degrades misses to plain 404s instead of stalling the read path.
func (h *Handler) resolve(ctx context.Context, query string) (expander.Record, error) {
	rec, err := h.engine.Lookup(query)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, apperrors.ErrExpansionNotFound) || h.store == nil {
		return expander.Record{}, err
	}

	_, span := tracing.StartChildSpan(ctx, "store_fallback")
	defer span.End()

	var stored expander.Record
	var found bool
	cbErr := h.storeCB.Execute(func() error {
		loaded, loadErr := h.store.Get(ctx, expander.QueryKey(query))
		if loadErr != nil {
			if errors.Is(loadErr, apperrors.ErrExpansionNotFound) {
				// A miss is a healthy answer, not a store failure.
				return nil
			}
			return loadErr
		}
		stored = loaded
		found = true
		return nil
	})
	if cbErr != nil {
		h.logger.Warn("store fallback failed", "query", query, "error", cbErr)
		return expander.Record{}, err
	}
	if !found {
		return expander.Record{}, err
	}

	h.engine.Register(stored)
	return stored, nil
}

func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, false
		}
		limit = parsed
	}
	if h.maxTerms > 0 && limit > h.maxTerms {
		limit = h.maxTerms
	}
	return limit, true
}

func (h *Handler) countLookup(result string) {
	if h.metrics != nil {
		h.metrics.ExpansionLookupsTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) track(event analytics.ExpandEvent) {
	if h.collector != nil {
		h.collector.Track(event)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
