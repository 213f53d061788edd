// Package consumer reads expansion-complete events from Kafka, registers
// them in the engine, and persists each accepted record to PostgreSQL.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/cache"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/engine"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/store"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/resilience"
)

// ExpansionConsumer wraps a Kafka consumer to drive the registration
// pipeline.
type ExpansionConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an ExpansionConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *ExpansionConsumer {
	return &ExpansionConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "expansion-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ec *ExpansionConsumer) Start(ctx context.Context) error {
	ec.logger.Info("expansion consumer starting")
	return ec.consumer.Start(ctx)
}

// Lag reports the consumer's current offset lag.
func (ec *ExpansionConsumer) Lag() int64 {
	return ec.consumer.Lag()
}

var saveRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
}

// HandleExpansionResult returns a Kafka MessageHandler that validates each
// expansion-complete event, registers it in the engine, and upserts it in
// the store. Malformed events are logged and skipped so the partition is
// never blocked. st, qc, and m may each be nil.
func HandleExpansionResult(eng *engine.Engine, st *store.Store, qc *cache.Cache, m *metrics.Metrics, topic string) kafka.MessageHandler {
	logger := slog.Default().With("component", "expansion-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[expander.ExpansionResultEvent](value)
		if err != nil {
			logger.Error("failed to decode expansion event",
				"error", err,
				"key", string(key),
			)
			countEvent(m, topic, "malformed")
			return nil
		}

		if reason := rejectReason(event); reason != "" {
			logger.Warn("skipping invalid expansion event",
				"event_id", event.EventID,
				"query", event.Query,
				"reason", reason,
			)
			countEvent(m, topic, "skipped")
			return nil
		}

		now := time.Now().UTC()
		computedAt := event.ComputedAt
		if computedAt.IsZero() {
			computedAt = now
		}
		source := event.Source
		if source == "" {
			source = expander.SourceOffline
		}

		rec := expander.Record{
			QueryKey:    expander.QueryKey(event.Query),
			SourceQuery: event.Query,
			Terms:       expansion.New(event.Terms, event.Bound),
			Source:      source,
			ComputedAt:  computedAt,
			UpdatedAt:   now,
		}

		replaced := eng.Register(rec)

		if st != nil {
			err := resilience.Retry(ctx, "expansion-save", saveRetry, func() error {
				return st.Save(ctx, rec)
			})
			if err != nil {
				countEvent(m, topic, "store_error")
				return fmt.Errorf("persisting expansion %q: %w", rec.QueryKey, err)
			}
		}

		if qc != nil && replaced {
			if err := qc.Invalidate(ctx, event.Query); err != nil {
				logger.Warn("cache invalidation failed",
					"query_key", rec.QueryKey,
					"error", err,
				)
			}
		}

		countEvent(m, topic, "ok")
		logger.Info("expansion registered",
			"event_id", event.EventID,
			"query_key", rec.QueryKey,
			"terms", rec.Terms.Size(),
			"bound", rec.Terms.Bound(),
			"source", rec.Source,
			"replaced", replaced,
		)
		return nil
	}
}

// rejectReason validates an event, returning an empty string when it is
// acceptable.
func rejectReason(event expander.ExpansionResultEvent) string {
	if expander.QueryKey(event.Query) == "" {
		return "empty query"
	}
	if len(event.Terms) == 0 {
		return "no terms"
	}
	for _, entry := range event.Terms {
		if entry.Term == "" {
			return "empty term"
		}
	}
	return ""
}

func countEvent(m *metrics.Metrics, topic, status string) {
	if m != nil {
		m.ConsumerEventsTotal.WithLabelValues(topic, status).Inc()
	}
}
