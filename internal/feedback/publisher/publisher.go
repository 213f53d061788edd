// Package publisher persists feedback submissions to PostgreSQL and
// publishes feedback events to Kafka for the offline expansion jobs. It
// supports idempotent writes keyed on the caller's idempotency key.
package publisher

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/feedback"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/postgres"
)

// Publisher coordinates feedback persistence and Kafka event production.
type Publisher struct {
	db       *postgres.Client
	producer *kafka.Producer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Publisher. producer and m may be nil; without a producer
// submissions are persisted but not forwarded to the expansion pipeline.
func New(db *postgres.Client, producer *kafka.Producer, m *metrics.Metrics) *Publisher {
	return &Publisher{
		db:       db,
		producer: producer,
		metrics:  m,
		logger:   slog.Default().With("component", "feedback-publisher"),
	}
}

// EnsureSchema creates the feedback_events table and its indexes if
// missing.
func (p *Publisher) EnsureSchema(ctx context.Context) error {
	_, err := p.db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS feedback_events (
			id              UUID PRIMARY KEY,
			query           TEXT NOT NULL,
			query_key       TEXT NOT NULL,
			doc_ids         JSONB NOT NULL,
			idempotency_key TEXT UNIQUE,
			submitted_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating feedback_events table: %w", err)
	}
	_, err = p.db.DB.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS feedback_events_query_key_idx
			ON feedback_events (query_key, submitted_at DESC)`)
	if err != nil {
		return fmt.Errorf("creating feedback_events index: %w", err)
	}
	return nil
}

// Submit persists the submission and publishes a feedback event to Kafka.
// Duplicate idempotency keys return the stored submission without
// re-insertion or re-publication.
func (p *Publisher) Submit(ctx context.Context, req *feedback.SubmitRequest) (*feedback.SubmitResponse, error) {
	queryKey := expander.QueryKey(req.Query)

	if req.IdempotencyKey != "" {
		existing, err := p.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate feedback detected",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.FeedbackID,
			)
			p.countEvent("duplicate")
			return existing, nil
		}
	}

	feedbackID := uuid.NewString()
	submittedAt := time.Now().UTC()
	docIDs, err := json.Marshal(req.DocIDs)
	if err != nil {
		return nil, fmt.Errorf("encoding doc ids: %w", err)
	}

	err = p.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO feedback_events (id, query, query_key, doc_ids, idempotency_key, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING`,
			feedbackID, req.Query, queryKey, docIDs, nullableString(req.IdempotencyKey), submittedAt)
		if err != nil {
			return err
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if inserted == 0 {
			return apperrors.New(apperrors.ErrDuplicate, http.StatusConflict, "idempotency key already in use")
		}
		return nil
	})
	if err != nil {
		p.countEvent("error")
		return nil, fmt.Errorf("inserting feedback: %w", err)
	}

	event := kafka.Event{
		Key: queryKey,
		Value: feedback.Event{
			FeedbackID:  feedbackID,
			Query:       req.Query,
			QueryKey:    queryKey,
			DocIDs:      req.DocIDs,
			SubmittedAt: submittedAt,
		},
	}
	if p.producer != nil {
		if err := p.producer.Publish(ctx, event); err != nil {
			// The row is stored; a backfill can re-emit it later.
			p.logger.Error("failed to publish feedback event",
				"feedback_id", feedbackID,
				"query_key", queryKey,
				"error", err,
			)
		}
	}

	p.countEvent("accepted")
	return &feedback.SubmitResponse{
		FeedbackID: feedbackID,
		QueryKey:   queryKey,
		Status:     "ACCEPTED",
	}, nil
}

// RecentByQuery returns the latest stored submissions for a query, newest
// first.
func (p *Publisher) RecentByQuery(ctx context.Context, query string, limit int) ([]feedback.Submission, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := p.db.DB.QueryContext(ctx,
		`SELECT id, query, query_key, doc_ids, submitted_at
	FROM feedback_events
	WHERE query_key = $1
	ORDER BY submitted_at DESC
	LIMIT $2`, expander.QueryKey(query), limit)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var subs []feedback.Submission
	for rows.Next() {
		var sub feedback.Submission
		var docIDs []byte
		if err := rows.Scan(&sub.FeedbackID, &sub.Query, &sub.QueryKey, &docIDs, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback row: %w", err)
		}
		if err := json.Unmarshal(docIDs, &sub.DocIDs); err != nil {
			p.logger.Warn("skipping unreadable feedback row", "feedback_id", sub.FeedbackID, "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// findByIdempotencyKey returns the stored submission for the key, or nil
// when the key is unused.
func (p *Publisher) findByIdempotencyKey(ctx context.Context, key string) (*feedback.SubmitResponse, error) {
	var resp feedback.SubmitResponse
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT id, query_key FROM feedback_events WHERE idempotency_key = $1`, key).
		Scan(&resp.FeedbackID, &resp.QueryKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	resp.Status = "ACCEPTED"
	return &resp, nil
}

func (p *Publisher) countEvent(status string) {
	if p.metrics != nil {
		p.metrics.FeedbackEventsTotal.WithLabelValues(status).Inc()
	}
}

// nullableString converts a Go string to a sql.NullString, treating the
// empty string as NULL so absent idempotency keys never collide.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
