// Package store persists expansion records in PostgreSQL. The database is
// the durable source of truth behind the in-memory registries: the consumer
// writes every accepted record here, and lookups fall back to it when a
// registry misses after a restart.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/postgres"
)

// Store reads and writes the expansions table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store backed by the given PostgreSQL client.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "expansion-store"),
	}
}

// EnsureSchema creates the expansions table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS expansions (
			query_key    TEXT PRIMARY KEY,
			source_query TEXT NOT NULL,
			terms        JSONB NOT NULL,
			bound        INTEGER NOT NULL,
			term_count   INTEGER NOT NULL,
			source       TEXT NOT NULL,
			computed_at  TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating expansions table: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS expansions_updated_at_idx ON expansions (updated_at)`)
	if err != nil {
		return fmt.Errorf("creating expansions index: %w", err)
	}
	return nil
}

// Save upserts a record, replacing the stored term list wholesale.
func (s *Store) Save(ctx context.Context, rec expander.Record) error {
	terms, err := json.Marshal(expander.TopEntries(rec.Terms, 0))
	if err != nil {
		return fmt.Errorf("marshaling terms for %q: %w", rec.QueryKey, err)
	}

	_, err = s.db.DB.ExecContext(ctx, `
		INSERT INTO expansions (query_key, source_query, terms, bound, term_count, source, computed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (query_key) DO UPDATE SET
			source_query = EXCLUDED.source_query,
			terms        = EXCLUDED.terms,
			bound        = EXCLUDED.bound,
			term_count   = EXCLUDED.term_count,
			source       = EXCLUDED.source,
			computed_at  = EXCLUDED.computed_at,
			updated_at   = NOW()`,
		rec.QueryKey, rec.SourceQuery, terms, rec.Terms.Bound(), rec.Terms.Size(), rec.Source, rec.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("saving expansion %q: %w", rec.QueryKey, err)
	}
	return nil
}

// Get loads the record for a query key. Returns ErrExpansionNotFound when
// no row exists.
func (s *Store) Get(ctx context.Context, queryKey string) (expander.Record, error) {
	row := s.db.DB.QueryRowContext(ctx, `
		SELECT query_key, source_query, terms, bound, source, computed_at, updated_at
		FROM expansions WHERE query_key = $1`,
		queryKey,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return expander.Record{}, apperrors.ErrExpansionNotFound
	}
	if err != nil {
		return expander.Record{}, fmt.Errorf("querying expansion %q: %w", queryKey, err)
	}
	return rec, nil
}

// List returns up to limit records in ascending key order, strictly after
// the given key.
func (s *Store) List(ctx context.Context, after string, limit int) ([]expander.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT query_key, source_query, terms, bound, source, computed_at, updated_at
		FROM expansions WHERE query_key > $1 ORDER BY query_key LIMIT $2`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing expansions: %w", err)
	}
	defer rows.Close()

	var recs []expander.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable expansion row", "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes the record for a query key. Returns ErrExpansionNotFound
// when no row existed.
func (s *Store) Delete(ctx context.Context, queryKey string) error {
	result, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM expansions WHERE query_key = $1`, queryKey)
	if err != nil {
		return fmt.Errorf("deleting expansion %q: %w", queryKey, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrExpansionNotFound
	}
	return nil
}

// Count returns the total number of stored expansions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM expansions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting expansions: %w", err)
	}
	return count, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (expander.Record, error) {
	var (
		rec        expander.Record
		termsJSON  []byte
		bound      int
		computedAt time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(&rec.QueryKey, &rec.SourceQuery, &termsJSON, &bound, &rec.Source, &computedAt, &updatedAt); err != nil {
		return expander.Record{}, err
	}

	var entries []expansion.Entry
	if err := json.Unmarshal(termsJSON, &entries); err != nil {
		return expander.Record{}, fmt.Errorf("parsing terms for %q: %w", rec.QueryKey, err)
	}
	rec.Terms = expansion.New(entries, bound)
	rec.ComputedAt = computedAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return rec, nil
}
