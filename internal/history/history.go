// Package history persists completed import summaries to Postgres so the
// surrounding application can show an audit trail of who imported what.
// Recording is best-effort; a write failure never reaches the user.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openledgerhq/importd/internal/importer"
)

// Store reads and writes the import_history table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a history store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the import_history table if it does not exist.
// Called once at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS import_history (
			id          UUID PRIMARY KEY,
			entity_kind TEXT NOT NULL,
			file_name   TEXT NOT NULL,
			total_rows  INTEGER NOT NULL,
			success     INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			skipped     INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure import_history schema: %w", err)
	}
	return nil
}

// RecordImport inserts one completed session summary.
func (s *Store) RecordImport(ctx context.Context, rec importer.CompletedImport) error {
	id, err := uuid.Parse(rec.SessionID)
	if err != nil {
		// Session IDs are uuids we minted; a parse failure means a caller
		// bug, not bad data. Mint a fresh row ID and keep the record.
		id = uuid.New()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_history
			(id, entity_kind, file_name, total_rows, success, failed, skipped, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id,
		rec.Kind.String(),
		rec.FileName,
		rec.TotalRows,
		rec.Results.Success,
		rec.Results.Failed,
		rec.Results.Skipped,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert import history: %w", err)
	}
	return nil
}

// Entry is one row of the import history listing.
type Entry struct {
	ID         string    `json:"id"`
	EntityKind string    `json:"entityKind"`
	FileName   string    `json:"fileName"`
	TotalRows  int       `json:"totalRows"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_kind, file_name, total_rows, success, failed, skipped, duration_ms, created_at
		FROM import_history
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var id uuid.UUID
		if err := rows.Scan(&id, &e.EntityKind, &e.FileName, &e.TotalRows, &e.Success, &e.Failed, &e.Skipped, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan import history: %w", err)
		}
		e.ID = id.String()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
