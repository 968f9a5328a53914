package callstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the call event log. Detail is JSONB so new event types need
// no schema change.
const schema = `
CREATE TABLE IF NOT EXISTS call_events (
	id          BIGSERIAL PRIMARY KEY,
	call_id     TEXT        NOT NULL,
	event_type  TEXT        NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	detail      JSONB       NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS call_events_call_id_idx
	ON call_events (call_id, occurred_at);
`

// PostgresStore is the PostgreSQL-backed Store. All operations are safe for
// concurrent use; the pool handles connection management.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and ensures the
// call event schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("callstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("callstore: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("callstore: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Ping verifies the database connection, for readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("callstore: ping: %w", err)
	}
	return nil
}

// RecordEvent appends one event to the log.
func (s *PostgresStore) RecordEvent(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_events (call_id, event_type, occurred_at, detail)
		 VALUES ($1, $2, $3, $4)`,
		rec.CallID, rec.Type, rec.At, rec.Detail)
	if err != nil {
		return fmt.Errorf("callstore: record event: %w", err)
	}
	return nil
}

// EventsForCall returns callID's events in occurrence order.
func (s *PostgresStore) EventsForCall(ctx context.Context, callID string, limit int) ([]Record, error) {
	q := `SELECT call_id, event_type, occurred_at, detail
	      FROM call_events WHERE call_id = $1 ORDER BY occurred_at, id`
	args := []any{callID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("callstore: query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.CallID, &rec.Type, &rec.At, &rec.Detail); err != nil {
			return nil, fmt.Errorf("callstore: scan event: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("callstore: iterate events: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Compile-time interface assertion.
var _ Store = (*PostgresStore)(nil)
