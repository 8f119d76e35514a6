package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/somatic/internal/session"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS meditation_sessions (
    session_id     TEXT         PRIMARY KEY,
    saved_at       TEXT         NOT NULL,
    start_time     TIMESTAMPTZ  NOT NULL,
    duration       DOUBLE PRECISION NOT NULL,
    exchange_count INTEGER      NOT NULL,
    tags           TEXT[]       NOT NULL DEFAULT '{}',
    document       JSONB        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_meditation_sessions_start_time
    ON meditation_sessions (start_time);

CREATE INDEX IF NOT EXISTS idx_meditation_sessions_tags
    ON meditation_sessions USING GIN (tags);
`

// PostgresStore keeps session documents in PostgreSQL. All operations are
// safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript: migrate: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Save implements [Store].
func (s *PostgresStore) Save(ctx context.Context, rec *session.Record) (string, error) {
	if err := ValidateID(rec.SessionID); err != nil {
		return "", err
	}
	doc := newDocument(rec, s.now())
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("transcript: encode %s: %w", rec.SessionID, err)
	}

	const q = `
		INSERT INTO meditation_sessions
			(session_id, saved_at, start_time, duration, exchange_count, tags, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			saved_at = EXCLUDED.saved_at,
			start_time = EXCLUDED.start_time,
			duration = EXCLUDED.duration,
			exchange_count = EXCLUDED.exchange_count,
			tags = EXCLUDED.tags,
			document = EXCLUDED.document`
	_, err = s.pool.Exec(ctx, q,
		doc.SessionID, doc.SavedAt, doc.StartedAt(), doc.Duration, doc.ExchangeCount,
		summarize(doc, "").Tags, body,
	)
	if err != nil {
		return "", fmt.Errorf("transcript: save %s: %w", rec.SessionID, err)
	}
	return "postgres:" + rec.SessionID, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, saved_at, duration, exchange_count, tags
		FROM meditation_sessions
		ORDER BY session_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("transcript: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var sum Summary
		err := row.Scan(&sum.SessionID, &sum.Date, &sum.Duration, &sum.ExchangeCount, &sum.Tags)
		if sum.Tags == nil {
			sum.Tags = []string{}
		}
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcript: list: %w", err)
	}
	return out, nil
}

// Load implements [Store].
func (s *PostgresStore) Load(ctx context.Context, id string) (*Document, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM meditation_sessions WHERE session_id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: load %s: %w", id, err)
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("transcript: decode %s: %w", id, err)
	}
	return &doc, nil
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM meditation_sessions WHERE session_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("transcript: delete %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
