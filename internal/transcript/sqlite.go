package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/somatic/internal/session"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id     TEXT PRIMARY KEY,
	saved_at       TEXT NOT NULL,
	start_time     REAL NOT NULL,
	duration       REAL NOT NULL,
	exchange_count INTEGER NOT NULL,
	tags_json      TEXT NOT NULL DEFAULT '[]',
	document       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);
`

// SQLiteStore keeps session documents in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create database directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Save implements [Store].
func (s *SQLiteStore) Save(ctx context.Context, rec *session.Record) (string, error) {
	if err := ValidateID(rec.SessionID); err != nil {
		return "", err
	}
	doc := newDocument(rec, s.now())
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("transcript: encode %s: %w", rec.SessionID, err)
	}
	tags, err := json.Marshal(summarize(doc, "").Tags)
	if err != nil {
		return "", fmt.Errorf("transcript: encode tags: %w", err)
	}

	const q = `
	INSERT INTO sessions (session_id, saved_at, start_time, duration, exchange_count, tags_json, document)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		saved_at = excluded.saved_at,
		start_time = excluded.start_time,
		duration = excluded.duration,
		exchange_count = excluded.exchange_count,
		tags_json = excluded.tags_json,
		document = excluded.document`
	if _, err := s.db.ExecContext(ctx, q,
		doc.SessionID, doc.SavedAt, doc.StartTime, doc.Duration, doc.ExchangeCount, string(tags), string(body),
	); err != nil {
		return "", fmt.Errorf("transcript: save %s: %w", rec.SessionID, err)
	}
	return s.path + "#" + rec.SessionID, nil
}

// List implements [Store].
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT session_id, saved_at, duration, exchange_count, tags_json
	FROM sessions ORDER BY session_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("transcript: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum  Summary
			tags string
		)
		if err := rows.Scan(&sum.SessionID, &sum.Date, &sum.Duration, &sum.ExchangeCount, &tags); err != nil {
			return nil, fmt.Errorf("transcript: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &sum.Tags); err != nil || sum.Tags == nil {
			sum.Tags = []string{}
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Load implements [Store].
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM sessions WHERE session_id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: load %s: %w", id, err)
	}
	var doc Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("transcript: decode %s: %w", id, err)
	}
	return &doc, nil
}

// Delete implements [Store].
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("transcript: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transcript: delete %s: %w", id, err)
	}
	return n > 0, nil
}
