// Package transcript persists finished meditation sessions.
//
// Three [Store] backends share one document format:
//
//   - [FileStore] writes <id>.json plus a human-readable <id>.txt per session.
//   - [SQLiteStore] keeps documents in a local SQLite database.
//   - [PostgresStore] keeps documents in PostgreSQL for shared deployments.
//
// Every document is the session [session.Record] plus a format version and
// the time it was saved.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/MrWong99/somatic/internal/session"
)

// FormatVersion is written into every saved document.
const FormatVersion = "1.0"

// ErrInvalidID is returned for session IDs that are unsafe to use as file or
// row names.
var ErrInvalidID = errors.New("transcript: invalid session id")

var validID = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,127}$`)

// ValidateID reports whether id is usable as a storage key.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Document is the persisted form of a session.
type Document struct {
	Version string `json:"version"`
	SavedAt string `json:"saved_at"`
	session.Record
}

// Summary describes a saved session in listings.
type Summary struct {
	SessionID     string   `json:"session_id"`
	Date          string   `json:"date"`
	Duration      float64  `json:"duration"`
	ExchangeCount int      `json:"exchange_count"`
	Tags          []string `json:"tags"`

	// Location is where the document lives, when the backend has a
	// meaningful answer (a file path for [FileStore]).
	Location string `json:"filepath,omitempty"`
}

// Store persists session documents.
type Store interface {
	// Save writes rec, replacing any document with the same session ID, and
	// returns where it was stored.
	Save(ctx context.Context, rec *session.Record) (string, error)

	// List returns saved sessions, newest first.
	List(ctx context.Context) ([]Summary, error)

	// Load returns the document for id, or nil and no error when none exists.
	Load(ctx context.Context, id string) (*Document, error)

	// Delete removes the document for id and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
}

func newDocument(rec *session.Record, now time.Time) *Document {
	return &Document{Version: FormatVersion, SavedAt: now.Format("2006-01-02T15:04:05.000000"), Record: *rec}
}

func summarize(doc *Document, location string) Summary {
	date := doc.SavedAt
	if date == "" {
		date = "unknown"
	}
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	return Summary{
		SessionID:     doc.SessionID,
		Date:          date,
		Duration:      doc.Duration,
		ExchangeCount: doc.ExchangeCount,
		Tags:          tags,
		Location:      location,
	}
}

// FormatDuration renders seconds as "45s", "5m 30s" or "1h 15m".
func FormatDuration(seconds float64) string {
	s := int(seconds)
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", s)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	}
}
