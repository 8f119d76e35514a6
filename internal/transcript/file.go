package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/somatic/internal/session"
)

// FileStore keeps one JSON document and one text transcript per session in
// a directory.
type FileStore struct {
	dir               string
	includeTimestamps bool
	now               func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, includeTimestamps bool) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, includeTimestamps: includeTimestamps, now: time.Now}, nil
}

// Dir returns the store's directory.
func (s *FileStore) Dir() string { return s.dir }

// Save writes <id>.json and <id>.txt and returns the JSON path.
func (s *FileStore) Save(_ context.Context, rec *session.Record) (string, error) {
	if err := ValidateID(rec.SessionID); err != nil {
		return "", err
	}
	doc := newDocument(rec, s.now())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("transcript: encode %s: %w", rec.SessionID, err)
	}
	jsonPath := s.path(rec.SessionID, ".json")
	if err := writeFileAtomic(jsonPath, data); err != nil {
		return "", fmt.Errorf("transcript: write %s: %w", jsonPath, err)
	}

	txtPath := s.path(rec.SessionID, ".txt")
	if err := writeFileAtomic(txtPath, []byte(RenderText(doc, s.includeTimestamps))); err != nil {
		return "", fmt.Errorf("transcript: write %s: %w", txtPath, err)
	}
	return jsonPath, nil
}

// List reads every *.json document, newest session ID first. Unreadable or
// malformed files are skipped.
func (s *FileStore) List(_ context.Context) ([]Summary, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("transcript: list %s: %w", s.dir, err)
	}
	slices.Sort(paths)
	slices.Reverse(paths)

	out := make([]Summary, 0, len(paths))
	for _, p := range paths {
		doc, err := readDocument(p)
		if err != nil {
			slog.Debug("transcript: skipping unreadable document", "path", p, "err", err)
			continue
		}
		if doc.SessionID == "" {
			doc.SessionID = strings.TrimSuffix(filepath.Base(p), ".json")
		}
		out = append(out, summarize(doc, p))
	}
	return out, nil
}

// Load implements [Store].
func (s *FileStore) Load(_ context.Context, id string) (*Document, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	doc, err := readDocument(s.path(id, ".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: load %s: %w", id, err)
	}
	return doc, nil
}

// Delete removes both files for id.
func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	deleted := false
	for _, ext := range []string{".json", ".txt"} {
		err := os.Remove(s.path(id, ext))
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return deleted, fmt.Errorf("transcript: delete %s%s: %w", id, ext, err)
		}
	}
	return deleted, nil
}

func (s *FileStore) path(id, ext string) string {
	return filepath.Join(s.dir, id+ext)
}

func readDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
