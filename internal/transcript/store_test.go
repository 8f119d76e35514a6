package transcript_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/somatic/internal/session"
	"github.com/MrWong99/somatic/internal/transcript"
)

func sampleRecord(id string) *session.Record {
	end := 1700000125.0
	return &session.Record{
		SessionID:     id,
		StartTime:     1700000000,
		EndTime:       &end,
		Duration:      125,
		ExchangeCount: 2,
		Tags:          []string{"calm"},
		Notes:         "felt grounded",
		Exchanges: []session.RecordExchange{
			{Role: "user", Content: "my chest feels tight", Timestamp: 1700000010},
			{Role: "assistant", Content: "Stay with the tightness.", Timestamp: 1700000015},
		},
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store transcript.Store) {
	t.Helper()
	ctx := context.Background()

	if doc, err := store.Load(ctx, "2024-01-01-000000"); err != nil || doc != nil {
		t.Fatalf("Load(missing) = %v, %v; want nil, nil", doc, err)
	}

	for _, id := range []string{"2024-01-01-090000", "2024-01-02-090000"} {
		if _, err := store.Save(ctx, sampleRecord(id)); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	// Saving again replaces the earlier document.
	updated := sampleRecord("2024-01-01-090000")
	updated.Notes = "second pass"
	if _, err := store.Save(ctx, updated); err != nil {
		t.Fatalf("Save(updated): %v", err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List len = %d, want 2", len(list))
	}
	if list[0].SessionID != "2024-01-02-090000" || list[1].SessionID != "2024-01-01-090000" {
		t.Errorf("List order = %s, %s; want newest first", list[0].SessionID, list[1].SessionID)
	}
	if list[0].ExchangeCount != 2 || list[0].Duration != 125 {
		t.Errorf("summary = %+v", list[0])
	}
	if len(list[0].Tags) != 1 || list[0].Tags[0] != "calm" {
		t.Errorf("summary tags = %v, want [calm]", list[0].Tags)
	}

	doc, err := store.Load(ctx, "2024-01-01-090000")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc == nil {
		t.Fatal("Load returned nil document")
	}
	if doc.Version != transcript.FormatVersion {
		t.Errorf("Version = %q, want %q", doc.Version, transcript.FormatVersion)
	}
	if doc.Notes != "second pass" {
		t.Errorf("Notes = %q, want %q", doc.Notes, "second pass")
	}
	if len(doc.Exchanges) != 2 || doc.Exchanges[0].Content != "my chest feels tight" {
		t.Errorf("Exchanges = %+v", doc.Exchanges)
	}
	if doc.EndTime == nil || *doc.EndTime != 1700000125 {
		t.Errorf("EndTime = %v, want 1700000125", doc.EndTime)
	}

	ok, err := store.Delete(ctx, "2024-01-01-090000")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v; want true, nil", ok, err)
	}
	ok, err = store.Delete(ctx, "2024-01-01-090000")
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v; want false, nil", ok, err)
	}
	list, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List after delete len = %d, want 1", len(list))
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	store, err := transcript.NewFileStore(filepath.Join(t.TempDir(), "sessions"), true)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exerciseStore(t, store)
}

func TestFileStore_SaveWritesBothFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := transcript.NewFileStore(dir, false)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	path, err := store.Save(context.Background(), sampleRecord("abc"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path != filepath.Join(dir, "abc.json") {
		t.Errorf("path = %q", path)
	}
	txt, err := os.ReadFile(filepath.Join(dir, "abc.txt"))
	if err != nil {
		t.Fatalf("read txt: %v", err)
	}
	if !strings.Contains(string(txt), "Meditation Session: abc") {
		t.Errorf("text transcript missing header:\n%s", txt)
	}
}

func TestFileStore_ListSkipsMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := transcript.NewFileStore(dir, false)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bare.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List len = %d, want 1", len(list))
	}
	got := list[0]
	if got.SessionID != "bare" || got.Date != "unknown" || got.Tags == nil {
		t.Errorf("summary = %+v, want id from filename, unknown date and empty tags", got)
	}
}

func TestStores_RejectUnsafeIDs(t *testing.T) {
	t.Parallel()

	store, err := transcript.NewFileStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"", "../escape", "a/b", ".hidden", strings.Repeat("x", 200)} {
		if _, err := store.Save(ctx, sampleRecord(id)); !errors.Is(err, transcript.ErrInvalidID) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidID", id, err)
		}
		if _, err := store.Load(ctx, id); !errors.Is(err, transcript.ErrInvalidID) {
			t.Errorf("Load(%q) err = %v, want ErrInvalidID", id, err)
		}
		if _, err := store.Delete(ctx, id); !errors.Is(err, transcript.ErrInvalidID) {
			t.Errorf("Delete(%q) err = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	store, err := transcript.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "somatic.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	exerciseStore(t, store)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SOMATIC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SOMATIC_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	store, err := transcript.OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(store.Close)

	for _, id := range []string{"2024-01-01-090000", "2024-01-02-090000"} {
		if _, err := store.Delete(ctx, id); err != nil {
			t.Fatalf("cleanup %s: %v", id, err)
		}
	}
	exerciseStore(t, store)
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0s"},
		{45.9, "45s"},
		{330, "5m 30s"},
		{4500, "1h 15m"},
	}
	for _, tt := range tests {
		if got := transcript.FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
