package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/guilhermexp/kasane/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_UpsertGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry := &models.Entry{
		Path:        "2024/jan/a.md",
		Title:       "First entry",
		CreatedAt:   time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
		Highlight:   "highlight-blue",
		Tags:        []string{"work"},
		Replies:     []string{"2024/jan/r.md"},
		Fingerprint: "abc123",
	}
	if err := s.UpsertEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEntry(ctx, "2024/jan/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "First entry" || got.Highlight != "highlight-blue" || got.Fingerprint != "abc123" {
		t.Errorf("roundtrip: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "work" {
		t.Errorf("tags: %v", got.Tags)
	}
	if len(got.Replies) != 1 || got.Replies[0] != "2024/jan/r.md" {
		t.Errorf("replies: %v", got.Replies)
	}
	if !got.CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("createdAt: got %v", got.CreatedAt)
	}

	// Upsert replaces.
	entry.Title = "Renamed"
	if err := s.UpsertEntry(ctx, entry); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetEntry(ctx, entry.Path)
	if got.Title != "Renamed" {
		t.Errorf("after upsert: %q", got.Title)
	}
	count, _ := s.CountEntries(ctx)
	if count != 1 {
		t.Errorf("count: got %d", count)
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetEntry(context.Background(), "nope.md"); err == nil {
		t.Error("expected error for missing entry")
	}
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, path := range []string{"old.md", "mid.md", "new.md"} {
		err := s.UpsertEntry(ctx, &models.Entry{
			Path:      path,
			CreatedAt: base.AddDate(0, 0, i),
			UpdatedAt: base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.ListEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantOrder := []string{"new.md", "mid.md", "old.md"}
	for i, want := range wantOrder {
		if entries[i].Path != want {
			t.Errorf("position %d: got %s, want %s", i, entries[i].Path, want)
		}
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.UpsertEntry(ctx, &models.Entry{Path: "a.md", CreatedAt: time.Now(), UpdatedAt: time.Now()})
	if err := s.DeleteEntry(ctx, "a.md"); err != nil {
		t.Fatal(err)
	}
	count, _ := s.CountEntries(ctx)
	if count != 0 {
		t.Errorf("count after delete: %d", count)
	}
	// Deleting an unknown path is a no-op.
	if err := s.DeleteEntry(ctx, "a.md"); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteStore_Meta(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.GetMeta(ctx, "embedding_model")
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Errorf("unset meta should be empty, got %q", v)
	}
	if err := s.SetMeta(ctx, "embedding_model", "mxbai-embed-large"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMeta(ctx, "embedding_model", "nomic-embed-text"); err != nil {
		t.Fatal(err)
	}
	v, _ = s.GetMeta(ctx, "embedding_model")
	if v != "nomic-embed-text" {
		t.Errorf("meta: got %q", v)
	}
}
