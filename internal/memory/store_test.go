package memory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dmcontrol/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history", "test.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"show", "movie", "status"} {
		err := store.Record(ctx, domain.CommandRecord{
			CycleID:   "cycle-1",
			MessageID: domain.MessageID(100 + i),
			Name:      name,
			Args:      "arg",
			Reply:     "reply " + name,
		})
		if err != nil {
			t.Fatalf("record %s: %v", name, err)
		}
	}

	recs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Name != "status" || recs[0].MessageID != 102 {
		t.Fatalf("expected newest first, got %+v", recs[0])
	}
	if recs[1].Reply != "reply movie" {
		t.Fatalf("unexpected reply %q", recs[1].Reply)
	}
	if time.Since(recs[0].CreatedAt) > time.Hour {
		t.Fatalf("unexpected created_at %v", recs[0].CreatedAt)
	}
}

func TestRecent_Empty(t *testing.T) {
	store := newTestStore(t)
	recs, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := NewSQLiteStore(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	store.Record(context.Background(), domain.CommandRecord{CycleID: "c", MessageID: 1, Name: "help"})
	store.Close()

	store, err = NewSQLiteStore(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	recs, _ := store.Recent(context.Background(), 10)
	if len(recs) != 1 {
		t.Fatalf("expected history to survive reopen, got %d", len(recs))
	}
}
