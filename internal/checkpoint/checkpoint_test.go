package checkpoint

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationCreatesTable(t *testing.T) {
	s := openTestStore(t)

	var name string
	err := s.DB().QueryRow(`
		SELECT name FROM sqlite_master WHERE type='table' AND name='sync_checkpoint'
	`).Scan(&name)
	if err == sql.ErrNoRows {
		t.Fatal("sync_checkpoint table not found")
	} else if err != nil {
		t.Fatalf("query table: %v", err)
	}
}

func TestLoadMissingReturnsNotOK(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Load(context.Background(), "pubkey1", DirectionWrite)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a checkpoint that was never saved")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "pubkey1", DirectionWrite, 1700000000, 1700000500); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(ctx, "pubkey1", DirectionWrite)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != 1700000000 {
		t.Errorf("cursor_until = %d, want 1700000000", got)
	}
}

func TestSaveOverwritesPriorCheckpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "pubkey1", DirectionWrite, 100, 1); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "pubkey1", DirectionWrite, 50, 2); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, _, err := s.Load(ctx, "pubkey1", DirectionWrite)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != 50 {
		t.Errorf("cursor_until = %d, want 50 (overwritten)", got)
	}
}

func TestWriteAndReadDirectionsAreIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Save(ctx, "pubkey1", DirectionWrite, 100, 1)
	s.Save(ctx, "pubkey1", DirectionRead, 200, 1)

	w, _, _ := s.Load(ctx, "pubkey1", DirectionWrite)
	r, _, _ := s.Load(ctx, "pubkey1", DirectionRead)
	if w != 100 || r != 200 {
		t.Errorf("write=%d read=%d, want 100/200", w, r)
	}
}

func TestClearRemovesCheckpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Save(ctx, "pubkey1", DirectionWrite, 100, 1)
	if err := s.Clear(ctx, "pubkey1", DirectionWrite); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	_, ok, err := s.Load(ctx, "pubkey1", DirectionWrite)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("expected checkpoint to be gone after Clear")
	}
}
