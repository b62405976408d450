package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLite(db)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestCreateGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	err := store.Create(ctx, Record{SessionID: "s1", Account: "alice", StartedAt: started})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	rec, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if rec.Account != "alice" || !rec.StartedAt.Equal(started) {
		t.Errorf("Get() = %+v", rec)
	}
	if rec.EndedAt != nil {
		t.Errorf("new record has end time %v, want open", rec.EndedAt)
	}
}

func TestCreateDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := Record{SessionID: "s1", Account: "alice", StartedAt: time.Now().UTC()}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, rec); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate Create() = %v, want ErrExists", err)
	}
}

func TestSetEnded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(45 * time.Minute)
	if err := store.Create(ctx, Record{SessionID: "s1", Account: "alice", StartedAt: started}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetEnded(ctx, "s1", ended); err != nil {
		t.Fatalf("SetEnded() error: %v", err)
	}

	rec, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.EndedAt == nil || !rec.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", rec.EndedAt, ended)
	}

	// The end time is written once; a second patch finds no open record.
	if err := store.SetEnded(ctx, "s1", ended.Add(time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Errorf("second SetEnded() = %v, want ErrNotFound", err)
	}
	rec, err = store.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.EndedAt.Equal(ended) {
		t.Errorf("EndedAt changed to %v after rejected patch, want %v", rec.EndedAt, ended)
	}
}

func TestSetEndedMissing(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetEnded(context.Background(), "ghost", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetEnded() for unknown session = %v, want ErrNotFound", err)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() = %v, want ErrNotFound", err)
	}
}
