package registry

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestRegistry(t *testing.T) *SQLite {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	reg, err := NewSQLite(db)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func testDestination(account, label string) *Destination {
	return &Destination{
		Account: account,
		Label:   label,
		Kind:    KindJSON,
		URL:     "https://example.com/hook",
		Method:  "POST",
	}
}

func TestInsertGet(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	d := testDestination("alice", "primary")
	if err := reg.Insert(ctx, d); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if d.ID == "" {
		t.Fatal("Insert() did not assign an id")
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Error("Insert() did not assign timestamps")
	}

	got, err := reg.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Account != "alice" || got.Label != "primary" || got.Kind != KindJSON || got.Method != "POST" {
		t.Errorf("Get() = %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	reg := newTestRegistry(t)

	if _, err := reg.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() = %v, want ErrNotFound", err)
	}
}

func TestListByAccount(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	for _, d := range []*Destination{
		testDestination("alice", "one"),
		testDestination("alice", "two"),
		testDestination("bob", "other"),
	} {
		if err := reg.Insert(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	alice, err := reg.ListByAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByAccount() error: %v", err)
	}
	if len(alice) != 2 {
		t.Fatalf("ListByAccount(alice) = %d destinations, want 2", len(alice))
	}
	for _, d := range alice {
		if d.Account != "alice" {
			t.Errorf("ListByAccount(alice) returned destination for %q", d.Account)
		}
	}

	none, err := reg.ListByAccount(ctx, "carol")
	if err != nil {
		t.Fatalf("ListByAccount() error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListByAccount(carol) = %d destinations, want 0", len(none))
	}

	all, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() = %d destinations, want 3", len(all))
	}
}

func TestUpdate(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	d := testDestination("alice", "before")
	if err := reg.Insert(ctx, d); err != nil {
		t.Fatal(err)
	}

	d.Label = "after"
	d.Method = "GET"
	if err := reg.Update(ctx, d); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := reg.Get(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "after" || got.Method != "GET" {
		t.Errorf("Get() after update = %+v", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("update timestamp precedes creation timestamp")
	}
}

func TestUpdateMissing(t *testing.T) {
	reg := newTestRegistry(t)

	d := testDestination("alice", "x")
	d.ID = "nope"
	if err := reg.Update(context.Background(), d); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	d := testDestination("alice", "x")
	if err := reg.Insert(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := reg.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := reg.Get(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}
	if err := reg.Delete(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() = %v, want ErrNotFound", err)
	}
}
