package session

import (
	"encoding/json"
	"testing"
)

func sessionList(ids ...string) []Session {
	list := make([]Session, len(ids))
	for i, id := range ids {
		list[i] = Session{ID: id}
	}
	return list
}

func ids(list []Session) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[s.ID] = true
	}
	return set
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name        string
		previous    []Session
		current     []Session
		wantCreated []string
		wantRemoved []string
	}{
		{
			name:     "both empty",
			previous: nil,
			current:  nil,
		},
		{
			name:        "all new",
			previous:    nil,
			current:     sessionList("a", "b"),
			wantCreated: []string{"a", "b"},
		},
		{
			name:        "all gone",
			previous:    sessionList("a", "b"),
			current:     nil,
			wantRemoved: []string{"a", "b"},
		},
		{
			name:        "mixed",
			previous:    sessionList("s1", "s2"),
			current:     sessionList("s2", "s3"),
			wantCreated: []string{"s3"},
			wantRemoved: []string{"s1"},
		},
		{
			name:     "unchanged",
			previous: sessionList("a", "b"),
			current:  sessionList("b", "a"), // order must not matter
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.previous, tt.current)
			if len(got.Created) != len(tt.wantCreated) {
				t.Fatalf("created = %d sessions, want %d", len(got.Created), len(tt.wantCreated))
			}
			for i, id := range tt.wantCreated {
				if got.Created[i].ID != id {
					t.Errorf("created[%d] = %q, want %q", i, got.Created[i].ID, id)
				}
			}
			if len(got.Removed) != len(tt.wantRemoved) {
				t.Fatalf("removed = %d sessions, want %d", len(got.Removed), len(tt.wantRemoved))
			}
			for i, id := range tt.wantRemoved {
				if got.Removed[i].ID != id {
					t.Errorf("removed[%d] = %q, want %q", i, got.Removed[i].ID, id)
				}
			}
		})
	}
}

// Created and removed must be disjoint from each other and from the
// unchanged set, and together with the unchanged ids must reconstruct
// the inputs exactly.
func TestDiffPartition(t *testing.T) {
	previous := sessionList("a", "b", "c", "d")
	current := sessionList("c", "d", "e", "f")

	got := Diff(previous, current)
	created := ids(got.Created)
	removed := ids(got.Removed)

	for id := range created {
		if removed[id] {
			t.Errorf("id %q is both created and removed", id)
		}
	}

	unchanged := make(map[string]bool)
	for id := range ids(previous) {
		if ids(current)[id] {
			unchanged[id] = true
		}
	}
	for id := range unchanged {
		if created[id] || removed[id] {
			t.Errorf("unchanged id %q appears in diff", id)
		}
	}

	// created ∪ unchanged == ids(current)
	for id := range ids(current) {
		if !created[id] && !unchanged[id] {
			t.Errorf("current id %q missing from created ∪ unchanged", id)
		}
	}
	// removed ∪ unchanged == ids(previous)
	for id := range ids(previous) {
		if !removed[id] && !unchanged[id] {
			t.Errorf("previous id %q missing from removed ∪ unchanged", id)
		}
	}
}

func TestDiffIdempotent(t *testing.T) {
	snapshot := sessionList("x", "y", "z")
	got := Diff(snapshot, snapshot)
	if len(got.Created) != 0 || len(got.Removed) != 0 {
		t.Errorf("Diff(S, S) = created %d, removed %d; want 0, 0", len(got.Created), len(got.Removed))
	}
}

// Identity is id-only: changed raw fields on a surviving session must
// not produce events.
func TestDiffIgnoresRawChanges(t *testing.T) {
	previous := []Session{{ID: "a", Raw: json.RawMessage(`{"id":"a","title":"old"}`)}}
	current := []Session{{ID: "a", Raw: json.RawMessage(`{"id":"a","title":"new"}`)}}

	got := Diff(previous, current)
	if len(got.Created) != 0 || len(got.Removed) != 0 {
		t.Errorf("raw-only change produced events: created %d, removed %d", len(got.Created), len(got.Removed))
	}
}
