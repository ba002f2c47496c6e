package registry

import (
	"testing"
	"time"
)

func TestSessionStartAssignsIDAndCanBeFetched(t *testing.T) {
	r := New(NewMemStore())

	id, err := r.SessionStart("curs_1_a", "deadbeefcafef00d", "/ws/one", 100, nil)
	if err != nil {
		t.Fatalf("SessionStart failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty internal ID")
	}

	workspaces, err := r.ActiveWorkspaces()
	if err != nil {
		t.Fatalf("ActiveWorkspaces failed: %v", err)
	}
	if len(workspaces) != 1 || workspaces[0].WorkspaceHash != "deadbeefcafef00d" {
		t.Fatalf("expected one active workspace, got %+v", workspaces)
	}
}

func TestSessionStartClosesConflictingOlderSession(t *testing.T) {
	store := NewMemStore()
	r := New(store)

	if _, err := r.SessionStart("curs_1_a", "ws1", "/ws/one", 100, nil); err != nil {
		t.Fatalf("first SessionStart failed: %v", err)
	}
	if _, err := r.SessionStart("curs_2_a", "ws1", "/ws/one", 200, nil); err != nil {
		t.Fatalf("second SessionStart failed: %v", err)
	}

	first, err := store.GetByExternalID("curs_1_a")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if first == nil || first.Active() {
		t.Fatal("expected the first session to be closed on conflict")
	}

	second, err := store.GetByExternalID("curs_2_a")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if second == nil || !second.Active() {
		t.Fatal("expected the second session to remain active")
	}

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	count := 0
	for _, s := range active {
		if s.WorkspaceHash == "ws1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one active session per workspace, found %d", count)
	}
}

func TestSessionEndIsIdempotent(t *testing.T) {
	r := New(NewMemStore())

	if _, err := r.SessionStart("curs_1_a", "ws1", "/ws/one", 100, nil); err != nil {
		t.Fatalf("SessionStart failed: %v", err)
	}
	if err := r.SessionEnd("curs_1_a"); err != nil {
		t.Fatalf("first SessionEnd failed: %v", err)
	}
	if err := r.SessionEnd("curs_1_a"); err != nil {
		t.Fatalf("second SessionEnd failed: %v", err)
	}
	if err := r.SessionEnd("never-started"); err != nil {
		t.Fatalf("SessionEnd on unknown session should be a no-op, got: %v", err)
	}
}

func TestHeartbeatRefreshesLastSeen(t *testing.T) {
	store := NewMemStore()
	r := New(store)

	if _, err := r.SessionStart("curs_1_a", "ws1", "/ws/one", 100, nil); err != nil {
		t.Fatalf("SessionStart failed: %v", err)
	}

	before, err := store.GetByExternalID("curs_1_a")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}

	time.Sleep(time.Millisecond)
	if err := r.Heartbeat("curs_1_a"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	after, err := store.GetByExternalID("curs_1_a")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if !after.LastSeen.After(before.LastSeen) {
		t.Fatalf("expected LastSeen to advance: before=%v after=%v", before.LastSeen, after.LastSeen)
	}
}
