package roster

import (
	"testing"

	"github.com/google/uuid"
)

func TestUpsertEvictsStaleDeskHolder(t *testing.T) {
	r := New()
	r.UpsertOnJoin(Entry{MachineUUID: "old", ConnID: uuid.New(), DeskNumber: 2})

	r.UpsertOnJoin(Entry{MachineUUID: "new", ConnID: uuid.New(), DeskNumber: 2})

	if _, ok := r.Get("old"); ok {
		t.Error("Stale holder of desk 2 must be evicted on a conflicting join")
	}
	if e, ok := r.Get("new"); !ok || e.DeskNumber != 2 {
		t.Errorf("Expected new machine on desk 2, got %+v (found %v)", e, ok)
	}
}

func TestRejoinClearsExitAndDisconnect(t *testing.T) {
	r := New()
	conn := uuid.New()
	r.UpsertOnJoin(Entry{MachineUUID: "m", ConnID: conn, DeskNumber: 1})
	r.MarkExited("m", conn)

	r.UpsertOnJoin(Entry{MachineUUID: "m", ConnID: uuid.New(), DeskNumber: 1})

	e, _ := r.Get("m")
	if e.Exited || !e.Connected {
		t.Errorf("Rejoin must clear exit and disconnect flags, got %+v", e)
	}
}

func TestMarkDisconnectedIgnoresStaleConn(t *testing.T) {
	r := New()
	oldConn := uuid.New()
	r.UpsertOnJoin(Entry{MachineUUID: "m", ConnID: oldConn, DeskNumber: 1})

	// Station reconnected under a new connection ID.
	newConn := uuid.New()
	r.UpsertOnJoin(Entry{MachineUUID: "m", ConnID: newConn, DeskNumber: 1})

	// The old connection's teardown arrives late.
	if r.MarkDisconnected("m", oldConn) {
		t.Error("Stale disconnect must be ignored")
	}
	if e, _ := r.Get("m"); !e.Connected {
		t.Error("Live connection must not be grayed out by a stale disconnect")
	}

	if !r.MarkDisconnected("m", newConn) {
		t.Error("Matching disconnect must be applied")
	}
	if e, _ := r.Get("m"); e.Connected {
		t.Error("Expected entry disconnected")
	}
}

func TestMarkExitedIgnoresStaleConn(t *testing.T) {
	r := New()
	oldConn := uuid.New()
	r.UpsertOnJoin(Entry{MachineUUID: "m", ConnID: oldConn, DeskNumber: 1})

	// Rejoin under a new connection, then the old connection's exit arrives late.
	r.UpsertOnJoin(Entry{MachineUUID: "m", ConnID: uuid.New(), DeskNumber: 1})
	if r.MarkExited("m", oldConn) {
		t.Error("Stale exit must be ignored")
	}

	e, _ := r.Get("m")
	if e.Exited || !e.Connected {
		t.Errorf("Live rejoined entry must stay untouched by a stale exit, got %+v", e)
	}
}

func TestExitIsStickyAcrossDisconnect(t *testing.T) {
	r := New()
	conn := uuid.New()
	r.UpsertOnJoin(Entry{MachineUUID: "m", ConnID: conn, DeskNumber: 1})

	r.MarkExited("m", conn)
	r.MarkDisconnected("m", conn)

	e, ok := r.Get("m")
	if !ok {
		t.Fatal("Exited entry must stay in the roster")
	}
	if !e.Exited {
		t.Error("Exit flag must survive the subsequent disconnect")
	}
}

func TestSnapshotOrderedByDesk(t *testing.T) {
	r := New()
	for _, desk := range []int{5, 1, 3} {
		r.UpsertOnJoin(Entry{MachineUUID: uuid.NewString(), ConnID: uuid.New(), DeskNumber: desk})
	}

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(snap))
	}
	for i, want := range []int{1, 3, 5} {
		if snap[i].DeskNumber != want {
			t.Errorf("Position %d: expected desk %d, got %d", i, want, snap[i].DeskNumber)
		}
	}
}

func TestUpdateMissingEntry(t *testing.T) {
	r := New()
	if r.Update("ghost", func(e *Entry) { e.DeskNumber = 9 }) {
		t.Error("Update of a missing entry must report false")
	}
}
