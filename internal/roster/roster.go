// Package roster keeps the process-local view of which stations are live right
// now. It is rebuilt from scratch by reconnecting stations after a restart and
// is never persisted.
package roster

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"examdesk-backend/internal/models"
)

// Entry is one station as the operator panel sees it.
type Entry struct {
	MachineUUID   string                `json:"machineUuid"`
	ConnID        uuid.UUID             `json:"-"`
	DeskNumber    int                   `json:"deskNumber"`
	Label         string                `json:"label"`
	Hostname      *string               `json:"hostname"`
	IP            *string               `json:"ip"`
	Platform      *string               `json:"platform"`
	Employee      *models.EmployeeView  `json:"assignedEmployee"`
	Structure     *models.StructureView `json:"assignedStructure"`
	SessionStatus string                `json:"sessionStatus"` // "", confirmed, started, completed
	Connected     bool                  `json:"connected"`
	Exited        bool                  `json:"exited"`
	JoinedAt      time.Time             `json:"joinedAt"`
}

// Roster is safe for concurrent use from connection goroutines.
type Roster struct {
	mu      sync.RWMutex
	entries map[string]*Entry // keyed by machine UUID
}

func New() *Roster {
	return &Roster{entries: make(map[string]*Entry)}
}

// UpsertOnJoin records a station coming online. A rejoin from the same machine
// replaces the old connection; a different machine claiming a desk already
// shown in the roster evicts the stale holder, since desk numbers are unique
// in the durable registry and the roster must agree.
func (r *Roster) UpsertOnJoin(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, old := range r.entries {
		if key != e.MachineUUID && old.DeskNumber == e.DeskNumber {
			delete(r.entries, key)
		}
	}

	e.Connected = true
	e.Exited = false
	if e.JoinedAt.IsZero() {
		e.JoinedAt = time.Now()
	}
	r.entries[e.MachineUUID] = &e
}

// Update applies fn to the entry if present. Used for desk renames, assignment
// changes, and session status flips.
func (r *Roster) Update(machineUUID string, fn func(*Entry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[machineUUID]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// MarkDisconnected flags a dropped connection without removing the entry, so
// the operator still sees the desk (grayed out) while the station reconnects.
// The connection ID must still match: a stale disconnect from a replaced
// connection must not gray out the live one.
func (r *Roster) MarkDisconnected(machineUUID string, connID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[machineUUID]
	if !ok || e.ConnID != connID {
		return false
	}
	e.Connected = false
	return true
}

// MarkExited records a deliberate station shutdown. Exited entries stay in the
// roster but are flagged; an exit is sticky until the next join. As with
// MarkDisconnected, the connection ID must match so a stale exit from a
// replaced connection cannot flag the rejoined entry.
func (r *Roster) MarkExited(machineUUID string, connID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[machineUUID]
	if !ok || e.ConnID != connID {
		return false
	}
	e.Exited = true
	e.Connected = false
	return true
}

// Remove drops the entry entirely (operator reset of an unknown machine).
func (r *Roster) Remove(machineUUID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, machineUUID)
}

// Get returns a copy of the entry.
func (r *Roster) Get(machineUUID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[machineUUID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns all entries ordered by desk number, as pushed to operator
// observers after every roster mutation.
func (r *Roster) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeskNumber < out[j].DeskNumber })
	return out
}
