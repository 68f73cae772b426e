package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"examdesk-backend/internal/models"
)

// ─── In-memory machine store ───

type deskUpdate struct {
	machineUUID string
	deskNumber  int
}

type fakeMachineStore struct {
	machines map[string]*models.Machine
	updates  []deskUpdate
	// failUpdate makes UpdateDeskNumber fail for one machine UUID.
	failUpdate string
}

func newFakeMachineStore(desks map[string]int) *fakeMachineStore {
	s := &fakeMachineStore{machines: make(map[string]*models.Machine)}
	for id, desk := range desks {
		s.machines[id] = &models.Machine{
			ID:         uuid.New(),
			UUID:       id,
			DeskNumber: desk,
			Label:      fmt.Sprintf("Desk %d", desk),
		}
	}
	return s
}

func (s *fakeMachineStore) Create(ctx context.Context, m *models.Machine) error {
	m.ID = uuid.New()
	s.machines[m.UUID] = m
	return nil
}

func (s *fakeMachineStore) GetByUUID(ctx context.Context, machineUUID string) (*models.Machine, error) {
	m, ok := s.machines[machineUUID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := *m
	return &copy, nil
}

func (s *fakeMachineStore) GetByDeskNumber(ctx context.Context, deskNumber int) (*models.Machine, error) {
	for _, m := range s.machines {
		if m.DeskNumber == deskNumber {
			copy := *m
			return &copy, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeMachineStore) RefreshConnection(ctx context.Context, machineUUID string, mac, hostname, ip, platform *string) error {
	if _, ok := s.machines[machineUUID]; !ok {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *fakeMachineStore) MaxDeskNumber(ctx context.Context) (int, error) {
	max := 0
	for _, m := range s.machines {
		if m.DeskNumber > max {
			max = m.DeskNumber
		}
	}
	return max, nil
}

func (s *fakeMachineStore) UpdateDeskNumber(ctx context.Context, machineUUID string, deskNumber int, label string) error {
	if machineUUID == s.failUpdate {
		return errors.New("store write failed")
	}
	m, ok := s.machines[machineUUID]
	if !ok {
		return pgx.ErrNoRows
	}
	m.DeskNumber = deskNumber
	m.Label = label
	s.updates = append(s.updates, deskUpdate{machineUUID: machineUUID, deskNumber: deskNumber})
	return nil
}

func (s *fakeMachineStore) AssignEmployee(ctx context.Context, machineUUID string, employeeID *uuid.UUID) error {
	m, ok := s.machines[machineUUID]
	if !ok {
		return pgx.ErrNoRows
	}
	m.AssignedEmployeeID = employeeID
	return nil
}

func (s *fakeMachineStore) AssignStructure(ctx context.Context, machineUUID string, structureID *uuid.UUID) error {
	m, ok := s.machines[machineUUID]
	if !ok {
		return pgx.ErrNoRows
	}
	m.AssignedStructureID = structureID
	return nil
}

func (s *fakeMachineStore) ClearAssignment(ctx context.Context, machineUUID string) error {
	m, ok := s.machines[machineUUID]
	if !ok {
		return pgx.ErrNoRows
	}
	m.AssignedEmployeeID = nil
	m.AssignedStructureID = nil
	return nil
}

func (s *fakeMachineStore) ListPlaceholders(ctx context.Context) ([]*models.Machine, error) {
	var out []*models.Machine
	for _, m := range s.machines {
		if m.DeskNumber < 1 {
			copy := *m
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *fakeMachineStore) assertUniqueDesks(t *testing.T) {
	t.Helper()
	seen := make(map[int]string)
	for id, m := range s.machines {
		if other, dup := seen[m.DeskNumber]; dup {
			t.Errorf("desk %d held by both %s and %s", m.DeskNumber, other, id)
		}
		seen[m.DeskNumber] = id
	}
}

type fakeRepairQueue struct {
	enqueued int
}

func (q *fakeRepairQueue) Enqueue(ctx context.Context) error {
	q.enqueued++
	return nil
}

// ─── Registration ───

func TestRegisterOrRefreshNewMachineGetsMaxPlusOne(t *testing.T) {
	store := newFakeMachineStore(map[string]int{"a": 1, "b": 2, "c": 5})
	svc := NewDeskService(store, nil, "Desk")

	m, err := svc.RegisterOrRefresh(context.Background(), models.JoinPayload{UUID: "new"}, "10.0.0.9")
	if err != nil {
		t.Fatalf("RegisterOrRefresh failed: %v", err)
	}

	if m.DeskNumber != 6 {
		t.Errorf("Expected desk 6 (max+1, gaps never reused), got %d", m.DeskNumber)
	}
	if m.Label != "Desk 6" {
		t.Errorf("Expected label 'Desk 6', got %q", m.Label)
	}
	store.assertUniqueDesks(t)
}

func TestRegisterOrRefreshKnownMachineKeepsDesk(t *testing.T) {
	store := newFakeMachineStore(map[string]int{"a": 3})
	svc := NewDeskService(store, nil, "Desk")

	m, err := svc.RegisterOrRefresh(context.Background(), models.JoinPayload{UUID: "a", Hostname: "host-a"}, "10.0.0.9")
	if err != nil {
		t.Fatalf("RegisterOrRefresh failed: %v", err)
	}
	if m.DeskNumber != 3 {
		t.Errorf("Reconnect must keep desk 3, got %d", m.DeskNumber)
	}
	if len(store.machines) != 1 {
		t.Errorf("Reconnect must not create a second machine, have %d", len(store.machines))
	}
}

func TestRegisterOrRefreshRequiresIdentity(t *testing.T) {
	svc := NewDeskService(newFakeMachineStore(nil), nil, "Desk")

	_, err := svc.RegisterOrRefresh(context.Background(), models.JoinPayload{}, "")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
}

// ─── Reassignment ───

func TestReassignDeskSwapExchangesNumbers(t *testing.T) {
	store := newFakeMachineStore(map[string]int{"a": 1, "b": 3})
	svc := NewDeskService(store, nil, "Desk")

	m, err := svc.ReassignDesk(context.Background(), "a", 3)
	if err != nil {
		t.Fatalf("ReassignDesk failed: %v", err)
	}

	if m.DeskNumber != 3 {
		t.Errorf("Expected requester on desk 3, got %d", m.DeskNumber)
	}
	if got := store.machines["b"].DeskNumber; got != 1 {
		t.Errorf("Expected displaced machine on desk 1, got %d", got)
	}
	store.assertUniqueDesks(t)

	// The occupant must pass through the negated target before landing.
	want := []deskUpdate{
		{machineUUID: "b", deskNumber: -3},
		{machineUUID: "a", deskNumber: 3},
		{machineUUID: "b", deskNumber: 1},
	}
	if len(store.updates) != len(want) {
		t.Fatalf("Expected %d desk writes, got %d: %+v", len(want), len(store.updates), store.updates)
	}
	for i, w := range want {
		if store.updates[i] != w {
			t.Errorf("Write %d: expected %+v, got %+v", i, w, store.updates[i])
		}
	}
}

func TestReassignDeskSameNumberIsIdempotent(t *testing.T) {
	store := newFakeMachineStore(map[string]int{"a": 2})
	svc := NewDeskService(store, nil, "Desk")

	m, err := svc.ReassignDesk(context.Background(), "a", 2)
	if err != nil {
		t.Fatalf("ReassignDesk failed: %v", err)
	}
	if m.DeskNumber != 2 {
		t.Errorf("Expected desk 2, got %d", m.DeskNumber)
	}
	if len(store.updates) != 0 {
		t.Errorf("Expected no writes for a same-number request, got %+v", store.updates)
	}
}

func TestReassignDeskFreeNumberIsPlainRename(t *testing.T) {
	store := newFakeMachineStore(map[string]int{"a": 1})
	svc := NewDeskService(store, nil, "Desk")

	m, err := svc.ReassignDesk(context.Background(), "a", 7)
	if err != nil {
		t.Fatalf("ReassignDesk failed: %v", err)
	}
	if m.DeskNumber != 7 || m.Label != "Desk 7" {
		t.Errorf("Expected desk 7 / 'Desk 7', got %d / %q", m.DeskNumber, m.Label)
	}
	if len(store.updates) != 1 {
		t.Errorf("Expected a single write for a free target, got %+v", store.updates)
	}
}

func TestReassignDeskRejectsNonPositive(t *testing.T) {
	svc := NewDeskService(newFakeMachineStore(map[string]int{"a": 1}), nil, "Desk")

	for _, requested := range []int{0, -1, -100} {
		_, err := svc.ReassignDesk(context.Background(), "a", requested)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("Requested %d: expected ValidationError, got %v", requested, err)
		}
	}
}

func TestReassignDeskUnknownMachine(t *testing.T) {
	svc := NewDeskService(newFakeMachineStore(nil), nil, "Desk")

	_, err := svc.ReassignDesk(context.Background(), "ghost", 1)
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestReassignDeskStepFailureEnqueuesRepair(t *testing.T) {
	store := newFakeMachineStore(map[string]int{"a": 1, "b": 3})
	store.failUpdate = "a" // step 2 fails after the occupant is parked
	repairs := &fakeRepairQueue{}
	svc := NewDeskService(store, repairs, "Desk")

	_, err := svc.ReassignDesk(context.Background(), "a", 3)
	if err == nil {
		t.Fatal("Expected swap to fail")
	}
	if repairs.enqueued != 1 {
		t.Errorf("Expected one repair job enqueued, got %d", repairs.enqueued)
	}
	if got := store.machines["b"].DeskNumber; got != -3 {
		t.Errorf("Expected occupant stranded on placeholder -3, got %d", got)
	}
}

// ─── Repair ───

func TestRepairPlaceholdersReallocates(t *testing.T) {
	store := newFakeMachineStore(map[string]int{"a": 1, "b": -3, "c": 4})
	svc := NewDeskService(store, nil, "Desk")

	repaired, err := svc.RepairPlaceholders(context.Background())
	if err != nil {
		t.Fatalf("RepairPlaceholders failed: %v", err)
	}
	if repaired != 1 {
		t.Errorf("Expected 1 machine repaired, got %d", repaired)
	}
	if got := store.machines["b"].DeskNumber; got != 5 {
		t.Errorf("Expected placeholder reallocated to 5 (max+1), got %d", got)
	}
	store.assertUniqueDesks(t)
}

func TestRepairPlaceholdersNoopWhenClean(t *testing.T) {
	store := newFakeMachineStore(map[string]int{"a": 1, "b": 2})
	svc := NewDeskService(store, nil, "Desk")

	repaired, err := svc.RepairPlaceholders(context.Background())
	if err != nil {
		t.Fatalf("RepairPlaceholders failed: %v", err)
	}
	if repaired != 0 {
		t.Errorf("Expected nothing to repair, got %d", repaired)
	}
	if len(store.updates) != 0 {
		t.Errorf("Expected no writes, got %+v", store.updates)
	}
}
