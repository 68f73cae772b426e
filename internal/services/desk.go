package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"examdesk-backend/internal/models"
)

// MachineStore is the durable identity & desk registry.
type MachineStore interface {
	Create(ctx context.Context, m *models.Machine) error
	GetByUUID(ctx context.Context, machineUUID string) (*models.Machine, error)
	GetByDeskNumber(ctx context.Context, deskNumber int) (*models.Machine, error)
	RefreshConnection(ctx context.Context, machineUUID string, mac, hostname, ip, platform *string) error
	MaxDeskNumber(ctx context.Context) (int, error)
	UpdateDeskNumber(ctx context.Context, machineUUID string, deskNumber int, label string) error
	AssignEmployee(ctx context.Context, machineUUID string, employeeID *uuid.UUID) error
	AssignStructure(ctx context.Context, machineUUID string, structureID *uuid.UUID) error
	ClearAssignment(ctx context.Context, machineUUID string) error
	ListPlaceholders(ctx context.Context) ([]*models.Machine, error)
}

// RepairQueue schedules a reconciliation pass for machines stuck on a negative
// placeholder desk number after a partially failed swap.
type RepairQueue interface {
	Enqueue(ctx context.Context) error
}

// DeskService owns desk-number arbitration. All structural edits (allocation,
// rename, swap, repair) are serialized under one mutex so two operators can
// never interleave the multi-write swap sequence.
type DeskService struct {
	machines    MachineStore
	repairs     RepairQueue
	labelPrefix string
	editMu      sync.Mutex
}

func NewDeskService(machines MachineStore, repairs RepairQueue, labelPrefix string) *DeskService {
	return &DeskService{machines: machines, repairs: repairs, labelPrefix: labelPrefix}
}

func (s *DeskService) label(deskNumber int) string {
	return fmt.Sprintf("%s %d", s.labelPrefix, deskNumber)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// RegisterOrRefresh handles the join path: a known identity token gets its
// network fingerprint and last-connected refreshed; an unknown one is assigned
// the next free desk number (max+1, gaps are never reused).
func (s *DeskService) RegisterOrRefresh(ctx context.Context, join models.JoinPayload, ip string) (*models.Machine, error) {
	if join.UUID == "" {
		return nil, &ValidationError{Message: "machine identity token is required"}
	}

	_, err := s.machines.GetByUUID(ctx, join.UUID)
	if err == nil {
		if err := s.machines.RefreshConnection(ctx, join.UUID,
			optional(join.MAC), optional(join.Hostname), optional(ip), optional(join.Platform)); err != nil {
			return nil, err
		}
		return s.machines.GetByUUID(ctx, join.UUID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	s.editMu.Lock()
	defer s.editMu.Unlock()

	max, err := s.machines.MaxDeskNumber(ctx)
	if err != nil {
		return nil, err
	}
	next := max + 1

	m := &models.Machine{
		UUID:       join.UUID,
		MAC:        optional(join.MAC),
		Hostname:   optional(join.Hostname),
		IP:         optional(ip),
		Platform:   optional(join.Platform),
		DeskNumber: next,
		Label:      s.label(next),
	}
	if err := s.machines.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ReassignDesk moves a machine to the requested desk number. When another
// machine already holds that number the two are swapped in three separate
// durable writes: the occupant moves to the negated target number, the
// requester takes the target, then the occupant takes the requester's previous
// number (or a fresh max+1 if that number was not a valid desk). The negative
// placeholder keeps the desk-number uniqueness constraint satisfied at every
// intermediate durable state. If a later step fails, earlier steps are not
// rolled back; a repair job is queued to reallocate any stranded placeholder.
func (s *DeskService) ReassignDesk(ctx context.Context, machineUUID string, requested int) (*models.Machine, error) {
	if requested < 1 {
		return nil, &ValidationError{Message: "desk number must be a positive integer"}
	}

	s.editMu.Lock()
	defer s.editMu.Unlock()

	a, err := s.machines.GetByUUID(ctx, machineUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "machine not found"}
		}
		return nil, err
	}
	if a.DeskNumber == requested {
		return a, nil
	}

	b, err := s.machines.GetByDeskNumber(ctx, requested)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		// Target number is free: plain rename.
		if err := s.machines.UpdateDeskNumber(ctx, machineUUID, requested, s.label(requested)); err != nil {
			return nil, err
		}
		return s.machines.GetByUUID(ctx, machineUUID)
	}

	// Step 1: park the occupant on the negated target number.
	if err := s.machines.UpdateDeskNumber(ctx, b.UUID, -requested, b.Label); err != nil {
		return nil, err
	}

	// Step 2: the requester takes the target number.
	if err := s.machines.UpdateDeskNumber(ctx, machineUUID, requested, s.label(requested)); err != nil {
		s.enqueueRepair(ctx)
		return nil, err
	}

	// Step 3: the occupant takes the requester's previous number, or a fresh
	// one if the previous number was itself a placeholder.
	target := a.DeskNumber
	if target < 1 {
		max, err := s.machines.MaxDeskNumber(ctx)
		if err != nil {
			s.enqueueRepair(ctx)
			return nil, err
		}
		target = max + 1
	}
	if err := s.machines.UpdateDeskNumber(ctx, b.UUID, target, s.label(target)); err != nil {
		s.enqueueRepair(ctx)
		return nil, err
	}

	return s.machines.GetByUUID(ctx, machineUUID)
}

func (s *DeskService) enqueueRepair(ctx context.Context) {
	if s.repairs == nil {
		return
	}
	if err := s.repairs.Enqueue(ctx); err != nil {
		log.Printf("desk: failed to enqueue repair job: %v", err)
	}
}

// RepairPlaceholders reallocates every machine stuck on a negative desk number.
// Runs at boot and whenever a swap fails partway through.
func (s *DeskService) RepairPlaceholders(ctx context.Context) (int, error) {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	stuck, err := s.machines.ListPlaceholders(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, m := range stuck {
		max, err := s.machines.MaxDeskNumber(ctx)
		if err != nil {
			return repaired, err
		}
		next := max + 1
		if err := s.machines.UpdateDeskNumber(ctx, m.UUID, next, s.label(next)); err != nil {
			return repaired, err
		}
		log.Printf("desk: repaired placeholder %d -> %d for machine %s", m.DeskNumber, next, m.UUID)
		repaired++
	}
	return repaired, nil
}

func (s *DeskService) AssignEmployee(ctx context.Context, machineUUID string, employeeID *uuid.UUID) error {
	return s.machines.AssignEmployee(ctx, machineUUID, employeeID)
}

func (s *DeskService) AssignStructure(ctx context.Context, machineUUID string, structureID *uuid.UUID) error {
	return s.machines.AssignStructure(ctx, machineUUID, structureID)
}

func (s *DeskService) ClearAssignment(ctx context.Context, machineUUID string) error {
	return s.machines.ClearAssignment(ctx, machineUUID)
}

func (s *DeskService) GetMachine(ctx context.Context, machineUUID string) (*models.Machine, error) {
	m, err := s.machines.GetByUUID(ctx, machineUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "machine not found"}
		}
		return nil, err
	}
	return m, nil
}
