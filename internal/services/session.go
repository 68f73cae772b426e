package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"examdesk-backend/internal/models"
)

// SessionStore persists session records and their per-exam-type progress rows.
type SessionStore interface {
	Create(ctx context.Context, s *models.ExamSession) error
	GetActiveByMachine(ctx context.Context, machineUUID string) (*models.ExamSession, error)
	GetLatestCompletedByMachine(ctx context.Context, machineUUID string) (*models.ExamSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExamSession, error)
	MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	CreateProgress(ctx context.Context, p *models.ExamProgress) error
	GetProgress(ctx context.Context, sessionID, examTypeID uuid.UUID) (*models.ExamProgress, error)
	ListProgress(ctx context.Context, sessionID uuid.UUID) ([]*models.ExamProgress, error)
	UpdateProgress(ctx context.Context, sessionID, examTypeID uuid.UUID, questionID string, optionID *string, optionSet bool, timeDelta float64) (bool, error)
	MarkProgressCompleted(ctx context.Context, sessionID, examTypeID uuid.UUID, at time.Time) (bool, error)
}

type ExamTypeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExamType, error)
	ListActive(ctx context.Context) ([]*models.ExamType, error)
}

type QuestionStore interface {
	ListEligible(ctx context.Context, examTypeID uuid.UUID, structureCode string) ([]*models.Question, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Question, error)
}

type StructureStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Structure, error)
}

// SessionService drives the session state machine: confirmed -> started ->
// completed, with one progress row per exam type. Multi-step flows are
// serialized per machine so a duplicate start from a flapping connection can
// never create two snapshots.
type SessionService struct {
	sessions  SessionStore
	machines  MachineStore
	examTypes ExamTypeStore
	questions QuestionStore
	structs   StructureStore
	locks     *keyedMutex
}

func NewSessionService(sessions SessionStore, machines MachineStore, examTypes ExamTypeStore, questions QuestionStore, structs StructureStore) *SessionService {
	return &SessionService{
		sessions:  sessions,
		machines:  machines,
		examTypes: examTypes,
		questions: questions,
		structs:   structs,
		locks:     newKeyedMutex(),
	}
}

// ConfirmOne creates a confirmed session for the machine, snapshotting its desk
// and assignments. Machines without both an employee and a structure, or with a
// session already active, are skipped silently: bulk confirm is expected to hit
// a mix of eligible and ineligible desks. Returns nil, nil on a skip.
func (s *SessionService) ConfirmOne(ctx context.Context, machineUUID string) (*models.ExamSession, error) {
	unlock := s.locks.Lock(machineUUID)
	defer unlock()

	m, err := s.machines.GetByUUID(ctx, machineUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if m.AssignedEmployeeID == nil || m.AssignedStructureID == nil {
		return nil, nil
	}

	_, err = s.sessions.GetActiveByMachine(ctx, machineUUID)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	session := &models.ExamSession{
		MachineUUID: m.UUID,
		EmployeeID:  *m.AssignedEmployeeID,
		StructureID: *m.AssignedStructureID,
		DeskNumber:  m.DeskNumber,
		DeskLabel:   m.Label,
		MAC:         m.MAC,
		Hostname:    m.Hostname,
		IP:          m.IP,
		Platform:    m.Platform,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ConfirmMany confirms every eligible machine in the batch and reports which
// ones got a session. Ineligible machines don't fail the batch.
func (s *SessionService) ConfirmMany(ctx context.Context, machineUUIDs []string) ([]*models.ExamSession, error) {
	var confirmed []*models.ExamSession
	for _, id := range machineUUIDs {
		session, err := s.ConfirmOne(ctx, id)
		if err != nil {
			return confirmed, err
		}
		if session != nil {
			confirmed = append(confirmed, session)
		}
	}
	return confirmed, nil
}

// GetActive returns the machine's confirmed-or-started session, or nil when
// there is none.
func (s *SessionService) GetActive(ctx context.Context, machineUUID string) (*models.ExamSession, error) {
	session, err := s.sessions.GetActiveByMachine(ctx, machineUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// LatestCompleted returns the machine's most recently completed session, or
// nil when it never finished one.
func (s *SessionService) LatestCompleted(ctx context.Context, machineUUID string) (*models.ExamSession, error) {
	session, err := s.sessions.GetLatestCompletedByMachine(ctx, machineUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

func (s *SessionService) ActiveExamTypes(ctx context.Context) ([]*models.ExamType, error) {
	return s.examTypes.ListActive(ctx)
}

// StartResult is what a station needs to render an exam type: the frozen
// question snapshot, previously recorded answers, and the session-wide timer
// anchor.
type StartResult struct {
	Session  *models.ExamSession
	ExamType *models.ExamType
	Progress *models.ExamProgress
	Resumed  bool
}

// StartExamType starts or resumes one exam type within the active session.
// First start freezes a question snapshot (shuffled, truncated to the exam
// type's count, correctness stripped) and flips the session to started if this
// is the first exam type opened. A later call for the same type returns the
// frozen snapshot and saved answers verbatim, without reshuffling or touching
// any timestamp. A completed exam type is never reopened.
func (s *SessionService) StartExamType(ctx context.Context, machineUUID string, examTypeID uuid.UUID) (*StartResult, error) {
	unlock := s.locks.Lock(machineUUID)
	defer unlock()

	session, err := s.sessions.GetActiveByMachine(ctx, machineUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &StateConflictError{Message: "no confirmed session for this machine"}
		}
		return nil, err
	}

	examType, err := s.examTypes.GetByID(ctx, examTypeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "exam type not found"}
		}
		return nil, err
	}
	if !examType.IsActive {
		return nil, &StateConflictError{Message: "exam type is not active"}
	}

	progress, err := s.sessions.GetProgress(ctx, session.ID, examTypeID)
	if err == nil {
		if progress.Status == models.ProgressCompleted {
			return nil, &StateConflictError{Message: "exam type already completed, cannot restart"}
		}
		return &StartResult{Session: session, ExamType: examType, Progress: progress, Resumed: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	snapshot, err := s.buildSnapshot(ctx, session, examType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	progress = &models.ExamProgress{
		SessionID:  session.ID,
		ExamTypeID: examTypeID,
		Questions:  snapshot,
		Answers:    map[string]string{},
		TimeSpent:  map[string]float64{},
		Status:     models.ProgressInProgress,
		StartedAt:  &now,
	}
	if err := s.sessions.CreateProgress(ctx, progress); err != nil {
		return nil, err
	}

	if session.Status == models.SessionConfirmed {
		flipped, err := s.sessions.MarkStarted(ctx, session.ID, now)
		if err != nil {
			return nil, err
		}
		if flipped {
			session.Status = models.SessionStarted
			session.StartedAt = &now
		}
	}

	return &StartResult{Session: session, ExamType: examType, Progress: progress}, nil
}

// buildSnapshot draws the exam type's question subset for this session: the
// eligible pool scoped to the test-taker's unit, shuffled, cut to the
// configured count, with correctness markers stripped.
func (s *SessionService) buildSnapshot(ctx context.Context, session *models.ExamSession, examType *models.ExamType) ([]models.SnapshotQuestion, error) {
	structure, err := s.structs.GetByID(ctx, session.StructureID)
	if err != nil {
		return nil, fmt.Errorf("load structure for snapshot: %w", err)
	}

	pool, err := s.questions.ListEligible(ctx, examType.ID, structure.Code)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, &StateConflictError{Message: "no questions available for this exam type"}
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if examType.QuestionCount > 0 && len(pool) > examType.QuestionCount {
		pool = pool[:examType.QuestionCount]
	}

	snapshot := make([]models.SnapshotQuestion, 0, len(pool))
	for _, q := range pool {
		sq := models.SnapshotQuestion{ID: q.ID, Text: q.Text}
		for _, opt := range q.Options {
			sq.Options = append(sq.Options, models.SnapshotOption{ID: opt.ID, Text: opt.Text})
		}
		snapshot = append(snapshot, sq)
	}
	return snapshot, nil
}

// UpdateProgress merges one answer change and/or a time delta into the exam
// type's in-progress row. A negative time delta is clamped to zero; an update
// against a missing or finished exam type is a state conflict.
func (s *SessionService) UpdateProgress(ctx context.Context, machineUUID string, upd models.ProgressUpdatePayload) (*models.ExamProgress, error) {
	if upd.QuestionID == uuid.Nil {
		return nil, &ValidationError{Message: "question id is required"}
	}

	session, err := s.sessions.GetActiveByMachine(ctx, machineUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &StateConflictError{Message: "no active session for this machine"}
		}
		return nil, err
	}

	delta := upd.TimeSpent
	if delta < 0 {
		delta = 0
	}

	matched, err := s.sessions.UpdateProgress(ctx, session.ID, upd.ExamTypeID,
		upd.QuestionID.String(), upd.OptionID, upd.OptionSet, delta)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, &StateConflictError{Message: "exam type is not in progress"}
	}

	return s.sessions.GetProgress(ctx, session.ID, upd.ExamTypeID)
}

// FinishExamType closes one exam type. Already-closed types are a no-op; the
// session itself stays active regardless of how many types are finished.
func (s *SessionService) FinishExamType(ctx context.Context, machineUUID string, examTypeID uuid.UUID) (*models.ExamProgress, error) {
	unlock := s.locks.Lock(machineUUID)
	defer unlock()

	session, err := s.sessions.GetActiveByMachine(ctx, machineUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &StateConflictError{Message: "no active session for this machine"}
		}
		return nil, err
	}

	if _, err := s.sessions.MarkProgressCompleted(ctx, session.ID, examTypeID, time.Now().UTC()); err != nil {
		return nil, err
	}

	progress, err := s.sessions.GetProgress(ctx, session.ID, examTypeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &StateConflictError{Message: "exam type was never started"}
		}
		return nil, err
	}
	return progress, nil
}

// FinishSession completes the active session and closes any exam types still
// open. Finishing twice is idempotent: the already-completed session is
// returned unchanged. A session that never started cannot be finished.
func (s *SessionService) FinishSession(ctx context.Context, machineUUID string) (*models.ExamSession, error) {
	unlock := s.locks.Lock(machineUUID)
	defer unlock()

	session, err := s.sessions.GetActiveByMachine(ctx, machineUUID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		completed, err := s.sessions.GetLatestCompletedByMachine(ctx, machineUUID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &StateConflictError{Message: "no session to finish for this machine"}
			}
			return nil, err
		}
		return completed, nil
	}

	if session.Status != models.SessionStarted {
		return nil, &StateConflictError{Message: "session has not started, nothing to finish"}
	}

	now := time.Now().UTC()
	progresses, err := s.sessions.ListProgress(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range progresses {
		if p.Status == models.ProgressInProgress {
			if _, err := s.sessions.MarkProgressCompleted(ctx, session.ID, p.ExamTypeID, now); err != nil {
				return nil, err
			}
		}
	}

	if _, err := s.sessions.MarkCompleted(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.Status = models.SessionCompleted
	session.CompletedAt = &now
	return session, nil
}

// Overview returns the session's per-exam-type progress keyed by exam type ID,
// for rebuilding a station's selection screen after a reconnect.
func (s *SessionService) Overview(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]*models.ExamProgress, error) {
	list, err := s.sessions.ListProgress(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	byType := make(map[uuid.UUID]*models.ExamProgress, len(list))
	for _, p := range list {
		byType[p.ExamTypeID] = p
	}
	return byType, nil
}
