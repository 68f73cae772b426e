// Package coordinator maps websocket events onto the desk, session, and result
// services, keeps the live roster in step with every mutation, and pushes the
// resulting notifications back out. It holds no durable state of its own.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"examdesk-backend/internal/models"
	"examdesk-backend/internal/roster"
	"examdesk-backend/internal/services"
	"examdesk-backend/internal/ws"
)

// Notifier is the outbound half of the transport, satisfied by *ws.Hub.
type Notifier interface {
	SendTo(connID uuid.UUID, msgType string, payload any)
	BroadcastObservers(msgType string, payload any)
	SendError(connID uuid.UUID, message string)
}

const handleTimeout = 15 * time.Second

type Coordinator struct {
	notifier  Notifier
	roster    *roster.Roster
	desks     *services.DeskService
	sessions  *services.SessionService
	results   *services.ResultService
	employees services.EmployeeStore
	structs   services.StructureStore
}

func New(notifier Notifier, r *roster.Roster, desks *services.DeskService, sessions *services.SessionService, results *services.ResultService, employees services.EmployeeStore, structs services.StructureStore) *Coordinator {
	return &Coordinator{
		notifier:  notifier,
		roster:    r,
		desks:     desks,
		sessions:  sessions,
		results:   results,
		employees: employees,
		structs:   structs,
	}
}

// HandleMessage dispatches one inbound envelope. Runs on the connection's read
// goroutine, so a single station's events are naturally ordered.
func (co *Coordinator) HandleMessage(c *ws.Client, env models.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	var err error
	switch env.Type {
	case models.EvtStationJoin:
		err = co.requireStation(c, func() error { return co.stationJoin(ctx, c, env.Payload) })
	case models.EvtStationExit:
		err = co.requireStation(c, func() error { return co.stationExit(c) })
	case models.EvtGetActiveExamTypes:
		err = co.requireStation(c, func() error { return co.sendActiveExamTypes(ctx, c.ID) })
	case models.EvtStartExam:
		err = co.requireStation(c, func() error { return co.startExam(ctx, c, env.Payload) })
	case models.EvtUpdateProgress:
		err = co.requireStation(c, func() error { return co.updateProgress(ctx, c, env.Payload) })
	case models.EvtFinishExamType:
		err = co.requireStation(c, func() error { return co.finishExamType(ctx, c, env.Payload) })
	case models.EvtFinishSession:
		err = co.requireStation(c, func() error { return co.finishSession(ctx, c) })
	case models.EvtGetResults:
		err = co.requireStation(c, func() error { return co.sendResults(ctx, c) })
	case models.EvtAdminGetStudents:
		err = co.requireObserver(c, func() error {
			co.notifier.SendTo(c.ID, models.MsgStudentListUpdated, co.roster.Snapshot())
			return nil
		})
	case models.EvtAdminSetDesk:
		err = co.requireObserver(c, func() error { return co.setDesk(ctx, env.Payload) })
	case models.EvtAdminAssignEmploye:
		err = co.requireObserver(c, func() error { return co.assignEmployee(ctx, env.Payload) })
	case models.EvtAdminAssignStruct:
		err = co.requireObserver(c, func() error { return co.assignStructure(ctx, env.Payload) })
	case models.EvtAdminResetDesk:
		err = co.requireObserver(c, func() error { return co.resetDesk(ctx, env.Payload) })
	case models.EvtAdminConfirm:
		err = co.requireObserver(c, func() error { return co.confirmSessions(ctx, env.Payload) })
	default:
		err = &services.ValidationError{Message: "unknown event: " + env.Type}
	}

	if err != nil {
		co.reportError(c, env.Type, err)
	}
}

// HandleDisconnect grays the station out in the roster. The connection ID check
// inside MarkDisconnected ignores stale disconnects after a rejoin.
func (co *Coordinator) HandleDisconnect(c *ws.Client) {
	if c.Role != ws.RoleStation || c.MachineUUID == "" {
		return
	}
	if co.roster.MarkDisconnected(c.MachineUUID, c.ID) {
		co.broadcastRoster()
	}
}

func (co *Coordinator) requireObserver(c *ws.Client, fn func() error) error {
	if c.Role != ws.RoleObserver {
		return &services.ForbiddenError{Message: "operator events require an authenticated connection"}
	}
	return fn()
}

func (co *Coordinator) requireStation(c *ws.Client, fn func() error) error {
	if c.Role != ws.RoleStation {
		return &services.ForbiddenError{Message: "station events require a station connection"}
	}
	return fn()
}

// reportError maps the service error taxonomy onto the wire. Validation and
// state conflicts go back to the sender verbatim; store failures are logged and
// masked.
func (co *Coordinator) reportError(c *ws.Client, event string, err error) {
	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		stateErr      *services.StateConflictError
		conflictErr   *services.ConflictError
		forbiddenErr  *services.ForbiddenError
	)
	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &notFoundErr),
		errors.As(err, &stateErr),
		errors.As(err, &conflictErr),
		errors.As(err, &forbiddenErr):
		co.notifier.SendError(c.ID, err.Error())
	default:
		log.Printf("coordinator: %s failed: %v", event, err)
		co.notifier.SendError(c.ID, "internal error, please retry")
	}
}

func (co *Coordinator) broadcastRoster() {
	co.notifier.BroadcastObservers(models.MsgStudentListUpdated, co.roster.Snapshot())
}

// ─── Station flow ───

func (co *Coordinator) stationJoin(ctx context.Context, c *ws.Client, raw json.RawMessage) error {
	var p models.JoinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &services.ValidationError{Message: "malformed join payload"}
	}

	m, err := co.desks.RegisterOrRefresh(ctx, p, c.RemoteIP)
	if err != nil {
		return err
	}
	c.MachineUUID = m.UUID

	entry := roster.Entry{
		MachineUUID: m.UUID,
		ConnID:      c.ID,
		DeskNumber:  m.DeskNumber,
		Label:       m.Label,
		Hostname:    m.Hostname,
		IP:          m.IP,
		Platform:    m.Platform,
	}
	entry.Employee, entry.Structure = co.loadViews(ctx, m.AssignedEmployeeID, m.AssignedStructureID)

	session, err := co.sessions.GetActive(ctx, m.UUID)
	if err != nil {
		return err
	}
	if session != nil {
		entry.SessionStatus = session.Status
	}
	co.roster.UpsertOnJoin(entry)

	co.notifier.SendTo(c.ID, models.MsgDeskAssigned, models.DeskAssignedPayload{
		Label:             m.Label,
		DeskNumber:        m.DeskNumber,
		AssignedEmployee:  entry.Employee,
		AssignedStructure: entry.Structure,
	})

	if session != nil {
		if err := co.restoreSession(ctx, c.ID, session); err != nil {
			return err
		}
	}

	co.broadcastRoster()
	return nil
}

// restoreSession replays a reconnecting station's state: activation flag, the
// session-wide timer anchor, and a per-exam-type progress overview. Question
// snapshots are not resent here; the station refetches them by reopening the
// exam type.
func (co *Coordinator) restoreSession(ctx context.Context, connID uuid.UUID, session *models.ExamSession) error {
	co.notifier.SendTo(connID, models.MsgExamActivated, models.ExamActivatedPayload{
		Status:  session.Status,
		Resumed: session.Status == models.SessionStarted,
	})

	if session.Status != models.SessionStarted {
		return nil
	}
	if session.StartedAt != nil {
		co.notifier.SendTo(connID, models.MsgTimerSync, models.TimerSyncPayload{StartTime: *session.StartedAt})
	}

	overview, err := co.sessions.Overview(ctx, session.ID)
	if err != nil {
		return err
	}
	summaries := make(map[string]models.ProgressSummary, len(overview))
	for typeID, p := range overview {
		summaries[typeID.String()] = models.ProgressSummary{
			Status:         p.Status,
			AnsweredCount:  p.AnsweredCount(),
			TotalQuestions: len(p.Questions),
		}
	}
	co.notifier.SendTo(connID, models.MsgStudentProgress, summaries)

	for typeID, p := range overview {
		if p.Status != models.ProgressCompleted {
			continue
		}
		stats, err := co.results.Stats(ctx, session, typeID)
		if err != nil {
			return err
		}
		co.notifier.SendTo(connID, models.MsgExamTypeStats, models.ExamTypeStatsPayload{ExamTypeID: typeID, Stats: *stats})
	}
	return nil
}

func (co *Coordinator) stationExit(c *ws.Client) error {
	if c.MachineUUID == "" {
		return nil
	}
	if co.roster.MarkExited(c.MachineUUID, c.ID) {
		co.broadcastRoster()
	}
	return nil
}

func (co *Coordinator) sendActiveExamTypes(ctx context.Context, connID uuid.UUID) error {
	types, err := co.sessions.ActiveExamTypes(ctx)
	if err != nil {
		return err
	}
	co.notifier.SendTo(connID, models.MsgActiveExamTypes, types)
	return nil
}

func (co *Coordinator) startExam(ctx context.Context, c *ws.Client, raw json.RawMessage) error {
	var p models.StartExamPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &services.ValidationError{Message: "malformed start payload"}
	}
	if c.MachineUUID == "" {
		return &services.StateConflictError{Message: "join before starting an exam"}
	}

	res, err := co.sessions.StartExamType(ctx, c.MachineUUID, p.ExamTypeID)
	if err != nil {
		return err
	}

	startTime := res.Session.ConfirmedAt
	if res.Session.StartedAt != nil {
		startTime = *res.Session.StartedAt
	}
	co.notifier.SendTo(c.ID, models.MsgExamStarted, models.ExamStartedPayload{
		ExamTypeID:      p.ExamTypeID,
		Questions:       res.Progress.Questions,
		PreviousAnswers: res.Progress.Answers,
		DurationMinutes: res.ExamType.DurationMinutes,
		StartTime:       startTime,
	})

	if co.roster.Update(c.MachineUUID, func(e *roster.Entry) { e.SessionStatus = res.Session.Status }) {
		co.broadcastRoster()
	}
	return nil
}

func (co *Coordinator) updateProgress(ctx context.Context, c *ws.Client, raw json.RawMessage) error {
	var p models.ProgressUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &services.ValidationError{Message: "malformed progress payload"}
	}
	if c.MachineUUID == "" {
		return &services.StateConflictError{Message: "join before sending progress"}
	}

	progress, err := co.sessions.UpdateProgress(ctx, c.MachineUUID, p)
	if err != nil {
		return err
	}

	co.notifier.BroadcastObservers(models.MsgStudentProgress, map[string]any{
		"machineUuid": c.MachineUUID,
		"examTypeId":  p.ExamTypeID,
		"progress": models.ProgressSummary{
			Status:         progress.Status,
			AnsweredCount:  progress.AnsweredCount(),
			TotalQuestions: len(progress.Questions),
		},
	})
	return nil
}

func (co *Coordinator) finishExamType(ctx context.Context, c *ws.Client, raw json.RawMessage) error {
	var p models.FinishExamTypePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &services.ValidationError{Message: "malformed finish payload"}
	}
	if c.MachineUUID == "" {
		return &services.StateConflictError{Message: "join before finishing an exam"}
	}

	if _, err := co.sessions.FinishExamType(ctx, c.MachineUUID, p.ExamTypeID); err != nil {
		return err
	}

	session, err := co.sessions.GetActive(ctx, c.MachineUUID)
	if err != nil {
		return err
	}
	if session == nil {
		return &services.StateConflictError{Message: "no active session for this machine"}
	}

	stats, err := co.results.Stats(ctx, session, p.ExamTypeID)
	if err != nil {
		return err
	}
	co.notifier.SendTo(c.ID, models.MsgExamTypeStats, models.ExamTypeStatsPayload{ExamTypeID: p.ExamTypeID, Stats: *stats})
	co.notifier.BroadcastObservers(models.MsgExamTypeStats, map[string]any{
		"machineUuid": c.MachineUUID,
		"examTypeId":  p.ExamTypeID,
		"stats":       stats,
	})
	return nil
}

func (co *Coordinator) finishSession(ctx context.Context, c *ws.Client) error {
	if c.MachineUUID == "" {
		return &services.StateConflictError{Message: "join before finishing the session"}
	}

	session, err := co.sessions.FinishSession(ctx, c.MachineUUID)
	if err != nil {
		return err
	}

	co.notifier.SendTo(c.ID, models.MsgExamFinishedAll, map[string]any{"sessionId": session.ID})

	result, err := co.results.ForSession(ctx, session.ID, true)
	if err != nil {
		return err
	}
	co.notifier.SendTo(c.ID, models.MsgStudentResults, result)

	if co.roster.Update(c.MachineUUID, func(e *roster.Entry) { e.SessionStatus = models.SessionCompleted }) {
		co.broadcastRoster()
	}
	return nil
}

func (co *Coordinator) sendResults(ctx context.Context, c *ws.Client) error {
	if c.MachineUUID == "" {
		return &services.StateConflictError{Message: "join before requesting results"}
	}

	session, err := co.sessions.LatestCompleted(ctx, c.MachineUUID)
	if err != nil {
		return err
	}
	if session == nil {
		return &services.StateConflictError{Message: "no completed session for this machine"}
	}

	// Only the finish-session transition persists a result; a later fetch
	// returns the stored record or recomputes without writing.
	result, err := co.results.ForSession(ctx, session.ID, false)
	if err != nil {
		return err
	}
	co.notifier.SendTo(c.ID, models.MsgStudentResults, result)
	return nil
}

// ─── Operator flow ───

func (co *Coordinator) setDesk(ctx context.Context, raw json.RawMessage) error {
	var p models.SetDeskPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &services.ValidationError{Message: "malformed desk payload"}
	}

	// Remember who currently shows the requested desk: if a swap happens, that
	// machine's number changes too and its roster entry must follow.
	var displacedUUID string
	for _, e := range co.roster.Snapshot() {
		if e.DeskNumber == p.DeskNumber && e.MachineUUID != p.MachineUUID {
			displacedUUID = e.MachineUUID
			break
		}
	}

	m, err := co.desks.ReassignDesk(ctx, p.MachineUUID, p.DeskNumber)
	if err != nil {
		return err
	}

	co.refreshRosterDesk(ctx, m.UUID)
	if displacedUUID != "" {
		co.refreshRosterDesk(ctx, displacedUUID)
	}
	co.broadcastRoster()
	return nil
}

// refreshRosterDesk re-reads a machine's desk fields and pushes a fresh
// desk-assigned notification to its station, if connected.
func (co *Coordinator) refreshRosterDesk(ctx context.Context, machineUUID string) {
	m, err := co.desks.GetMachine(ctx, machineUUID)
	if err != nil {
		log.Printf("coordinator: refresh desk for %s: %v", machineUUID, err)
		return
	}
	co.roster.Update(machineUUID, func(e *roster.Entry) {
		e.DeskNumber = m.DeskNumber
		e.Label = m.Label
	})
	if entry, ok := co.roster.Get(machineUUID); ok && entry.Connected {
		co.notifier.SendTo(entry.ConnID, models.MsgDeskAssigned, models.DeskAssignedPayload{
			Label:             m.Label,
			DeskNumber:        m.DeskNumber,
			AssignedEmployee:  entry.Employee,
			AssignedStructure: entry.Structure,
		})
	}
}

func (co *Coordinator) assignEmployee(ctx context.Context, raw json.RawMessage) error {
	var p models.AssignEmployeePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &services.ValidationError{Message: "malformed assignment payload"}
	}

	var view *models.EmployeeView
	if p.EmployeeID != nil {
		emp, err := co.employees.GetByID(ctx, *p.EmployeeID)
		if err != nil {
			return &services.NotFoundError{Message: "employee not found"}
		}
		view = employeeView(emp)
	}

	if err := co.desks.AssignEmployee(ctx, p.MachineUUID, p.EmployeeID); err != nil {
		return err
	}

	co.roster.Update(p.MachineUUID, func(e *roster.Entry) { e.Employee = view })
	co.notifyDeskAssigned(p.MachineUUID)
	co.broadcastRoster()
	return nil
}

func (co *Coordinator) assignStructure(ctx context.Context, raw json.RawMessage) error {
	var p models.AssignStructurePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &services.ValidationError{Message: "malformed assignment payload"}
	}

	var view *models.StructureView
	if p.StructureID != nil {
		st, err := co.structs.GetByID(ctx, *p.StructureID)
		if err != nil {
			return &services.NotFoundError{Message: "structure not found"}
		}
		view = structureView(st)
	}

	if err := co.desks.AssignStructure(ctx, p.MachineUUID, p.StructureID); err != nil {
		return err
	}

	co.roster.Update(p.MachineUUID, func(e *roster.Entry) { e.Structure = view })
	co.notifyDeskAssigned(p.MachineUUID)
	co.broadcastRoster()
	return nil
}

func (co *Coordinator) resetDesk(ctx context.Context, raw json.RawMessage) error {
	var p models.ResetDeskPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &services.ValidationError{Message: "malformed reset payload"}
	}

	if err := co.desks.ClearAssignment(ctx, p.MachineUUID); err != nil {
		return err
	}

	co.roster.Update(p.MachineUUID, func(e *roster.Entry) {
		e.Employee = nil
		e.Structure = nil
	})
	if entry, ok := co.roster.Get(p.MachineUUID); ok && entry.Connected {
		co.notifier.SendTo(entry.ConnID, models.MsgDeskReset, map[string]any{"machineUuid": p.MachineUUID})
	}
	co.broadcastRoster()
	return nil
}

func (co *Coordinator) confirmSessions(ctx context.Context, raw json.RawMessage) error {
	var p models.ConfirmPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &services.ValidationError{Message: "malformed confirm payload"}
	}
	if len(p.MachineUUIDs) == 0 {
		return &services.ValidationError{Message: "no machines selected"}
	}

	// Confirmation requires a live connection: an offline desk is skipped
	// silently, same as one missing an assignment.
	connected := make([]string, 0, len(p.MachineUUIDs))
	for _, id := range p.MachineUUIDs {
		if entry, ok := co.roster.Get(id); ok && entry.Connected {
			connected = append(connected, id)
		}
	}
	if len(connected) == 0 {
		return nil
	}

	confirmed, err := co.sessions.ConfirmMany(ctx, connected)
	for _, session := range confirmed {
		co.roster.Update(session.MachineUUID, func(e *roster.Entry) { e.SessionStatus = session.Status })
		if entry, ok := co.roster.Get(session.MachineUUID); ok && entry.Connected {
			co.notifier.SendTo(entry.ConnID, models.MsgExamActivated, models.ExamActivatedPayload{Status: session.Status})
		}
	}
	if len(confirmed) > 0 {
		co.broadcastRoster()
	}
	return err
}

func (co *Coordinator) notifyDeskAssigned(machineUUID string) {
	entry, ok := co.roster.Get(machineUUID)
	if !ok || !entry.Connected {
		return
	}
	co.notifier.SendTo(entry.ConnID, models.MsgDeskAssigned, models.DeskAssignedPayload{
		Label:             entry.Label,
		DeskNumber:        entry.DeskNumber,
		AssignedEmployee:  entry.Employee,
		AssignedStructure: entry.Structure,
	})
}

func (co *Coordinator) loadViews(ctx context.Context, employeeID, structureID *uuid.UUID) (*models.EmployeeView, *models.StructureView) {
	var ev *models.EmployeeView
	var sv *models.StructureView
	if employeeID != nil {
		if emp, err := co.employees.GetByID(ctx, *employeeID); err == nil {
			ev = employeeView(emp)
		}
	}
	if structureID != nil {
		if st, err := co.structs.GetByID(ctx, *structureID); err == nil {
			sv = structureView(st)
		}
	}
	return ev, sv
}

func employeeView(e *models.Employee) *models.EmployeeView {
	return &models.EmployeeView{
		ID:         e.ID,
		FirstName:  e.FirstName,
		LastName:   e.LastName,
		FatherName: e.FatherName,
		Gender:     e.Gender,
	}
}

func structureView(s *models.Structure) *models.StructureView {
	return &models.StructureView{ID: s.ID, Name: s.Name, Code: s.Code}
}
