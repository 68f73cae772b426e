package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Inbound websocket event names (stations and operator observers).
const (
	EvtStationJoin        = "student-join"
	EvtStationExit        = "student-exit"
	EvtAdminGetStudents   = "admin-get-students"
	EvtAdminSetDesk       = "admin-set-desk"
	EvtAdminAssignEmploye = "admin-assign-employee"
	EvtAdminAssignStruct  = "admin-assign-structure"
	EvtAdminResetDesk     = "admin-reset-desk"
	EvtAdminConfirm       = "admin-confirm"
	EvtGetActiveExamTypes = "get-active-exam-types"
	EvtStartExam          = "student-start-exam"
	EvtUpdateProgress     = "update-exam-progress"
	EvtFinishExamType     = "student-finish-exam-type"
	EvtGetResults         = "student-get-results"
	EvtFinishSession      = "student-finish-session"
)

// Outbound notification names.
const (
	MsgStudentListUpdated = "student-list-updated"
	MsgDeskAssigned       = "desk-assigned"
	MsgDeskReset          = "desk-reset"
	MsgExamActivated      = "exam-activated"
	MsgActiveExamTypes    = "active-exam-types"
	MsgStudentProgress    = "student-exam-progress"
	MsgExamTypeStats      = "exam-type-stats"
	MsgExamStarted        = "exam-started"
	MsgTimerSync          = "session-timer-sync"
	MsgExamFinishedAll    = "exam-finished-all"
	MsgStudentResults     = "student-results"
	MsgError              = "error"
)

// Envelope frames every inbound websocket message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Outbound frames every outbound message; Payload is marshalled in place.
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type JoinPayload struct {
	UUID     string `json:"uuid"`
	MAC      string `json:"mac"`
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
}

type SetDeskPayload struct {
	MachineUUID string `json:"machineUuid"`
	DeskNumber  int    `json:"deskNumber"`
}

type AssignEmployeePayload struct {
	MachineUUID string     `json:"machineUuid"`
	EmployeeID  *uuid.UUID `json:"employeeId"`
}

type AssignStructurePayload struct {
	MachineUUID string     `json:"machineUuid"`
	StructureID *uuid.UUID `json:"structureId"`
}

type ResetDeskPayload struct {
	MachineUUID string `json:"machineUuid"`
}

type ConfirmPayload struct {
	MachineUUIDs []string `json:"machineUuids"`
}

type StartExamPayload struct {
	ExamTypeID uuid.UUID `json:"examTypeId"`
}

type ProgressUpdatePayload struct {
	ExamTypeID    uuid.UUID `json:"examTypeId"`
	QuestionID    uuid.UUID `json:"questionId"`
	OptionID      *string   `json:"optionId"`
	OptionSet     bool      `json:"-"` // true when optionId was present, even as null
	AnsweredCount int       `json:"answeredCount"`
	TimeSpent     float64   `json:"timeSpent"` // seconds added since the last update
}

// UnmarshalJSON keeps three answer states apart: select (string), clear
// (explicit null), and untouched (key absent, time-only sync).
func (p *ProgressUpdatePayload) UnmarshalJSON(data []byte) error {
	type alias ProgressUpdatePayload
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, a.OptionSet = keys["optionId"]
	*p = ProgressUpdatePayload(a)
	return nil
}

type FinishExamTypePayload struct {
	ExamTypeID uuid.UUID `json:"examTypeId"`
}

type EmployeeView struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	FatherName string    `json:"fatherName"`
	Gender     string    `json:"gender"`
}

type StructureView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Code string    `json:"code"`
}

type DeskAssignedPayload struct {
	Label             string         `json:"label"`
	DeskNumber        int            `json:"deskNumber"`
	AssignedEmployee  *EmployeeView  `json:"assignedEmployee"`
	AssignedStructure *StructureView `json:"assignedStructure"`
}

type ExamActivatedPayload struct {
	Status  string `json:"status"`
	Resumed bool   `json:"resumed"`
}

type ExamStartedPayload struct {
	ExamTypeID      uuid.UUID          `json:"examTypeId"`
	Questions       []SnapshotQuestion `json:"questions"`
	PreviousAnswers map[string]string  `json:"previousAnswers"`
	DurationMinutes int                `json:"duration"`
	StartTime       time.Time          `json:"startTime"`
}

type TimerSyncPayload struct {
	StartTime time.Time `json:"startTime"`
}

// ProgressSummary is the compact per-exam-type state pushed on reconnect so the
// station can rebuild its selection screen without refetching questions.
type ProgressSummary struct {
	Status         string `json:"status"`
	AnsweredCount  int    `json:"answeredCount"`
	TotalQuestions int    `json:"totalQuestions"`
}

type ExamTypeStatsPayload struct {
	ExamTypeID uuid.UUID      `json:"examTypeId"`
	Stats      ExamTypeResult `json:"stats"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
