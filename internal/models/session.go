package models

import (
	"time"

	"github.com/google/uuid"
)

// Session lifecycle. Status only moves forward; "cancelled" is an operator exit
// that normal flow never produces.
const (
	SessionConfirmed = "confirmed"
	SessionStarted   = "started"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

// Per-exam-type progress lifecycle.
const (
	ProgressPending    = "pending"
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
)

// ExamSession is one test-taker's attempt from operator confirmation to
// completion. Desk, employee, and fingerprint fields are snapshots taken at
// confirmation time so later operator edits don't rewrite history.
type ExamSession struct {
	ID          uuid.UUID  `json:"id"`
	MachineUUID string     `json:"machine_uuid"`
	EmployeeID  uuid.UUID  `json:"employee_id"`
	StructureID uuid.UUID  `json:"structure_id"`
	DeskNumber  int        `json:"desk_number"`
	DeskLabel   string     `json:"desk_label"`
	MAC         *string    `json:"mac"`
	Hostname    *string    `json:"hostname"`
	IP          *string    `json:"ip"`
	Platform    *string    `json:"platform"`
	Status      string     `json:"status"`
	ConfirmedAt time.Time  `json:"confirmed_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// SnapshotOption is a question option as shown to a station: correctness is
// stripped before the snapshot leaves the server.
type SnapshotOption struct {
	ID   string `json:"_id"`
	Text string `json:"text"`
}

type SnapshotQuestion struct {
	ID      uuid.UUID        `json:"_id"`
	Text    string           `json:"text"`
	Options []SnapshotOption `json:"options"`
}

// ExamProgress is the per-exam-type state embedded in a session: the frozen
// question subset plus sparse answer and time-spent maps keyed by question ID.
type ExamProgress struct {
	ID         uuid.UUID          `json:"id"`
	SessionID  uuid.UUID          `json:"session_id"`
	ExamTypeID uuid.UUID          `json:"exam_type_id"`
	Questions  []SnapshotQuestion `json:"questions"`
	Answers    map[string]string  `json:"answers"`    // question ID -> option ID
	TimeSpent  map[string]float64 `json:"time_spent"` // question ID -> seconds
	Status     string             `json:"status"`
	StartedAt  *time.Time         `json:"started_at"`
	EndedAt    *time.Time         `json:"ended_at"`
}

func (p *ExamProgress) AnsweredCount() int {
	return len(p.Answers)
}
