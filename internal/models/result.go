package models

import (
	"time"

	"github.com/google/uuid"
)

// StudentSnapshot freezes who sat the exam at compile time, so renaming an
// employee afterwards doesn't rewrite the result.
type StudentSnapshot struct {
	EmployeeID    uuid.UUID `json:"employeeId"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	FatherName    string    `json:"fatherName"`
	Gender        string    `json:"gender"`
	StructureName string    `json:"structureName"`
	StructureCode string    `json:"structureCode"`
}

type ResultOption struct {
	ID        string `json:"_id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type ResultQuestion struct {
	QuestionID       uuid.UUID      `json:"questionId"`
	Text             string         `json:"text"`
	Options          []ResultOption `json:"options"`
	SelectedOptionID *string        `json:"selectedOptionId"`
	IsCorrect        bool           `json:"isCorrect"`
	TimeSpentSeconds float64        `json:"timeSpentSeconds"`
}

type ExamTypeResult struct {
	ExamTypeID      uuid.UUID        `json:"examTypeId"`
	ExamTypeName    string           `json:"examTypeName"`
	TotalQuestions  int              `json:"totalQuestions"`
	CorrectCount    int              `json:"correctCount"`
	WrongCount      int              `json:"wrongCount"`
	EmptyCount      int              `json:"emptyCount"`
	Score           float64          `json:"score"` // 0-100, not rounded
	Passed          bool             `json:"passed"`
	StartedAt       *time.Time       `json:"startTime"`
	EndedAt         *time.Time       `json:"endTime"`
	DurationSeconds float64          `json:"durationSeconds"`
	Questions       []ResultQuestion `json:"questions"`
}

// ExamResult is the graded report for a completed session. Write-once per
// session: a second compile request returns the persisted record unchanged.
type ExamResult struct {
	ID                   uuid.UUID        `json:"id"`
	SessionID            uuid.UUID        `json:"sessionId"`
	Student              StudentSnapshot  `json:"student"`
	DeskNumber           int              `json:"deskNumber"`
	DeskLabel            string           `json:"deskLabel"`
	MachineUUID          string           `json:"machineUuid"`
	MAC                  *string          `json:"macAddress"`
	IP                   *string          `json:"ipAddress"`
	StartedAt            *time.Time       `json:"startTime"`
	CompletedAt          *time.Time       `json:"endTime"`
	TotalDurationSeconds float64          `json:"totalDurationSeconds"`
	ExamTypes            []ExamTypeResult `json:"examTypes"`
	CreatedAt            time.Time        `json:"created_at"`
}
