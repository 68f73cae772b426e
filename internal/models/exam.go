package models

import (
	"time"

	"github.com/google/uuid"
)

// ExamType is a configured category of question set: how long it runs, how many
// questions a station receives, and how many correct answers are needed to pass.
type ExamType struct {
	ID                uuid.UUID `json:"_id"`
	Name              string    `json:"name"`
	Slug              string    `json:"slug"`
	Description       string    `json:"description"`
	DurationMinutes   int       `json:"duration"`
	MinCorrectAnswers int       `json:"minCorrectAnswers"`
	QuestionCount     int       `json:"questionCount"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type QuestionOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID            uuid.UUID        `json:"id"`
	ExamTypeID    uuid.UUID        `json:"exam_type_id"`
	Text          string           `json:"text"`
	Options       []QuestionOption `json:"options"`
	StructureCode *string          `json:"structure_code"` // nil means eligible for every unit
	Difficulty    string           `json:"difficulty"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type ExamTypeRequest struct {
	Name              string `json:"name"`
	Slug              string `json:"slug"`
	Description       string `json:"description"`
	DurationMinutes   int    `json:"duration"`
	MinCorrectAnswers int    `json:"min_correct_answers"`
	QuestionCount     int    `json:"question_count"`
	IsActive          *bool  `json:"is_active"`
}

type QuestionRequest struct {
	ExamTypeID    uuid.UUID        `json:"exam_type_id"`
	Text          string           `json:"text"`
	Options       []QuestionOption `json:"options"`
	StructureCode *string          `json:"structure_code"`
	Difficulty    string           `json:"difficulty"`
	IsActive      *bool            `json:"is_active"`
}
