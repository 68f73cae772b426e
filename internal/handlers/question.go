package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"examdesk-backend/internal/models"
)

type questionStore interface {
	Create(ctx context.Context, q *models.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListByExamType(ctx context.Context, examTypeID uuid.UUID) ([]*models.Question, error)
	Update(ctx context.Context, q *models.Question) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type QuestionHandler struct {
	store questionStore
}

func NewQuestionHandler(store questionStore) *QuestionHandler {
	return &QuestionHandler{store: store}
}

func validateQuestionRequest(req models.QuestionRequest) map[string]string {
	fields := make(map[string]string)
	if req.ExamTypeID == uuid.Nil {
		fields["exam_type_id"] = "Exam type is required"
	}
	if req.Text == "" {
		fields["text"] = "Question text is required"
	}
	if len(req.Options) < 2 {
		fields["options"] = "At least two options are required"
	} else {
		correct := 0
		for _, opt := range req.Options {
			if opt.ID == "" || opt.Text == "" {
				fields["options"] = "Every option needs an ID and text"
				break
			}
			if opt.IsCorrect {
				correct++
			}
		}
		if _, bad := fields["options"]; !bad && correct != 1 {
			fields["options"] = "Exactly one option must be marked correct"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if fields := validateQuestionRequest(req); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	q := &models.Question{
		ExamTypeID:    req.ExamTypeID,
		Text:          req.Text,
		Options:       req.Options,
		StructureCode: req.StructureCode,
		Difficulty:    req.Difficulty,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if err := h.store.Create(r.Context(), q); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// List returns the questions of one exam type (exam_type_id query parameter).
func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	examTypeID, err := uuid.Parse(r.URL.Query().Get("exam_type_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "exam_type_id query parameter is required", r))
		return
	}

	questions, err := h.store.ListByExamType(r.Context(), examTypeID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if questions == nil {
		questions = []*models.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *QuestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid question ID", r))
		return
	}

	q, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Question not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid question ID", r))
		return
	}

	var req models.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if fields := validateQuestionRequest(req); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	q, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Question not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	q.ExamTypeID = req.ExamTypeID
	q.Text = req.Text
	q.Options = req.Options
	q.StructureCode = req.StructureCode
	q.Difficulty = req.Difficulty
	if req.IsActive != nil {
		q.IsActive = *req.IsActive
	}
	if err := h.store.Update(r.Context(), q); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid question ID", r))
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Question deleted"})
}
