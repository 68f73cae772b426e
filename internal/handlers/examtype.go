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

type examTypeStore interface {
	Create(ctx context.Context, t *models.ExamType) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExamType, error)
	List(ctx context.Context) ([]*models.ExamType, error)
	ListActive(ctx context.Context) ([]*models.ExamType, error)
	Update(ctx context.Context, t *models.ExamType) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ExamTypeHandler struct {
	store examTypeStore
}

func NewExamTypeHandler(store examTypeStore) *ExamTypeHandler {
	return &ExamTypeHandler{store: store}
}

func validateExamTypeRequest(req models.ExamTypeRequest) map[string]string {
	fields := make(map[string]string)
	if req.Name == "" {
		fields["name"] = "Name is required"
	}
	if req.DurationMinutes <= 0 {
		fields["duration"] = "Duration must be positive"
	}
	if req.QuestionCount <= 0 {
		fields["question_count"] = "Question count must be positive"
	}
	if req.MinCorrectAnswers < 0 || req.MinCorrectAnswers > req.QuestionCount {
		fields["min_correct_answers"] = "Minimum correct answers must be between 0 and the question count"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (h *ExamTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.ExamTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if fields := validateExamTypeRequest(req); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	t := &models.ExamType{
		Name:              req.Name,
		Slug:              req.Slug,
		Description:       req.Description,
		DurationMinutes:   req.DurationMinutes,
		MinCorrectAnswers: req.MinCorrectAnswers,
		QuestionCount:     req.QuestionCount,
		IsActive:          req.IsActive == nil || *req.IsActive,
	}
	if err := h.store.Create(r.Context(), t); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *ExamTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		types []*models.ExamType
		err   error
	)
	if r.URL.Query().Get("active") == "true" {
		types, err = h.store.ListActive(r.Context())
	} else {
		types, err = h.store.List(r.Context())
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if types == nil {
		types = []*models.ExamType{}
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *ExamTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid exam type ID", r))
		return
	}

	t, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Exam type not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *ExamTypeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid exam type ID", r))
		return
	}

	var req models.ExamTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if fields := validateExamTypeRequest(req); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	t, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Exam type not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	t.Name = req.Name
	t.Slug = req.Slug
	t.Description = req.Description
	t.DurationMinutes = req.DurationMinutes
	t.MinCorrectAnswers = req.MinCorrectAnswers
	t.QuestionCount = req.QuestionCount
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}
	if err := h.store.Update(r.Context(), t); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *ExamTypeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid exam type ID", r))
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Exam type deleted"})
}
