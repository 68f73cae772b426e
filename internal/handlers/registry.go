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

// Registry handlers cover the people side of an exam day: the org structures
// (units) and the employees who sit the exams.

type structureStore interface {
	Create(ctx context.Context, s *models.Structure) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Structure, error)
	List(ctx context.Context) ([]*models.Structure, error)
	Update(ctx context.Context, s *models.Structure) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type employeeStore interface {
	Create(ctx context.Context, e *models.Employee) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	List(ctx context.Context) ([]*models.Employee, error)
	Update(ctx context.Context, e *models.Employee) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type StructureHandler struct {
	store structureStore
}

func NewStructureHandler(store structureStore) *StructureHandler {
	return &StructureHandler{store: store}
}

func (h *StructureHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.StructureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.Name == "" || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"name": "Name and code are required"}, r))
		return
	}

	s := &models.Structure{Name: req.Name, Code: req.Code}
	if err := h.store.Create(r.Context(), s); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *StructureHandler) List(w http.ResponseWriter, r *http.Request) {
	structures, err := h.store.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if structures == nil {
		structures = []*models.Structure{}
	}
	writeJSON(w, http.StatusOK, structures)
}

func (h *StructureHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid structure ID", r))
		return
	}

	var req models.StructureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	s, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Structure not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	s.Name = req.Name
	s.Code = req.Code
	if err := h.store.Update(r.Context(), s); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *StructureHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid structure ID", r))
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Structure deleted"})
}

type EmployeeHandler struct {
	store employeeStore
}

func NewEmployeeHandler(store employeeStore) *EmployeeHandler {
	return &EmployeeHandler{store: store}
}

func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.EmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"name": "First and last name are required"}, r))
		return
	}

	e := &models.Employee{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		FatherName:  req.FatherName,
		Gender:      req.Gender,
		StructureID: req.StructureID,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := h.store.Create(r.Context(), e); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	employees, err := h.store.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if employees == nil {
		employees = []*models.Employee{}
	}
	writeJSON(w, http.StatusOK, employees)
}

func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid employee ID", r))
		return
	}

	e, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Employee not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid employee ID", r))
		return
	}

	var req models.EmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	e, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Employee not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	e.FirstName = req.FirstName
	e.LastName = req.LastName
	e.FatherName = req.FatherName
	e.Gender = req.Gender
	e.StructureID = req.StructureID
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}
	if err := h.store.Update(r.Context(), e); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid employee ID", r))
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Employee deleted"})
}
