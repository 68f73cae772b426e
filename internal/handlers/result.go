package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"examdesk-backend/internal/models"
	"examdesk-backend/internal/services"
)

type ResultHandler struct {
	results *services.ResultService
}

func NewResultHandler(results *services.ResultService) *ResultHandler {
	return &ResultHandler{results: results}
}

func (h *ResultHandler) List(w http.ResponseWriter, r *http.Request) {
	results, err := h.results.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if results == nil {
		results = []*models.ExamResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *ResultHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid result ID", r))
		return
	}

	result, err := h.results.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetBySession returns the graded report for a session. With ?preview=true the
// report is compiled fresh and never persisted, so an operator can inspect a
// just-finished session without locking its result in.
func (h *ResultHandler) GetBySession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	persist := r.URL.Query().Get("preview") != "true"
	result, err := h.results.ForSession(r.Context(), sessionID, persist)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
