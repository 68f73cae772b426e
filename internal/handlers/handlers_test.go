package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"examdesk-backend/internal/models"
)

type stubExamTypeStore struct {
	types map[uuid.UUID]*models.ExamType
}

func newStubExamTypeStore() *stubExamTypeStore {
	return &stubExamTypeStore{types: make(map[uuid.UUID]*models.ExamType)}
}

func (s *stubExamTypeStore) Create(ctx context.Context, t *models.ExamType) error {
	t.ID = uuid.New()
	s.types[t.ID] = t
	return nil
}

func (s *stubExamTypeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ExamType, error) {
	t, ok := s.types[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

func (s *stubExamTypeStore) List(ctx context.Context) ([]*models.ExamType, error) {
	var out []*models.ExamType
	for _, t := range s.types {
		out = append(out, t)
	}
	return out, nil
}

func (s *stubExamTypeStore) ListActive(ctx context.Context) ([]*models.ExamType, error) {
	var out []*models.ExamType
	for _, t := range s.types {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubExamTypeStore) Update(ctx context.Context, t *models.ExamType) error {
	s.types[t.ID] = t
	return nil
}

func (s *stubExamTypeStore) Delete(ctx context.Context, id uuid.UUID) error {
	delete(s.types, id)
	return nil
}

type stubQuestionStore struct {
	created []*models.Question
}

func (s *stubQuestionStore) Create(ctx context.Context, q *models.Question) error {
	q.ID = uuid.New()
	s.created = append(s.created, q)
	return nil
}

func (s *stubQuestionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubQuestionStore) ListByExamType(ctx context.Context, examTypeID uuid.UUID) ([]*models.Question, error) {
	return nil, nil
}

func (s *stubQuestionStore) Update(ctx context.Context, q *models.Question) error { return nil }

func (s *stubQuestionStore) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func examTypeRouter(store *stubExamTypeStore) http.Handler {
	h := NewExamTypeHandler(store)
	r := chi.NewRouter()
	r.Post("/exam-types", h.Create)
	r.Get("/exam-types", h.List)
	r.Get("/exam-types/{id}", h.Get)
	r.Put("/exam-types/{id}", h.Update)
	r.Delete("/exam-types/{id}", h.Delete)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

func TestExamTypeCreate(t *testing.T) {
	store := newStubExamTypeStore()
	router := examTypeRouter(store)

	rec := doJSON(t, router, http.MethodPost, "/exam-types", models.ExamTypeRequest{
		Name:              "Safety",
		DurationMinutes:   20,
		QuestionCount:     25,
		MinCorrectAnswers: 17,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.ExamType
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode created exam type: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("Expected an assigned ID")
	}
	if !created.IsActive {
		t.Error("Omitted is_active must default to true")
	}
	if len(store.types) != 1 {
		t.Errorf("Expected one stored type, got %d", len(store.types))
	}
}

func TestExamTypeCreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		req       models.ExamTypeRequest
		wantField string
	}{
		{
			name:      "missing name",
			req:       models.ExamTypeRequest{DurationMinutes: 20, QuestionCount: 10},
			wantField: "name",
		},
		{
			name:      "zero duration",
			req:       models.ExamTypeRequest{Name: "Safety", QuestionCount: 10},
			wantField: "duration",
		},
		{
			name:      "zero question count",
			req:       models.ExamTypeRequest{Name: "Safety", DurationMinutes: 20},
			wantField: "question_count",
		},
		{
			name: "threshold above question count",
			req: models.ExamTypeRequest{
				Name: "Safety", DurationMinutes: 20,
				QuestionCount: 10, MinCorrectAnswers: 11,
			},
			wantField: "min_correct_answers",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := examTypeRouter(newStubExamTypeStore())
			rec := doJSON(t, router, http.MethodPost, "/exam-types", tc.req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rec.Code)
			}
			apiErr := decodeError(t, rec)
			if apiErr.Code != "VALIDATION_ERROR" {
				t.Errorf("Expected VALIDATION_ERROR, got %s", apiErr.Code)
			}
			if _, ok := apiErr.Fields[tc.wantField]; !ok {
				t.Errorf("Expected field error for %q, got %v", tc.wantField, apiErr.Fields)
			}
		})
	}
}

func TestExamTypeGetNotFound(t *testing.T) {
	router := examTypeRouter(newStubExamTypeStore())

	rec := doJSON(t, router, http.MethodGet, "/exam-types/"+uuid.NewString(), nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	if apiErr := decodeError(t, rec); apiErr.Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND, got %s", apiErr.Code)
	}
}

func TestExamTypeGetBadID(t *testing.T) {
	router := examTypeRouter(newStubExamTypeStore())

	rec := doJSON(t, router, http.MethodGet, "/exam-types/not-a-uuid", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestExamTypeListActiveFilter(t *testing.T) {
	store := newStubExamTypeStore()
	store.types[uuid.New()] = &models.ExamType{Name: "Active", IsActive: true}
	store.types[uuid.New()] = &models.ExamType{Name: "Retired"}
	router := examTypeRouter(store)

	rec := doJSON(t, router, http.MethodGet, "/exam-types?active=true", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var types []*models.ExamType
	if err := json.NewDecoder(rec.Body).Decode(&types); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(types) != 1 || types[0].Name != "Active" {
		t.Errorf("Expected only the active type, got %+v", types)
	}
}

func TestExamTypeListEmptyIsArray(t *testing.T) {
	router := examTypeRouter(newStubExamTypeStore())

	rec := doJSON(t, router, http.MethodGet, "/exam-types", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("Empty list must encode as [], got %q", body)
	}
}

func questionRouter(store *stubQuestionStore) http.Handler {
	h := NewQuestionHandler(store)
	r := chi.NewRouter()
	r.Post("/questions", h.Create)
	r.Get("/questions", h.List)
	r.Get("/questions/{id}", h.Get)
	return r
}

func TestQuestionCreateValidation(t *testing.T) {
	examType := uuid.New()
	twoOptions := func(correct int) []models.QuestionOption {
		opts := []models.QuestionOption{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}}
		for i := range opts {
			opts[i].IsCorrect = i < correct
		}
		return opts
	}

	tests := []struct {
		name      string
		req       models.QuestionRequest
		wantField string
	}{
		{
			name:      "missing exam type",
			req:       models.QuestionRequest{Text: "q", Options: twoOptions(1)},
			wantField: "exam_type_id",
		},
		{
			name:      "one option only",
			req:       models.QuestionRequest{ExamTypeID: examType, Text: "q", Options: twoOptions(1)[:1]},
			wantField: "options",
		},
		{
			name:      "no correct option",
			req:       models.QuestionRequest{ExamTypeID: examType, Text: "q", Options: twoOptions(0)},
			wantField: "options",
		},
		{
			name:      "two correct options",
			req:       models.QuestionRequest{ExamTypeID: examType, Text: "q", Options: twoOptions(2)},
			wantField: "options",
		},
		{
			name: "option without text",
			req: models.QuestionRequest{ExamTypeID: examType, Text: "q", Options: []models.QuestionOption{
				{ID: "a", Text: "A", IsCorrect: true}, {ID: "b"},
			}},
			wantField: "options",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := questionRouter(&stubQuestionStore{})
			rec := doJSON(t, router, http.MethodPost, "/questions", tc.req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			apiErr := decodeError(t, rec)
			if _, ok := apiErr.Fields[tc.wantField]; !ok {
				t.Errorf("Expected field error for %q, got %v", tc.wantField, apiErr.Fields)
			}
		})
	}
}

func TestQuestionCreate(t *testing.T) {
	store := &stubQuestionStore{}
	router := questionRouter(store)

	rec := doJSON(t, router, http.MethodPost, "/questions", models.QuestionRequest{
		ExamTypeID: uuid.New(),
		Text:       "Which lever stops the line?",
		Options: []models.QuestionOption{
			{ID: "a", Text: "Red", IsCorrect: true},
			{ID: "b", Text: "Green"},
		},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("Expected one stored question, got %d", len(store.created))
	}
	if !store.created[0].IsActive {
		t.Error("Omitted is_active must default to true")
	}
}

func TestQuestionListRequiresExamType(t *testing.T) {
	router := questionRouter(&stubQuestionStore{})

	rec := doJSON(t, router, http.MethodGet, "/questions", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without exam_type_id, got %d", rec.Code)
	}
}

func TestQuestionGetNotFound(t *testing.T) {
	router := questionRouter(&stubQuestionStore{})

	rec := doJSON(t, router, http.MethodGet, "/questions/"+uuid.NewString(), nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}
