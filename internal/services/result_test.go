package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"examdesk-backend/internal/models"
)

type fakeResultStore struct {
	bySession map[uuid.UUID]*models.ExamResult
	creates   int
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{bySession: make(map[uuid.UUID]*models.ExamResult)}
}

// Create mirrors the unique-session-id insert: a second write for the same
// session is silently ignored.
func (s *fakeResultStore) Create(ctx context.Context, res *models.ExamResult) error {
	s.creates++
	if _, exists := s.bySession[res.SessionID]; exists {
		return nil
	}
	res.ID = uuid.New()
	res.CreatedAt = time.Now()
	copy := *res
	s.bySession[res.SessionID] = &copy
	return nil
}

func (s *fakeResultStore) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*models.ExamResult, error) {
	res, ok := s.bySession[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := *res
	return &copy, nil
}

func (s *fakeResultStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ExamResult, error) {
	for _, res := range s.bySession {
		if res.ID == id {
			copy := *res
			return &copy, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeResultStore) List(ctx context.Context) ([]*models.ExamResult, error) {
	var out []*models.ExamResult
	for _, res := range s.bySession {
		copy := *res
		out = append(out, &copy)
	}
	return out, nil
}

type fakeEmployeeStore struct {
	employees map[uuid.UUID]*models.Employee
}

func (s *fakeEmployeeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	e, ok := s.employees[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

// ─── Pure grading ───

func gradingFixture() (CompileInput, *models.ExamType) {
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ended := started.Add(20 * time.Minute)

	examType := &models.ExamType{ID: uuid.New(), Name: "Safety", MinCorrectAnswers: 2}

	q1 := &models.Question{ID: uuid.New(), Text: "q1", Options: []models.QuestionOption{
		{ID: "a", Text: "A", IsCorrect: true}, {ID: "b", Text: "B"},
	}}
	q2 := &models.Question{ID: uuid.New(), Text: "q2", Options: []models.QuestionOption{
		{ID: "a", Text: "A"}, {ID: "b", Text: "B", IsCorrect: true},
	}}
	q3 := &models.Question{ID: uuid.New(), Text: "q3", Options: []models.QuestionOption{
		{ID: "a", Text: "A", IsCorrect: true}, {ID: "b", Text: "B"},
	}}

	snapshot := func(q *models.Question) models.SnapshotQuestion {
		sq := models.SnapshotQuestion{ID: q.ID, Text: q.Text}
		for _, o := range q.Options {
			sq.Options = append(sq.Options, models.SnapshotOption{ID: o.ID, Text: o.Text})
		}
		return sq
	}

	progress := &models.ExamProgress{
		ExamTypeID: examType.ID,
		Questions:  []models.SnapshotQuestion{snapshot(q1), snapshot(q2), snapshot(q3)},
		Answers: map[string]string{
			q1.ID.String(): "a", // correct
			q2.ID.String(): "a", // wrong
			// q3 unanswered
		},
		TimeSpent: map[string]float64{q1.ID.String(): 12.5},
		Status:    models.ProgressCompleted,
		StartedAt: &started,
		EndedAt:   &ended,
	}

	sessionStart := started.Add(-time.Minute)
	sessionEnd := ended.Add(time.Minute)
	session := &models.ExamSession{
		ID:          uuid.New(),
		MachineUUID: "m1",
		DeskNumber:  4,
		DeskLabel:   "Desk 4",
		Status:      models.SessionCompleted,
		StartedAt:   &sessionStart,
		CompletedAt: &sessionEnd,
	}

	return CompileInput{
		Session:    session,
		Student:    models.StudentSnapshot{FirstName: "Ada", LastName: "Love"},
		Progresses: []*models.ExamProgress{progress},
		ExamTypes:  map[uuid.UUID]*models.ExamType{examType.ID: examType},
		Questions:  map[uuid.UUID]*models.Question{q1.ID: q1, q2.ID: q2, q3.ID: q3},
	}, examType
}

func TestCompileGrades(t *testing.T) {
	in, _ := gradingFixture()

	res := Compile(in)

	if len(res.ExamTypes) != 1 {
		t.Fatalf("Expected one exam type result, got %d", len(res.ExamTypes))
	}
	tr := res.ExamTypes[0]

	if tr.TotalQuestions != 3 || tr.CorrectCount != 1 || tr.WrongCount != 1 || tr.EmptyCount != 1 {
		t.Errorf("Expected 3 total / 1 correct / 1 wrong / 1 empty, got %d/%d/%d/%d",
			tr.TotalQuestions, tr.CorrectCount, tr.WrongCount, tr.EmptyCount)
	}
	if math.Abs(tr.Score-100.0/3) > 1e-9 {
		t.Errorf("Expected unrounded score 33.33..., got %v", tr.Score)
	}
	if tr.Passed {
		t.Error("1 correct with minimum 2 must not pass")
	}
	if tr.DurationSeconds != 1200 {
		t.Errorf("Expected 1200s exam type duration, got %v", tr.DurationSeconds)
	}
	if res.TotalDurationSeconds != 1320 {
		t.Errorf("Expected 1320s session duration, got %v", res.TotalDurationSeconds)
	}

	// Per-question detail: snapshot order, selection, correctness, time.
	q1 := tr.Questions[0]
	if q1.SelectedOptionID == nil || *q1.SelectedOptionID != "a" || !q1.IsCorrect {
		t.Errorf("Question 1: expected correct selection 'a', got %+v", q1)
	}
	if q1.TimeSpentSeconds != 12.5 {
		t.Errorf("Question 1: expected 12.5s, got %v", q1.TimeSpentSeconds)
	}
	q3 := tr.Questions[2]
	if q3.SelectedOptionID != nil || q3.IsCorrect {
		t.Errorf("Question 3: expected empty and not correct, got %+v", q3)
	}
}

func TestCompileIsPure(t *testing.T) {
	in, _ := gradingFixture()

	first := Compile(in)
	second := Compile(in)

	if first.ExamTypes[0].Score != second.ExamTypes[0].Score ||
		first.ExamTypes[0].CorrectCount != second.ExamTypes[0].CorrectCount {
		t.Error("Compile must produce identical reports for identical input")
	}
}

func TestCompilePassesWithZeroThreshold(t *testing.T) {
	in, examType := gradingFixture()
	examType.MinCorrectAnswers = 0

	res := Compile(in)
	tr := res.ExamTypes[0]
	if !tr.Passed {
		t.Errorf("A zero minimum is met by any correct count, got Passed=false with %d correct", tr.CorrectCount)
	}

	// An unresolvable exam type still fails regardless of the count.
	in.ExamTypes = map[uuid.UUID]*models.ExamType{}
	if Compile(in).ExamTypes[0].Passed {
		t.Error("A missing exam type must not pass")
	}
}

func TestCompilePassesAtThreshold(t *testing.T) {
	in, examType := gradingFixture()

	// Fix the wrong answer so exactly minCorrect are right.
	q2 := in.Progresses[0].Questions[1]
	in.Progresses[0].Answers[q2.ID.String()] = "b"

	res := Compile(in)
	tr := res.ExamTypes[0]
	if tr.CorrectCount != examType.MinCorrectAnswers {
		t.Fatalf("Fixture broken: expected %d correct, got %d", examType.MinCorrectAnswers, tr.CorrectCount)
	}
	if !tr.Passed {
		t.Error("Reaching the minimum correct count must pass")
	}
}

// ─── Persistence choreography ───

func resultServiceFixture(t *testing.T) (*ResultService, *fakeResultStore, *fakeSessionStore, *models.ExamSession) {
	t.Helper()

	in, examType := gradingFixture()
	sessions := newFakeSessionStore()
	sessions.sessions[in.Session.ID] = in.Session
	for _, p := range in.Progresses {
		p.SessionID = in.Session.ID
		sessions.progresses[progressKey(in.Session.ID, p.ExamTypeID)] = p
	}

	questions := &fakeQuestionStore{}
	for _, q := range in.Questions {
		q.ExamTypeID = examType.ID
		q.IsActive = true
		questions.questions = append(questions.questions, q)
	}

	results := newFakeResultStore()
	svc := NewResultService(results, sessions,
		&fakeEmployeeStore{employees: map[uuid.UUID]*models.Employee{}},
		&fakeStructureStore{structures: map[uuid.UUID]*models.Structure{}},
		&fakeExamTypeStore{types: map[uuid.UUID]*models.ExamType{examType.ID: examType}},
		questions,
	)
	return svc, results, sessions, in.Session
}

func TestForSessionWriteOnce(t *testing.T) {
	svc, results, _, session := resultServiceFixture(t)

	first, err := svc.ForSession(context.Background(), session.ID, true)
	if err != nil {
		t.Fatalf("First compile failed: %v", err)
	}

	// Mutate source data after the result is locked in.
	second, err := svc.ForSession(context.Background(), session.ID, true)
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}

	if second.ID != first.ID {
		t.Error("Second request must return the persisted record, not a recompile")
	}
	if results.creates != 1 {
		t.Errorf("Expected exactly one store write, got %d", results.creates)
	}
}

func TestForSessionPreviewNeverPersists(t *testing.T) {
	svc, results, _, session := resultServiceFixture(t)

	res, err := svc.ForSession(context.Background(), session.ID, false)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if res == nil || len(res.ExamTypes) != 1 {
		t.Fatalf("Preview returned bad report: %+v", res)
	}
	if results.creates != 0 {
		t.Errorf("Preview must not write, store saw %d creates", results.creates)
	}
	if len(results.bySession) != 0 {
		t.Errorf("Preview must leave the store empty, got %d records", len(results.bySession))
	}
}

func TestForSessionRejectsUnfinished(t *testing.T) {
	svc, _, sessions, session := resultServiceFixture(t)
	sessions.sessions[session.ID].Status = models.SessionStarted

	_, err := svc.ForSession(context.Background(), session.ID, true)
	if _, ok := err.(*StateConflictError); !ok {
		t.Fatalf("Expected StateConflictError for an unfinished session, got %v", err)
	}
}

func TestForSessionMidFlightPreview(t *testing.T) {
	svc, results, sessions, session := resultServiceFixture(t)
	sessions.sessions[session.ID].Status = models.SessionStarted
	sessions.sessions[session.ID].CompletedAt = nil

	res, err := svc.ForSession(context.Background(), session.ID, false)
	if err != nil {
		t.Fatalf("Mid-flight preview failed: %v", err)
	}
	if res.TotalDurationSeconds <= 0 {
		t.Error("Preview of a started session must anchor its duration at now")
	}
	if results.creates != 0 {
		t.Errorf("Preview must not write, store saw %d creates", results.creates)
	}
	if sessions.sessions[session.ID].CompletedAt != nil {
		t.Error("Preview must not stamp the stored session")
	}
}
