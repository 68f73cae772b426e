package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"examdesk-backend/internal/models"
)

type ResultStore interface {
	Create(ctx context.Context, res *models.ExamResult) error
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*models.ExamResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExamResult, error)
	List(ctx context.Context) ([]*models.ExamResult, error)
}

type EmployeeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Employee, error)
}

// ResultService grades sessions. The grading itself is the pure Compile
// function; this service adds the load/persist choreography around it.
type ResultService struct {
	results   ResultStore
	sessions  SessionStore
	employees EmployeeStore
	structs   StructureStore
	examTypes ExamTypeStore
	questions QuestionStore
}

func NewResultService(results ResultStore, sessions SessionStore, employees EmployeeStore, structs StructureStore, examTypes ExamTypeStore, questions QuestionStore) *ResultService {
	return &ResultService{
		results:   results,
		sessions:  sessions,
		employees: employees,
		structs:   structs,
		examTypes: examTypes,
		questions: questions,
	}
}

// CompileInput carries everything Compile needs, so grading has no store access
// and can be exercised directly in tests.
type CompileInput struct {
	Session    *models.ExamSession
	Student    models.StudentSnapshot
	Progresses []*models.ExamProgress
	ExamTypes  map[uuid.UUID]*models.ExamType
	Questions  map[uuid.UUID]*models.Question
}

// Compile grades a session: per exam type it walks the frozen snapshot in
// order, marks each question correct/wrong/empty against the original option
// keys, and derives the unrounded percentage score and pass flag. Pure - same
// input, same report.
func Compile(in CompileInput) *models.ExamResult {
	res := &models.ExamResult{
		SessionID:   in.Session.ID,
		Student:     in.Student,
		DeskNumber:  in.Session.DeskNumber,
		DeskLabel:   in.Session.DeskLabel,
		MachineUUID: in.Session.MachineUUID,
		MAC:         in.Session.MAC,
		IP:          in.Session.IP,
		StartedAt:   in.Session.StartedAt,
		CompletedAt: in.Session.CompletedAt,
	}
	if in.Session.StartedAt != nil && in.Session.CompletedAt != nil {
		res.TotalDurationSeconds = in.Session.CompletedAt.Sub(*in.Session.StartedAt).Seconds()
	}

	for _, p := range in.Progresses {
		res.ExamTypes = append(res.ExamTypes, compileExamType(p, in.ExamTypes[p.ExamTypeID], in.Questions))
	}
	return res
}

func compileExamType(p *models.ExamProgress, examType *models.ExamType, questions map[uuid.UUID]*models.Question) models.ExamTypeResult {
	tr := models.ExamTypeResult{
		ExamTypeID:     p.ExamTypeID,
		TotalQuestions: len(p.Questions),
		StartedAt:      p.StartedAt,
		EndedAt:        p.EndedAt,
	}
	minCorrect := 0
	typeKnown := examType != nil
	if typeKnown {
		tr.ExamTypeName = examType.Name
		minCorrect = examType.MinCorrectAnswers
	}
	if p.StartedAt != nil && p.EndedAt != nil {
		tr.DurationSeconds = p.EndedAt.Sub(*p.StartedAt).Seconds()
	}

	for _, sq := range p.Questions {
		qr := models.ResultQuestion{
			QuestionID:       sq.ID,
			Text:             sq.Text,
			TimeSpentSeconds: p.TimeSpent[sq.ID.String()],
		}

		// The stored question carries correctness; the snapshot does not.
		var correctOptionID string
		if orig, ok := questions[sq.ID]; ok {
			for _, opt := range orig.Options {
				qr.Options = append(qr.Options, models.ResultOption{ID: opt.ID, Text: opt.Text, IsCorrect: opt.IsCorrect})
				if opt.IsCorrect {
					correctOptionID = opt.ID
				}
			}
		} else {
			for _, opt := range sq.Options {
				qr.Options = append(qr.Options, models.ResultOption{ID: opt.ID, Text: opt.Text})
			}
		}

		if selected, ok := p.Answers[sq.ID.String()]; ok {
			qr.SelectedOptionID = &selected
			if correctOptionID != "" && selected == correctOptionID {
				qr.IsCorrect = true
				tr.CorrectCount++
			} else {
				tr.WrongCount++
			}
		} else {
			tr.EmptyCount++
		}
		tr.Questions = append(tr.Questions, qr)
	}

	if tr.TotalQuestions > 0 {
		tr.Score = float64(tr.CorrectCount) / float64(tr.TotalQuestions) * 100
	}
	// A configured minimum of 0 is a legal threshold that every attempt meets.
	// Only an unresolvable exam type fails outright.
	tr.Passed = typeKnown && tr.CorrectCount >= minCorrect
	return tr
}

// ForSession returns the graded report for a completed session. The first call
// with persist compiles and stores it; every later call returns the stored
// record verbatim, even if questions or employee data changed since. With
// persist false the report is compiled fresh each time and never written: a
// started session is graded against "now" as the end anchor (mid-flight
// preview), a completed one against its recorded timestamps.
func (s *ResultService) ForSession(ctx context.Context, sessionID uuid.UUID, persist bool) (*models.ExamResult, error) {
	res, err := s.results.GetBySessionID(ctx, sessionID)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "session not found"}
		}
		return nil, err
	}
	if session.Status != models.SessionCompleted {
		if persist || session.Status != models.SessionStarted {
			return nil, &StateConflictError{Message: "session is not completed, no result to compile"}
		}
		now := time.Now()
		preview := *session
		preview.CompletedAt = &now
		session = &preview
	}

	in, err := s.loadCompileInput(ctx, session)
	if err != nil {
		return nil, err
	}
	res = Compile(*in)

	if !persist {
		return res, nil
	}
	if err := s.results.Create(ctx, res); err != nil {
		return nil, err
	}
	// Re-read so a concurrent winner's record is the one everyone sees.
	return s.results.GetBySessionID(ctx, sessionID)
}

func (s *ResultService) loadCompileInput(ctx context.Context, session *models.ExamSession) (*CompileInput, error) {
	student := models.StudentSnapshot{EmployeeID: session.EmployeeID}
	if emp, err := s.employees.GetByID(ctx, session.EmployeeID); err == nil {
		student.FirstName = emp.FirstName
		student.LastName = emp.LastName
		student.FatherName = emp.FatherName
		student.Gender = emp.Gender
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if st, err := s.structs.GetByID(ctx, session.StructureID); err == nil {
		student.StructureName = st.Name
		student.StructureCode = st.Code
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	progresses, err := s.sessions.ListProgress(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	examTypes := make(map[uuid.UUID]*models.ExamType, len(progresses))
	var questionIDs []uuid.UUID
	for _, p := range progresses {
		if _, ok := examTypes[p.ExamTypeID]; !ok {
			t, err := s.examTypes.GetByID(ctx, p.ExamTypeID)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			examTypes[p.ExamTypeID] = t
		}
		for _, sq := range p.Questions {
			questionIDs = append(questionIDs, sq.ID)
		}
	}

	questions := map[uuid.UUID]*models.Question{}
	if len(questionIDs) > 0 {
		questions, err = s.questions.GetByIDs(ctx, questionIDs)
		if err != nil {
			return nil, err
		}
	}

	return &CompileInput{
		Session:    session,
		Student:    student,
		Progresses: progresses,
		ExamTypes:  examTypes,
		Questions:  questions,
	}, nil
}

// Stats grades one exam type of a session on the fly, for the per-type summary
// a station shows right after finishing it. Never persisted.
func (s *ResultService) Stats(ctx context.Context, session *models.ExamSession, examTypeID uuid.UUID) (*models.ExamTypeResult, error) {
	progress, err := s.sessions.GetProgress(ctx, session.ID, examTypeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "exam type was never started"}
		}
		return nil, err
	}

	examType, err := s.examTypes.GetByID(ctx, examTypeID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var ids []uuid.UUID
	for _, sq := range progress.Questions {
		ids = append(ids, sq.ID)
	}
	questions := map[uuid.UUID]*models.Question{}
	if len(ids) > 0 {
		questions, err = s.questions.GetByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	tr := compileExamType(progress, examType, questions)
	return &tr, nil
}

func (s *ResultService) GetByID(ctx context.Context, id uuid.UUID) (*models.ExamResult, error) {
	res, err := s.results.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "result not found"}
		}
		return nil, err
	}
	return res, nil
}

func (s *ResultService) List(ctx context.Context) ([]*models.ExamResult, error) {
	return s.results.List(ctx)
}
