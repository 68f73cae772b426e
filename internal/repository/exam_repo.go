package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"examdesk-backend/internal/models"
)

type ExamTypeRepo struct {
	pool *pgxpool.Pool
}

func NewExamTypeRepo(pool *pgxpool.Pool) *ExamTypeRepo {
	return &ExamTypeRepo{pool: pool}
}

const examTypeColumns = `id, name, slug, description, duration_minutes, min_correct_answers,
	question_count, is_active, created_at, updated_at`

func (r *ExamTypeRepo) scanExamType(row interface{ Scan(dest ...any) error }) (*models.ExamType, error) {
	t := &models.ExamType{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Description, &t.DurationMinutes, &t.MinCorrectAnswers,
		&t.QuestionCount, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *ExamTypeRepo) Create(ctx context.Context, t *models.ExamType) error {
	t.ID = uuid.New()
	query := `INSERT INTO exam_types (id, name, slug, description, duration_minutes, min_correct_answers, question_count, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		t.ID, t.Name, t.Slug, t.Description, t.DurationMinutes, t.MinCorrectAnswers, t.QuestionCount, t.IsActive,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *ExamTypeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ExamType, error) {
	query := `SELECT ` + examTypeColumns + ` FROM exam_types WHERE id = $1`
	return r.scanExamType(r.pool.QueryRow(ctx, query, id))
}

func (r *ExamTypeRepo) List(ctx context.Context) ([]*models.ExamType, error) {
	return r.list(ctx, `SELECT `+examTypeColumns+` FROM exam_types ORDER BY name`)
}

// ListActive returns the exam types a session is entitled to; the session-wide
// countdown sums their durations.
func (r *ExamTypeRepo) ListActive(ctx context.Context) ([]*models.ExamType, error) {
	return r.list(ctx, `SELECT `+examTypeColumns+` FROM exam_types WHERE is_active = TRUE ORDER BY name`)
}

func (r *ExamTypeRepo) list(ctx context.Context, query string) ([]*models.ExamType, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*models.ExamType
	for rows.Next() {
		t, err := r.scanExamType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (r *ExamTypeRepo) Update(ctx context.Context, t *models.ExamType) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_types SET name = $2, slug = $3, description = $4, duration_minutes = $5,
			min_correct_answers = $6, question_count = $7, is_active = $8, updated_at = NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Slug, t.Description, t.DurationMinutes, t.MinCorrectAnswers, t.QuestionCount, t.IsActive,
	)
	return err
}

func (r *ExamTypeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exam_types WHERE id = $1`, id)
	return err
}

type QuestionRepo struct {
	pool *pgxpool.Pool
}

func NewQuestionRepo(pool *pgxpool.Pool) *QuestionRepo {
	return &QuestionRepo{pool: pool}
}

const questionColumns = `id, exam_type_id, text, options, structure_code, difficulty, is_active, created_at, updated_at`

func (r *QuestionRepo) scanQuestion(row interface{ Scan(dest ...any) error }) (*models.Question, error) {
	q := &models.Question{}
	var options []byte
	err := row.Scan(
		&q.ID, &q.ExamTypeID, &q.Text, &options, &q.StructureCode, &q.Difficulty,
		&q.IsActive, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *QuestionRepo) Create(ctx context.Context, q *models.Question) error {
	q.ID = uuid.New()
	options, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	query := `INSERT INTO questions (id, exam_type_id, text, options, structure_code, difficulty, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		q.ID, q.ExamTypeID, q.Text, options, q.StructureCode, q.Difficulty, q.IsActive,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
}

func (r *QuestionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	return r.scanQuestion(r.pool.QueryRow(ctx, query, id))
}

// ListEligible selects the candidate pool for a snapshot: active questions of
// the exam type, scoped to the unit code or unscoped.
func (r *QuestionRepo) ListEligible(ctx context.Context, examTypeID uuid.UUID, structureCode string) ([]*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions
		WHERE exam_type_id = $1 AND is_active = TRUE
		AND (structure_code IS NULL OR structure_code = $2)`
	return r.listQuery(ctx, query, examTypeID, structureCode)
}

func (r *QuestionRepo) ListByExamType(ctx context.Context, examTypeID uuid.UUID) ([]*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE exam_type_id = $1 ORDER BY created_at`
	return r.listQuery(ctx, query, examTypeID)
}

// GetByIDs loads the original questions (with correctness markers) for grading.
func (r *QuestionRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = ANY($1)`
	list, err := r.listQuery(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*models.Question, len(list))
	for _, q := range list {
		byID[q.ID] = q
	}
	return byID, nil
}

func (r *QuestionRepo) listQuery(ctx context.Context, query string, args ...any) ([]*models.Question, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		q, err := r.scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (r *QuestionRepo) Update(ctx context.Context, q *models.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE questions SET exam_type_id = $2, text = $3, options = $4, structure_code = $5,
			difficulty = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1`,
		q.ID, q.ExamTypeID, q.Text, options, q.StructureCode, q.Difficulty, q.IsActive,
	)
	return err
}

func (r *QuestionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return err
}
