package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"examdesk-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, machine_uuid, employee_id, structure_id, desk_number, desk_label,
	mac, hostname, ip, platform, status, confirmed_at, started_at, completed_at`

func (r *SessionRepo) scanSession(row interface{ Scan(dest ...any) error }) (*models.ExamSession, error) {
	s := &models.ExamSession{}
	err := row.Scan(
		&s.ID, &s.MachineUUID, &s.EmployeeID, &s.StructureID, &s.DeskNumber, &s.DeskLabel,
		&s.MAC, &s.Hostname, &s.IP, &s.Platform, &s.Status, &s.ConfirmedAt, &s.StartedAt, &s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) Create(ctx context.Context, s *models.ExamSession) error {
	s.ID = uuid.New()
	s.Status = models.SessionConfirmed
	query := `INSERT INTO exam_sessions (id, machine_uuid, employee_id, structure_id, desk_number, desk_label,
			mac, hostname, ip, platform, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING confirmed_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.MachineUUID, s.EmployeeID, s.StructureID, s.DeskNumber, s.DeskLabel,
		s.MAC, s.Hostname, s.IP, s.Platform, s.Status,
	).Scan(&s.ConfirmedAt)
}

// GetActiveByMachine returns the one session that is confirmed or started for
// this machine. Active-session uniqueness is enforced by this filter, not by a
// store constraint.
func (r *SessionRepo) GetActiveByMachine(ctx context.Context, machineUUID string) (*models.ExamSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM exam_sessions
		WHERE machine_uuid = $1 AND status IN ('confirmed', 'started')
		ORDER BY confirmed_at DESC LIMIT 1`
	return r.scanSession(r.pool.QueryRow(ctx, query, machineUUID))
}

func (r *SessionRepo) GetLatestCompletedByMachine(ctx context.Context, machineUUID string) (*models.ExamSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM exam_sessions
		WHERE machine_uuid = $1 AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1`
	return r.scanSession(r.pool.QueryRow(ctx, query, machineUUID))
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ExamSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM exam_sessions WHERE id = $1`
	return r.scanSession(r.pool.QueryRow(ctx, query, id))
}

// MarkStarted flips confirmed -> started. Returns false when the session was
// not in confirmed state, which callers treat as "already started".
func (r *SessionRepo) MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET status = 'started', started_at = $2 WHERE id = $1 AND status = 'confirmed'`,
		id, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCompleted flips started -> completed. Returns false when the session was
// not in started state.
func (r *SessionRepo) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET status = 'completed', completed_at = $2 WHERE id = $1 AND status = 'started'`,
		id, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ─── Per-exam-type progress rows ───

const progressColumns = `id, session_id, exam_type_id, questions, answers, time_spent, status, started_at, ended_at`

func (r *SessionRepo) scanProgress(row interface{ Scan(dest ...any) error }) (*models.ExamProgress, error) {
	p := &models.ExamProgress{}
	var questions, answers, timeSpent []byte
	err := row.Scan(
		&p.ID, &p.SessionID, &p.ExamTypeID, &questions, &answers, &timeSpent,
		&p.Status, &p.StartedAt, &p.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &p.Questions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &p.Answers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(timeSpent, &p.TimeSpent); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *SessionRepo) CreateProgress(ctx context.Context, p *models.ExamProgress) error {
	p.ID = uuid.New()
	questions, err := json.Marshal(p.Questions)
	if err != nil {
		return err
	}
	answers, _ := json.Marshal(p.Answers)
	timeSpent, _ := json.Marshal(p.TimeSpent)
	if p.Answers == nil {
		answers = []byte("{}")
	}
	if p.TimeSpent == nil {
		timeSpent = []byte("{}")
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO session_progress (id, session_id, exam_type_id, questions, answers, time_spent, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.SessionID, p.ExamTypeID, questions, answers, timeSpent, p.Status, p.StartedAt,
	)
	return err
}

func (r *SessionRepo) GetProgress(ctx context.Context, sessionID, examTypeID uuid.UUID) (*models.ExamProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM session_progress
		WHERE session_id = $1 AND exam_type_id = $2`
	return r.scanProgress(r.pool.QueryRow(ctx, query, sessionID, examTypeID))
}

func (r *SessionRepo) ListProgress(ctx context.Context, sessionID uuid.UUID) ([]*models.ExamProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM session_progress WHERE session_id = $1`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.ExamProgress
	for rows.Next() {
		p, err := r.scanProgress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// UpdateProgress merges one answer change and/or a time-spent delta into the
// matching progress row with a targeted jsonb update, so high-frequency small
// writes never rewrite the question snapshot. A nil option with optionSet true
// clears the answer; optionSet false leaves answers untouched (time-only sync).
// Returns false when no in_progress row matched.
func (r *SessionRepo) UpdateProgress(ctx context.Context, sessionID, examTypeID uuid.UUID, questionID string, optionID *string, optionSet bool, timeDelta float64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE session_progress SET
			answers = CASE
				WHEN NOT $6::boolean THEN answers
				WHEN $4::text IS NULL THEN answers - $3::text
				ELSE jsonb_set(answers, ARRAY[$3::text], to_jsonb($4::text), true)
			END,
			time_spent = CASE
				WHEN $5::double precision <= 0 THEN time_spent
				ELSE jsonb_set(time_spent, ARRAY[$3::text],
					to_jsonb(COALESCE((time_spent->>$3::text)::double precision, 0) + $5::double precision), true)
			END
		WHERE session_id = $1 AND exam_type_id = $2 AND status = 'in_progress'`,
		sessionID, examTypeID, questionID, optionID, timeDelta, optionSet,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepo) MarkProgressCompleted(ctx context.Context, sessionID, examTypeID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE session_progress SET status = 'completed', ended_at = $3
		WHERE session_id = $1 AND exam_type_id = $2 AND status = 'in_progress'`,
		sessionID, examTypeID, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
