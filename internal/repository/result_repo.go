package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"examdesk-backend/internal/models"
)

type ResultRepo struct {
	pool *pgxpool.Pool
}

func NewResultRepo(pool *pgxpool.Pool) *ResultRepo {
	return &ResultRepo{pool: pool}
}

const resultColumns = `id, session_id, student, desk_number, desk_label, machine_uuid, mac, ip,
	started_at, completed_at, total_duration_seconds, exam_types, created_at`

func (r *ResultRepo) scanResult(row interface{ Scan(dest ...any) error }) (*models.ExamResult, error) {
	res := &models.ExamResult{}
	var student, examTypes []byte
	err := row.Scan(
		&res.ID, &res.SessionID, &student, &res.DeskNumber, &res.DeskLabel, &res.MachineUUID,
		&res.MAC, &res.IP, &res.StartedAt, &res.CompletedAt, &res.TotalDurationSeconds,
		&examTypes, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(student, &res.Student); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(examTypes, &res.ExamTypes); err != nil {
		return nil, err
	}
	return res, nil
}

// Create persists a compiled result. The unique session_id constraint plus
// ON CONFLICT DO NOTHING makes the write idempotent: a losing concurrent writer
// simply leaves the first record in place.
func (r *ResultRepo) Create(ctx context.Context, res *models.ExamResult) error {
	res.ID = uuid.New()
	student, err := json.Marshal(res.Student)
	if err != nil {
		return err
	}
	examTypes, err := json.Marshal(res.ExamTypes)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_results (id, session_id, student, desk_number, desk_label, machine_uuid, mac, ip,
			started_at, completed_at, total_duration_seconds, exam_types)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO NOTHING`,
		res.ID, res.SessionID, student, res.DeskNumber, res.DeskLabel, res.MachineUUID, res.MAC, res.IP,
		res.StartedAt, res.CompletedAt, res.TotalDurationSeconds, examTypes,
	)
	return err
}

func (r *ResultRepo) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*models.ExamResult, error) {
	query := `SELECT ` + resultColumns + ` FROM exam_results WHERE session_id = $1`
	return r.scanResult(r.pool.QueryRow(ctx, query, sessionID))
}

func (r *ResultRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ExamResult, error) {
	query := `SELECT ` + resultColumns + ` FROM exam_results WHERE id = $1`
	return r.scanResult(r.pool.QueryRow(ctx, query, id))
}

func (r *ResultRepo) List(ctx context.Context) ([]*models.ExamResult, error) {
	query := `SELECT ` + resultColumns + ` FROM exam_results ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ExamResult
	for rows.Next() {
		res, err := r.scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
