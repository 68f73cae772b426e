package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"examdesk-backend/internal/models"
)

type StructureRepo struct {
	pool *pgxpool.Pool
}

func NewStructureRepo(pool *pgxpool.Pool) *StructureRepo {
	return &StructureRepo{pool: pool}
}

func (r *StructureRepo) Create(ctx context.Context, s *models.Structure) error {
	s.ID = uuid.New()
	query := `INSERT INTO structures (id, name, code) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query, s.ID, s.Name, s.Code).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *StructureRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Structure, error) {
	s := &models.Structure{}
	query := `SELECT id, name, code, created_at, updated_at FROM structures WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.Code, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StructureRepo) List(ctx context.Context) ([]*models.Structure, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, code, created_at, updated_at FROM structures ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var structures []*models.Structure
	for rows.Next() {
		s := &models.Structure{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		structures = append(structures, s)
	}
	return structures, rows.Err()
}

func (r *StructureRepo) Update(ctx context.Context, s *models.Structure) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE structures SET name = $2, code = $3, updated_at = NOW() WHERE id = $1`,
		s.ID, s.Name, s.Code,
	)
	return err
}

func (r *StructureRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM structures WHERE id = $1`, id)
	return err
}
