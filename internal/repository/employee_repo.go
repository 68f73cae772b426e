package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"examdesk-backend/internal/models"
)

type EmployeeRepo struct {
	pool *pgxpool.Pool
}

func NewEmployeeRepo(pool *pgxpool.Pool) *EmployeeRepo {
	return &EmployeeRepo{pool: pool}
}

const employeeColumns = `id, first_name, last_name, father_name, gender, structure_id, is_active, created_at, updated_at`

func (r *EmployeeRepo) scanEmployee(row interface{ Scan(dest ...any) error }) (*models.Employee, error) {
	e := &models.Employee{}
	err := row.Scan(
		&e.ID, &e.FirstName, &e.LastName, &e.FatherName, &e.Gender, &e.StructureID,
		&e.IsActive, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EmployeeRepo) Create(ctx context.Context, e *models.Employee) error {
	e.ID = uuid.New()
	query := `INSERT INTO employees (id, first_name, last_name, father_name, gender, structure_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		e.ID, e.FirstName, e.LastName, e.FatherName, e.Gender, e.StructureID, e.IsActive,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *EmployeeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`
	return r.scanEmployee(r.pool.QueryRow(ctx, query, id))
}

func (r *EmployeeRepo) List(ctx context.Context) ([]*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees ORDER BY last_name, first_name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []*models.Employee
	for rows.Next() {
		e, err := r.scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (r *EmployeeRepo) Update(ctx context.Context, e *models.Employee) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE employees SET first_name = $2, last_name = $3, father_name = $4, gender = $5,
			structure_id = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1`,
		e.ID, e.FirstName, e.LastName, e.FatherName, e.Gender, e.StructureID, e.IsActive,
	)
	return err
}

func (r *EmployeeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
	return err
}
