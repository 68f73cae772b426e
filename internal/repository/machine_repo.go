package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"examdesk-backend/internal/models"
)

type MachineRepo struct {
	pool *pgxpool.Pool
}

func NewMachineRepo(pool *pgxpool.Pool) *MachineRepo {
	return &MachineRepo{pool: pool}
}

const machineColumns = `id, machine_uuid, mac, hostname, ip, platform, desk_number, label,
	assigned_employee_id, assigned_structure_id, last_connected, created_at, updated_at`

func (r *MachineRepo) scanMachine(row interface{ Scan(dest ...any) error }) (*models.Machine, error) {
	m := &models.Machine{}
	err := row.Scan(
		&m.ID, &m.UUID, &m.MAC, &m.Hostname, &m.IP, &m.Platform, &m.DeskNumber, &m.Label,
		&m.AssignedEmployeeID, &m.AssignedStructureID, &m.LastConnected, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MachineRepo) Create(ctx context.Context, m *models.Machine) error {
	m.ID = uuid.New()
	query := `INSERT INTO machines (id, machine_uuid, mac, hostname, ip, platform, desk_number, label,
			assigned_employee_id, assigned_structure_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING last_connected, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		m.ID, m.UUID, m.MAC, m.Hostname, m.IP, m.Platform, m.DeskNumber, m.Label,
		m.AssignedEmployeeID, m.AssignedStructureID,
	).Scan(&m.LastConnected, &m.CreatedAt, &m.UpdatedAt)
}

func (r *MachineRepo) GetByUUID(ctx context.Context, machineUUID string) (*models.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE machine_uuid = $1`
	return r.scanMachine(r.pool.QueryRow(ctx, query, machineUUID))
}

func (r *MachineRepo) GetByDeskNumber(ctx context.Context, deskNumber int) (*models.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE desk_number = $1`
	return r.scanMachine(r.pool.QueryRow(ctx, query, deskNumber))
}

// RefreshConnection records the latest network fingerprint and bumps
// last_connected. Called on every join.
func (r *MachineRepo) RefreshConnection(ctx context.Context, machineUUID string, mac, hostname, ip, platform *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE machines SET mac = COALESCE($2, mac), hostname = COALESCE($3, hostname),
			ip = COALESCE($4, ip), platform = COALESCE($5, platform),
			last_connected = NOW(), updated_at = NOW()
		WHERE machine_uuid = $1`,
		machineUUID, mac, hostname, ip, platform,
	)
	return err
}

// MaxDeskNumber returns the highest desk number ever assigned, 0 when no
// machines exist. Gaps left by removed desks are never reused.
func (r *MachineRepo) MaxDeskNumber(ctx context.Context) (int, error) {
	var max int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(desk_number), 0) FROM machines`).Scan(&max)
	return max, err
}

func (r *MachineRepo) UpdateDeskNumber(ctx context.Context, machineUUID string, deskNumber int, label string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE machines SET desk_number = $2, label = $3, updated_at = NOW() WHERE machine_uuid = $1`,
		machineUUID, deskNumber, label,
	)
	return err
}

func (r *MachineRepo) AssignEmployee(ctx context.Context, machineUUID string, employeeID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE machines SET assigned_employee_id = $2, updated_at = NOW() WHERE machine_uuid = $1`,
		machineUUID, employeeID,
	)
	return err
}

func (r *MachineRepo) AssignStructure(ctx context.Context, machineUUID string, structureID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE machines SET assigned_structure_id = $2, updated_at = NOW() WHERE machine_uuid = $1`,
		machineUUID, structureID,
	)
	return err
}

func (r *MachineRepo) ClearAssignment(ctx context.Context, machineUUID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE machines SET assigned_employee_id = NULL, assigned_structure_id = NULL, updated_at = NOW()
		WHERE machine_uuid = $1`,
		machineUUID,
	)
	return err
}

// ListPlaceholders finds machines stuck on a transient negative desk number,
// which can only happen when a swap failed between its durable steps.
func (r *MachineRepo) ListPlaceholders(ctx context.Context) ([]*models.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE desk_number < 1 ORDER BY desk_number`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var machines []*models.Machine
	for rows.Next() {
		m, err := r.scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}
