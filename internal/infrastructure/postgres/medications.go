package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caretrack/doseguard/internal/domain/medication"
)

// MedicationRepo stores the medication catalogue
type MedicationRepo struct {
	pool *pgxpool.Pool
}

// NewMedicationRepo creates a MedicationRepo
func NewMedicationRepo(pool *pgxpool.Pool) *MedicationRepo {
	return &MedicationRepo{pool: pool}
}

const medicationColumns = `id, account_id, name, dosage, unit, created_at, updated_at`

func (r *MedicationRepo) Create(ctx context.Context, m *medication.Medication) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO medications (`+medicationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.AccountID, m.Name, m.Dosage, m.Unit, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: medication %s already exists", medication.ErrInvalidInput, m.ID)
		}
		return fmt.Errorf("insert medication: %w", err)
	}
	return nil
}

func (r *MedicationRepo) Update(ctx context.Context, m *medication.Medication) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE medications SET name = $2, dosage = $3, unit = $4, updated_at = $5 WHERE id = $1`,
		m.ID, m.Name, m.Dosage, m.Unit, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return medication.ErrNotFound
	}
	return nil
}

func (r *MedicationRepo) Get(ctx context.Context, id string) (*medication.Medication, error) {
	m, err := scanMedication(r.pool.QueryRow(ctx, `SELECT `+medicationColumns+` FROM medications WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, medication.ErrNotFound
		}
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

func (r *MedicationRepo) GetMany(ctx context.Context, ids []string) (map[string]*medication.Medication, error) {
	out := make(map[string]*medication.Medication, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+medicationColumns+` FROM medications WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get medications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

func (r *MedicationRepo) ListByAccount(ctx context.Context, accountID string) ([]*medication.Medication, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+medicationColumns+` FROM medications WHERE account_id = $1 ORDER BY name`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	out := make([]*medication.Medication, 0)
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMedication(row pgx.Row) (*medication.Medication, error) {
	var m medication.Medication
	if err := row.Scan(&m.ID, &m.AccountID, &m.Name, &m.Dosage, &m.Unit, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

var _ medication.Repository = (*MedicationRepo)(nil)
