package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caretrack/doseguard/internal/domain/prescription"
)

// PrescriptionRepo stores prescriptions
type PrescriptionRepo struct {
	pool *pgxpool.Pool
}

// NewPrescriptionRepo creates a PrescriptionRepo
func NewPrescriptionRepo(pool *pgxpool.Pool) *PrescriptionRepo {
	return &PrescriptionRepo{pool: pool}
}

const prescriptionColumns = `id, account_id, patient_id, medication_id, frequency, times,
	start_date, end_date, continuous_use, dose_amount, notes, created_at, updated_at`

func (r *PrescriptionRepo) Create(ctx context.Context, p *prescription.Prescription) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO prescriptions (`+prescriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.AccountID, p.PatientID, p.MedicationID, p.Frequency, timesArg(p.Times),
		dateArg(p.StartDate), dateArg(p.EndDate), p.ContinuousUse, p.DoseAmount, p.Notes,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: prescription %s already exists", prescription.ErrInvalidInput, p.ID)
		}
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *PrescriptionRepo) Update(ctx context.Context, p *prescription.Prescription) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE prescriptions
		SET medication_id = $2, frequency = $3, times = $4, start_date = $5, end_date = $6,
		    continuous_use = $7, dose_amount = $8, notes = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.MedicationID, p.Frequency, timesArg(p.Times), dateArg(p.StartDate), dateArg(p.EndDate),
		p.ContinuousUse, p.DoseAmount, p.Notes, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return prescription.ErrNotFound
	}
	return nil
}

func (r *PrescriptionRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM prescriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return prescription.ErrNotFound
	}
	return nil
}

func (r *PrescriptionRepo) Get(ctx context.Context, id string) (*prescription.Prescription, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id)
	p, err := scanPrescription(row)
	if err != nil {
		if isNoRows(err) {
			return nil, prescription.ErrNotFound
		}
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	return p, nil
}

func (r *PrescriptionRepo) List(ctx context.Context, f prescription.Filter) ([]*prescription.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE TRUE`
	var args []any
	if len(f.PatientIDs) > 0 {
		args = append(args, f.PatientIDs)
		query += fmt.Sprintf(" AND patient_id = ANY($%d)", len(args))
	}
	if !f.ActiveOn.IsZero() {
		args = append(args, dateArg(f.ActiveOn))
		query += fmt.Sprintf(" AND (continuous_use OR end_date >= $%d)", len(args))
	}
	query += " ORDER BY created_at, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	out := make([]*prescription.Prescription, 0)
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPrescription(row pgx.Row) (*prescription.Prescription, error) {
	var (
		p          prescription.Prescription
		times      []string
		start, end *time.Time
	)
	err := row.Scan(&p.ID, &p.AccountID, &p.PatientID, &p.MedicationID, &p.Frequency, &times,
		&start, &end, &p.ContinuousUse, &p.DoseAmount, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.StartDate = dateFrom(start)
	p.EndDate = dateFrom(end)
	if p.Times, err = timesFrom(times); err != nil {
		return nil, fmt.Errorf("prescription %s: %w", p.ID, err)
	}
	return &p, nil
}

var _ prescription.Repository = (*PrescriptionRepo)(nil)
