package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caretrack/doseguard/internal/domain/patient"
)

// PatientRepo stores patients and their shares
type PatientRepo struct {
	pool *pgxpool.Pool
}

// NewPatientRepo creates a PatientRepo
func NewPatientRepo(pool *pgxpool.Pool) *PatientRepo {
	return &PatientRepo{pool: pool}
}

const patientColumns = `id, account_id, name, birth_date, time_zone, created_at, updated_at`

func (r *PatientRepo) Create(ctx context.Context, p *patient.Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (`+patientColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.AccountID, p.Name, dateArg(p.BirthDate), p.TimeZone, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: patient %s already exists", patient.ErrInvalidInput, p.ID)
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PatientRepo) Update(ctx context.Context, p *patient.Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients SET name = $2, birth_date = $3, time_zone = $4, updated_at = $5 WHERE id = $1`,
		p.ID, p.Name, dateArg(p.BirthDate), p.TimeZone, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return patient.ErrNotFound
	}
	return nil
}

func (r *PatientRepo) Get(ctx context.Context, id string) (*patient.Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, patient.ErrNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *PatientRepo) ListByAccount(ctx context.Context, accountID string) ([]*patient.Patient, error) {
	return r.list(ctx, `SELECT `+patientColumns+` FROM patients WHERE account_id = $1 ORDER BY created_at, id`, accountID)
}

func (r *PatientRepo) List(ctx context.Context) ([]*patient.Patient, error) {
	return r.list(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY created_at, id`)
}

func (r *PatientRepo) list(ctx context.Context, query string, args ...any) ([]*patient.Patient, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	out := make([]*patient.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPatient(row pgx.Row) (*patient.Patient, error) {
	var (
		p     patient.Patient
		birth *time.Time
	)
	if err := row.Scan(&p.ID, &p.AccountID, &p.Name, &birth, &p.TimeZone, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.BirthDate = dateFrom(birth)
	return &p, nil
}

const shareColumns = `id, patient_id, grantee_account_id, access, status, created_at, updated_at`

func (r *PatientRepo) CreateShare(ctx context.Context, s *patient.Share) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient_shares (`+shareColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.PatientID, s.GranteeAccountID, s.Access, s.Status, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: patient already shared with %s", patient.ErrInvalidInput, s.GranteeAccountID)
		}
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func (r *PatientRepo) UpdateShare(ctx context.Context, s *patient.Share) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient_shares SET access = $2, status = $3, updated_at = $4 WHERE id = $1`,
		s.ID, s.Access, s.Status, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return patient.ErrNotFound
	}
	return nil
}

func (r *PatientRepo) ListShares(ctx context.Context, patientID string) ([]*patient.Share, error) {
	return r.listShares(ctx, `SELECT `+shareColumns+` FROM patient_shares WHERE patient_id = $1 ORDER BY created_at, id`, patientID)
}

func (r *PatientRepo) ListSharesByGrantee(ctx context.Context, accountID string) ([]*patient.Share, error) {
	return r.listShares(ctx, `SELECT `+shareColumns+` FROM patient_shares WHERE grantee_account_id = $1 ORDER BY created_at, id`, accountID)
}

func (r *PatientRepo) listShares(ctx context.Context, query string, args ...any) ([]*patient.Share, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	out := make([]*patient.Share, 0)
	for rows.Next() {
		var s patient.Share
		if err := rows.Scan(&s.ID, &s.PatientID, &s.GranteeAccountID, &s.Access, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

var _ patient.Repository = (*PatientRepo)(nil)
