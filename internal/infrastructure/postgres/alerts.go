package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/schedule"
)

// AlertRepo is the alert log. Its unique key on (prescription, date, time)
// is what makes overlapping watchdog passes safe.
type AlertRepo struct {
	pool *pgxpool.Pool
}

// NewAlertRepo creates an AlertRepo
func NewAlertRepo(pool *pgxpool.Pool) *AlertRepo {
	return &AlertRepo{pool: pool}
}

func (r *AlertRepo) Exists(ctx context.Context, prescriptionID string, d schedule.Date, t schedule.ClockTime) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alert_log WHERE prescription_id = $1 AND alert_date = $2 AND alert_time = $3
		)`, prescriptionID, dateArg(d), t.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check alert log: %w", err)
	}
	return exists, nil
}

// InsertIfAbsent reports false when another pass already logged the dose
func (r *AlertRepo) InsertIfAbsent(ctx context.Context, e *alert.Entry) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO alert_log (id, prescription_id, patient_id, alert_date, alert_time, recipients, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (prescription_id, alert_date, alert_time) DO NOTHING`,
		e.ID, e.PrescriptionID, e.PatientID, dateArg(e.Date), e.Time.String(), e.Recipients, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert alert log: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AlertRepo) List(ctx context.Context, f alert.Filter) ([]*alert.Entry, error) {
	query := `SELECT id, prescription_id, patient_id, alert_date, alert_time, recipients, created_at
		FROM alert_log WHERE TRUE`
	var args []any
	if f.PatientID != "" {
		args = append(args, f.PatientID)
		query += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, dateArg(f.From))
		query += fmt.Sprintf(" AND alert_date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, dateArg(f.To))
		query += fmt.Sprintf(" AND alert_date <= $%d", len(args))
	}
	query += " ORDER BY alert_date, alert_time, prescription_id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alert log: %w", err)
	}
	defer rows.Close()

	out := make([]*alert.Entry, 0)
	for rows.Next() {
		var (
			e    alert.Entry
			date time.Time
			at   string
		)
		if err := rows.Scan(&e.ID, &e.PrescriptionID, &e.PatientID, &date, &at, &e.Recipients, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		e.Date = dateFrom(&date)
		if e.Time, err = schedule.ParseClockTime(at); err != nil {
			return nil, fmt.Errorf("alert %s: %w", e.ID, err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

var _ alert.Repository = (*AlertRepo)(nil)
