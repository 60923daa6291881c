package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/schedule"
)

// ConsumptionRepo stores the consumption log
type ConsumptionRepo struct {
	pool *pgxpool.Pool
}

// NewConsumptionRepo creates a ConsumptionRepo
func NewConsumptionRepo(pool *pgxpool.Pool) *ConsumptionRepo {
	return &ConsumptionRepo{pool: pool}
}

const consumptionColumns = `id, prescription_id, dose_date, scheduled_time, status, recorded_by, recorded_at`

// Record relies on the (prescription_id, dose_date, scheduled_time) unique key
func (r *ConsumptionRepo) Record(ctx context.Context, e *consumption.Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO consumption_log (`+consumptionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.PrescriptionID, dateArg(e.Date), e.ScheduledTime.String(), e.Status, e.RecordedBy, e.RecordedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return consumption.ErrAlreadyRecorded
		}
		return fmt.Errorf("insert consumption entry: %w", err)
	}
	return nil
}

func (r *ConsumptionRepo) Update(ctx context.Context, e *consumption.Entry) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE consumption_log SET status = $4, recorded_by = $5, recorded_at = $6
		WHERE id = $1 AND dose_date = $2 AND scheduled_time = $3`,
		e.ID, dateArg(e.Date), e.ScheduledTime.String(), e.Status, e.RecordedBy, e.RecordedAt)
	if err != nil {
		return fmt.Errorf("update consumption entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return consumption.ErrNotFound
	}
	return nil
}

func (r *ConsumptionRepo) Get(ctx context.Context, id string) (*consumption.Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+consumptionColumns+` FROM consumption_log WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, consumption.ErrNotFound
		}
		return nil, fmt.Errorf("get consumption entry: %w", err)
	}
	return e, nil
}

func (r *ConsumptionRepo) List(ctx context.Context, f consumption.Filter) ([]*consumption.Entry, error) {
	query := `SELECT ` + consumptionColumns + ` FROM consumption_log WHERE TRUE`
	var args []any
	if len(f.PrescriptionIDs) > 0 {
		args = append(args, f.PrescriptionIDs)
		query += fmt.Sprintf(" AND prescription_id = ANY($%d)", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, dateArg(f.From))
		query += fmt.Sprintf(" AND dose_date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, dateArg(f.To))
		query += fmt.Sprintf(" AND dose_date <= $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY dose_date, scheduled_time, prescription_id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consumption log: %w", err)
	}
	defer rows.Close()

	out := make([]*consumption.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consumption entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (*consumption.Entry, error) {
	var (
		e    consumption.Entry
		date time.Time
		at   string
	)
	if err := row.Scan(&e.ID, &e.PrescriptionID, &date, &at, &e.Status, &e.RecordedBy, &e.RecordedAt); err != nil {
		return nil, err
	}
	e.Date = dateFrom(&date)
	t, err := schedule.ParseClockTime(at)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	e.ScheduledTime = t
	return &e, nil
}

var _ consumption.Repository = (*ConsumptionRepo)(nil)
