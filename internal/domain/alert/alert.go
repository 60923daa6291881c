// Package alert defines missed-dose caregiver alerts and the durable log that
// makes them at-most-once per dose.
package alert

import (
	"context"
	"time"

	"github.com/caretrack/doseguard/internal/schedule"
)

// Entry is one row of the alert log. Its existence is the dedup key:
// at most one row per (prescription, date, time).
type Entry struct {
	ID             string             `json:"id"`
	PrescriptionID string             `json:"prescription_id"`
	PatientID      string             `json:"patient_id"`
	Date           schedule.Date      `json:"alert_date"`
	Time           schedule.ClockTime `json:"alert_time"`
	Recipients     []string           `json:"recipients"`
	CreatedAt      time.Time          `json:"created_at"`
}

// DoseKey identifies the dose the alert was raised for
func (e *Entry) DoseKey() string {
	return schedule.DoseKey(e.PrescriptionID, e.Time, e.Date)
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	PatientID string
	From      schedule.Date
	To        schedule.Date
}

// Repository is the durable alert log.
// InsertIfAbsent must be atomic at the store level and report false when a row
// for the same (prescription, date, time) already exists.
type Repository interface {
	Exists(ctx context.Context, prescriptionID string, d schedule.Date, t schedule.ClockTime) (bool, error)
	InsertIfAbsent(ctx context.Context, e *Entry) (bool, error)
	List(ctx context.Context, f Filter) ([]*Entry, error)
}

// Notification is the caregiver-facing message for one late dose
type Notification struct {
	Key             string             `json:"key"`
	PrescriptionID  string             `json:"prescription_id"`
	PatientID       string             `json:"patient_id"`
	PatientName     string             `json:"patient_name"`
	MedicationName  string             `json:"medication_name"`
	Date            schedule.Date      `json:"date"`
	Time            schedule.ClockTime `json:"time"`
	LatenessMinutes int                `json:"lateness_minutes"`
	Recipients      []string           `json:"recipients"`
	Title           string             `json:"title"`
	Body            string             `json:"body"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Deliverer sends a caregiver alert to its recipients
type Deliverer interface {
	Deliver(ctx context.Context, n *Notification) error
}

// DelivererFunc adapts a function to Deliverer
type DelivererFunc func(ctx context.Context, n *Notification) error

// Deliver calls f
func (f DelivererFunc) Deliver(ctx context.Context, n *Notification) error {
	return f(ctx, n)
}
