// Package prescription defines the prescription record and its validation rules.
package prescription

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/caretrack/doseguard/internal/schedule"
)

var (
	ErrInvalidInput = errors.New("invalid prescription")
	ErrNotFound     = errors.New("prescription not found")
)

// Prescription is a caregiver-authored dosing plan for one patient and one medication
type Prescription struct {
	ID            string               `json:"id"`
	AccountID     string               `json:"account_id"`
	PatientID     string               `json:"patient_id"`
	MedicationID  string               `json:"medication_id"`
	Frequency     string               `json:"frequency"`
	Times         []schedule.ClockTime `json:"times"`
	StartDate     schedule.Date        `json:"start_date"`
	EndDate       schedule.Date        `json:"end_date"`
	ContinuousUse bool                 `json:"continuous_use"`
	DoseAmount    float64              `json:"dose_amount"`
	Notes         string               `json:"notes,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Normalize sorts times and drops the end date of continuous-use prescriptions
func (p *Prescription) Normalize() {
	p.PatientID = strings.TrimSpace(p.PatientID)
	p.MedicationID = strings.TrimSpace(p.MedicationID)
	p.Frequency = strings.TrimSpace(p.Frequency)
	if p.ContinuousUse {
		p.EndDate = schedule.Date{}
	}
	sort.Slice(p.Times, func(i, j int) bool { return p.Times[i] < p.Times[j] })
}

// Validate checks the invariants a prescription must hold before it is stored
func (p *Prescription) Validate() error {
	if p.PatientID == "" {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if p.MedicationID == "" {
		return fmt.Errorf("%w: medication_id is required", ErrInvalidInput)
	}
	if len(p.Times) == 0 {
		return fmt.Errorf("%w: at least one time is required", ErrInvalidInput)
	}
	seen := make(map[schedule.ClockTime]struct{}, len(p.Times))
	for _, t := range p.Times {
		if t < 0 || t >= 24*60 {
			return fmt.Errorf("%w: time %d out of range", ErrInvalidInput, int(t))
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: duplicate time %s", ErrInvalidInput, t)
		}
		seen[t] = struct{}{}
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("%w: start_date is required", ErrInvalidInput)
	}
	if !p.ContinuousUse {
		if p.EndDate.IsZero() {
			return fmt.Errorf("%w: end_date is required unless continuous_use is set", ErrInvalidInput)
		}
		if p.EndDate.Before(p.StartDate) {
			return fmt.Errorf("%w: end_date before start_date", ErrInvalidInput)
		}
	}
	if p.DoseAmount <= 0 {
		return fmt.Errorf("%w: dose_amount must be positive", ErrInvalidInput)
	}
	return nil
}

// Regimen returns the schedule-relevant view of p
func (p *Prescription) Regimen() schedule.Regimen {
	return schedule.Regimen{
		PrescriptionID: p.ID,
		Times:          p.Times,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		ContinuousUse:  p.ContinuousUse,
	}
}

// ActiveOn reports whether p is continuous-use or its end date has not yet passed on d
func (p *Prescription) ActiveOn(d schedule.Date) bool {
	return p.Regimen().ActiveOn(d)
}

// ScheduledOn reports whether p expects doses on d
func (p *Prescription) ScheduledOn(d schedule.Date) bool {
	return p.Regimen().ScheduledOn(d)
}

// HasTime reports whether t is one of p's scheduled times
func (p *Prescription) HasTime(t schedule.ClockTime) bool {
	for _, pt := range p.Times {
		if pt == t {
			return true
		}
	}
	return false
}

// ActiveOnly filters ps down to prescriptions active on d, excluding excludeID
func ActiveOnly(ps []*Prescription, d schedule.Date, excludeID string) []*Prescription {
	out := make([]*Prescription, 0, len(ps))
	for _, p := range ps {
		if p.ID == excludeID {
			continue
		}
		if p.ActiveOn(d) {
			out = append(out, p)
		}
	}
	return out
}
