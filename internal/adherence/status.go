// Package adherence classifies how completely scheduled doses were taken.
package adherence

import (
	"time"

	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/schedule"
)

// Status is the calendar-cell classification of one day
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusFull    Status = "full"
	StatusPartial Status = "partial"
	StatusMissed  Status = "missed"
	StatusPending Status = "pending"
)

// Expected is the number of doses the prescriptions schedule on date
func Expected(date schedule.Date, prescriptions []*prescription.Prescription) int {
	n := 0
	for _, p := range prescriptions {
		n += schedule.CountOn(p.Regimen(), date)
	}
	return n
}

// TakenOn counts log entries dated date with status taken
func TakenOn(date schedule.Date, log []*consumption.Entry) int {
	n := 0
	for _, e := range log {
		if e.Status == consumption.StatusTaken && e.Date.Equal(date) {
			n++
		}
	}
	return n
}

// DayStatus classifies date by counts only. Which slots were taken does not
// matter; see SlotStatuses for per-slot detail. today decides between missed
// and pending when nothing was taken.
func DayStatus(date, today schedule.Date, prescriptions []*prescription.Prescription, log []*consumption.Entry) Status {
	expected := Expected(date, prescriptions)
	if expected == 0 {
		return StatusEmpty
	}
	return classify(date, today, expected, TakenOn(date, log))
}

func classify(date, today schedule.Date, expected, taken int) Status {
	switch {
	case expected == 0:
		return StatusEmpty
	case taken >= expected:
		return StatusFull
	case taken == 0 && date.Before(today):
		return StatusMissed
	case taken == 0:
		return StatusPending
	default:
		return StatusPartial
	}
}

// Day is one cell of an adherence calendar
type Day struct {
	Date     schedule.Date `json:"date"`
	Status   Status        `json:"status"`
	Expected int           `json:"expected"`
	Taken    int           `json:"taken"`
}

// Range classifies every day in [from, to]. It returns nil for an inverted range.
func Range(from, to, today schedule.Date, prescriptions []*prescription.Prescription, log []*consumption.Entry) []Day {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil
	}

	taken := make(map[schedule.Date]int)
	for _, e := range log {
		if e.Status == consumption.StatusTaken {
			taken[e.Date]++
		}
	}

	days := make([]Day, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		expected := Expected(d, prescriptions)
		days = append(days, Day{
			Date:     d,
			Status:   classify(d, today, expected, taken[d]),
			Expected: expected,
			Taken:    taken[d],
		})
	}
	return days
}

type SlotStatus string

const (
	SlotTaken    SlotStatus = "taken"
	SlotSkipped  SlotStatus = "skipped"
	SlotOverdue  SlotStatus = "overdue"
	SlotUpcoming SlotStatus = "upcoming"
)

// Slot is the state of one expected dose
type Slot struct {
	PrescriptionID string             `json:"prescription_id"`
	Date           schedule.Date      `json:"date"`
	Time           schedule.ClockTime `json:"time"`
	Status         SlotStatus         `json:"status"`
	EntryID        string             `json:"entry_id,omitempty"`
}

// SlotStatuses lists every dose expected on date with what happened to it.
// Unlogged doses due before now are overdue, the rest upcoming.
func SlotStatuses(date schedule.Date, prescriptions []*prescription.Prescription, log []*consumption.Entry, now time.Time, loc *time.Location) []Slot {
	idx := consumption.NewIndex(log)

	var slots []Slot
	for _, p := range prescriptions {
		for _, dose := range schedule.ExpandDay(p.Regimen(), date) {
			slot := Slot{PrescriptionID: dose.PrescriptionID, Date: dose.Date, Time: dose.Time}
			if e, ok := idx[dose.Key()]; ok {
				slot.EntryID = e.ID
				if e.Status == consumption.StatusTaken {
					slot.Status = SlotTaken
				} else {
					slot.Status = SlotSkipped
				}
			} else if dose.At(loc).Before(now) {
				slot.Status = SlotOverdue
			} else {
				slot.Status = SlotUpcoming
			}
			slots = append(slots, slot)
		}
	}
	return slots
}
