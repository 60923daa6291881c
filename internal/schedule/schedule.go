package schedule

import (
	"sort"
	"time"
)

// Regimen is the schedule-relevant part of a prescription
type Regimen struct {
	PrescriptionID string
	Times          []ClockTime
	StartDate      Date
	EndDate        Date
	ContinuousUse  bool
}

// ScheduledOn reports whether the regimen expects doses on d.
// A regimen with neither an end date nor continuous use is malformed and
// expects nothing.
func (r Regimen) ScheduledOn(d Date) bool {
	if r.StartDate.IsZero() || d.Before(r.StartDate) {
		return false
	}
	return r.coversEnd(d)
}

// ActiveOn reports whether the regimen has not yet ended on d, regardless of
// whether it has started.
func (r Regimen) ActiveOn(d Date) bool {
	return r.coversEnd(d)
}

func (r Regimen) coversEnd(d Date) bool {
	if r.ContinuousUse {
		return true
	}
	if r.EndDate.IsZero() {
		return false
	}
	return !d.After(r.EndDate)
}

// Dose is one expected dose instance: a (prescription, date, time) tuple.
// Doses are derived on demand and never stored.
type Dose struct {
	PrescriptionID string    `json:"prescription_id"`
	Date           Date      `json:"date"`
	Time           ClockTime `json:"time"`
}

// At returns the instant the dose is due in loc
func (d Dose) At(loc *time.Location) time.Time {
	return d.Time.On(d.Date, loc)
}

// Key returns the dedup key "{prescriptionId}-{time}-{date}" that identifies
// one logical reminder occurrence.
func (d Dose) Key() string {
	return DoseKey(d.PrescriptionID, d.Time, d.Date)
}

// DoseKey builds a dose dedup key
func DoseKey(prescriptionID string, t ClockTime, d Date) string {
	return prescriptionID + "-" + t.String() + "-" + d.String()
}

// Expand returns every expected dose of r for each calendar day in [from, to],
// ordered by date then time. The result is deterministic for identical inputs.
func Expand(r Regimen, from, to Date) []Dose {
	times := uniqueSorted(r.Times)
	if len(times) == 0 || from.IsZero() || to.IsZero() || to.Before(from) {
		return nil
	}
	if r.StartDate.IsZero() || (!r.ContinuousUse && r.EndDate.IsZero()) {
		return nil
	}

	// Clamp the range to the regimen's own bounds so long open ranges stay cheap.
	if from.Before(r.StartDate) {
		from = r.StartDate
	}
	if !r.ContinuousUse && !r.EndDate.IsZero() && to.After(r.EndDate) {
		to = r.EndDate
	}

	var doses []Dose
	for d := from; !d.After(to); d = d.AddDays(1) {
		if !r.ScheduledOn(d) {
			continue
		}
		for _, t := range times {
			doses = append(doses, Dose{PrescriptionID: r.PrescriptionID, Date: d, Time: t})
		}
	}
	return doses
}

// ExpandDay is Expand restricted to a single day
func ExpandDay(r Regimen, d Date) []Dose {
	return Expand(r, d, d)
}

// CountOn returns the number of doses r expects on d
func CountOn(r Regimen, d Date) int {
	if !r.ScheduledOn(d) {
		return 0
	}
	return len(uniqueSorted(r.Times))
}

func uniqueSorted(in []ClockTime) []ClockTime {
	if len(in) == 0 {
		return nil
	}
	out := make([]ClockTime, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
