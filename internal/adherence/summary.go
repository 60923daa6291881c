package adherence

import (
	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/schedule"
)

// Counts aggregates dose outcomes
type Counts struct {
	Expected   int     `json:"expected"`
	Taken      int     `json:"taken"`
	Skipped    int     `json:"skipped"`
	Unrecorded int     `json:"unrecorded"`
	Rate       float64 `json:"rate"`
}

func (c *Counts) add(taken, skipped bool) {
	c.Expected++
	switch {
	case taken:
		c.Taken++
	case skipped:
		c.Skipped++
	default:
		c.Unrecorded++
	}
}

func (c *Counts) finish() {
	if c.Expected > 0 {
		c.Rate = float64(c.Taken) / float64(c.Expected)
	}
}

// PrescriptionCounts is the per-prescription breakdown of a Summary
type PrescriptionCounts struct {
	PrescriptionID string `json:"prescription_id"`
	Counts
}

// Summary is the adherence report for a date range
type Summary struct {
	From          schedule.Date        `json:"from"`
	To            schedule.Date        `json:"to"`
	Total         Counts               `json:"total"`
	Prescriptions []PrescriptionCounts `json:"prescriptions"`
}

// Summarize matches expected doses in [from, to] against the log. Days after
// today are not counted since their doses cannot have been taken yet.
// Log entries for doses that are not expected are ignored.
func Summarize(from, to, today schedule.Date, prescriptions []*prescription.Prescription, log []*consumption.Entry) Summary {
	s := Summary{From: from, To: to, Prescriptions: []PrescriptionCounts{}}
	if !today.IsZero() && to.After(today) {
		to = today
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return s
	}

	idx := consumption.NewIndex(log)
	for _, p := range prescriptions {
		pc := PrescriptionCounts{PrescriptionID: p.ID}
		for _, dose := range schedule.Expand(p.Regimen(), from, to) {
			e, logged := idx[dose.Key()]
			taken := logged && e.Status == consumption.StatusTaken
			skipped := logged && e.Status == consumption.StatusForgotten
			pc.add(taken, skipped)
			s.Total.add(taken, skipped)
		}
		pc.finish()
		s.Prescriptions = append(s.Prescriptions, pc)
	}
	s.Total.finish()
	return s
}
