package adherence

import (
	"testing"
	"time"

	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/schedule"
)

var (
	day1  = schedule.NewDate(2026, 5, 10)
	day2  = schedule.NewDate(2026, 5, 11)
	day3  = schedule.NewDate(2026, 5, 12)
	at8   = schedule.MustClockTime("08:00")
	at20  = schedule.MustClockTime("20:00")
	noon  = schedule.MustClockTime("12:00")
	later = schedule.NewDate(2026, 6, 1)
)

func twiceDaily(id string) *prescription.Prescription {
	return &prescription.Prescription{
		ID:        id,
		PatientID: "patient-1",
		Times:     []schedule.ClockTime{at8, at20},
		StartDate: day1,
		EndDate:   day3,
	}
}

func entry(rxID string, d schedule.Date, t schedule.ClockTime, s consumption.Status) *consumption.Entry {
	return &consumption.Entry{
		ID:             rxID + t.String() + d.String(),
		PrescriptionID: rxID,
		Date:           d,
		ScheduledTime:  t,
		Status:         s,
	}
}

func TestDayStatus(t *testing.T) {
	rx := []*prescription.Prescription{twiceDaily("rx-1")}

	cases := []struct {
		name  string
		date  schedule.Date
		today schedule.Date
		rx    []*prescription.Prescription
		log   []*consumption.Entry
		want  Status
	}{
		{"no prescriptions", day1, day1, nil, nil, StatusEmpty},
		{"outside prescription", later, later, rx, nil, StatusEmpty},
		{"all taken", day1, day2, rx, []*consumption.Entry{
			entry("rx-1", day1, at8, consumption.StatusTaken),
			entry("rx-1", day1, at20, consumption.StatusTaken),
		}, StatusFull},
		{"one of two taken", day1, day2, rx, []*consumption.Entry{
			entry("rx-1", day1, at8, consumption.StatusTaken),
		}, StatusPartial},
		{"none taken in the past", day1, day2, rx, nil, StatusMissed},
		{"forgotten counts as not taken", day1, day2, rx, []*consumption.Entry{
			entry("rx-1", day1, at8, consumption.StatusForgotten),
			entry("rx-1", day1, at20, consumption.StatusForgotten),
		}, StatusMissed},
		{"none taken today", day2, day2, rx, nil, StatusPending},
		{"none taken in the future", day3, day2, rx, nil, StatusPending},
		{"other dates ignored", day2, day3, rx, []*consumption.Entry{
			entry("rx-1", day1, at8, consumption.StatusTaken),
			entry("rx-1", day1, at20, consumption.StatusTaken),
		}, StatusMissed},
	}

	for _, tc := range cases {
		if got := DayStatus(tc.date, tc.today, tc.rx, tc.log); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestDayStatus_ZeroTimes(t *testing.T) {
	rx := twiceDaily("rx-1")
	rx.Times = nil
	if got := DayStatus(day1, day1, []*prescription.Prescription{rx}, nil); got != StatusEmpty {
		t.Errorf("expected empty, got %s", got)
	}
}

func TestDayStatus_CountsNotSlots(t *testing.T) {
	rx := []*prescription.Prescription{
		twiceDaily("rx-1"),
		{ID: "rx-2", Times: []schedule.ClockTime{noon}, StartDate: day1, ContinuousUse: true},
	}
	// three taken rows against three expected doses, regardless of which slots
	log := []*consumption.Entry{
		entry("rx-1", day1, at8, consumption.StatusTaken),
		entry("rx-1", day1, at20, consumption.StatusTaken),
		entry("rx-3", day1, noon, consumption.StatusTaken),
	}
	if got := DayStatus(day1, day2, rx, log); got != StatusFull {
		t.Errorf("expected full, got %s", got)
	}
}

func TestDayStatus_OrderIndependent(t *testing.T) {
	rx := []*prescription.Prescription{twiceDaily("rx-1"), twiceDaily("rx-2")}
	log := []*consumption.Entry{
		entry("rx-1", day1, at8, consumption.StatusTaken),
		entry("rx-2", day1, at20, consumption.StatusForgotten),
		entry("rx-2", day1, at8, consumption.StatusTaken),
	}
	reversed := []*consumption.Entry{log[2], log[1], log[0]}

	a := DayStatus(day1, day2, rx, log)
	b := DayStatus(day1, day2, rx, reversed)
	if a != b || a != StatusPartial {
		t.Errorf("expected partial for both orders, got %s and %s", a, b)
	}
}

func TestRange(t *testing.T) {
	rx := []*prescription.Prescription{twiceDaily("rx-1")}
	log := []*consumption.Entry{
		entry("rx-1", day1, at8, consumption.StatusTaken),
		entry("rx-1", day1, at20, consumption.StatusTaken),
		entry("rx-1", day2, at8, consumption.StatusTaken),
	}

	days := Range(day1, day3.AddDays(1), day3, rx, log)
	want := []Status{StatusFull, StatusPartial, StatusPending, StatusEmpty}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(days))
	}
	for i, d := range days {
		if d.Status != want[i] {
			t.Errorf("day %s: expected %s, got %s", d.Date, want[i], d.Status)
		}
		if d.Status != DayStatus(d.Date, day3, rx, log) {
			t.Errorf("day %s: Range disagrees with DayStatus", d.Date)
		}
	}
	if days[1].Expected != 2 || days[1].Taken != 1 {
		t.Errorf("expected 2 expected / 1 taken, got %+v", days[1])
	}

	if got := Range(day3, day1, day3, rx, log); got != nil {
		t.Errorf("expected nil for inverted range, got %+v", got)
	}
}

func TestSlotStatuses(t *testing.T) {
	rx := []*prescription.Prescription{
		twiceDaily("rx-1"),
		{ID: "rx-2", Times: []schedule.ClockTime{noon}, StartDate: day1, ContinuousUse: true},
	}
	log := []*consumption.Entry{
		entry("rx-1", day2, at8, consumption.StatusTaken),
		entry("rx-2", day2, noon, consumption.StatusForgotten),
	}
	now := time.Date(2026, 5, 11, 13, 0, 0, 0, time.UTC)

	slots := SlotStatuses(day2, rx, log, now, time.UTC)
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	want := map[string]SlotStatus{
		"rx-1-08:00": SlotTaken,
		"rx-1-20:00": SlotUpcoming,
		"rx-2-12:00": SlotSkipped,
	}
	for _, s := range slots {
		key := s.PrescriptionID + "-" + s.Time.String()
		if s.Status != want[key] {
			t.Errorf("%s: expected %s, got %s", key, want[key], s.Status)
		}
	}

	// nothing logged and the morning dose is already due
	slots = SlotStatuses(day3, rx[:1], nil, time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC), time.UTC)
	if slots[0].Status != SlotOverdue || slots[1].Status != SlotUpcoming {
		t.Errorf("expected overdue then upcoming, got %+v", slots)
	}
}

func TestSummarize(t *testing.T) {
	rx := []*prescription.Prescription{twiceDaily("rx-1")}
	log := []*consumption.Entry{
		entry("rx-1", day1, at8, consumption.StatusTaken),
		entry("rx-1", day1, at20, consumption.StatusTaken),
		entry("rx-1", day2, at8, consumption.StatusForgotten),
		// not an expected dose
		entry("rx-1", day2, noon, consumption.StatusTaken),
	}

	s := Summarize(day1, day3, day2, rx, log)
	if s.Total.Expected != 4 {
		t.Fatalf("expected 4 doses up to today, got %d", s.Total.Expected)
	}
	if s.Total.Taken != 2 || s.Total.Skipped != 1 || s.Total.Unrecorded != 1 {
		t.Errorf("unexpected totals: %+v", s.Total)
	}
	if s.Total.Rate != 0.5 {
		t.Errorf("expected rate 0.5, got %v", s.Total.Rate)
	}
	if len(s.Prescriptions) != 1 || s.Prescriptions[0].Taken != 2 {
		t.Errorf("unexpected breakdown: %+v", s.Prescriptions)
	}
	if !s.To.Equal(day3) {
		t.Errorf("expected requested range to be echoed, got %s", s.To)
	}
}

func TestSummarize_EmptyRange(t *testing.T) {
	s := Summarize(day3, day1, day3, []*prescription.Prescription{twiceDaily("rx-1")}, nil)
	if s.Total.Expected != 0 || s.Total.Rate != 0 {
		t.Errorf("expected zero summary, got %+v", s.Total)
	}
}
