package clock

import (
	"testing"
	"time"
)

func TestManagedClock(t *testing.T) {
	start := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	c := NewManaged(start)

	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}
	if got := c.WarpForward(90 * time.Minute); !got.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("unexpected warp result %v", got)
	}

	target := start.Add(24 * time.Hour)
	c.Set(target)
	if !c.Now().Equal(target) {
		t.Errorf("expected %v after Set, got %v", target, c.Now())
	}
}

func TestFunc(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var c Clock = Func(func() time.Time { return fixed })
	if !c.Now().Equal(fixed) {
		t.Errorf("expected %v, got %v", fixed, c.Now())
	}
}
