package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []State
	cfg := DefaultConfig("alerts")
	cfg.FailureThreshold = 3
	cfg.Timeout = time.Hour
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, to)
	}

	cb, err := New(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	boom := errors.New("broker down")
	for i := 0; i < 3; i++ {
		if err := cb.Do(context.Background(), func(ctx context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected downstream error, got %v", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	called := false
	err = cb.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while the circuit is open")
	}
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("expected a single transition to open, got %v", transitions)
	}
	if StateOpen.Value() != 1 {
		t.Errorf("unexpected gauge value %v", StateOpen.Value())
	}
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	cfg := DefaultConfig("alerts")
	cfg.FailureThreshold = 1
	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_ = cb.Do(context.Background(), func(ctx context.Context) error { return context.Canceled })
	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestNew_RequiresName(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error for unnamed breaker")
	}
}
