package workerpool

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestPool_RunsEveryTask(t *testing.T) {
	p := New(Config{Workers: 3, QueueSize: 1}, zaptest.NewLogger(t))
	p.Start()

	var ran int64
	for i := 0; i < 20; i++ {
		err := p.Go(context.Background(), strconv.Itoa(i), func(ctx context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if ran != 20 {
		t.Errorf("expected 20 tasks to run, got %d", ran)
	}
	if s := p.Stats(); s.TasksCompleted != 20 || s.TasksSubmitted != 20 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestPool_FailuresAreIsolated(t *testing.T) {
	p := New(Config{Workers: 2}, zaptest.NewLogger(t))
	p.Start()

	var ok int64
	for i := 0; i < 10; i++ {
		i := i
		_ = p.Go(context.Background(), strconv.Itoa(i), func(ctx context.Context) error {
			if i%2 == 0 {
				return errors.New("boom")
			}
			if i == 5 {
				panic("worse")
			}
			atomic.AddInt64(&ok, 1)
			return nil
		})
	}
	_ = p.Stop()

	s := p.Stats()
	if s.TasksFailed != 6 || ok != 4 {
		t.Errorf("expected 6 failed and 4 ok, got %d failed and %d ok", s.TasksFailed, ok)
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := New(DefaultConfig(), nil)
	p.Start()
	_ = p.Stop()

	err := p.Go(context.Background(), "late", func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	// not started: the single queue slot fills and the next submit blocks
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	noop := func(ctx context.Context) error { return nil }
	if err := p.Go(context.Background(), "a", noop); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Go(ctx, "b", noop); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	p.Start()
	_ = p.Stop()
}
