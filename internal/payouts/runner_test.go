package payouts

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerLifecycle(t *testing.T) {
	var runs int32
	runner := NewRunner("test", "* * * * * *", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, nil)

	if runner.Name() != "test" {
		t.Fatalf("name = %s", runner.Name())
	}

	ctx := context.Background()
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Idempotent start.
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for atomic.LoadInt32(&runs) == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(50 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := runner.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Idempotent stop.
	if err := runner.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestRunnerSkipsOverlappingRuns(t *testing.T) {
	var active, peak, runs int32
	runner := NewRunner("slow", "* * * * * *", func(ctx context.Context) error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2500 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&runs, 1)
		return nil
	}, nil)

	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Long enough for several 1s triggers to fire while a run is in flight.
	time.Sleep(4 * time.Second)

	stopCtx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	if err := runner.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if atomic.LoadInt32(&runs) == 0 {
		t.Fatal("job never completed a run")
	}
	if got := atomic.LoadInt32(&peak); got != 1 {
		t.Fatalf("concurrent runs of one runner = %d, want 1", got)
	}
}

func TestRunnerRejectsBadSchedule(t *testing.T) {
	runner := NewRunner("bad", "not a schedule", func(ctx context.Context) error { return nil }, nil)
	if err := runner.Start(context.Background()); err == nil {
		t.Fatal("invalid schedule accepted")
	}
}
