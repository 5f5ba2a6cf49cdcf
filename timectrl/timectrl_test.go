package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManualClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	if got := c.Advance(42 * time.Second); !got.Equal(start.Add(42 * time.Second)) {
		t.Fatalf("Advance() = %v, want %v", got, start.Add(42*time.Second))
	}

	newNow := start.Add(time.Hour)
	c.Set(newNow)
	if got := c.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestSchedulerFiresOncePerPeriod(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	s := NewScheduler(clock)

	var fast, slow int
	s.Add("fast", 10*time.Millisecond, func(context.Context, time.Time) error {
		fast++
		return nil
	}, true)
	s.Add("slow", 100*time.Millisecond, func(context.Context, time.Time) error {
		slow++
		return nil
	}, true)

	ctx := context.Background()
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	for i := 0; i < 20; i++ {
		clock.Advance(10 * time.Millisecond)
		if err := s.Tick(ctx); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	if fast != 20 {
		t.Fatalf("fast task fired %d times, want 20", fast)
	}
	if slow != 2 {
		t.Fatalf("slow task fired %d times, want 2", slow)
	}
}

func TestSchedulerLargeGapFiresOnlyOnce(t *testing.T) {
	clock := NewManualClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	s := NewScheduler(clock)

	var n int
	s.Add("task", time.Second, func(context.Context, time.Time) error {
		n++
		return nil
	}, true)

	ctx := context.Background()
	_ = s.Tick(ctx)
	clock.Advance(5 * time.Second)
	_ = s.Tick(ctx)

	if n != 1 {
		t.Fatalf("task fired %d times after a 5s gap, want 1", n)
	}
}

func TestSchedulerDisabledTaskDoesNotAccumulate(t *testing.T) {
	clock := NewManualClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	s := NewScheduler(clock)

	var n int
	task := s.Add("task", time.Second, func(context.Context, time.Time) error {
		n++
		return nil
	}, false)

	ctx := context.Background()
	_ = s.Tick(ctx)
	clock.Advance(3 * time.Second)
	_ = s.Tick(ctx)
	if n != 0 {
		t.Fatalf("disabled task fired %d times", n)
	}

	task.SetEnabled(true)
	clock.Advance(500 * time.Millisecond)
	_ = s.Tick(ctx)
	if n != 0 {
		t.Fatalf("task fired before a full period after enabling")
	}
	clock.Advance(500 * time.Millisecond)
	_ = s.Tick(ctx)
	if n != 1 {
		t.Fatalf("task fired %d times, want 1", n)
	}
}

func TestSchedulerRunsTasksInOrderAndStopsOnError(t *testing.T) {
	clock := NewManualClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	s := NewScheduler(clock)

	boom := errors.New("boom")
	var order []string
	s.Add("a", 0, func(context.Context, time.Time) error {
		order = append(order, "a")
		return boom
	}, true)
	s.Add("b", 0, func(context.Context, time.Time) error {
		order = append(order, "b")
		return nil
	}, true)

	ctx := context.Background()
	_ = s.Tick(ctx)
	clock.Advance(time.Millisecond)
	if err := s.Tick(ctx); !errors.Is(err, boom) {
		t.Fatalf("Tick err = %v, want boom", err)
	}
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("dispatch order = %v, want [a]", order)
	}
}

func TestSchedulerRunReturnsOnCancel(t *testing.T) {
	s := NewScheduler(SystemClock{})

	ctx, cancel := context.WithCancel(context.Background())
	var n int
	s.Add("count", 0, func(context.Context, time.Time) error {
		n++
		if n == 3 {
			cancel()
		}
		return nil
	}, true)

	err := s.Run(ctx, time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if n < 3 {
		t.Fatalf("task ran %d times, want >= 3", n)
	}
}

type recordingObserver struct {
	names []string
	lags  []time.Duration
	errs  []error
}

func (r *recordingObserver) ObserveTask(name string, lag, _ time.Duration, err error) {
	r.names = append(r.names, name)
	r.lags = append(r.lags, lag)
	r.errs = append(r.errs, err)
}

func TestSchedulerReportsTaskInvocations(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock)
	obs := &recordingObserver{}
	s.SetObserver(obs)
	s.Add("slow", time.Second, func(context.Context, time.Time) error { return nil }, true)

	ctx := context.Background()
	_ = s.Tick(ctx)
	clock.Advance(1500 * time.Millisecond)
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(obs.names) != 1 || obs.names[0] != "slow" {
		t.Fatalf("observed tasks = %v, want [slow]", obs.names)
	}
	if obs.lags[0] != 500*time.Millisecond {
		t.Fatalf("lag = %v, want 500ms", obs.lags[0])
	}
	if obs.errs[0] != nil {
		t.Fatalf("err = %v, want nil", obs.errs[0])
	}
}
