package timectrl

import (
	"context"
	"time"
)

// DefaultPollInterval is the sleep between scheduler ticks in Run.
const DefaultPollInterval = 10 * time.Millisecond

// TaskFunc is invoked when a task's period has elapsed. A returned error
// stops Run; tasks report recoverable problems themselves and return nil.
type TaskFunc func(ctx context.Context, now time.Time) error

// TaskObserver is notified after every task invocation with how far past its
// period the task fired and how long the callback took.
type TaskObserver interface {
	ObserveTask(name string, lag, took time.Duration, err error)
}

// Task is a periodic callback owned by a Scheduler.
type Task struct {
	name    string
	period  time.Duration
	fn      TaskFunc
	enabled bool

	elapsed time.Duration
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Period returns the firing period.
func (t *Task) Period() time.Duration { return t.period }

// Enabled reports whether the task is currently active.
func (t *Task) Enabled() bool { return t.enabled }

// SetEnabled activates or deactivates the task. Re-enabling starts a fresh
// accumulation period.
func (t *Task) SetEnabled(enabled bool) {
	if enabled && !t.enabled {
		t.elapsed = 0
	}
	t.enabled = enabled
}

// Scheduler is a single-threaded cooperative dispatcher of fixed-period
// tasks. Tick must not be called concurrently; tasks run sequentially in the
// order they were added and never preempt one another.
type Scheduler struct {
	clock    Clock
	tasks    []*Task
	last     time.Time
	observer TaskObserver
}

// NewScheduler creates a scheduler reading time from clock.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{clock: clock}
}

// SetObserver installs an observer for task invocations. Nil disables it.
func (s *Scheduler) SetObserver(o TaskObserver) { s.observer = o }

// Add registers a task. A non-positive period fires on every tick.
func (s *Scheduler) Add(name string, period time.Duration, fn TaskFunc, enabled bool) *Task {
	t := &Task{
		name:    name,
		period:  period,
		fn:      fn,
		enabled: enabled,
	}
	s.tasks = append(s.tasks, t)
	return t
}

// Tasks returns the registered tasks in dispatch order.
func (s *Scheduler) Tasks() []*Task {
	out := make([]*Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Tick accumulates the time since the previous tick into every enabled task
// and fires each task whose accumulator has reached its period, exactly once,
// before resetting that accumulator. The first call only records the time.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()
	if s.last.IsZero() {
		s.last = now
		return nil
	}
	delta := now.Sub(s.last)
	if delta < 0 {
		delta = 0
	}
	s.last = now

	for _, t := range s.tasks {
		if !t.enabled {
			continue
		}
		t.elapsed += delta
		if t.elapsed < t.period {
			continue
		}
		lag := t.elapsed - t.period
		t.elapsed = 0
		if t.fn == nil {
			continue
		}
		started := time.Now()
		err := t.fn(ctx, now)
		if s.observer != nil {
			s.observer.ObserveTask(t.name, lag, time.Since(started), err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Run drives Tick from the calling goroutine, sleeping interval between
// ticks, until ctx is done or a task returns an error.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.Tick(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := s.Tick(ctx); err != nil {
			return err
		}
	}
}
