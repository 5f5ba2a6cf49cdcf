// Package tracker wires the TLE cache, controller and mount into a running
// tracking loop.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/mount-tracker/control"
	"github.com/signalsfoundry/mount-tracker/hardware"
	"github.com/signalsfoundry/mount-tracker/internal/logging"
	"github.com/signalsfoundry/mount-tracker/internal/observability"
	"github.com/signalsfoundry/mount-tracker/timectrl"
	"github.com/signalsfoundry/mount-tracker/tle"
)

// ErrNoUsableTLE means neither the named target nor the fallback could be
// found locally or fetched.
var ErrNoUsableTLE = errors.New("no usable TLE")

// Task names registered with the scheduler.
const (
	TaskController = "controller"
	TaskHardware   = "hardware"
)

// Config holds loop timing.
type Config struct {
	// ControlPeriod is the controller tick period. Default: 1s
	ControlPeriod time.Duration
	// PollInterval is the scheduler sleep and the hardware poll period.
	// Default: 10ms
	PollInterval time.Duration
	// RefreshCheckInterval is how often the background refresher runs.
	// Default: 1m
	RefreshCheckInterval time.Duration
}

// DefaultConfig returns the stock loop timing.
func DefaultConfig() Config {
	return Config{
		ControlPeriod:        time.Second,
		PollInterval:         timectrl.DefaultPollInterval,
		RefreshCheckInterval: time.Minute,
	}
}

// ApplyDefaults returns c with non-positive durations replaced by defaults.
func (c Config) ApplyDefaults() Config {
	d := DefaultConfig()
	if c.ControlPeriod <= 0 {
		c.ControlPeriod = d.ControlPeriod
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RefreshCheckInterval <= 0 {
		c.RefreshCheckInterval = d.RefreshCheckInterval
	}
	return c
}

// TickObserver receives one sample per controller tick.
type TickObserver interface {
	ObserveTick(observability.TickSample)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the scheduler clock.
func WithClock(clock timectrl.Clock) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithLogger sets the tracker logger.
func WithLogger(log logging.Logger) Option {
	return func(t *Tracker) { t.log = logging.OrNoop(log) }
}

// WithTickObserver reports controller ticks to o.
func WithTickObserver(o TickObserver) Option {
	return func(t *Tracker) { t.ticks = o }
}

// WithTaskObserver reports scheduler task invocations to o.
func WithTaskObserver(o timectrl.TaskObserver) Option {
	return func(t *Tracker) { t.tasks = o }
}

// Tracker runs one target against one mount.
type Tracker struct {
	cfg   Config
	cache *tle.Cache
	ctrl  *control.Controller
	mount hardware.Mount
	clock timectrl.Clock
	log   logging.Logger
	ticks TickObserver
	tasks timectrl.TaskObserver

	targetID string
	lastTick time.Time
}

// New builds a tracker. The cache is shared with the background refresher
// started by Run.
func New(cfg Config, cache *tle.Cache, ctrl *control.Controller, mount hardware.Mount, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:   cfg.ApplyDefaults(),
		cache: cache,
		ctrl:  ctrl,
		mount: mount,
		clock: timectrl.SystemClock{},
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track selects the record to follow. Later refreshes of the same catalog id
// are picked up on each controller tick.
func (t *Tracker) Track(rec tle.Record) {
	t.targetID = rec.CatalogID
	t.ctrl.SetTarget(rec)
}

// Run waits for the mount to announce itself, tells it where it is pointing,
// engages the motors and runs the control loop until ctx is done or the
// transport fails. Stop is always attempted before returning. A cancelled
// context is a clean exit and yields nil.
func (t *Tracker) Run(ctx context.Context, startAz, startAlt float64) (err error) {
	if t.targetID == "" {
		return control.ErrNoTarget
	}
	ctx, log := logging.WithRunLogger(ctx, t.log)
	log = log.With(logging.String("catalog_id", t.targetID))

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if stopErr := t.mount.Stop(stopCtx); stopErr != nil {
			log.Warn(stopCtx, "failed to release mount", logging.Err(stopErr))
		}
	}()

	if err := t.waitReady(ctx, log); err != nil {
		return cleanExit(err)
	}
	if err := t.engage(ctx, startAz, startAlt); err != nil {
		return err
	}
	t.ctrl.SetEstimatedPosition(startAz)
	log.Info(ctx, "tracking started", logging.Float("start_az", startAz), logging.Float("start_alt", startAlt))

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if t.cache != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			NewRefresher(t.cache, t.cfg.RefreshCheckInterval, log).Run(refreshCtx)
		}()
	}
	defer func() {
		stopRefresh()
		wg.Wait()
	}()

	sched := timectrl.NewScheduler(t.clock)
	if t.tasks != nil {
		sched.SetObserver(t.tasks)
	}
	sched.Add(TaskController, t.cfg.ControlPeriod, t.controlTask(log), true)
	sched.Add(TaskHardware, t.cfg.PollInterval, t.pollTask(log), true)

	err = sched.Run(ctx, t.cfg.PollInterval)
	if errors.Is(err, hardware.ErrTransportClosed) {
		log.Error(ctx, "mount transport failed", logging.Err(err))
	}
	return cleanExit(err)
}

func (t *Tracker) waitReady(ctx context.Context, log logging.Logger) error {
	for !t.mount.Ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := t.mount.Update(ctx)
		switch {
		case err == nil:
		case errors.Is(err, hardware.ErrProtocolUnexpected):
			log.Warn(ctx, "unexpected reply while waiting for mount", logging.Err(err))
		default:
			return err
		}
	}
	return nil
}

func (t *Tracker) engage(ctx context.Context, az, alt float64) error {
	if err := t.mount.SetAzimuth(ctx, az); err != nil {
		return err
	}
	if err := t.mount.SetAltitude(ctx, alt); err != nil {
		return err
	}
	return t.mount.Start(ctx)
}

func (t *Tracker) controlTask(log logging.Logger) timectrl.TaskFunc {
	return func(ctx context.Context, now time.Time) error {
		started := time.Now()
		if t.cache != nil {
			if rec, ok := t.cache.LookupByID(t.targetID); ok {
				t.ctrl.SetTarget(rec)
			}
		}

		// A failed tick leaves lastTick alone so the next successful tick
		// integrates the whole interval the mount kept moving.
		var dt time.Duration
		if !t.lastTick.IsZero() {
			dt = now.Sub(t.lastTick)
		}

		cmd, err := t.ctrl.Tick(ctx, now, dt)
		if err != nil {
			log.Warn(ctx, "controller tick failed", logging.Err(err))
			return nil
		}
		t.lastTick = now
		if err := t.push(ctx, cmd); err != nil {
			return err
		}

		if t.ticks != nil {
			modes := make([]string, len(control.Modes))
			for i, m := range control.Modes {
				modes[i] = m.String()
			}
			t.ticks.ObserveTick(observability.TickSample{
				Duration:       time.Since(started),
				ErrorDegrees:   cmd.Error.Magnitude,
				Speed:          cmd.Speed,
				TargetAzimuth:  cmd.TargetAzimuth,
				TargetAltitude: cmd.TargetAltitude,
				Mode:           cmd.Mode.String(),
				Modes:          modes,
			})
		}
		return nil
	}
}

func (t *Tracker) push(ctx context.Context, cmd control.Command) error {
	if err := t.mount.SetAzimuthSpeed(ctx, cmd.Speed); err != nil {
		return err
	}
	if err := t.mount.SetAltitudeSpeed(ctx, cmd.AltitudeSpeed); err != nil {
		return err
	}
	if err := t.mount.SetTargetAzimuth(ctx, cmd.TargetAzimuth); err != nil {
		return err
	}
	return t.mount.SetTargetAltitude(ctx, cmd.TargetAltitude)
}

func (t *Tracker) pollTask(log logging.Logger) timectrl.TaskFunc {
	return func(ctx context.Context, _ time.Time) error {
		err := t.mount.Update(ctx)
		if errors.Is(err, hardware.ErrProtocolUnexpected) {
			log.Warn(ctx, "unexpected reply from mount", logging.Err(err))
			return nil
		}
		return err
	}
}

func cleanExit(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ResolveRecord picks the record to track: the first cached record whose
// name contains name, else the fallback catalog id from the cache or the
// catalog.
func ResolveRecord(ctx context.Context, cache *tle.Cache, name, fallbackID string) (tle.Record, error) {
	if name != "" {
		if rec, ok := cache.LookupByName(name); ok {
			return rec, nil
		}
	}
	if fallbackID == "" {
		return tle.Record{}, fmt.Errorf("%w: %q not cached and no fallback id", ErrNoUsableTLE, name)
	}
	rec, err := cache.GetOrFetch(ctx, fallbackID)
	if err != nil {
		return tle.Record{}, fmt.Errorf("%w: %q not cached and fallback %s unavailable: %v", ErrNoUsableTLE, name, fallbackID, err)
	}
	return rec, nil
}
