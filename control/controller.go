// Package control drives the mount azimuth toward a moving target.
package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/mount-tracker/angle"
	"github.com/signalsfoundry/mount-tracker/ephem"
	"github.com/signalsfoundry/mount-tracker/internal/logging"
	"github.com/signalsfoundry/mount-tracker/tle"
)

// Mode is the controller's operating regime.
type Mode int

const (
	// ModeTrack follows the target with small corrections.
	ModeTrack Mode = iota
	// ModeCatchup runs at full speed to close a large error.
	ModeCatchup
)

// Modes lists every mode, for metric labels.
var Modes = []Mode{ModeCatchup, ModeTrack}

func (m Mode) String() string {
	switch m {
	case ModeCatchup:
		return "catchup"
	case ModeTrack:
		return "track"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ErrNoTarget is returned by Tick when no record has been set.
var ErrNoTarget = errors.New("control: no target record")

// Config holds the speed law constants.
type Config struct {
	// MaxSpeed is the fastest azimuth rate the mount accepts, deg/s.
	MaxSpeed float64
	// SwitchThreshold is the fractional error (of a full turn) above which
	// the controller enters catch-up.
	SwitchThreshold float64
	// TrackUndershoot scales the target rate while the mount leads.
	TrackUndershoot float64
}

// DefaultConfig returns a mount limited to 6 deg/s.
func DefaultConfig() Config {
	return Config{
		MaxSpeed:        6,
		SwitchThreshold: 0.05,
		TrackUndershoot: 0.8,
	}
}

// ApplyDefaults returns c with zero or negative fields replaced by defaults.
func (c Config) ApplyDefaults() Config {
	d := DefaultConfig()
	if c.MaxSpeed <= 0 {
		c.MaxSpeed = d.MaxSpeed
	}
	if c.SwitchThreshold <= 0 {
		c.SwitchThreshold = d.SwitchThreshold
	}
	if c.TrackUndershoot <= 0 {
		c.TrackUndershoot = d.TrackUndershoot
	}
	return c
}

// PositionError compares the target with the estimated mount position.
type PositionError struct {
	// Magnitude is the unsigned circular distance in degrees.
	Magnitude float64
	// Leading is true when the mount is ahead of the target.
	Leading bool
}

// NewPositionError computes the error between target and estimate.
func NewPositionError(target, estimated float64) PositionError {
	return PositionError{
		Magnitude: angle.Distance(target, estimated, angle.Degrees),
		Leading:   angle.Leads(target, estimated, angle.Degrees),
	}
}

// Fraction returns the error as a fraction of a full turn.
func (e PositionError) Fraction() float64 {
	return e.Magnitude / angle.Degrees.FullTurn()
}

// Command is what one tick asks of the mount.
type Command struct {
	Speed          float64
	AltitudeSpeed  float64
	TargetAzimuth  float64
	TargetAltitude float64
	TargetVelocity float64
	Mode           Mode
	Error          PositionError
	At             time.Time
}

// State is a snapshot of the controller.
type State struct {
	EstimatedPosition float64
	CommandedSpeed    float64
	Mode              Mode
}

// Controller integrates its own estimate of the mount azimuth and applies the
// dual-mode speed law each tick. Safe for concurrent use, though ticks are
// expected from a single goroutine.
type Controller struct {
	cfg     Config
	sampler *ephem.Sampler
	log     logging.Logger

	mu     sync.Mutex
	record *tle.Record
	state  State
}

// New builds a controller with defaults applied to cfg.
func New(cfg Config, sampler *ephem.Sampler, log logging.Logger) *Controller {
	return &Controller{
		cfg:     cfg.ApplyDefaults(),
		sampler: sampler,
		log:     logging.OrNoop(log),
		state:   State{Mode: ModeTrack},
	}
}

// Config returns the active configuration.
func (c *Controller) Config() Config { return c.cfg }

// SetTarget switches the record being tracked.
func (c *Controller) SetTarget(rec tle.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record = rec.Clone()
}

// SetEstimatedPosition seeds the integrated mount azimuth, in degrees.
func (c *Controller) SetEstimatedPosition(deg float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.EstimatedPosition = angle.Normalize(deg, angle.Degrees)
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tick samples the target at now, integrates the previous command over dt and
// computes the next command. On a sampling error the state is unchanged.
func (c *Controller) Tick(ctx context.Context, now time.Time, dt time.Duration) (Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.record == nil {
		return Command{}, ErrNoTarget
	}
	w, err := c.sampler.Window(c.record, now)
	if err != nil {
		return Command{}, err
	}
	targetVel := ephem.AngularVelocity(w, ephem.Azimuth)
	altVel := ephem.AngularVelocity(w, ephem.Altitude)

	// Positive speed moves the estimate toward decreasing azimuth.
	est := angle.Normalize(c.state.EstimatedPosition-c.state.CommandedSpeed*dt.Seconds(), angle.Degrees)
	perr := NewPositionError(w.Current.Azimuth, est)
	mode, speed := c.speedFor(perr, math.Abs(targetVel))

	c.state = State{EstimatedPosition: est, CommandedSpeed: speed, Mode: mode}

	c.log.Debug(ctx, "controller tick",
		logging.Float("target_az", w.Current.Azimuth),
		logging.Float("target_speed", targetVel),
		logging.Float("estimate", est),
		logging.Float("error", perr.Magnitude),
		logging.Bool("leading", perr.Leading),
		logging.Float("speed", speed),
		logging.String("mode", mode.String()),
	)

	return Command{
		Speed:          speed,
		AltitudeSpeed:  math.Abs(altVel),
		TargetAzimuth:  w.Current.Azimuth,
		TargetAltitude: w.Current.Altitude,
		TargetVelocity: targetVel,
		Mode:           mode,
		Error:          perr,
		At:             now,
	}, nil
}

// speedFor applies the speed law for the given error and target rate.
func (c *Controller) speedFor(perr PositionError, targetSpeed float64) (Mode, float64) {
	frac := perr.Fraction()
	if frac > c.cfg.SwitchThreshold {
		if perr.Leading {
			return ModeCatchup, -c.cfg.MaxSpeed
		}
		return ModeCatchup, c.cfg.MaxSpeed
	}
	if perr.Leading {
		return ModeTrack, c.clamp(targetSpeed * c.cfg.TrackUndershoot)
	}
	boost := (c.cfg.MaxSpeed - targetSpeed) * (frac / c.cfg.SwitchThreshold)
	return ModeTrack, c.clamp(targetSpeed + boost)
}

// clamp bounds a commanded speed to the mount's limit. Targets faster than
// MaxSpeed occur on near-zenith passes.
func (c *Controller) clamp(speed float64) float64 {
	return math.Max(-c.cfg.MaxSpeed, math.Min(c.cfg.MaxSpeed, speed))
}
