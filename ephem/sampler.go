package ephem

import (
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/mount-tracker/angle"
	"github.com/signalsfoundry/mount-tracker/tle"
)

// WindowSpan is the offset of the past and future samples from the current
// instant.
const WindowSpan = time.Second

// AngularSample is a sky position in degrees at an instant.
type AngularSample struct {
	Azimuth  float64
	Altitude float64
	At       time.Time
}

// Window holds samples at t-1s, t and t+1s.
type Window struct {
	Past    AngularSample
	Current AngularSample
	Future  AngularSample
}

// Axis selects a coordinate of an AngularSample.
type Axis int

const (
	Azimuth Axis = iota
	Altitude
)

func (a Axis) String() string {
	if a == Altitude {
		return "altitude"
	}
	return "azimuth"
}

func (a Axis) of(s AngularSample) float64 {
	if a == Altitude {
		return s.Altitude
	}
	return s.Azimuth
}

// Sampler samples a propagator for a fixed observer.
type Sampler struct {
	prop     Propagator
	observer Observer
}

// NewSampler binds a propagator to an observer. A nil propagator defaults to
// SGP4.
func NewSampler(prop Propagator, obs Observer) *Sampler {
	if prop == nil {
		prop = NewSGP4Propagator()
	}
	return &Sampler{prop: prop, observer: obs}
}

// Observer returns the bound observer.
func (s *Sampler) Observer() Observer { return s.observer }

// Sample returns the position of rec at the given instant. Azimuth is
// normalised to [0, 360).
func (s *Sampler) Sample(rec *tle.Record, at time.Time) (AngularSample, error) {
	az, alt, err := s.prop.LookAngles(rec, s.observer, at)
	if err != nil {
		return AngularSample{}, err
	}
	return AngularSample{
		Azimuth:  angle.Normalize(az*180/math.Pi, angle.Degrees),
		Altitude: alt * 180 / math.Pi,
		At:       at,
	}, nil
}

// Window samples rec at at-1s, at and at+1s. The window is built in full or
// not at all.
func (s *Sampler) Window(rec *tle.Record, at time.Time) (Window, error) {
	past, err := s.Sample(rec, at.Add(-WindowSpan))
	if err != nil {
		return Window{}, fmt.Errorf("sample past: %w", err)
	}
	cur, err := s.Sample(rec, at)
	if err != nil {
		return Window{}, fmt.Errorf("sample current: %w", err)
	}
	future, err := s.Sample(rec, at.Add(WindowSpan))
	if err != nil {
		return Window{}, fmt.Errorf("sample future: %w", err)
	}
	return Window{Past: past, Current: cur, Future: future}, nil
}

// AngularVelocity returns the central-difference rate of change along axis in
// degrees per second. Azimuth uses the shortest signed difference, so an
// object crossing north yields its true small rate.
func AngularVelocity(w Window, axis Axis) float64 {
	span := w.Future.At.Sub(w.Past.At).Seconds()
	if span <= 0 {
		span = 2 * WindowSpan.Seconds()
	}
	past, future := axis.of(w.Past), axis.of(w.Future)
	if axis == Altitude {
		return (future - past) / span
	}
	return angle.SignedDelta(past, future, angle.Degrees) / span
}
