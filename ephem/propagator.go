// Package ephem turns element sets into observer-relative sky positions.
package ephem

import (
	"fmt"
	"math"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/mount-tracker/tle"
)

// Observer is a ground station position. Latitude and Longitude are in
// degrees, Elevation in metres above the ellipsoid.
type Observer struct {
	Latitude  float64
	Longitude float64
	Elevation float64
}

func (o Observer) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.0fm)", o.Latitude, o.Longitude, o.Elevation)
}

// Propagator computes look angles in radians for rec seen from obs at the
// given instant. Malformed elements are reported as tle.ErrInvalidElements.
type Propagator interface {
	LookAngles(rec *tle.Record, obs Observer, at time.Time) (az, alt float64, err error)
}

// SGP4Propagator uses the SGP4 model with WGS72 constants. Parsed satellites
// are cached per element line pair, so a refreshed record is re-parsed once.
type SGP4Propagator struct {
	mu   sync.Mutex
	sats map[[2]string]satellite.Satellite
}

// NewSGP4Propagator returns an empty propagator.
func NewSGP4Propagator() *SGP4Propagator {
	return &SGP4Propagator{sats: map[[2]string]satellite.Satellite{}}
}

// LookAngles implements Propagator.
func (p *SGP4Propagator) LookAngles(rec *tle.Record, obs Observer, at time.Time) (az, alt float64, err error) {
	if rec == nil {
		return 0, 0, fmt.Errorf("%w: nil record", tle.ErrInvalidElements)
	}
	// go-satellite panics on some malformed input instead of returning errors.
	defer func() {
		if r := recover(); r != nil {
			az, alt = 0, 0
			err = fmt.Errorf("%w: %s: %v", tle.ErrInvalidElements, rec.CatalogID, r)
		}
	}()

	sat, err := p.satellite(rec)
	if err != nil {
		return 0, 0, err
	}

	at = at.UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()

	posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)

	const mToKm = 1.0 / 1000.0
	site := satellite.LatLong{
		Latitude:  obs.Latitude * math.Pi / 180,
		Longitude: obs.Longitude * math.Pi / 180,
	}
	look := satellite.ECIToLookAngles(posECI, site, obs.Elevation*mToKm, jd)

	if !finite(look.Az) || !finite(look.El) {
		return 0, 0, fmt.Errorf("%w: %s: propagation diverged", tle.ErrInvalidElements, rec.CatalogID)
	}
	return look.Az, look.El, nil
}

func (p *SGP4Propagator) satellite(rec *tle.Record) (satellite.Satellite, error) {
	key := [2]string{rec.Line1, rec.Line2}

	p.mu.Lock()
	defer p.mu.Unlock()
	if sat, ok := p.sats[key]; ok {
		return sat, nil
	}
	if err := tle.ValidateLines(rec.Line1, rec.Line2); err != nil {
		return satellite.Satellite{}, err
	}
	sat := satellite.TLEToSat(rec.Line1, rec.Line2, satellite.GravityWGS72)
	p.sats[key] = sat
	return sat, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
