// Package angle provides circular arithmetic for azimuth/altitude angles,
// handling the discontinuity at 0/360 degrees (or 0/2π radians).
package angle

import "math"

// Unit selects degrees or radians for the angle helpers.
type Unit int

const (
	Degrees Unit = iota
	Radians
)

// FullTurn returns one revolution in this unit.
func (u Unit) FullTurn() float64 {
	if u == Radians {
		return 2 * math.Pi
	}
	return 360
}

// HalfTurn returns half a revolution in this unit.
func (u Unit) HalfTurn() float64 {
	return u.FullTurn() / 2
}

func (u Unit) String() string {
	if u == Radians {
		return "rad"
	}
	return "deg"
}

// Normalize maps a into [0, full turn).
func Normalize(a float64, u Unit) float64 {
	full := u.FullTurn()
	n := math.Mod(a, full)
	if n < 0 {
		n += full
	}
	// math.Mod of a tiny negative value can round back up to full.
	if n >= full {
		n = 0
	}
	return n
}

// Distance returns the unsigned shortest angular distance between a and b,
// in [0, half turn]. It is symmetric and zero for equal angles.
func Distance(a, b float64, u Unit) float64 {
	diff := math.Abs(Normalize(a, u) - Normalize(b, u))
	if diff > u.HalfTurn() {
		diff = u.FullTurn() - diff
	}
	return diff
}

// SignedDelta returns the shortest signed difference to-from, in (-half, half].
func SignedDelta(from, to float64, u Unit) float64 {
	d := Normalize(to, u) - Normalize(from, u)
	half := u.HalfTurn()
	if d > half {
		d -= u.FullTurn()
	} else if d <= -half {
		d += u.FullTurn()
	}
	return d
}

// BridgesZero reports whether the arc between a and b crosses the 0/full
// boundary. Equal angles never bridge zero.
//
// When the two angles are more than half a turn apart the arc crosses zero
// only if the lower angle is below half a turn. Otherwise it crosses only if
// the lower angle is above half a turn and the higher is below a full turn.
func BridgesZero(a, b float64, u Unit) bool {
	a, b = Normalize(a, u), Normalize(b, u)
	if a == b {
		return false
	}

	half := u.HalfTurn()
	lowest, highest := math.Min(a, b), math.Max(a, b)

	if highest-lowest > half {
		return lowest < half
	}
	return lowest > half && highest < u.FullTurn()
}

// Leads resolves the direction of lead between a target and an actual
// position. Across the zero boundary the comparison flips.
func Leads(target, actual float64, u Unit) bool {
	target, actual = Normalize(target, u), Normalize(actual, u)
	if BridgesZero(target, actual, u) {
		return actual > target
	}
	return target > actual
}
