package angle

import (
	"math"
	"testing"
)

const eps = 1e-9

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want float64
		unit     Unit
	}{
		{0, 0, Degrees},
		{360, 0, Degrees},
		{370, 10, Degrees},
		{-10, 350, Degrees},
		{-720, 0, Degrees},
		{-0.1, 2*math.Pi - 0.1, Radians},
		{2*math.Pi + 0.1, 0.1, Radians},
	}
	for _, c := range cases {
		if got := Normalize(c.in, c.unit); math.Abs(got-c.want) > eps {
			t.Fatalf("Normalize(%v, %v) = %v, want %v", c.in, c.unit, got, c.want)
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{0, 0, 0},
		{0, 360, 0},
		{0, 1, 1},
		{359, 0, 1},
		{359, 1, 2},
		{0, 180, 180},
		{90, 270, 180},
	}
	for _, c := range cases {
		if got := Distance(c.a, c.b, Degrees); math.Abs(got-c.want) > eps {
			t.Fatalf("Distance(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}

	if got := Distance(radians(359), radians(1), Radians); math.Abs(got-radians(2)) > eps {
		t.Fatalf("Distance radians = %v, want %v", got, radians(2))
	}
	if got := Distance(radians(90), radians(270), Radians); math.Abs(got-math.Pi) > eps {
		t.Fatalf("Distance radians = %v, want π", got)
	}
}

func TestDistanceProperties(t *testing.T) {
	for a := -720.0; a <= 720; a += 13.7 {
		if got := Distance(a, a, Degrees); got != 0 {
			t.Fatalf("Distance(%v, %v) = %v, want 0", a, a, got)
		}
		for b := -400.0; b <= 400; b += 17.3 {
			d := Distance(a, b, Degrees)
			if d < 0 || d > 180 {
				t.Fatalf("Distance(%v, %v) = %v out of [0, 180]", a, b, d)
			}
			if r := Distance(b, a, Degrees); math.Abs(r-d) > eps {
				t.Fatalf("Distance not symmetric for %v, %v: %v vs %v", a, b, d, r)
			}
		}
	}
}

func TestBridgesZero(t *testing.T) {
	cases := []struct {
		a, b float64
		want bool
	}{
		{0, 0, false},
		{1, 1, false},
		{359, 359, false},
		{0, 1, false},
		{0, 179, false},
		{0, 180, false},
		{0, 181, true},
		{0, 359, true},
		{1, 359, true},
		{359, 1, true},
		{1, 182, true},
		{1, 180, false},
		{1, 181, false},
	}
	for _, c := range cases {
		if got := BridgesZero(c.a, c.b, Degrees); got != c.want {
			t.Fatalf("BridgesZero(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}

	if !BridgesZero(radians(1), radians(359), Radians) {
		t.Fatalf("expected radians pair to bridge zero")
	}
}

func TestLeadsFlipsAcrossZero(t *testing.T) {
	// Plain case: target ahead numerically.
	if !Leads(20, 10, Degrees) {
		t.Fatalf("Leads(20, 10) = false, want true")
	}
	if Leads(10, 20, Degrees) {
		t.Fatalf("Leads(10, 20) = true, want false")
	}
	// Across zero the numeric comparison flips.
	if !Leads(1, 359, Degrees) {
		t.Fatalf("Leads(1, 359) = false, want true")
	}
	if Leads(359, 1, Degrees) {
		t.Fatalf("Leads(359, 1) = true, want false")
	}
}

func TestLeadsInUpperHalfUsesBridgingRule(t *testing.T) {
	// Both angles above half a turn take the second bridging branch.
	if !BridgesZero(200, 300, Degrees) {
		t.Fatalf("BridgesZero(200, 300) = false, want true")
	}
	if !Leads(200, 300, Degrees) {
		t.Fatalf("Leads(200, 300) = false, want true")
	}
	if Leads(300, 200, Degrees) {
		t.Fatalf("Leads(300, 200) = true, want false")
	}
}

func TestSignedDelta(t *testing.T) {
	cases := []struct {
		from, to, want float64
	}{
		{359, 1, 2},
		{1, 359, -2},
		{10, 20, 10},
		{20, 10, -10},
		{0, 180, 180},
	}
	for _, c := range cases {
		if got := SignedDelta(c.from, c.to, Degrees); math.Abs(got-c.want) > eps {
			t.Fatalf("SignedDelta(%v, %v) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func radians(d float64) float64 { return d * math.Pi / 180 }
