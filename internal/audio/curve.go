package audio

import "fmt"

// Curve maps fade progress in [0,1] to a gain fraction in [0,1].
// Curves used for crossfades satisfy f(t) + f(1-t) = 1 so that
// complementary ramps keep a constant summed gain.
type Curve func(t float64) float64

// Linear is the identity ramp, clamped to [0,1].
func Linear(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t
}

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// CurveByName resolves a configured curve name.
func CurveByName(name string) (Curve, error) {
	switch name {
	case "", "linear":
		return Linear, nil
	case "smoothstep":
		return Smoothstep, nil
	}
	return nil, fmt.Errorf("unknown fade curve %q", name)
}
