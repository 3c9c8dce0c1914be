package calibrate

import "math"

// The optimizer runs unconstrained; a logistic transform maps its search
// space onto the parameter bounds, so every point it probes is feasible.

// toBounded maps an unconstrained value into (lo, hi).
func toBounded(z float64, b Bound) float64 {
	return b.Lo + (b.Hi-b.Lo)/(1.0+math.Exp(-z))
}

// toUnbounded inverts toBounded. The input is clamped into the bound's
// interior first.
func toUnbounded(v float64, b Bound) float64 {
	v = b.Clamp(v)
	frac := (v - b.Lo) / (b.Hi - b.Lo)
	return math.Log(frac / (1.0 - frac))
}
