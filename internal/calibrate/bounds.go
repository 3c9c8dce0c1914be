// Package calibrate fits disease parameters to recent surveillance data by
// minimizing RMSE between simulated and observed weekly series.
package calibrate

// Bound is an inclusive parameter range for the optimizer.
type Bound struct {
	Lo, Hi float64
}

// defaultBound applies to fittable parameters without a specific range.
var defaultBound = Bound{0.1, 10.0}

var paramBounds = map[string]Bound{
	"transmissibility_base":  {0.5, 2.0},
	"detection_multiplier":   {0.1, 0.8},
	"incubation_period_days": {1.0, 10.0},
	"infectious_period_days": {3.0, 14.0},
}

// BoundFor returns the optimization range for a parameter name.
func BoundFor(param string) Bound {
	if b, ok := paramBounds[param]; ok {
		return b
	}
	return defaultBound
}

// Clamp pulls v into the bound's interior. Values at or beyond an edge are
// moved slightly inside so the logistic transform stays finite.
func (b Bound) Clamp(v float64) float64 {
	margin := (b.Hi - b.Lo) * 1e-3
	if v <= b.Lo {
		return b.Lo + margin
	}
	if v >= b.Hi {
		return b.Hi - margin
	}
	return v
}
