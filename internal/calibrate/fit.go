package calibrate

import (
	"github.com/rotisserie/eris"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
)

// Fit optimizes the named parameters of a disease profile against observed
// weekly data and returns the full parameter set with the fitted values
// substituted. Starting values are the profile's, clamped into bounds.
func Fit(agents []population.Agent, profile *model.DiseaseProfile, paramsToFit []string, observations []model.WeeklyObservation, reps int) (model.DiseaseParameters, *FitResult, error) {
	if len(agents) == 0 {
		return model.DiseaseParameters{}, nil, eris.New("calibrate: population is empty")
	}
	if len(observations) == 0 {
		return model.DiseaseParameters{}, nil, eris.New("calibrate: no observations to fit against")
	}

	obj := newObjective(agents, profile, paramsToFit, observations, reps)

	initial := make([]float64, len(paramsToFit))
	bounds := make([]Bound, len(paramsToFit))
	for i, name := range paramsToFit {
		v, ok := profile.Parameters.Param(name)
		if !ok {
			return model.DiseaseParameters{}, nil, eris.Errorf("calibrate: unknown parameter %q", name)
		}
		bounds[i] = BoundFor(name)
		initial[i] = bounds[i].Clamp(v)
	}

	fit, err := minimizeBounded(obj.evaluate, initial, bounds)
	if err != nil {
		return model.DiseaseParameters{}, nil, err
	}

	params := profile.Parameters
	for i, name := range paramsToFit {
		params = params.WithParam(name, fit.Values[i])
	}
	return params, fit, nil
}
