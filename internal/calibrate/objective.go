package calibrate

import (
	"math"
	"time"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
	"github.com/cascadia-health/epiforecast/internal/seir"
)

// maxObjectiveReps caps repetitions per objective evaluation; the optimizer
// calls the objective many times and full repetition counts are unaffordable
// inside the line search.
const maxObjectiveReps = 10

// calibrationInitial is the fixed starting state for objective evaluations.
// Using the run-time estimator here would couple the fitted parameters to
// the initial-state heuristic.
var calibrationInitial = model.InitialConditions{S: 0.9, E: 0.01, I: 0.01, R: 0.08}

// objective scores one candidate parameter vector against the observation
// window. Repetition seeds are fixed so the surface is deterministic and
// finite differencing sees the parameter effect, not resampling noise.
type objective struct {
	agents       []population.Agent
	profile      *model.DiseaseProfile
	paramsToFit  []string
	observations []model.WeeklyObservation
	reps         int
	startDate    time.Time
}

func newObjective(agents []population.Agent, profile *model.DiseaseProfile, paramsToFit []string, observations []model.WeeklyObservation, stochasticReps int) *objective {
	reps := stochasticReps
	if reps > maxObjectiveReps {
		reps = maxObjectiveReps
	}
	return &objective{
		agents:       agents,
		profile:      profile,
		paramsToFit:  paramsToFit,
		observations: observations,
		reps:         reps,
		startDate:    observations[0].WeekEndDate,
	}
}

// evaluate returns the mean RMSE across available metrics, or +Inf when the
// candidate is infeasible or no metric can be compared.
func (o *objective) evaluate(values []float64) float64 {
	params := o.profile.Parameters
	for i, name := range o.paramsToFit {
		params = params.WithParam(name, values[i])
	}
	if err := params.Validate(); err != nil {
		return math.Inf(1)
	}

	engine, err := seir.New(o.agents, params, o.profile.ContactLayers, o.profile.FacilityImpactWeights)
	if err != nil {
		return math.Inf(1)
	}
	engine.SetProbabilisticSeeding(0)

	weeks := len(o.observations)
	results := make([]*seir.Result, 0, o.reps)
	for rep := 0; rep < o.reps; rep++ {
		engine.SetRandomSeed(uint64(rep) + 1)
		res, err := engine.Run(calibrationInitial, o.startDate, weeks)
		if err != nil {
			return math.Inf(1)
		}
		results = append(results, res)
	}

	simulated := map[string][]float64{
		"cases":            weeklyMean(results, func(r *seir.Result) []float64 { return r.Cases }),
		"hospitalizations": weeklyMean(results, func(r *seir.Result) []float64 { return r.Hospitalizations }),
		"ed_visits":        weeklyMean(results, func(r *seir.Result) []float64 { return r.EDVisits }),
	}

	var total float64
	var metrics int
	for name, sim := range simulated {
		obs, ok := o.observedSeries(name)
		if !ok || len(obs) != len(sim) {
			continue
		}
		total += rmse(sim, obs)
		metrics++
	}
	if metrics == 0 {
		return math.Inf(1)
	}
	return total / float64(metrics)
}

// observedSeries extracts one metric's weekly values. A metric participates
// only when present in the observation window; cases are always present.
func (o *objective) observedSeries(metric string) ([]float64, bool) {
	out := make([]float64, len(o.observations))
	switch metric {
	case "cases":
		for i, obs := range o.observations {
			out[i] = obs.Cases
		}
		return out, true
	case "hospitalizations":
		if o.observations[0].Hospitalizations == nil {
			return nil, false
		}
		for i, obs := range o.observations {
			if obs.Hospitalizations != nil {
				out[i] = *obs.Hospitalizations
			}
		}
		return out, true
	case "ed_visits":
		if o.observations[0].EDVisits == nil {
			return nil, false
		}
		for i, obs := range o.observations {
			if obs.EDVisits != nil {
				out[i] = *obs.EDVisits
			}
		}
		return out, true
	}
	return nil, false
}

// weeklyMean averages a daily series across repetitions and rolls it up to
// weekly sums, aligning the simulated output with the weekly observations.
func weeklyMean(results []*seir.Result, series func(*seir.Result) []float64) []float64 {
	if len(results) == 0 {
		return nil
	}
	days := len(series(results[0]))
	mean := make([]float64, days)
	for _, r := range results {
		for d, v := range series(r) {
			mean[d] += v
		}
	}
	for d := range mean {
		mean[d] /= float64(len(results))
	}

	weeks := days / 7
	weekly := make([]float64, weeks)
	for w := 0; w < weeks; w++ {
		for d := 0; d < 7; d++ {
			weekly[w] += mean[w*7+d]
		}
	}
	return weekly
}

func rmse(simulated, observed []float64) float64 {
	var sum float64
	for i := range simulated {
		diff := simulated[i] - observed[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(simulated)))
}
