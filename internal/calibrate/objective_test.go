package calibrate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
	"github.com/cascadia-health/epiforecast/internal/seir"
)

func calibrationProfile() *model.DiseaseProfile {
	return &model.DiseaseProfile{
		Name: "covid",
		Parameters: model.DiseaseParameters{
			TransmissibilityBase: 1.2,
			IncubationPeriodDays: model.Distribution{Mean: 3},
			InfectiousPeriodDays: model.Distribution{Mean: 7},
			DetectionMultiplier:  0.4,
		},
		ContactLayers: map[string]float64{"community": 1.0},
	}
}

func calibrationAgents() []population.Agent {
	return population.Build(
		[]model.TractRecord{{FIPS: "53033001100"}},
		nil,
		[]model.DemographicRecord{{TractFIPS: "53033001100", AgeDistribution: map[string]int{"age_18_49": 2000}}},
	)
}

func weeklyObs(start time.Time, cases ...float64) []model.WeeklyObservation {
	obs := make([]model.WeeklyObservation, len(cases))
	for i, c := range cases {
		obs[i] = model.WeeklyObservation{WeekEndDate: start.AddDate(0, 0, 7*i), Cases: c}
	}
	return obs
}

func TestObjective_Deterministic(t *testing.T) {
	start := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	obj := newObjective(calibrationAgents(), calibrationProfile(),
		[]string{"transmissibility_base"}, weeklyObs(start, 10, 12, 14, 16), 50)

	assert.Equal(t, maxObjectiveReps, obj.reps)

	a := obj.evaluate([]float64{1.2})
	b := obj.evaluate([]float64{1.2})
	assert.Equal(t, a, b)
}

func TestObjective_InvalidParamsAreInfeasible(t *testing.T) {
	start := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	obj := newObjective(calibrationAgents(), calibrationProfile(),
		[]string{"incubation_period_days"}, weeklyObs(start, 10, 12), 10)

	assert.True(t, math.IsInf(obj.evaluate([]float64{-1.0}), 1))
}

func TestObjective_PerfectFitIsZero(t *testing.T) {
	start := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	obj := newObjective(calibrationAgents(), calibrationProfile(),
		[]string{"transmissibility_base"}, weeklyObs(start, 5, 8, 11), 10)

	// Score once, then feed the simulated weekly series back as observations.
	// RMSE against itself must be exactly zero.
	params := calibrationProfile().Parameters
	engine, err := seir.New(obj.agents, params, obj.profile.ContactLayers, nil)
	require.NoError(t, err)
	engine.SetProbabilisticSeeding(0)

	results := make([]*seir.Result, obj.reps)
	for rep := 0; rep < obj.reps; rep++ {
		engine.SetRandomSeed(uint64(rep) + 1)
		results[rep], err = engine.Run(calibrationInitial, start, len(obj.observations))
		require.NoError(t, err)
	}
	weekly := weeklyMean(results, func(r *seir.Result) []float64 { return r.Cases })

	obj.observations = weeklyObs(start, weekly...)
	assert.InDelta(t, 0.0, obj.evaluate([]float64{params.TransmissibilityBase}), 1e-9)
}

func TestObjective_SkipsAbsentMetrics(t *testing.T) {
	start := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	obs := weeklyObs(start, 10, 12)
	obj := newObjective(calibrationAgents(), calibrationProfile(),
		[]string{"transmissibility_base"}, obs, 10)

	_, ok := obj.observedSeries("hospitalizations")
	assert.False(t, ok)
	_, ok = obj.observedSeries("ed_visits")
	assert.False(t, ok)

	cases, ok := obj.observedSeries("cases")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 12}, cases)

	hosp := 3.0
	obs[0].Hospitalizations = &hosp
	series, ok := obj.observedSeries("hospitalizations")
	require.True(t, ok)
	assert.Equal(t, 3.0, series[0])
	assert.Equal(t, 0.0, series[1])
}

func TestWeeklyMean_RollsUpDailySums(t *testing.T) {
	reps := []*seir.Result{
		{Cases: []float64{1, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 2, 2}},
		{Cases: []float64{3, 3, 3, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4}},
	}
	weekly := weeklyMean(reps, func(r *seir.Result) []float64 { return r.Cases })
	require.Len(t, weekly, 2)
	assert.InDelta(t, 14.0, weekly[0], 1e-9) // mean daily 2 over 7 days
	assert.InDelta(t, 21.0, weekly[1], 1e-9)
}

func TestRMSE(t *testing.T) {
	assert.InDelta(t, 0.0, rmse([]float64{1, 2}, []float64{1, 2}), 1e-12)
	assert.InDelta(t, math.Sqrt(12.5), rmse([]float64{3, 4}, []float64{0, 0}), 1e-9)
}
