package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadia-health/epiforecast/internal/model"
)

var initialTestParams = model.DiseaseParameters{
	TransmissibilityBase: 1.2,
	IncubationPeriodDays: model.Distribution{Mean: 3},
	InfectiousPeriodDays: model.Distribution{Mean: 7},
	DetectionMultiplier:  0.5,
}

func TestInitialConditions_NoDataUsesDefaults(t *testing.T) {
	start := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	ic := initialConditions(nil, initialTestParams, start, 50000)
	assert.Equal(t, defaultInitial, ic)

	// Observations after the start date are ignored.
	future := []model.WeeklyObservation{{WeekEndDate: start.AddDate(0, 0, 7), Cases: 500}}
	ic = initialConditions(future, initialTestParams, start, 50000)
	assert.Equal(t, defaultInitial, ic)
}

func TestInitialConditions_FromTrailingWeeks(t *testing.T) {
	start := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	obs := []model.WeeklyObservation{
		{WeekEndDate: start.AddDate(0, 0, -21), Cases: 100},
		{WeekEndDate: start.AddDate(0, 0, -14), Cases: 100},
		{WeekEndDate: start.AddDate(0, 0, -7), Cases: 100},
	}

	ic := initialConditions(obs, initialTestParams, start, 100000)

	// 100 weekly cases / 0.5 detection = 200 infectious of 100k.
	assert.InDelta(t, 0.002, ic.I, 1e-9)
	assert.InDelta(t, 0.001, ic.E, 1e-9)
	// Default 0.2 vaccination at 0.5 effectiveness on top of 0.3 prior immunity.
	assert.InDelta(t, 0.4, ic.R, 1e-9)
	assert.InDelta(t, 1.0-0.002-0.4, ic.S, 1e-9)
}

func TestInitialConditions_InfectiousCapped(t *testing.T) {
	start := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	obs := []model.WeeklyObservation{
		{WeekEndDate: start.AddDate(0, 0, -7), Cases: 50000},
	}

	ic := initialConditions(obs, initialTestParams, start, 100000)
	assert.InDelta(t, 0.05, ic.I, 1e-9)
}

func TestInitialConditions_UsesOnlyMostRecentFourWeeks(t *testing.T) {
	start := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	// A huge old spike outside the window must not affect the estimate.
	obs := []model.WeeklyObservation{
		{WeekEndDate: start.AddDate(0, 0, -35), Cases: 90000},
		{WeekEndDate: start.AddDate(0, 0, -28), Cases: 100},
		{WeekEndDate: start.AddDate(0, 0, -21), Cases: 100},
		{WeekEndDate: start.AddDate(0, 0, -14), Cases: 100},
		{WeekEndDate: start.AddDate(0, 0, -7), Cases: 100},
	}

	ic := initialConditions(obs, initialTestParams, start, 100000)
	assert.InDelta(t, 0.002, ic.I, 1e-9)
}

func TestInitialConditions_VaccinationCoverageFromLatestWeek(t *testing.T) {
	start := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	params := initialTestParams
	params.VaccineEffectiveness = map[string]float64{"age_18_49": 0.4, "age_65_plus": 0.6}

	obs := []model.WeeklyObservation{
		{WeekEndDate: start.AddDate(0, 0, -14), Cases: 0},
		{
			WeekEndDate:  start.AddDate(0, 0, -7),
			Cases:        0,
			Vaccinations: map[string]float64{"age_18_49": 0.5, "age_65_plus": 0.7},
		},
	}

	ic := initialConditions(obs, params, start, 100000)

	// 0.6 mean coverage at 0.5 mean effectiveness plus 0.3 prior immunity.
	require.InDelta(t, 0.0, ic.I, 1e-9)
	assert.InDelta(t, 0.3+0.6*0.5, ic.R, 1e-9)
}

func TestInitialConditions_SusceptibleFloor(t *testing.T) {
	start := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	obs := []model.WeeklyObservation{
		{
			WeekEndDate:  start.AddDate(0, 0, -7),
			Cases:        50000,
			Vaccinations: map[string]float64{"age_18_49": 1.0},
		},
	}
	params := initialTestParams
	params.VaccineEffectiveness = map[string]float64{"age_18_49": 0.9}

	ic := initialConditions(obs, params, start, 100000)
	assert.InDelta(t, 0.1, ic.S, 1e-9)
}
