package runner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/store"
)

func newSeededStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	_, err = st.PutTracts(ctx, "wa-cascadia", []model.TractRecord{
		{FIPS: "53033001100"},
		{FIPS: "53033001200"},
	})
	require.NoError(t, err)

	_, err = st.PutFacilities(ctx, "wa-cascadia", []model.FacilityRecord{
		{
			FacilityID:         "snf-001",
			Name:               "Cedar Grove Care",
			Type:               "nursing_home",
			TractFIPS:          "53033001100",
			ResidentAgeProfile: map[string]int{"age_65_plus": 120},
			StaffCount:         60,
		},
	})
	require.NoError(t, err)

	_, err = st.PutDemographics(ctx, "wa-cascadia", []model.DemographicRecord{
		{TractFIPS: "53033001100", AgeDistribution: map[string]int{"age_0_17": 800, "age_18_49": 2000, "age_65_plus": 600}},
		{TractFIPS: "53033001200", AgeDistribution: map[string]int{"age_0_17": 700, "age_18_49": 1800, "age_65_plus": 500}},
	})
	require.NoError(t, err)

	start := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	obs := make([]model.WeeklyObservation, 0, 4)
	for w := 4; w >= 1; w-- {
		obs = append(obs, model.WeeklyObservation{
			WeekEndDate: start.AddDate(0, 0, -7*w),
			Cases:       40,
		})
	}
	_, err = st.PutTimeseries(ctx, "wa-cascadia", "covid", obs)
	require.NoError(t, err)

	return st
}

func queuedRun(t *testing.T, st *store.SQLiteStore, mutate func(*model.RunConfig)) *model.Run {
	t.Helper()
	cfg := model.RunConfig{
		JurisdictionID: "wa-cascadia",
		Disease:        "covid",
		StartDate:      time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
		RunLengthWeeks: 2,
		SeedingMode:    model.SeedingProbabilistic,
		StochasticReps: 10,
		RandomSeed:     42,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())

	run, err := st.CreateRun(context.Background(), cfg)
	require.NoError(t, err)
	return run
}

func TestExecutor_RunCompletes(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()

	run := queuedRun(t, st, nil)
	ex := NewExecutor(st, "", 2)
	require.NoError(t, ex.ExecuteRun(ctx, run))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Result)

	for _, metric := range []string{"cases", "hospitalizations", "ed_visits"} {
		series, ok := got.Result.Timeseries[metric]
		require.True(t, ok, metric)
		assert.Len(t, series.P50, 14, metric)
	}

	require.Len(t, got.Result.FacilityImpacts, 1)
	assert.Equal(t, "snf-001", got.Result.FacilityImpacts[0].FacilityID)
	assert.Equal(t, "Cedar Grove Care", got.Result.FacilityImpacts[0].Name)

	require.NotNil(t, got.Result.Provenance)
	assert.NotEmpty(t, got.Result.Provenance.DataSources)
}

func TestExecutor_IntroductionSeeding(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()

	run := queuedRun(t, st, func(cfg *model.RunConfig) {
		cfg.SeedingMode = model.SeedingIntroduction
		cfg.Introductions = []model.Introduction{
			{FacilityID: "snf-001", Group: "resident", Count: 5},
		}
	})

	ex := NewExecutor(st, "", 2)
	require.NoError(t, ex.ExecuteRun(ctx, run))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)

	// Seeded infections must produce cases somewhere in the horizon.
	var total float64
	for _, p := range got.Result.Timeseries["cases"].P95 {
		total += p.Value
	}
	assert.Greater(t, total, 0.0)
}

func TestExecutor_MissingSnapshotFails(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	run := queuedRun(t, st, nil)
	ex := NewExecutor(st, "", 2)
	err = ex.ExecuteRun(ctx, run)
	require.Error(t, err)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "no snapshot data")
}

func TestExecutor_UsesCalibratedParams(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()

	fitted := &model.CalibrationResult{
		Parameters: model.DiseaseParameters{
			TransmissibilityBase: 1.0,
			IncubationPeriodDays: model.Distribution{Mean: 3},
			InfectiousPeriodDays: model.Distribution{Mean: 7},
			DetectionMultiplier:  0.4,
		},
		Metrics: model.CalibrationMetrics{RMSE: 9.5, Converged: true, Iterations: 12},
	}
	require.NoError(t, st.PutCalibratedParams(ctx, "wa-cascadia", "covid", fitted))

	run := queuedRun(t, st, func(cfg *model.RunConfig) {
		cfg.UseCalibratedParams = true
	})

	ex := NewExecutor(st, "", 2)
	require.NoError(t, ex.ExecuteRun(ctx, run))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.Result.CalibrationMetrics)
	assert.InDelta(t, 9.5, got.Result.CalibrationMetrics["rmse"], 1e-9)
}

func TestExecutor_ReproducibleWithFixedSeed(t *testing.T) {
	st := newSeededStore(t)
	ctx := context.Background()

	ex := NewExecutor(st, "", 1)

	runA := queuedRun(t, st, nil)
	require.NoError(t, ex.ExecuteRun(ctx, runA))
	runB := queuedRun(t, st, nil)
	require.NoError(t, ex.ExecuteRun(ctx, runB))

	gotA, err := st.GetRun(ctx, runA.ID)
	require.NoError(t, err)
	gotB, err := st.GetRun(ctx, runB.ID)
	require.NoError(t, err)

	assert.Equal(t, gotA.Result.Timeseries["cases"], gotB.Result.Timeseries["cases"])
}
