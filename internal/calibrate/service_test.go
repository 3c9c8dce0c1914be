package calibrate

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

func newCalibrationStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "calibrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedCalibrationSnapshot(t *testing.T, st *store.SQLiteStore, now time.Time) {
	t.Helper()
	ctx := context.Background()

	_, err := st.PutTracts(ctx, "wa-cascadia", []model.TractRecord{{FIPS: "53033001100"}})
	require.NoError(t, err)
	_, err = st.PutDemographics(ctx, "wa-cascadia", []model.DemographicRecord{
		{TractFIPS: "53033001100", AgeDistribution: map[string]int{"age_18_49": 1500}},
	})
	require.NoError(t, err)

	obs := make([]model.WeeklyObservation, 0, 4)
	for w := 4; w >= 1; w-- {
		obs = append(obs, model.WeeklyObservation{
			WeekEndDate: now.AddDate(0, 0, -7*w),
			Cases:       30,
		})
	}
	_, err = st.PutTimeseries(ctx, "wa-cascadia", "covid", obs)
	require.NoError(t, err)
}

func calibrationConfig() model.CalibrationConfig {
	return model.CalibrationConfig{
		JurisdictionID:         "wa-cascadia",
		Disease:                "covid",
		CalibrationWindowWeeks: 6,
		ParamsToFit:            []string{"transmissibility_base"},
		StochasticReps:         10,
	}
}

func TestService_CalibrationCompletesAndPersists(t *testing.T) {
	st := newCalibrationStore(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	seedCalibrationSnapshot(t, st, now)

	cal, err := st.CreateCalibration(ctx, calibrationConfig())
	require.NoError(t, err)

	svc := NewService(st, "")
	svc.now = func() time.Time { return now }
	require.NoError(t, svc.ExecuteCalibration(ctx, cal))

	got, err := st.GetCalibration(ctx, cal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Result)

	fitted := got.Result.Parameters.TransmissibilityBase
	assert.GreaterOrEqual(t, fitted, 0.5)
	assert.LessOrEqual(t, fitted, 2.0)
	assert.WithinDuration(t, now, got.Result.Metrics.FittedAt, time.Second)

	// The fit must also land in the calibrated_params table for reuse.
	persisted, err := st.GetCalibratedParams(ctx, "wa-cascadia", "covid")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, fitted, persisted.Parameters.TransmissibilityBase)
}

func TestService_EmptyWindowFails(t *testing.T) {
	st := newCalibrationStore(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	// Snapshot exists but every observation is older than the window.
	seedCalibrationSnapshot(t, st, now.AddDate(-1, 0, 0))

	cal, err := st.CreateCalibration(ctx, calibrationConfig())
	require.NoError(t, err)

	svc := NewService(st, "")
	svc.now = func() time.Time { return now }
	err = svc.ExecuteCalibration(ctx, cal)
	require.Error(t, err)

	got, err := st.GetCalibration(ctx, cal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "no observations")
}

func TestService_UnknownParamFails(t *testing.T) {
	st := newCalibrationStore(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	seedCalibrationSnapshot(t, st, now)

	cfg := calibrationConfig()
	cfg.ParamsToFit = []string{"not_a_parameter"}
	cal, err := st.CreateCalibration(ctx, cfg)
	require.NoError(t, err)

	svc := NewService(st, "")
	svc.now = func() time.Time { return now }
	err = svc.ExecuteCalibration(ctx, cal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown parameter")
}
