package calibrate

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cascadia-health/epiforecast/internal/data"
	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
	"github.com/cascadia-health/epiforecast/internal/store"
)

// Service runs calibrations against the store and persists the fitted
// parameters for later runs.
type Service struct {
	store       store.Store
	profilesDir string
	now         func() time.Time
}

// NewService builds a calibration service.
func NewService(st store.Store, profilesDir string) *Service {
	return &Service{store: st, profilesDir: profilesDir, now: time.Now}
}

// ExecuteCalibration drives a queued calibration to completed or failed.
// Fitted parameters are stored per jurisdiction and disease, overwriting any
// previous fit.
func (s *Service) ExecuteCalibration(ctx context.Context, cal *model.Calibration) error {
	log := zap.L().With(zap.String("calibration_id", cal.ID))

	if err := s.store.UpdateCalibrationStatus(ctx, cal.ID, model.RunStatusRunning, ""); err != nil {
		return eris.Wrap(err, "calibrate: mark running")
	}

	result, err := s.calibrate(ctx, cal.Config, log)
	if err != nil {
		log.Error("calibrate: calibration failed", zap.Error(err))
		if serr := s.store.UpdateCalibrationStatus(ctx, cal.ID, model.RunStatusFailed, err.Error()); serr != nil {
			log.Error("calibrate: mark failed", zap.Error(serr))
		}
		return err
	}

	if err := s.store.SetCalibrationResult(ctx, cal.ID, result); err != nil {
		return eris.Wrap(err, "calibrate: store result")
	}
	if err := s.store.PutCalibratedParams(ctx, cal.Config.JurisdictionID, cal.Config.Disease, result); err != nil {
		return eris.Wrap(err, "calibrate: store fitted params")
	}
	log.Info("calibrate: calibration completed",
		zap.Float64("rmse", result.Metrics.RMSE),
		zap.Bool("converged", result.Metrics.Converged),
		zap.Int("iterations", result.Metrics.Iterations),
	)
	return nil
}

func (s *Service) calibrate(ctx context.Context, cfg model.CalibrationConfig, log *zap.Logger) (*model.CalibrationResult, error) {
	snapshot, err := s.store.GetSnapshot(ctx, cfg.JurisdictionID, cfg.Disease)
	if err != nil {
		return nil, eris.Wrap(err, "calibrate: load snapshot")
	}

	recent := s.observationWindow(snapshot.Timeseries, cfg.CalibrationWindowWeeks)
	if len(recent) == 0 {
		return nil, eris.Errorf("calibrate: no observations in the last %d weeks for %s/%s",
			cfg.CalibrationWindowWeeks, cfg.JurisdictionID, cfg.Disease)
	}
	log.Info("calibrate: loaded observation window", zap.Int("weeks", len(recent)))

	profile, err := data.LoadProfile(s.profilesDir, cfg.Disease)
	if err != nil {
		return nil, err
	}

	agents := population.Build(snapshot.Tracts, snapshot.Facilities, snapshot.Demographics)

	params, fit, err := Fit(agents, profile, cfg.ParamsToFit, recent, cfg.StochasticReps)
	if err != nil {
		return nil, err
	}

	return &model.CalibrationResult{
		Parameters: params,
		Metrics: model.CalibrationMetrics{
			RMSE:       fit.RMSE,
			Converged:  fit.Converged,
			Iterations: fit.Iterations,
			FittedAt:   s.now().UTC(),
		},
	}, nil
}

// observationWindow returns the observations inside the trailing window,
// sorted by week.
func (s *Service) observationWindow(observations []model.WeeklyObservation, windowWeeks int) []model.WeeklyObservation {
	cutoff := s.now().AddDate(0, 0, -7*windowWeeks)

	var recent []model.WeeklyObservation
	for _, o := range observations {
		if !o.WeekEndDate.Before(cutoff) {
			recent = append(recent, o)
		}
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i].WeekEndDate.Before(recent[j].WeekEndDate) })
	return recent
}
