package runner

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cascadia-health/epiforecast/internal/data"
	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
	"github.com/cascadia-health/epiforecast/internal/seir"
	"github.com/cascadia-health/epiforecast/internal/store"
)

// defaultWorkers caps concurrent repetitions when no limit is configured.
const defaultWorkers = 4

// Executor runs one simulation end to end against the store.
type Executor struct {
	store       store.Store
	profilesDir string
	workers     int
}

// NewExecutor builds an executor. workers caps concurrent repetitions; zero
// or negative selects the default.
func NewExecutor(st store.Store, profilesDir string, workers int) *Executor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Executor{store: st, profilesDir: profilesDir, workers: workers}
}

// ExecuteRun drives a queued run to completed or failed. The failure message
// is persisted on the run record; the returned error reports the same
// failure for the caller's logs.
func (ex *Executor) ExecuteRun(ctx context.Context, run *model.Run) error {
	log := zap.L().With(zap.String("run_id", run.ID))

	if err := ex.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning, ""); err != nil {
		return eris.Wrap(err, "runner: mark running")
	}

	result, err := ex.executeRun(ctx, run, log)
	if err != nil {
		log.Error("runner: run failed", zap.Error(err))
		if serr := ex.store.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed, err.Error()); serr != nil {
			log.Error("runner: mark failed", zap.Error(serr))
		}
		return err
	}

	if err := ex.store.SetRunResult(ctx, run.ID, result); err != nil {
		return eris.Wrap(err, "runner: store result")
	}
	log.Info("runner: run completed")
	return nil
}

func (ex *Executor) executeRun(ctx context.Context, run *model.Run, log *zap.Logger) (*model.RunResult, error) {
	cfg := run.Config

	snapshot, err := ex.store.GetSnapshot(ctx, cfg.JurisdictionID, cfg.Disease)
	if err != nil {
		return nil, eris.Wrap(err, "runner: load snapshot")
	}
	if len(snapshot.Tracts) == 0 && len(snapshot.Facilities) == 0 {
		return nil, eris.Errorf("runner: no snapshot data for jurisdiction %s", cfg.JurisdictionID)
	}

	profile, err := data.LoadProfile(ex.profilesDir, cfg.Disease)
	if err != nil {
		return nil, err
	}

	params := profile.Parameters
	var calibrationMetrics map[string]float64
	if cfg.UseCalibratedParams {
		fitted, err := ex.store.GetCalibratedParams(ctx, cfg.JurisdictionID, cfg.Disease)
		if err != nil {
			return nil, eris.Wrap(err, "runner: load calibrated params")
		}
		if fitted != nil {
			params = fitted.Parameters
			calibrationMetrics = map[string]float64{
				"rmse":       fitted.Metrics.RMSE,
				"iterations": float64(fitted.Metrics.Iterations),
			}
			log.Info("runner: using calibrated parameters",
				zap.Float64("rmse", fitted.Metrics.RMSE),
				zap.Time("fitted_at", fitted.Metrics.FittedAt),
			)
		} else {
			log.Warn("runner: no calibrated parameters, falling back to profile defaults")
		}
	}

	agents := population.Build(snapshot.Tracts, snapshot.Facilities, snapshot.Demographics)
	if len(agents) == 0 {
		return nil, eris.New("runner: population is empty")
	}
	log.Info("runner: built population",
		zap.Int("agents", len(agents)),
		zap.Int("total_population", population.Total(agents)),
	)

	initial := initialConditions(snapshot.Timeseries, params, cfg.StartDate, population.Total(agents))

	baseSeed := cfg.RandomSeed
	if baseSeed == 0 {
		baseSeed = rand.Uint64()
	}

	results := make([]*seir.Result, cfg.StochasticReps)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(ex.workers)

	for i := 0; i < cfg.StochasticReps; i++ {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			engine, err := seir.New(agents, params, profile.ContactLayers, profile.FacilityImpactWeights)
			if err != nil {
				return err
			}
			engine.SetRandomSeed(baseSeed + uint64(i))

			if cfg.SeedingMode == model.SeedingIntroduction {
				engine.SetIntroductions(cfg.Introductions)
			} else {
				engine.SetProbabilisticSeeding(0)
			}
			for _, iv := range cfg.Interventions {
				engine.ApplyIntervention(iv)
			}

			rep, err := engine.Run(initial, cfg.StartDate, cfg.RunLengthWeeks)
			if err != nil {
				return eris.Wrapf(err, "runner: repetition %d", i)
			}
			results[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("runner: completed repetitions", zap.Int("reps", cfg.StochasticReps))

	facilityNames := make(map[string]string, len(snapshot.Facilities))
	for _, f := range snapshot.Facilities {
		facilityNames[f.FacilityID] = f.Name
	}

	return &model.RunResult{
		Timeseries:         aggregateTimeseries(results, cfg.StartDate),
		FacilityImpacts:    aggregateFacilityImpacts(results, facilityNames),
		CalibrationMetrics: calibrationMetrics,
		Provenance:         provenance(snapshot),
	}, nil
}

// provenance summarizes the snapshot's sources and freshness for the result
// record.
func provenance(snapshot *model.Snapshot) *model.Provenance {
	p := &model.Provenance{
		DataSources: []model.DataSource{
			{Name: "jurisdiction surveillance timeseries", Version: snapshot.Disease},
			{Name: "census tract demographics", Version: "acs"},
		},
	}
	var latest time.Time
	for _, o := range snapshot.Timeseries {
		if o.WeekEndDate.After(latest) {
			latest = o.WeekEndDate
		}
	}
	if !latest.IsZero() {
		p.FreshnessDays = int(time.Since(latest).Hours() / 24)
	}
	return p
}
