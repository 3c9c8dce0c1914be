package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// CalibrationConfig configures a parameter-fitting run.
type CalibrationConfig struct {
	JurisdictionID          string   `json:"jurisdiction_id"`
	Disease                 string   `json:"disease"`
	CalibrationWindowWeeks  int      `json:"calibration_window_weeks"`
	ParamsToFit             []string `json:"params_to_fit"`
	StochasticReps          int      `json:"stochastic_reps"`
}

// Validate rejects calibration requests outside the supported bounds before
// any simulation executes.
func (c CalibrationConfig) Validate() error {
	if c.JurisdictionID == "" {
		return eris.New("model: jurisdiction_id is required")
	}
	if c.Disease == "" {
		return eris.New("model: disease is required")
	}
	if c.CalibrationWindowWeeks < 4 || c.CalibrationWindowWeeks > 52 {
		return eris.Errorf("model: calibration_window_weeks must be in [4, 52], got %d", c.CalibrationWindowWeeks)
	}
	if c.StochasticReps < 10 || c.StochasticReps > 1000 {
		return eris.Errorf("model: stochastic_reps must be in [10, 1000], got %d", c.StochasticReps)
	}
	if len(c.ParamsToFit) == 0 {
		return eris.New("model: params_to_fit is required")
	}
	return nil
}

// CalibrationResult is the outcome of an optimization run.
type CalibrationResult struct {
	Parameters DiseaseParameters  `json:"parameters"`
	Metrics    CalibrationMetrics `json:"metrics"`
}

// CalibrationMetrics describes how the optimizer terminated.
type CalibrationMetrics struct {
	RMSE       float64   `json:"rmse"`
	Converged  bool      `json:"converged"`
	Iterations int       `json:"iterations"`
	FittedAt   time.Time `json:"calibration_date"`
}

// Calibration is the persisted record of a calibration run.
type Calibration struct {
	ID        string             `json:"id"`
	Config    CalibrationConfig  `json:"config"`
	Status    RunStatus          `json:"status"`
	Error     string             `json:"error,omitempty"`
	Result    *CalibrationResult `json:"result,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
