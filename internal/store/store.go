// Package store persists runs, calibrations, fitted parameters, and the
// canonical data snapshot. Access is read/overwrite with last-writer-wins
// semantics; callers get no transactional guarantees across calls.
package store

import (
	"context"
	"errors"

	"github.com/cascadia-health/epiforecast/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status         model.RunStatus `json:"status,omitempty"`
	JurisdictionID string          `json:"jurisdiction_id,omitempty"`
	Disease        string          `json:"disease,omitempty"`
	Limit          int             `json:"limit,omitempty"`
	Offset         int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the simulation service.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, cfg model.RunConfig) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	SetRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Calibrations
	CreateCalibration(ctx context.Context, cfg model.CalibrationConfig) (*model.Calibration, error)
	UpdateCalibrationStatus(ctx context.Context, calibrationID string, status model.RunStatus, errMsg string) error
	SetCalibrationResult(ctx context.Context, calibrationID string, result *model.CalibrationResult) error
	GetCalibration(ctx context.Context, calibrationID string) (*model.Calibration, error)

	// Calibrated parameters, keyed by jurisdiction and disease. Get returns
	// (nil, nil) when no parameters have been fitted yet.
	PutCalibratedParams(ctx context.Context, jurisdictionID, disease string, result *model.CalibrationResult) error
	GetCalibratedParams(ctx context.Context, jurisdictionID, disease string) (*model.CalibrationResult, error)

	// Canonical snapshot
	PutTracts(ctx context.Context, jurisdictionID string, tracts []model.TractRecord) (int64, error)
	PutFacilities(ctx context.Context, jurisdictionID string, facilities []model.FacilityRecord) (int64, error)
	PutDemographics(ctx context.Context, jurisdictionID string, demographics []model.DemographicRecord) (int64, error)
	PutTimeseries(ctx context.Context, jurisdictionID, disease string, observations []model.WeeklyObservation) (int64, error)
	GetSnapshot(ctx context.Context, jurisdictionID, disease string) (*model.Snapshot, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
