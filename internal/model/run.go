// Package model defines the domain types shared across the simulation pipeline.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// RunStatus represents the current state of a simulation run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SeedingMode selects how infections enter the simulated population.
type SeedingMode string

const (
	// SeedingProbabilistic applies a constant external force of infection.
	SeedingProbabilistic SeedingMode = "probabilistic"
	// SeedingIntroduction seeds explicit infections at configured targets.
	SeedingIntroduction SeedingMode = "simulate_introduction"
)

// Introduction places seed infections at a facility group or a tract.
// Exactly one of FacilityID or TractFIPS selects the target.
type Introduction struct {
	FacilityID string `json:"facility_id,omitempty"`
	TractFIPS  string `json:"tract_fips,omitempty"`
	Group      string `json:"group"` // resident or staff, facility targets only
	Count      int    `json:"num_introductions"`
}

// Validate checks that the introduction selects a target and requests at
// least one infection.
func (i Introduction) Validate() error {
	if i.FacilityID == "" && i.TractFIPS == "" {
		return eris.New("model: introduction requires facility_id or tract_fips")
	}
	if i.Count < 1 {
		return eris.New("model: introduction num_introductions must be at least 1")
	}
	return nil
}

// Intervention records a requested intervention. It is carried through the
// run configuration and handed to the engine's effect hook; the default hook
// leaves compartments untouched.
type Intervention struct {
	Type       string         `json:"type"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// RunConfig configures a simulation run.
type RunConfig struct {
	JurisdictionID      string         `json:"jurisdiction_id"`
	Disease             string         `json:"disease"`
	RunName             string         `json:"run_name,omitempty"`
	CreatedBy           string         `json:"created_by,omitempty"`
	StartDate           time.Time      `json:"start_date"`
	RunLengthWeeks      int            `json:"run_length_weeks"`
	SeedingMode         SeedingMode    `json:"seeding_mode"`
	Introductions       []Introduction `json:"introductions,omitempty"`
	Interventions       []Intervention `json:"interventions,omitempty"`
	StochasticReps      int            `json:"stochastic_reps"`
	UseCalibratedParams bool           `json:"use_calibrated_params"`
	RandomSeed          uint64         `json:"random_seed,omitempty"`
}

// Validate rejects configurations outside the supported bounds before any
// simulation work is dispatched.
func (c RunConfig) Validate() error {
	if c.JurisdictionID == "" {
		return eris.New("model: jurisdiction_id is required")
	}
	if c.Disease == "" {
		return eris.New("model: disease is required")
	}
	if c.StochasticReps < 10 || c.StochasticReps > 1000 {
		return eris.Errorf("model: stochastic_reps must be in [10, 1000], got %d", c.StochasticReps)
	}
	if c.RunLengthWeeks < 1 || c.RunLengthWeeks > 52 {
		return eris.Errorf("model: run_length_weeks must be in [1, 52], got %d", c.RunLengthWeeks)
	}
	if c.SeedingMode == SeedingIntroduction && len(c.Introductions) == 0 {
		return eris.New("model: introductions required for simulate_introduction mode")
	}
	for _, intro := range c.Introductions {
		if err := intro.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Run is the persisted record of a simulation run.
type Run struct {
	ID        string     `json:"id"`
	Config    RunConfig  `json:"config"`
	Status    RunStatus  `json:"status"`
	Error     string     `json:"error,omitempty"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
