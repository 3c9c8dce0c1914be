package model

import "github.com/rotisserie/eris"

// Distribution is a period distribution summarized by its mean, in days.
type Distribution struct {
	Mean float64 `json:"mean" yaml:"mean"`
}

// SeasonalForcing shapes transmissibility as a cosine peaking mid-month.
type SeasonalForcing struct {
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
	PeakMonth int     `json:"peak_month" yaml:"peak_month"` // 1-12
}

// DiseaseParameters holds the epidemiological parameters driving a run.
type DiseaseParameters struct {
	TransmissibilityBase float64            `json:"transmissibility_base" yaml:"transmissibility_base"`
	IncubationPeriodDays Distribution       `json:"incubation_period_days" yaml:"incubation_period_days"`
	InfectiousPeriodDays Distribution       `json:"infectious_period_days" yaml:"infectious_period_days"`
	DetectionMultiplier  float64            `json:"detection_multiplier" yaml:"detection_multiplier"`
	HospitalizationRisk  map[string]float64 `json:"hospitalization_risk,omitempty" yaml:"hospitalization_risk"`
	SeasonalForcing      *SeasonalForcing   `json:"seasonal_forcing,omitempty" yaml:"seasonal_forcing"`
	VaccineEffectiveness map[string]float64 `json:"vaccine_effectiveness,omitempty" yaml:"vaccine_effectiveness"`
}

// Validate checks the required parameters are present. Zero values for the
// required rates make the model degenerate and are treated as missing.
func (p DiseaseParameters) Validate() error {
	if p.TransmissibilityBase < 0 {
		return eris.New("model: transmissibility_base must be non-negative")
	}
	if p.IncubationPeriodDays.Mean <= 0 {
		return eris.New("model: missing required parameter incubation_period_days")
	}
	if p.InfectiousPeriodDays.Mean <= 0 {
		return eris.New("model: missing required parameter infectious_period_days")
	}
	if p.DetectionMultiplier <= 0 {
		return eris.New("model: missing required parameter detection_multiplier")
	}
	return nil
}

// Param reads a fittable parameter by its wire name. The bool reports whether
// the name is known.
func (p DiseaseParameters) Param(name string) (float64, bool) {
	switch name {
	case "transmissibility_base":
		return p.TransmissibilityBase, true
	case "detection_multiplier":
		return p.DetectionMultiplier, true
	case "incubation_period_days":
		return p.IncubationPeriodDays.Mean, true
	case "infectious_period_days":
		return p.InfectiousPeriodDays.Mean, true
	}
	return 0, false
}

// WithParam returns a copy with the named parameter replaced. Unknown names
// return the receiver unchanged.
func (p DiseaseParameters) WithParam(name string, value float64) DiseaseParameters {
	switch name {
	case "transmissibility_base":
		p.TransmissibilityBase = value
	case "detection_multiplier":
		p.DetectionMultiplier = value
	case "incubation_period_days":
		p.IncubationPeriodDays.Mean = value
	case "infectious_period_days":
		p.InfectiousPeriodDays.Mean = value
	}
	return p
}

// DiseaseProfile bundles the parameters with the contact structure and
// facility impact weighting for one disease.
type DiseaseProfile struct {
	Name                  string             `json:"name" yaml:"name"`
	Parameters            DiseaseParameters  `json:"parameters" yaml:"parameters"`
	ContactLayers         map[string]float64 `json:"contact_layers" yaml:"contact_layers"`
	FacilityImpactWeights map[string]float64 `json:"facility_impact_weights" yaml:"facility_impact_weights"`
}

// InitialConditions are the global S/E/I/R fractions applied to every agent
// at initialization. Fractions are expected to sum to 1.
type InitialConditions struct {
	S float64 `json:"s"`
	E float64 `json:"e"`
	I float64 `json:"i"`
	R float64 `json:"r"`
}
