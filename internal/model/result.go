package model

import "time"

// RiskBand is the coarse classification of a facility's projected impact.
type RiskBand string

const (
	RiskLow    RiskBand = "low"
	RiskMedium RiskBand = "medium"
	RiskHigh   RiskBand = "high"
)

// RiskBandFor maps a capacity impact percentage onto a band. The thresholds
// are exclusive: exactly 15 is low, exactly 30 is medium.
func RiskBandFor(capacityImpactPct float64) RiskBand {
	switch {
	case capacityImpactPct > 30:
		return RiskHigh
	case capacityImpactPct > 15:
		return RiskMedium
	default:
		return RiskLow
	}
}

// TimeseriesPoint is one dated value in an output series.
type TimeseriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// PercentileSeries holds the percentile bands for one metric across
// stochastic repetitions.
type PercentileSeries struct {
	P5  []TimeseriesPoint `json:"p5"`
	P25 []TimeseriesPoint `json:"p25"`
	P50 []TimeseriesPoint `json:"p50"`
	P75 []TimeseriesPoint `json:"p75"`
	P95 []TimeseriesPoint `json:"p95"`
}

// CaseRange bounds the expected case count for a facility.
type CaseRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// FacilityImpact summarizes the projected burden on one facility.
type FacilityImpact struct {
	FacilityID        string    `json:"facility_id"`
	Name              string    `json:"name,omitempty"`
	Type              string    `json:"type"`
	RiskBand          RiskBand  `json:"risk_band"`
	ExpectedCases     float64   `json:"expected_cases"`
	CaseRange         CaseRange `json:"case_range"`
	AttackRate        float64   `json:"attack_rate"`
	CapacityImpactPct float64   `json:"capacity_impact_pct"`
}

// Provenance records where the input data came from and how fresh it was.
type Provenance struct {
	DataSources   []DataSource `json:"data_sources,omitempty"`
	FreshnessDays int          `json:"freshness_days,omitempty"`
	Notes         string       `json:"notes,omitempty"`
}

// DataSource names one upstream dataset and its version.
type DataSource struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RunResult is the aggregated outcome of a completed run, the only artifact
// retained after the repetitions are discarded.
type RunResult struct {
	Timeseries         map[string]PercentileSeries `json:"timeseries"`
	FacilityImpacts    []FacilityImpact            `json:"facility_impacts"`
	CalibrationMetrics map[string]float64          `json:"calibration_metrics,omitempty"`
	Provenance         *Provenance                 `json:"provenance,omitempty"`
}
