package model

import "time"

// TractRecord is one census tract in the canonical snapshot. Boundary
// geometry is retained as GeoJSON for provenance; the simulation only needs
// the FIPS code.
type TractRecord struct {
	FIPS           string `json:"tract_fips"`
	JurisdictionID string `json:"jurisdiction_id"`
	BoundaryGeoJSON string `json:"boundary_geojson,omitempty"`
}

// FacilityRecord is one congregate facility in the canonical snapshot.
type FacilityRecord struct {
	FacilityID         string         `json:"facility_id"`
	JurisdictionID     string         `json:"jurisdiction_id"`
	Name               string         `json:"name,omitempty"`
	Type               string         `json:"type"`
	TractFIPS          string         `json:"tract_fips"`
	ResidentAgeProfile map[string]int `json:"resident_age_profile"`
	StaffCount         int            `json:"staff_count"`
}

// DemographicRecord holds the age-group population counts for one tract.
type DemographicRecord struct {
	TractFIPS       string         `json:"tract_fips"`
	AgeDistribution map[string]int `json:"age_distribution"`
}

// WeeklyObservation is one week of observed surveillance data.
// Hospitalizations and EDVisits are optional; absent metrics are excluded
// from calibration.
type WeeklyObservation struct {
	WeekEndDate      time.Time          `json:"week_end_date"`
	Cases            float64            `json:"cases"`
	Hospitalizations *float64           `json:"hospitalizations,omitempty"`
	EDVisits         *float64           `json:"ed_visits,omitempty"`
	Vaccinations     map[string]float64 `json:"vaccinations,omitempty"`
}

// Snapshot is the canonical data snapshot for a jurisdiction/disease pair,
// loaded once per run and treated read-only.
type Snapshot struct {
	JurisdictionID string              `json:"jurisdiction_id"`
	Disease        string              `json:"disease"`
	Tracts         []TractRecord       `json:"tracts"`
	Facilities     []FacilityRecord    `json:"facilities"`
	Demographics   []DemographicRecord `json:"demographics"`
	Timeseries     []WeeklyObservation `json:"timeseries"`
}
