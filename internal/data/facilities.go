package data

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/cascadia-health/epiforecast/internal/model"
)

// ImportFacilities reads a facility roster from a JSON array file.
func ImportFacilities(path, jurisdictionID string) ([]model.FacilityRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "data: read facilities file")
	}

	var facilities []model.FacilityRecord
	if err := json.Unmarshal(raw, &facilities); err != nil {
		return nil, eris.Wrap(err, "data: parse facilities json")
	}

	for i := range facilities {
		f := &facilities[i]
		f.JurisdictionID = jurisdictionID
		if f.FacilityID == "" {
			return nil, eris.Errorf("data: facility %d missing facility_id", i)
		}
		if f.Type == "" {
			return nil, eris.Errorf("data: facility %s missing type", f.FacilityID)
		}
		if f.TractFIPS == "" {
			return nil, eris.Errorf("data: facility %s missing tract_fips", f.FacilityID)
		}
		if f.StaffCount < 0 {
			return nil, eris.Errorf("data: facility %s has negative staff_count", f.FacilityID)
		}
		for group, count := range f.ResidentAgeProfile {
			if count < 0 {
				return nil, eris.Errorf("data: facility %s has negative count for %s", f.FacilityID, group)
			}
		}
	}

	return facilities, nil
}

// ImportDemographics reads per-tract age distributions from a JSON array
// file.
func ImportDemographics(path string) ([]model.DemographicRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "data: read demographics file")
	}

	var demographics []model.DemographicRecord
	if err := json.Unmarshal(raw, &demographics); err != nil {
		return nil, eris.Wrap(err, "data: parse demographics json")
	}

	for i, d := range demographics {
		if d.TractFIPS == "" {
			return nil, eris.Errorf("data: demographic record %d missing tract_fips", i)
		}
		if len(d.AgeDistribution) == 0 {
			return nil, eris.Errorf("data: tract %s has empty age_distribution", d.TractFIPS)
		}
		for group, count := range d.AgeDistribution {
			if count < 0 {
				return nil, eris.Errorf("data: tract %s has negative count for %s", d.TractFIPS, group)
			}
		}
	}

	return demographics, nil
}
