// Package population builds the meta-agent structure the SEIR engine runs
// over. A meta-agent is a homogeneous sub-population (tract+age group, or
// facility+age group+role) modeled as one compartmental unit.
package population

import (
	"sort"

	"github.com/cascadia-health/epiforecast/internal/model"
)

// Kind tags the two agent variants.
type Kind uint8

const (
	KindTract Kind = iota
	KindFacility
)

// Role distinguishes facility sub-populations.
type Role string

const (
	RoleResident Role = "resident"
	RoleStaff    Role = "staff"
)

// StaffAgeGroup is the synthetic age group assigned to facility staff
// agents. Hospitalization risk maps it to the adult band.
const StaffAgeGroup = "staff"

// Agent is one meta-agent. Agents live in a flat arena and are referenced by
// index; the facility fields are meaningful only when Kind is KindFacility.
// Immutable after Build.
type Agent struct {
	Kind         Kind
	TractFIPS    string
	AgeGroup     string
	Count        int
	FacilityID   string
	FacilityType string
	Role         Role
}

// Build flattens tract demographics and facility rosters into the agent
// arena. Tract agents are emitted for every (tract, age group) pair in the
// demographic table, zero counts included; facility resident agents only
// where the age group has population; one staff agent per facility with
// staff. Age groups are emitted in sorted order so a fixed seed replays the
// same draw sequence.
func Build(tracts []model.TractRecord, facilities []model.FacilityRecord, demographics []model.DemographicRecord) []Agent {
	demoByTract := make(map[string]model.DemographicRecord, len(demographics))
	for _, d := range demographics {
		demoByTract[d.TractFIPS] = d
	}

	var agents []Agent

	for _, tract := range tracts {
		demo, ok := demoByTract[tract.FIPS]
		if !ok {
			continue
		}
		for _, ageGroup := range sortedKeys(demo.AgeDistribution) {
			agents = append(agents, Agent{
				Kind:      KindTract,
				TractFIPS: tract.FIPS,
				AgeGroup:  ageGroup,
				Count:     demo.AgeDistribution[ageGroup],
			})
		}
	}

	for _, fac := range facilities {
		for _, ageGroup := range sortedKeys(fac.ResidentAgeProfile) {
			count := fac.ResidentAgeProfile[ageGroup]
			if count <= 0 {
				continue
			}
			agents = append(agents, Agent{
				Kind:         KindFacility,
				TractFIPS:    fac.TractFIPS,
				AgeGroup:     ageGroup,
				Count:        count,
				FacilityID:   fac.FacilityID,
				FacilityType: fac.Type,
				Role:         RoleResident,
			})
		}
		if fac.StaffCount > 0 {
			agents = append(agents, Agent{
				Kind:         KindFacility,
				TractFIPS:    fac.TractFIPS,
				AgeGroup:     StaffAgeGroup,
				Count:        fac.StaffCount,
				FacilityID:   fac.FacilityID,
				FacilityType: fac.Type,
				Role:         RoleStaff,
			})
		}
	}

	return agents
}

// Total sums the agent counts.
func Total(agents []Agent) int {
	total := 0
	for _, a := range agents {
		total += a.Count
	}
	return total
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
