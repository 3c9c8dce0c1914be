package seir

import (
	"sort"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
)

// impactTracker accumulates per-facility case totals from the infectious
// trajectory while a repetition runs, then derives attack rates and capacity
// impact when the run completes.
type impactTracker struct {
	agents         []population.Agent
	recoveryShare  float64 // 1/infectious_period_days
	prevI          []int
	haveBaseline   bool
	facilityCases  map[string]float64
	facilityPop    map[string]int
	facilityType   map[string]string
}

func newImpactTracker(agents []population.Agent, infectiousMean float64) *impactTracker {
	t := &impactTracker{
		agents:        agents,
		recoveryShare: 1.0 / infectiousMean,
		prevI:         make([]int, len(agents)),
		facilityCases: make(map[string]float64),
		facilityPop:   make(map[string]int),
		facilityType:  make(map[string]string),
	}
	for _, ag := range agents {
		if ag.Kind != population.KindFacility {
			continue
		}
		t.facilityPop[ag.FacilityID] += ag.Count
		t.facilityType[ag.FacilityID] = ag.FacilityType
	}
	return t
}

// beforeStep snapshots the infectious compartments ahead of a transition.
func (t *impactTracker) beforeStep(st *State) {
	copy(t.prevI, st.i)
	t.haveBaseline = true
}

// afterStep reconstructs each facility agent's new infectious count from the
// step's delta, discounted by the recovery share, and accumulates positive
// contributions per facility.
func (t *impactTracker) afterStep(st *State) {
	if !t.haveBaseline {
		return
	}
	for i, ag := range t.agents {
		if ag.Kind != population.KindFacility {
			continue
		}
		delta := float64(st.i[i] - t.prevI[i])
		newI := delta * (1.0 - t.recoveryShare)
		if newI > 0 {
			t.facilityCases[ag.FacilityID] += newI
		}
	}
}

// impacts derives the final per-facility impact list. Attack rate scaled by
// the facility type's impact weight gives the capacity impact percentage.
func (t *impactTracker) impacts(impactWeights map[string]float64) []model.FacilityImpact {
	ids := make([]string, 0, len(t.facilityPop))
	for id := range t.facilityPop {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	impacts := make([]model.FacilityImpact, 0, len(ids))
	for _, id := range ids {
		cases := t.facilityCases[id]
		pop := t.facilityPop[id]
		ftype := t.facilityType[id]

		var attackRate float64
		if pop > 0 {
			attackRate = cases / float64(pop)
		}

		weight, ok := impactWeights[ftype]
		if !ok {
			weight = 1.0
		}
		pct := attackRate * weight * 100

		impacts = append(impacts, model.FacilityImpact{
			FacilityID:        id,
			Type:              ftype,
			RiskBand:          model.RiskBandFor(pct),
			ExpectedCases:     cases,
			CaseRange:         model.CaseRange{Low: cases * 0.5, High: cases * 1.5},
			AttackRate:        attackRate,
			CapacityImpactPct: pct,
		})
	}
	return impacts
}
