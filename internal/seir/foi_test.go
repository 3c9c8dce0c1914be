package seir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
)

func foiEngine(t *testing.T, layers map[string]float64) *Engine {
	t.Helper()
	params := testParams
	params.TransmissibilityBase = 1.0
	agents := []population.Agent{
		{Kind: population.KindTract, TractFIPS: "53033001100", AgeGroup: "age_18_49", Count: 1000},
		{Kind: population.KindTract, TractFIPS: "53033001200", AgeGroup: "age_18_49", Count: 1000},
		{
			Kind: population.KindFacility, TractFIPS: "53033001100", AgeGroup: "age_65_plus",
			Count: 100, FacilityID: "snf-001", FacilityType: "nursing_home", Role: population.RoleResident,
		},
		{
			Kind: population.KindFacility, TractFIPS: "53033001100", AgeGroup: population.StaffAgeGroup,
			Count: 50, FacilityID: "snf-001", FacilityType: "nursing_home", Role: population.RoleStaff,
		},
	}
	engine, err := New(agents, params, layers, nil)
	require.NoError(t, err)
	return engine
}

func TestForceOfInfection_TieredWeights(t *testing.T) {
	engine := foiEngine(t, map[string]float64{"community": 1.0, "nursing_home": 2.0})

	st := newState(engine.agents, model.InitialConditions{S: 1})
	st.i[0] = 100 // tract A: normalized 0.1, community layer -> pressure 0.1
	st.i[2] = 10  // resident: normalized 0.1, layer 2.0 -> pressure 0.2

	foi := engine.forceOfInfection(st, 1.0)
	require.Len(t, foi, 4)

	// Tract A sees its own tract at 0.7 and the co-located facility at 0.3.
	assert.InDelta(t, 0.1*0.7+0.2*0.3, foi[0], 1e-12)
	// Tract B has no same-tract sources.
	assert.Zero(t, foi[1])
	// Facility agents see the facility at 0.8 and the surrounding tract at 0.2.
	assert.InDelta(t, 0.2*0.8+0.1*0.2, foi[2], 1e-12)
	assert.InDelta(t, 0.2*0.8+0.1*0.2, foi[3], 1e-12)
}

func TestForceOfInfection_SeasonalFactorScalesPressure(t *testing.T) {
	engine := foiEngine(t, map[string]float64{"community": 1.0, "nursing_home": 2.0})

	st := newState(engine.agents, model.InitialConditions{S: 1})
	st.i[0] = 100

	base := engine.forceOfInfection(st, 1.0)
	forced := engine.forceOfInfection(st, 1.3)
	assert.InDelta(t, base[0]*1.3, forced[0], 1e-12)
}

func TestForceOfInfection_ExternalForceAppliesEverywhere(t *testing.T) {
	engine := foiEngine(t, map[string]float64{"community": 1.0, "nursing_home": 2.0})
	engine.SetProbabilisticSeeding(0)

	st := newState(engine.agents, model.InitialConditions{S: 1})
	foi := engine.forceOfInfection(st, 1.0)
	for j := range foi {
		assert.InDelta(t, defaultExternalForce, foi[j], 1e-12, "agent %d", j)
	}
}

func TestForceOfInfection_UnknownFacilityLayerDefaultsToOne(t *testing.T) {
	engine := foiEngine(t, map[string]float64{"community": 1.0})

	st := newState(engine.agents, model.InitialConditions{S: 1})
	st.i[2] = 10

	foi := engine.forceOfInfection(st, 1.0)
	// Pressure 0.1 * layer 1.0; facility target weight 0.8.
	assert.InDelta(t, 0.1*0.8, foi[2], 1e-12)
}
