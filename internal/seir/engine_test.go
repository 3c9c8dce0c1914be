package seir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
)

var testParams = model.DiseaseParameters{
	TransmissibilityBase: 1.2,
	IncubationPeriodDays: model.Distribution{Mean: 3},
	InfectiousPeriodDays: model.Distribution{Mean: 7},
	DetectionMultiplier:  0.4,
}

var testLayers = map[string]float64{"community": 1.0, "nursing_home": 1.5}

func testAgents() []population.Agent {
	return []population.Agent{
		{Kind: population.KindTract, TractFIPS: "53033001100", AgeGroup: "age_18_49", Count: 2000},
		{Kind: population.KindTract, TractFIPS: "53033001100", AgeGroup: "age_65_plus", Count: 500},
		{
			Kind: population.KindFacility, TractFIPS: "53033001100", AgeGroup: "age_65_plus",
			Count: 100, FacilityID: "snf-001", FacilityType: "nursing_home", Role: population.RoleResident,
		},
		{
			Kind: population.KindFacility, TractFIPS: "53033001100", AgeGroup: population.StaffAgeGroup,
			Count: 40, FacilityID: "snf-001", FacilityType: "nursing_home", Role: population.RoleStaff,
		},
	}
}

var allSusceptible = model.InitialConditions{S: 1, E: 0, I: 0, R: 0}

func startDate() time.Time {
	return time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, testParams, testLayers, nil)
	require.Error(t, err)

	badParams := testParams
	badParams.InfectiousPeriodDays.Mean = 0
	_, err = New(testAgents(), badParams, testLayers, nil)
	require.Error(t, err)

	_, err = New(testAgents(), testParams, map[string]float64{"nursing_home": 1.5}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "community")
}

func TestRun_NoSeedingStaysDiseaseFree(t *testing.T) {
	engine, err := New(testAgents(), testParams, testLayers, nil)
	require.NoError(t, err)
	engine.SetRandomSeed(7)

	res, err := engine.Run(allSusceptible, startDate(), 4)
	require.NoError(t, err)
	require.Len(t, res.Cases, 28)

	for d := range res.Cases {
		assert.Zero(t, res.Cases[d], "day %d", d)
		assert.Zero(t, res.Hospitalizations[d], "day %d", d)
		assert.Zero(t, res.EDVisits[d], "day %d", d)
	}
}

func TestRun_ZeroTransmissibilityNeverSpreads(t *testing.T) {
	params := testParams
	params.TransmissibilityBase = 0

	engine, err := New(testAgents(), params, testLayers, nil)
	require.NoError(t, err)
	engine.SetRandomSeed(7)
	engine.SetIntroductions([]model.Introduction{{TractFIPS: "53033001100", Count: 10}})

	res, err := engine.Run(allSusceptible, startDate(), 4)
	require.NoError(t, err)

	// Seeded infections recover without exposing anyone, so the incidence
	// series stays flat at zero.
	for d := range res.Cases {
		assert.Zero(t, res.Cases[d], "day %d", d)
	}
}

func TestRun_IntroductionStartsOutbreak(t *testing.T) {
	engine, err := New(testAgents(), testParams, testLayers, nil)
	require.NoError(t, err)
	engine.SetRandomSeed(7)
	engine.SetIntroductions([]model.Introduction{{FacilityID: "snf-001", Group: "resident", Count: 5}})

	res, err := engine.Run(allSusceptible, startDate(), 8)
	require.NoError(t, err)

	var total float64
	for _, c := range res.Cases {
		total += c
	}
	assert.Greater(t, total, 0.0)
}

func TestRun_EDVisitsAreScaledHospitalizations(t *testing.T) {
	engine, err := New(testAgents(), testParams, testLayers, nil)
	require.NoError(t, err)
	engine.SetRandomSeed(7)
	engine.SetProbabilisticSeeding(0.01)

	res, err := engine.Run(allSusceptible, startDate(), 4)
	require.NoError(t, err)

	for d := range res.Hospitalizations {
		assert.InDelta(t, res.Hospitalizations[d]*2.5, res.EDVisits[d], 1e-9, "day %d", d)
	}
}

// conservationCheck observes compartments through the step hook and records
// any agent whose compartments stop summing to its population.
type conservationCheck struct {
	t *testing.T
}

func (c conservationCheck) Apply(day int, _ time.Time, _ []model.Intervention, st *State) {
	for idx := 0; idx < st.Agents(); idx++ {
		total := st.Susceptible(idx) + st.Exposed(idx) + st.Infectious(idx) + st.Recovered(idx)
		assert.Equal(c.t, st.Count(idx), total, "day %d agent %d", day, idx)
	}
}

func TestRun_CompartmentsConservePopulation(t *testing.T) {
	engine, err := New(testAgents(), testParams, testLayers, nil)
	require.NoError(t, err)
	engine.SetRandomSeed(31)
	engine.SetIntroductions([]model.Introduction{{FacilityID: "snf-001", Group: "resident", Count: 5}})
	engine.SetProbabilisticSeeding(0.01)
	engine.SetInterventionEffect(conservationCheck{t})

	_, err = engine.Run(allSusceptible, startDate(), 8)
	require.NoError(t, err)
}

func TestRun_SameSeedReplays(t *testing.T) {
	run := func() *Result {
		engine, err := New(testAgents(), testParams, testLayers, nil)
		require.NoError(t, err)
		engine.SetRandomSeed(99)
		engine.SetProbabilisticSeeding(0.005)
		res, err := engine.Run(allSusceptible, startDate(), 6)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.Cases, b.Cases)
	assert.Equal(t, a.Hospitalizations, b.Hospitalizations)
}

func TestRun_RejectsNonPositiveWeeks(t *testing.T) {
	engine, err := New(testAgents(), testParams, testLayers, nil)
	require.NoError(t, err)

	_, err = engine.Run(allSusceptible, startDate(), 0)
	require.Error(t, err)
}

func TestSeed_ExactCountSingleAgent(t *testing.T) {
	engine, err := New(testAgents(), testParams, testLayers, nil)
	require.NoError(t, err)
	engine.SetIntroductions([]model.Introduction{{FacilityID: "snf-001", Group: "resident", Count: 5}})

	st := newState(engine.agents, allSusceptible)
	engine.seed(st)

	assert.Equal(t, 5, st.i[2])
	assert.Equal(t, 95, st.s[2])
	assert.Zero(t, st.i[3], "staff agent must not be seeded")
}

func TestSeed_TractSpreadsAcrossAgeGroups(t *testing.T) {
	engine, err := New(testAgents(), testParams, testLayers, nil)
	require.NoError(t, err)
	engine.SetIntroductions([]model.Introduction{{TractFIPS: "53033001100", Count: 6}})

	st := newState(engine.agents, allSusceptible)
	engine.seed(st)

	// Two tract agents match; 6/2 = 3 each. Facility agents are untouched.
	assert.Equal(t, 3, st.i[0])
	assert.Equal(t, 3, st.i[1])
	assert.Zero(t, st.i[2])
}

func TestSeed_CappedBySusceptible(t *testing.T) {
	engine, err := New(testAgents(), testParams, testLayers, nil)
	require.NoError(t, err)
	engine.SetIntroductions([]model.Introduction{{FacilityID: "snf-001", Group: "staff", Count: 500}})

	st := newState(engine.agents, allSusceptible)
	engine.seed(st)

	assert.Equal(t, 40, st.i[3])
	assert.Zero(t, st.s[3])
}

func TestSeed_UnmatchedIntroductionSkipped(t *testing.T) {
	engine, err := New(testAgents(), testParams, testLayers, nil)
	require.NoError(t, err)
	engine.SetIntroductions([]model.Introduction{{FacilityID: "no-such-facility", Count: 5}})

	st := newState(engine.agents, allSusceptible)
	engine.seed(st)

	for idx := 0; idx < st.Agents(); idx++ {
		assert.Zero(t, st.i[idx])
	}
}
