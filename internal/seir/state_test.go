package seir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
)

func TestNewState_ConservesPopulation(t *testing.T) {
	agents := []population.Agent{
		{Kind: population.KindTract, TractFIPS: "a", Count: 7},
		{Kind: population.KindTract, TractFIPS: "b", Count: 1003},
		{Kind: population.KindTract, TractFIPS: "c", Count: 0},
	}
	initial := model.InitialConditions{S: 0.9, E: 0.01, I: 0.01, R: 0.08}

	st := newState(agents, initial)
	for idx := range agents {
		total := st.s[idx] + st.e[idx] + st.i[idx] + st.r[idx]
		assert.Equal(t, agents[idx].Count, total, "agent %d", idx)
	}
}

func TestNewState_RoundingGoesToSusceptible(t *testing.T) {
	agents := []population.Agent{{Kind: population.KindTract, TractFIPS: "a", Count: 10}}
	st := newState(agents, model.InitialConditions{S: 0.33, E: 0.33, I: 0.33, R: 0.01})

	// floor(3.3)*3 + floor(0.1) = 9, remainder lands in S.
	assert.Equal(t, 10, st.s[0]+st.e[0]+st.i[0]+st.r[0])
	assert.GreaterOrEqual(t, st.s[0], 3)
}

func TestClamp_ZeroesNegatives(t *testing.T) {
	st := &State{s: []int{-2}, e: []int{1}, i: []int{-1}, r: []int{3}, count: []int{1}}
	st.clamp(0)
	assert.Equal(t, 0, st.s[0])
	assert.Equal(t, 1, st.e[0])
	assert.Equal(t, 0, st.i[0])
	assert.Equal(t, 3, st.r[0])
}
