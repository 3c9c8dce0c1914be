package seir

import (
	"time"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
)

// State holds the S/E/I/R compartments for every agent, indexed by arena
// position. A State belongs to exactly one repetition and is never shared.
type State struct {
	s, e, i, r []int
	count      []int
}

// newState splits each agent's population by the global initial fractions.
// Rounding error is absorbed into S so s+e+i+r == count holds exactly.
func newState(agents []population.Agent, initial model.InitialConditions) *State {
	n := len(agents)
	st := &State{
		s:     make([]int, n),
		e:     make([]int, n),
		i:     make([]int, n),
		r:     make([]int, n),
		count: make([]int, n),
	}
	for idx, ag := range agents {
		c := float64(ag.Count)
		st.s[idx] = int(c * initial.S)
		st.e[idx] = int(c * initial.E)
		st.i[idx] = int(c * initial.I)
		st.r[idx] = int(c * initial.R)
		st.count[idx] = ag.Count

		total := st.s[idx] + st.e[idx] + st.i[idx] + st.r[idx]
		st.s[idx] += ag.Count - total
	}
	return st
}

// clamp zeroes any negative compartment for one agent.
func (st *State) clamp(idx int) {
	if st.s[idx] < 0 {
		st.s[idx] = 0
	}
	if st.e[idx] < 0 {
		st.e[idx] = 0
	}
	if st.i[idx] < 0 {
		st.i[idx] = 0
	}
	if st.r[idx] < 0 {
		st.r[idx] = 0
	}
}

// Agents returns the number of agents in the state.
func (st *State) Agents() int { return len(st.count) }

// Susceptible returns agent idx's S compartment.
func (st *State) Susceptible(idx int) int { return st.s[idx] }

// Exposed returns agent idx's E compartment.
func (st *State) Exposed(idx int) int { return st.e[idx] }

// Infectious returns agent idx's I compartment.
func (st *State) Infectious(idx int) int { return st.i[idx] }

// Recovered returns agent idx's R compartment.
func (st *State) Recovered(idx int) int { return st.r[idx] }

// Count returns agent idx's total population.
func (st *State) Count(idx int) int { return st.count[idx] }

// InterventionEffect is the pluggable hook invoked after each step's
// compartment transitions. Recorded interventions are passed through
// unchanged; the default implementation has no compartmental effect, which
// preserves the current recorded-but-inert intervention behavior.
type InterventionEffect interface {
	Apply(day int, date time.Time, interventions []model.Intervention, st *State)
}

// NoopEffect is the default InterventionEffect.
type NoopEffect struct{}

// Apply does nothing.
func (NoopEffect) Apply(int, time.Time, []model.Intervention, *State) {}
