// Package seir implements the stochastic meta-agent SEIR transmission engine.
package seir

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/population"
)

// edVisitMultiplier scales hospitalizations into emergency department
// visits; ED demand is not independently modeled.
const edVisitMultiplier = 2.5

// defaultHospitalizationRisk applies when the disease profile has no risk
// entry for an age band.
const defaultHospitalizationRisk = 0.01

// adultAgeBand is the hospitalization risk band used for staff agents and
// agents without an age group.
const adultAgeBand = "age_18_49"

// defaultExternalForce is the constant external force of infection under
// probabilistic seeding when no explicit value is configured.
const defaultExternalForce = 0.0001

// Result holds one repetition's per-day output series and facility impacts.
type Result struct {
	Cases            []float64
	Hospitalizations []float64
	EDVisits         []float64
	FacilityImpacts  []model.FacilityImpact
}

// Engine advances one stochastic SEIR simulation over the meta-agent
// population. An Engine may run many repetitions; each Run owns its
// compartment state exclusively, so a configured Engine is safe to reuse
// sequentially but not concurrently.
type Engine struct {
	agents        []population.Agent
	params        model.DiseaseParameters
	contactLayers map[string]float64
	impactWeights map[string]float64

	introductions []model.Introduction
	interventions []model.Intervention
	effect        InterventionEffect
	externalForce float64

	// distuv.Binomial takes its draws from an x/exp/rand source.
	src exprand.Source
}

// New validates the configuration and constructs an engine. Missing required
// parameters or an empty population are fatal before any stepping starts.
func New(agents []population.Agent, params model.DiseaseParameters, contactLayers, impactWeights map[string]float64) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, eris.New("seir: population cannot be empty")
	}
	if _, ok := contactLayers[communityLayer]; !ok {
		return nil, eris.New("seir: contact_layers missing community layer")
	}
	return &Engine{
		agents:        agents,
		params:        params,
		contactLayers: contactLayers,
		impactWeights: impactWeights,
		effect:        NoopEffect{},
		src:           exprand.NewSource(uint64(time.Now().UnixNano())),
	}, nil
}

// SetRandomSeed fixes the repetition's random stream for reproducibility.
func (e *Engine) SetRandomSeed(seed uint64) {
	e.src = exprand.NewSource(seed)
}

// SetIntroductions configures explicit seed infections applied once before
// the first step.
func (e *Engine) SetIntroductions(introductions []model.Introduction) {
	e.introductions = introductions
}

// SetProbabilisticSeeding enables a constant external force of infection
// instead of explicit introductions. A non-positive force selects the
// default.
func (e *Engine) SetProbabilisticSeeding(force float64) {
	if force <= 0 {
		force = defaultExternalForce
	}
	e.externalForce = force
}

// ApplyIntervention records an intervention for the effect hook. The default
// hook leaves compartments untouched.
func (e *Engine) ApplyIntervention(iv model.Intervention) {
	e.interventions = append(e.interventions, iv)
	zap.L().Info("seir: applied intervention",
		zap.String("type", iv.Type),
		zap.String("target", iv.Target),
	)
}

// SetInterventionEffect replaces the intervention effect hook.
func (e *Engine) SetInterventionEffect(effect InterventionEffect) {
	if effect == nil {
		effect = NoopEffect{}
	}
	e.effect = effect
}

// Run executes one repetition over numWeeks*7 daily steps and returns the
// per-day metric series and facility impacts.
func (e *Engine) Run(initial model.InitialConditions, startDate time.Time, numWeeks int) (*Result, error) {
	if numWeeks < 1 {
		return nil, eris.Errorf("seir: num_weeks must be positive, got %d", numWeeks)
	}
	days := numWeeks * 7

	st := newState(e.agents, initial)
	if len(e.introductions) > 0 {
		e.seed(st)
	}

	res := &Result{
		Cases:            make([]float64, days),
		Hospitalizations: make([]float64, days),
		EDVisits:         make([]float64, days),
	}

	incubationProb := 1.0 - math.Exp(-1.0/e.params.IncubationPeriodDays.Mean)
	recoveryProb := 1.0 - math.Exp(-1.0/e.params.InfectiousPeriodDays.Mean)

	tracker := newImpactTracker(e.agents, e.params.InfectiousPeriodDays.Mean)

	for t := 0; t < days; t++ {
		date := startDate.AddDate(0, 0, t)
		factor := seasonalFactor(date, e.params.SeasonalForcing)
		foi := e.forceOfInfection(st, factor)

		tracker.beforeStep(st)

		newCases := 0
		for i := range e.agents {
			infectionProb := 1.0 - math.Exp(-foi[i])
			newExposures := e.binomial(st.s[i], infectionProb)
			newInfectious := e.binomial(st.e[i], incubationProb)
			newRecoveries := e.binomial(st.i[i], recoveryProb)

			st.s[i] -= newExposures
			st.e[i] += newExposures - newInfectious
			st.i[i] += newInfectious - newRecoveries
			st.r[i] += newRecoveries
			st.clamp(i)

			newCases += newInfectious
		}

		e.effect.Apply(t, date, e.interventions, st)

		// The final step's infectious delta is outside the recorded
		// trajectory and does not contribute to facility attack rates.
		if t < days-1 {
			tracker.afterStep(st)
		}

		res.Cases[t] = float64(newCases)
		res.Hospitalizations[t] = e.hospitalizations(st, newCases)
		res.EDVisits[t] = res.Hospitalizations[t] * edVisitMultiplier
	}

	res.FacilityImpacts = tracker.impacts(e.impactWeights)
	return res, nil
}

// seed moves requested introductions from S to I, distributing evenly across
// matching agents and capping at available susceptibles. Unmatched
// introductions are logged and skipped.
func (e *Engine) seed(st *State) {
	for _, intro := range e.introductions {
		var matches []int
		for i, ag := range e.agents {
			switch {
			case intro.FacilityID != "":
				if ag.Kind == population.KindFacility && ag.FacilityID == intro.FacilityID &&
					(intro.Group == "" || string(ag.Role) == intro.Group) {
					matches = append(matches, i)
				}
			case intro.TractFIPS != "":
				if ag.Kind == population.KindTract && ag.TractFIPS == intro.TractFIPS {
					matches = append(matches, i)
				}
			}
		}

		if len(matches) == 0 {
			zap.L().Warn("seir: no matching agents for introduction",
				zap.String("facility_id", intro.FacilityID),
				zap.String("tract_fips", intro.TractFIPS),
				zap.String("group", intro.Group),
			)
			continue
		}

		perAgent := intro.Count / len(matches)
		if perAgent < 1 {
			perAgent = 1
		}
		for _, i := range matches {
			move := perAgent
			if move > st.s[i] {
				move = st.s[i]
			}
			st.s[i] -= move
			st.i[i] += move
		}
	}
}

// hospitalizations weights the day's new cases by each agent's share of the
// infectious pool and its age band's hospitalization risk.
func (e *Engine) hospitalizations(st *State, newCases int) float64 {
	totalI := 0
	for i := range st.i {
		totalI += st.i[i]
	}
	if totalI == 0 || newCases == 0 {
		return 0
	}

	var hosp float64
	for i, ag := range e.agents {
		if st.i[i] == 0 {
			continue
		}
		band := ag.AgeGroup
		if band == "" || band == population.StaffAgeGroup {
			band = adultAgeBand
		}
		risk, ok := e.params.HospitalizationRisk[band]
		if !ok {
			risk = defaultHospitalizationRisk
		}
		frac := float64(st.i[i]) / float64(totalI)
		hosp += float64(newCases) * frac * risk
	}
	return hosp
}

// binomial draws from Binomial(n, p) using the engine's random stream.
func (e *Engine) binomial(n int, p float64) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	b := distuv.Binomial{N: float64(n), P: p, Src: e.src}
	return int(b.Rand())
}
