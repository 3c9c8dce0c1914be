package runner

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cascadia-health/epiforecast/internal/model"
)

// Fallback compartment fractions when no surveillance data precedes the
// start date.
var defaultInitial = model.InitialConditions{S: 0.9, E: 0.01, I: 0.01, R: 0.08}

// initialWindowWeeks is how many trailing weeks of observations inform the
// starting compartment estimate.
const initialWindowWeeks = 4

// initialConditions estimates the starting S/E/I/R fractions from the
// trailing weeks of surveillance before the start date. Observed cases are
// inflated by the detection multiplier to approximate true infectious
// prevalence, and the recovered pool combines assumed prior-infection
// immunity with effective vaccination coverage.
func initialConditions(observations []model.WeeklyObservation, params model.DiseaseParameters, startDate time.Time, totalPopulation int) model.InitialConditions {
	var recent []model.WeeklyObservation
	for _, o := range observations {
		if !o.WeekEndDate.After(startDate) {
			recent = append(recent, o)
		}
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i].WeekEndDate.Before(recent[j].WeekEndDate) })
	if len(recent) > initialWindowWeeks {
		recent = recent[len(recent)-initialWindowWeeks:]
	}

	if len(recent) == 0 {
		zap.L().Warn("runner: no surveillance data before start date, using default initial conditions")
		return defaultInitial
	}

	var totalCases float64
	for _, o := range recent {
		totalCases += o.Cases
	}
	avgWeeklyCases := totalCases / float64(len(recent))
	estimatedInfectious := avgWeeklyCases / params.DetectionMultiplier

	vaccinationRate := 0.2
	if vacc := recent[len(recent)-1].Vaccinations; len(vacc) > 0 {
		var sum float64
		for _, v := range vacc {
			sum += v
		}
		vaccinationRate = sum / float64(len(vacc))
	}

	vaccineEffect := 0.5
	if len(params.VaccineEffectiveness) > 0 {
		var sum float64
		for _, v := range params.VaccineEffectiveness {
			sum += v
		}
		vaccineEffect = sum / float64(len(params.VaccineEffectiveness))
	}

	pop := float64(totalPopulation)
	if pop <= 0 {
		pop = 100000
	}

	infectious := estimatedInfectious / pop
	if infectious > 0.05 {
		infectious = 0.05
	}
	recovered := 0.3 // assumed prior-infection immunity
	vaccinatedEffective := vaccinationRate * vaccineEffect

	susceptible := 1.0 - infectious - recovered - vaccinatedEffective
	if susceptible < 0.1 {
		susceptible = 0.1
	}
	exposed := infectious * 0.5

	return model.InitialConditions{
		S: susceptible,
		E: exposed,
		I: infectious,
		R: recovered + vaccinatedEffective,
	}
}
