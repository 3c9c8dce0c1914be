package seir

import "github.com/cascadia-health/epiforecast/internal/population"

// communityLayer is the contact layer key applied to tract agents.
const communityLayer = "community"

// Tiered contact weights. Results are sensitive to these; they must not be
// renormalized or reordered.
const (
	weightSameTract          = 0.7 // tract target, tract agents in same tract
	weightFacilityInTract    = 0.3 // tract target, facility agents in same tract
	weightSameFacility       = 0.8 // facility target, agents in same facility
	weightSurroundingTract   = 0.2 // facility target, tract agents in its tract
)

// forceOfInfection computes the per-agent infection hazard for one timestep.
// Each agent's infectious pressure is its normalized infectious fraction
// scaled by transmissibility, the seasonal factor, and its contact layer
// weight; the hazard on a target sums contributing pressures under the
// tiered weights plus any configured external force. The all-pairs scan is
// quadratic in agent count, which is acceptable at the low thousands of
// agents this runs over.
func (e *Engine) forceOfInfection(st *State, seasonalFactor float64) []float64 {
	n := len(e.agents)
	base := e.params.TransmissibilityBase * seasonalFactor

	pressure := make([]float64, n)
	for i, ag := range e.agents {
		if st.i[i] == 0 || ag.Count == 0 {
			continue
		}
		normalized := float64(st.i[i]) / float64(ag.Count)
		layer := e.contactLayers[communityLayer]
		if ag.Kind == population.KindFacility {
			var ok bool
			layer, ok = e.contactLayers[ag.FacilityType]
			if !ok {
				layer = 1.0
			}
		}
		pressure[i] = normalized * base * layer
	}

	foi := make([]float64, n)
	for j, target := range e.agents {
		foi[j] = e.externalForce

		if target.Kind == population.KindTract {
			for i, other := range e.agents {
				if other.TractFIPS != target.TractFIPS {
					continue
				}
				if other.Kind == population.KindTract {
					foi[j] += pressure[i] * weightSameTract
				} else {
					foi[j] += pressure[i] * weightFacilityInTract
				}
			}
			continue
		}

		for i, other := range e.agents {
			if other.Kind == population.KindFacility && other.FacilityID == target.FacilityID {
				foi[j] += pressure[i] * weightSameFacility
			}
			if other.Kind == population.KindTract && other.TractFIPS == target.TractFIPS {
				foi[j] += pressure[i] * weightSurroundingTract
			}
		}
	}

	return foi
}
