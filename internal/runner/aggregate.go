// Package runner executes simulation runs: it assembles the population,
// fans repetitions across a worker pool, and aggregates the surviving
// percentile bands and facility impacts.
package runner

import (
	"math"
	"sort"
	"time"

	"github.com/cascadia-health/epiforecast/internal/model"
	"github.com/cascadia-health/epiforecast/internal/seir"
)

// percentiles are the retained bands, in band order.
var percentiles = []float64{0.05, 0.25, 0.50, 0.75, 0.95}

// aggregateTimeseries reduces per-repetition daily series to percentile
// bands per metric. Individual repetitions are discarded afterwards.
func aggregateTimeseries(reps []*seir.Result, startDate time.Time) map[string]model.PercentileSeries {
	if len(reps) == 0 {
		return map[string]model.PercentileSeries{}
	}

	metrics := map[string]func(*seir.Result) []float64{
		"cases":            func(r *seir.Result) []float64 { return r.Cases },
		"hospitalizations": func(r *seir.Result) []float64 { return r.Hospitalizations },
		"ed_visits":        func(r *seir.Result) []float64 { return r.EDVisits },
	}

	out := make(map[string]model.PercentileSeries, len(metrics))
	for name, series := range metrics {
		out[name] = percentileBands(reps, series, startDate)
	}
	return out
}

func percentileBands(reps []*seir.Result, series func(*seir.Result) []float64, startDate time.Time) model.PercentileSeries {
	days := len(series(reps[0]))
	bands := make([][]model.TimeseriesPoint, len(percentiles))
	for b := range bands {
		bands[b] = make([]model.TimeseriesPoint, days)
	}

	values := make([]float64, len(reps))
	for d := 0; d < days; d++ {
		for i, rep := range reps {
			values[i] = series(rep)[d]
		}
		sort.Float64s(values)

		date := startDate.AddDate(0, 0, d)
		for b, p := range percentiles {
			bands[b][d] = model.TimeseriesPoint{
				Date:  date,
				Value: quantile(values, p),
			}
		}
	}

	return model.PercentileSeries{
		P5:  bands[0],
		P25: bands[1],
		P50: bands[2],
		P75: bands[3],
		P95: bands[4],
	}
}

// quantile interpolates linearly between the order statistics of the sorted
// sample (R-7, numpy's default): h = (n-1)p, so the median of an even-length
// sample is the midpoint of its two middle values.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

// aggregateFacilityImpacts averages each facility's per-repetition impacts
// and re-derives the risk band and case range from the means.
func aggregateFacilityImpacts(reps []*seir.Result, facilityNames map[string]string) []model.FacilityImpact {
	type accum struct {
		impact model.FacilityImpact
		n      int
	}
	byFacility := make(map[string]*accum)

	for _, rep := range reps {
		for _, fi := range rep.FacilityImpacts {
			acc, ok := byFacility[fi.FacilityID]
			if !ok {
				acc = &accum{impact: model.FacilityImpact{
					FacilityID: fi.FacilityID,
					Type:       fi.Type,
					Name:       facilityNames[fi.FacilityID],
				}}
				byFacility[fi.FacilityID] = acc
			}
			acc.impact.ExpectedCases += fi.ExpectedCases
			acc.impact.AttackRate += fi.AttackRate
			acc.impact.CapacityImpactPct += fi.CapacityImpactPct
			acc.n++
		}
	}

	impacts := make([]model.FacilityImpact, 0, len(byFacility))
	for _, acc := range byFacility {
		n := float64(acc.n)
		fi := acc.impact
		fi.ExpectedCases /= n
		fi.AttackRate /= n
		fi.CapacityImpactPct /= n
		fi.CaseRange = model.CaseRange{Low: fi.ExpectedCases * 0.5, High: fi.ExpectedCases * 1.5}
		fi.RiskBand = model.RiskBandFor(fi.CapacityImpactPct)
		impacts = append(impacts, fi)
	}

	sort.Slice(impacts, func(i, j int) bool { return impacts[i].FacilityID < impacts[j].FacilityID })
	return impacts
}
