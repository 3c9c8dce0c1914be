package seir

import (
	"math"
	"time"

	"github.com/cascadia-health/epiforecast/internal/model"
)

const daysInYear = 365.25

// seasonalFactor returns the cosine forcing multiplier for a date, peaking
// on the 15th of the configured month. Returns 1.0 when forcing is not
// configured.
func seasonalFactor(date time.Time, f *model.SeasonalForcing) float64 {
	if f == nil {
		return 1.0
	}

	peak := time.Date(date.Year(), time.Month(f.PeakMonth), 15, 0, 0, 0, 0, date.Location())
	if int(date.Month()) > f.PeakMonth {
		peak = peak.AddDate(1, 0, 0)
	}

	daysFromPeak := math.Abs(peak.Sub(date).Hours() / 24)
	return 1.0 + f.Amplitude*math.Cos(2*math.Pi*daysFromPeak/daysInYear)
}
