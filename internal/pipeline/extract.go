package pipeline

import (
	"math"
	"time"

	"github.com/hidrosfera/climdex-etl/internal/domain"
)

// buildSeries pairs a file's calendar with one cell's raw readings. Missing
// values surface from the reader as NaN and become 0.0 here; that substitution
// is the documented business rule for gaps in the source data, never an error.
// Negative readings are artifacts of undeclared fill values and also clamp to
// zero, keeping the series non-negative end to end.
func buildSeries(dates []time.Time, raw []float64) domain.DailySeries {
	n := min(len(dates), len(raw))
	series := make(domain.DailySeries, n)
	for i := 0; i < n; i++ {
		v := raw[i]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			v = 0
		}
		series[i] = domain.DailyValue{Date: dates[i], Precipitation: v}
	}
	return series
}
