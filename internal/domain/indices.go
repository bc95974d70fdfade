package domain

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// ETCCDI thresholds, in mm/day.
const (
	WetDayThreshold   = 1.0
	HeavyDayThreshold = 20.0
)

const (
	rx5dayWindow  = 5
	r95pQuantile  = 0.95
	monthsPerYear = 12
)

// ComputeIndices derives the nine precipitation indices from one city's daily
// series. Pure and deterministic: the same series always yields the same
// records in the same order (years ascending; within a year, annual indices
// in their output column order and monthly indices by ascending month). An
// empty series yields no records. A series of all zeros is well-defined: the
// wet-day indices are zero and CDD spans each whole year.
func ComputeIndices(id SeriesIdentity, series DailySeries) []ClimateIndexRecord {
	if len(series) == 0 {
		return nil
	}

	threshold := r95Threshold(series)
	rolling := trailingSums(series, rx5dayWindow)

	var records []ClimateIndexRecord
	annual := func(year int, index string, value float64) {
		records = append(records, ClimateIndexRecord{
			City: id.City, Model: id.Model, Scenario: id.Scenario,
			Index: index, Year: year, Value: value,
		})
	}
	monthly := func(year int, month time.Month, index string, value float64) {
		records = append(records, ClimateIndexRecord{
			City: id.City, Model: id.Model, Scenario: id.Scenario,
			Index: index, Year: year, Month: month, Value: value,
		})
	}

	for _, yg := range splitYears(series) {
		months := splitMonths(yg)
		wet := wetValues(yg.days)

		annual(yg.year, IndexPRCPTOT, floats.Sum(wet))
		annual(yg.year, IndexR95p, sumAbove(yg.days, threshold))
		for _, mg := range months {
			monthly(yg.year, mg.month, IndexRX1day, floats.Max(precipitationValues(mg.days)))
		}
		for _, mg := range months {
			// The trailing window may reach into the previous month or year,
			// matching the reference rolling-sum definition.
			monthly(yg.year, mg.month, IndexRX5day, floats.Max(rolling[mg.start:mg.start+len(mg.days)]))
		}
		annual(yg.year, IndexSDII, meanOrZero(wet))
		annual(yg.year, IndexR20mm, float64(countAtLeast(yg.days, HeavyDayThreshold)))
		annual(yg.year, IndexCDD, float64(longestRun(yg.days, isDry)))
		annual(yg.year, IndexCWD, float64(longestRun(yg.days, isWet)))
		annual(yg.year, IndexSeasonality, seasonalityIndex(months))
	}
	return records
}

func isWet(v float64) bool { return v >= WetDayThreshold }
func isDry(v float64) bool { return v < WetDayThreshold }

// yearGroup is the contiguous run of one calendar year's days within a
// series. start is the absolute offset into the full series.
type yearGroup struct {
	year  int
	start int
	days  DailySeries
}

// monthGroup is the contiguous run of one month's days within a year group.
// start is absolute, like yearGroup.start.
type monthGroup struct {
	month time.Month
	start int
	days  DailySeries
}

// splitYears groups a date-ordered series into calendar years. Ordering makes
// every year a single contiguous run.
func splitYears(series DailySeries) []yearGroup {
	var groups []yearGroup
	start := 0
	for i := 1; i <= len(series); i++ {
		if i == len(series) || series[i].Date.Year() != series[start].Date.Year() {
			groups = append(groups, yearGroup{
				year:  series[start].Date.Year(),
				start: start,
				days:  series[start:i],
			})
			start = i
		}
	}
	return groups
}

func splitMonths(yg yearGroup) []monthGroup {
	var groups []monthGroup
	start := 0
	for i := 1; i <= len(yg.days); i++ {
		if i == len(yg.days) || yg.days[i].Date.Month() != yg.days[start].Date.Month() {
			groups = append(groups, monthGroup{
				month: yg.days[start].Date.Month(),
				start: yg.start + start,
				days:  yg.days[start:i],
			})
			start = i
		}
	}
	return groups
}

// trailingSums computes, for every day, the sum of the window ending on that
// day. Windows at the head of the series sum the days that exist, matching a
// rolling window with a minimum period of one.
func trailingSums(series DailySeries, window int) []float64 {
	sums := make([]float64, len(series))
	var running float64
	for i, day := range series {
		running += day.Precipitation
		if i >= window {
			running -= series[i-window].Precipitation
		}
		sums[i] = running
	}
	return sums
}

// longestRun returns the length of the longest consecutive run of days
// matching pred. Runs are evaluated within the given days only, so a spell
// spanning two calendar years counts separately toward each year.
func longestRun(days DailySeries, pred func(float64) bool) int {
	longest, current := 0, 0
	for _, day := range days {
		if !pred(day.Precipitation) {
			current = 0
			continue
		}
		current++
		if current > longest {
			longest = current
		}
	}
	return longest
}

// r95Threshold fixes the whole-period wet-day 95th percentile that R95p sums
// against. With no wet days anywhere nothing can exceed the threshold, so it
// is +Inf and every year's R95p is zero.
func r95Threshold(series DailySeries) float64 {
	wet := wetValues(series)
	if len(wet) == 0 {
		return math.Inf(1)
	}
	sort.Float64s(wet)
	return quantileLinear(wet, r95pQuantile)
}

// quantileLinear interpolates the q-quantile of sorted values at rank
// h = (len-1)·q, linearly between the neighbouring ranked values. This is the
// estimator the reference implementation used, locked here so a given series
// always yields the same threshold.
func quantileLinear(sorted []float64, q float64) float64 {
	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

// seasonalityIndex quantifies how unevenly a year's precipitation spreads
// across its months: SI = (1/R)·Σ|monthly_total − R/12| over the months
// present, where R is the annual total (Walsh and Lawler, 1981). Partial
// years sum over their observed months only. A year with R ≤ 0 has no
// seasonal structure to measure and yields 0.
func seasonalityIndex(months []monthGroup) float64 {
	totals := make([]float64, 0, monthsPerYear)
	var annual float64
	for _, mg := range months {
		t := floats.Sum(precipitationValues(mg.days))
		totals = append(totals, t)
		annual += t
	}
	if annual <= 0 {
		return 0
	}

	even := annual / monthsPerYear
	var si float64
	for _, t := range totals {
		si += math.Abs(t - even)
	}
	return si / annual
}

func precipitationValues(days DailySeries) []float64 {
	vs := make([]float64, len(days))
	for i, day := range days {
		vs[i] = day.Precipitation
	}
	return vs
}

func wetValues(days DailySeries) []float64 {
	vs := make([]float64, 0, len(days))
	for _, day := range days {
		if isWet(day.Precipitation) {
			vs = append(vs, day.Precipitation)
		}
	}
	return vs
}

func sumAbove(days DailySeries, threshold float64) float64 {
	var sum float64
	for _, day := range days {
		if day.Precipitation > threshold {
			sum += day.Precipitation
		}
	}
	return sum
}

func countAtLeast(days DailySeries, threshold float64) int {
	var n int
	for _, day := range days {
		if day.Precipitation >= threshold {
			n++
		}
	}
	return n
}

func meanOrZero(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	return floats.Sum(vs) / float64(len(vs))
}
