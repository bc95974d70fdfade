package domain

import "time"

// DailyValue is one day of precipitation at a grid cell, in mm/day.
type DailyValue struct {
	Date          time.Time `json:"date"`
	Precipitation float64   `json:"precipitation"`
}

// DailySeries is a date-ordered sequence of consecutive calendar days.
// Values are ≥ 0 once extraction has applied the missing→0.0 substitution.
// A series is owned by the extraction that produced it and never mutated.
type DailySeries []DailyValue

// FilterPeriod returns the subsequence whose dates fall between start and
// end, both inclusive. A zero start or end leaves that bound open. The result
// shares the underlying array.
func (s DailySeries) FilterPeriod(start, end time.Time) DailySeries {
	lo := 0
	for lo < len(s) && !start.IsZero() && s[lo].Date.Before(start) {
		lo++
	}
	hi := len(s)
	for hi > lo && !end.IsZero() && s[hi-1].Date.After(end) {
		hi--
	}
	return s[lo:hi]
}
