package domain

import "time"

// Index names as they appear in consolidated outputs. The seasonality index
// keeps its historical underscore form so downstream consumers of earlier
// exports keep working.
const (
	IndexPRCPTOT     = "PRCPTOT"
	IndexR95p        = "R95p"
	IndexRX1day      = "RX1day"
	IndexRX5day      = "RX5day"
	IndexSDII        = "SDII"
	IndexR20mm       = "R20mm"
	IndexCDD         = "CDD"
	IndexCWD         = "CWD"
	IndexSeasonality = "Seasonality_Index"
)

// SeriesIdentity names the (city, model, scenario) a daily series belongs to.
// Scenario carries the window label when a catalog splits a pathway into
// sub-periods.
type SeriesIdentity struct {
	City     string
	Model    string
	Scenario string
}

// ClimateIndexRecord is one computed statistic for one city, model and
// scenario. Month is zero for annually grouped indices. Terminal once written
// to the consolidated output.
type ClimateIndexRecord struct {
	City     string     `json:"city"`
	Model    string     `json:"model"`
	Scenario string     `json:"scenario"`
	Index    string     `json:"index"`
	Year     int        `json:"year"`
	Month    time.Month `json:"month,omitempty"`
	Value    float64    `json:"value"`
}
