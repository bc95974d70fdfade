package pipeline

import (
	"github.com/hidrosfera/climdex-etl/internal/domain"
)

// TableWriter persists the whole consolidated record set as one artifact and
// returns the artifact's path.
type TableWriter interface {
	WriteTable(records []domain.ClimateIndexRecord) (string, error)
}

// SeriesSink persists one combination's daily series.
type SeriesSink interface {
	Write(id domain.SeriesIdentity, series domain.DailySeries) error
}

// OutputRequest is one artifact the batch should produce. The variants form a
// closed set so Run can dispatch on the concrete type instead of threading
// format flags through the pipeline. Requests combine freely; a run with no
// requests still computes and checkpoints every unit.
type OutputRequest interface {
	isOutputRequest()
}

// ConsolidatedCSV requests the full record table as one CSV file.
type ConsolidatedCSV struct {
	Writer TableWriter
}

// ConsolidatedParquet requests the full record table as one Parquet file.
type ConsolidatedParquet struct {
	Writer TableWriter
}

// SeriesFull requests a dated, headered CSV per city-model-scenario series.
type SeriesFull struct {
	Sink SeriesSink
}

// SeriesMinimal requests a value-only CSV per series, the layout the Netuno
// simulation tool imports.
type SeriesMinimal struct {
	Sink SeriesSink
}

func (ConsolidatedCSV) isOutputRequest()     {}
func (ConsolidatedParquet) isOutputRequest() {}
func (SeriesFull) isOutputRequest()          {}
func (SeriesMinimal) isOutputRequest()       {}

// seriesSinks returns the per-series sinks among the requests, in request
// order.
func seriesSinks(requests []OutputRequest) []SeriesSink {
	var sinks []SeriesSink
	for _, req := range requests {
		switch r := req.(type) {
		case SeriesFull:
			sinks = append(sinks, r.Sink)
		case SeriesMinimal:
			sinks = append(sinks, r.Sink)
		}
	}
	return sinks
}

// tableWriters returns the consolidated-table writers among the requests, in
// request order.
func tableWriters(requests []OutputRequest) []TableWriter {
	var writers []TableWriter
	for _, req := range requests {
		switch r := req.(type) {
		case ConsolidatedCSV:
			writers = append(writers, r.Writer)
		case ConsolidatedParquet:
			writers = append(writers, r.Writer)
		}
	}
	return writers
}
