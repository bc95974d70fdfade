// Package pipeline drives the resumable batch that turns gridded daily
// precipitation files into per-city series and climate-index records.
//
// The unit of work is one (model, scenario) pair across all cities, processed
// in catalog order so resume behavior is reproducible. A unit is atomic: its
// checkpoint is written only after every city has been computed, and a unit
// restored from a checkpoint is never recomputed. The supported interruption
// point is between units.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hidrosfera/climdex-etl/internal/domain"
	"github.com/hidrosfera/climdex-etl/internal/observability"
)

// ErrNoProgress reports a batch in which not a single combination was
// computed or restored.
var ErrNoProgress = errors.New("batch made no progress")

const defaultCacheSize = 1000

// GridSource is one open precipitation file: its coordinate axes, its
// calendar, and per-cell reads across the whole time dimension.
type GridSource interface {
	Axes() (lats, lons []float64)
	Dates() []time.Time
	ReadCell(latIdx, lonIdx int) ([]float64, error)
	Close() error
}

// SourceOpener opens the grid file at path. Production wires the NetCDF
// reader; tests substitute fakes.
type SourceOpener func(path string) (GridSource, error)

// CheckpointStore detects, loads, and saves per-unit checkpoints, and clears
// them once the batch's outputs are durable.
type CheckpointStore interface {
	Has(model, scenario string) bool
	Load(model, scenario string) ([]domain.ClimateIndexRecord, error)
	Save(model, scenario string, records []domain.ClimateIndexRecord) error
	Finalize(keep bool) error
}

// DisabledCheckpoints is a CheckpointStore for runs with recovery switched
// off: nothing is ever found and nothing is saved.
type DisabledCheckpoints struct{}

func (DisabledCheckpoints) Has(string, string) bool { return false }

func (DisabledCheckpoints) Load(string, string) ([]domain.ClimateIndexRecord, error) {
	return nil, errors.New("checkpoints disabled")
}

func (DisabledCheckpoints) Save(string, string, []domain.ClimateIndexRecord) error { return nil }

func (DisabledCheckpoints) Finalize(bool) error { return nil }

// RecordPublisher forwards a completed unit's records to a streaming sink.
type RecordPublisher interface {
	PublishRecords(ctx context.Context, records []domain.ClimateIndexRecord) error
}

// Params collects the collaborators and settings for one batch.
type Params struct {
	Catalog     *domain.Catalog
	Resolved    map[string]domain.ResolvedLocation
	InputDir    string
	Open        SourceOpener
	Checkpoints CheckpointStore
	Outputs     []OutputRequest
	Publisher   RecordPublisher // optional

	KeepCheckpoints bool
	CacheSize       int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Pipeline orchestrates the batch: restore or compute every model-scenario
// unit, feed the per-series sinks, then write the consolidated artifacts.
type Pipeline struct {
	catalog     *domain.Catalog
	resolved    map[string]domain.ResolvedLocation
	names       []string
	inputDir    string
	open        SourceOpener
	checkpoints CheckpointStore
	sinks       []SeriesSink
	tables      []TableWriter
	publisher   RecordPublisher
	keep        bool

	cache       *seriesCache
	lastPath    string
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
	progress progress
}

// New creates a Pipeline from params. City iteration order is fixed to the
// byte-wise sorted resolved names, the same order every output file uses.
func New(p Params) *Pipeline {
	cacheSize := p.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	names := domain.SortedNames(p.Resolved)
	pl := &Pipeline{
		catalog:     p.Catalog,
		resolved:    p.Resolved,
		names:       names,
		inputDir:    p.InputDir,
		open:        p.Open,
		checkpoints: p.Checkpoints,
		sinks:       seriesSinks(p.Outputs),
		tables:      tableWriters(p.Outputs),
		publisher:   p.Publisher,
		keep:        p.KeepCheckpoints,
		cache:       newSeriesCache(cacheSize),
		logger:      p.Logger,
		metrics:     p.Metrics,
	}
	pl.progress.total = len(p.Catalog.Models) * len(p.Catalog.Scenarios) * len(names)
	return pl
}

// CheckReadiness reports nil once at least one unit has produced or restored
// records.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no unit has completed yet")
	}
	return nil
}

// ProgressSnapshot returns the live combination counters for status
// reporting. The processed count includes combinations restored from
// checkpoints.
func (p *Pipeline) ProgressSnapshot() (processed, total, failed int) {
	return p.progress.snapshot()
}

// CacheStats returns the daily-series cache counters for the run so far.
func (p *Pipeline) CacheStats() (hits, misses uint64) {
	return p.cacheHits.Load(), p.cacheMisses.Load()
}

// Run executes the batch to completion. Unit failures are reported and
// skipped; Run returns an error only when the batch is interrupted between
// units, when no combination makes any progress at all, or when a
// consolidated artifact cannot be written. Checkpoints are cleared only after
// every requested artifact is durable.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.names) == 0 {
		return fmt.Errorf("%w: no resolved locations", ErrNoProgress)
	}

	start := time.Now()
	p.logger.Info("batch started",
		"cities", len(p.names),
		"models", len(p.catalog.Models),
		"scenarios", len(p.catalog.Scenarios),
		"combinations", p.progress.total)
	p.metrics.BatchRunning.Set(1)
	defer p.metrics.BatchRunning.Set(0)

	var consolidated []domain.ClimateIndexRecord
	for _, model := range p.catalog.Models {
		for _, scen := range p.catalog.Scenarios {
			if err := ctx.Err(); err != nil {
				p.logger.Info("batch interrupted, checkpoints retained", "reason", err)
				return err
			}

			records := p.processUnit(ctx, model, scen)
			if len(records) > 0 {
				p.ready.Store(true)
			}
			consolidated = append(consolidated, records...)
		}
		p.logger.Info("model completed", "model", model)
	}

	s := p.progress.summarize()
	p.logger.Info("batch completed",
		"processed", s.processed,
		"total", s.total,
		"skipped", s.skipped,
		"errors", s.failed,
		"success_rate", fmt.Sprintf("%.2f%%", s.successRate),
		"process_rate", fmt.Sprintf("%.2f%%", s.processRate),
		"duration", time.Since(start).Round(time.Millisecond))

	if len(consolidated) == 0 {
		return fmt.Errorf("%w: every unit failed or was empty", ErrNoProgress)
	}

	if err := p.writeConsolidated(consolidated); err != nil {
		return err
	}

	if err := p.checkpoints.Finalize(p.keep); err != nil {
		p.logger.Warn("checkpoint finalize failed", "error", err)
	}
	return nil
}

// processUnit produces one unit's records, restored from a checkpoint when a
// valid one exists, computed from the source file otherwise. Unit-level
// failures are logged and absorbed; the batch moves on.
func (p *Pipeline) processUnit(ctx context.Context, model string, scen domain.Scenario) []domain.ClimateIndexRecord {
	if p.checkpoints.Has(model, scen.Label) {
		records, err := p.checkpoints.Load(model, scen.Label)
		if err != nil {
			// A checkpoint that exists but cannot be decoded means recomputing
			// would silently discard prior work. Fail the unit instead.
			p.metrics.UnitsFailed.Inc()
			p.logger.Error("checkpoint unusable, unit skipped",
				"error", err, "model", model, "scenario", scen.Label)
			return nil
		}
		p.metrics.UnitsRestored.Inc()
		p.metrics.CheckpointsLoaded.Inc()
		p.progress.unitRestored(len(p.names))
		p.logger.Info("unit restored from checkpoint",
			"model", model, "scenario", scen.Label, "records", len(records))
		return records
	}

	records, err := p.computeUnit(model, scen)
	if err != nil {
		p.metrics.UnitsFailed.Inc()
		p.logger.Warn("unit skipped",
			"error", err, "model", model, "scenario", scen.Label)
		return nil
	}

	if err := p.checkpoints.Save(model, scen.Label, records); err != nil {
		p.logger.Warn("checkpoint save failed",
			"error", err, "model", model, "scenario", scen.Label)
	} else if len(records) > 0 {
		p.metrics.CheckpointsSaved.Inc()
	}

	// Restored units are not republished; their records went out when the
	// unit was first computed.
	if p.publisher != nil && len(records) > 0 {
		if err := p.publisher.PublishRecords(ctx, records); err != nil {
			p.logger.Warn("record publish failed",
				"error", err, "model", model, "scenario", scen.Label)
		} else {
			p.metrics.RecordsPublished.Add(float64(len(records)))
		}
	}

	p.metrics.UnitsProcessed.Inc()
	return records
}

// computeUnit extracts and computes every city of one unit. An error opening
// the source fails the whole unit; per-city errors only mark that combination
// failed.
func (p *Pipeline) computeUnit(model string, scen domain.Scenario) ([]domain.ClimateIndexRecord, error) {
	path := filepath.Join(p.inputDir, scen.SourceFile(model))

	src, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// Scenario windows sharing a file sit next to each other in catalog
	// order, so the cache survives across them and resets on a new file.
	if path != p.lastPath {
		p.cache.reset()
		p.lastPath = path
	}

	lats, lons := src.Axes()
	grid := domain.NewGridIndex(lats, lons)
	dates := src.Dates()

	var unit []domain.ClimateIndexRecord
	for _, name := range p.names {
		id := domain.SeriesIdentity{City: name, Model: model, Scenario: scen.Label}

		records, err := p.processCombination(src, grid, dates, path, scen, id)
		if err != nil {
			done, total := p.progress.combinationFailed()
			p.metrics.Combinations.WithLabelValues("error").Inc()
			p.logger.Warn("combination failed",
				"progress", fmt.Sprintf("%d/%d", done, total),
				"error", err, "city", name, "model", model, "scenario", scen.Label)
			continue
		}
		done, total := p.progress.combinationDone()
		p.metrics.Combinations.WithLabelValues("success").Inc()
		p.logger.Debug("combination completed",
			"progress", fmt.Sprintf("%d/%d", done, total),
			"city", name, "model", model, "scenario", scen.Label)
		unit = append(unit, records...)
	}
	return unit, nil
}

// processCombination extracts one city's series for the scenario window and
// computes its records. The cell read is served from the cache when another
// city already resolved to the same cell of this file.
func (p *Pipeline) processCombination(src GridSource, grid *domain.GridIndex, dates []time.Time, path string, scen domain.Scenario, id domain.SeriesIdentity) ([]domain.ClimateIndexRecord, error) {
	rl, ok := p.resolved[id.City]
	if !ok {
		return nil, fmt.Errorf("location %q not resolved", id.City)
	}
	latIdx, ok := grid.LatIndex(rl.Nearest.Lat)
	if !ok {
		return nil, fmt.Errorf("resolved latitude %v not on this file's axis", rl.Nearest.Lat)
	}
	lonIdx, ok := grid.LonIndex(rl.Nearest.Lon)
	if !ok {
		return nil, fmt.Errorf("resolved longitude %v not on this file's axis", rl.Nearest.Lon)
	}

	raw, hit, err := p.cache.getOrCompute(cacheKey{path: path, coord: rl.Nearest}, func() ([]float64, error) {
		begin := time.Now()
		values, err := src.ReadCell(latIdx, lonIdx)
		if err != nil {
			return nil, err
		}
		p.metrics.ExtractionDuration.Observe(time.Since(begin).Seconds())
		return values, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read cell: %w", err)
	}
	if hit {
		p.cacheHits.Add(1)
		p.metrics.SeriesCache.WithLabelValues("hit").Inc()
	} else {
		p.cacheMisses.Add(1)
		p.metrics.SeriesCache.WithLabelValues("miss").Inc()
	}

	series := buildSeries(dates, raw).FilterPeriod(scen.Start, scen.End)
	if len(series) == 0 {
		return nil, fmt.Errorf("no samples between %s and %s",
			scen.Start.Format(time.DateOnly), scen.End.Format(time.DateOnly))
	}

	for _, sink := range p.sinks {
		if err := sink.Write(id, series); err != nil {
			return nil, fmt.Errorf("write series: %w", err)
		}
	}

	return domain.ComputeIndices(id, series), nil
}

// writeConsolidated hands the full record set to every requested table
// writer. All writers are attempted even when one fails.
func (p *Pipeline) writeConsolidated(records []domain.ClimateIndexRecord) error {
	var errs []error
	for _, w := range p.tables {
		if _, err := w.WriteTable(records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// progress carries the live batch counters. processed counts combinations
// attempted this run and failed the subset that errored; restored counts
// combinations served from checkpoints, which the final summary folds into
// skipped alongside the cities of units that could not be read.
type progress struct {
	mu        sync.Mutex
	total     int
	processed int
	failed    int
	restored  int
}

func (p *progress) combinationDone() (done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	return p.processed, p.total
}

func (p *progress) combinationFailed() (done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	p.failed++
	return p.processed, p.total
}

func (p *progress) unitRestored(cities int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restored += cities
}

func (p *progress) snapshot() (processed, total, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed + p.restored, p.total, p.failed
}

// batchSummary is the final-state arithmetic over the counters: skipped is
// everything never attempted this run, succeeded the attempts that worked,
// and the rates are relative to attempts and to the whole batch respectively.
type batchSummary struct {
	total       int
	processed   int
	failed      int
	skipped     int
	succeeded   int
	successRate float64
	processRate float64
}

func (p *progress) summarize() batchSummary {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := batchSummary{
		total:     p.total,
		processed: p.processed,
		failed:    p.failed,
		skipped:   p.total - p.processed,
		succeeded: p.processed - p.failed,
	}
	if p.processed > 0 {
		s.successRate = 100 * float64(s.succeeded) / float64(p.processed)
	}
	if p.total > 0 {
		s.processRate = 100 * float64(p.processed) / float64(p.total)
	}
	return s
}
