package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrosfera/climdex-etl/internal/domain"
	"github.com/hidrosfera/climdex-etl/internal/observability"
	"github.com/hidrosfera/climdex-etl/internal/pipeline"
)

// --- mocks ---

type fakeSource struct {
	lats, lons []float64
	dates      []time.Time
	values     map[domain.GridCoordinate][]float64
	reads      int
	closed     bool
}

func (s *fakeSource) Axes() ([]float64, []float64) { return s.lats, s.lons }

func (s *fakeSource) Dates() []time.Time { return s.dates }

func (s *fakeSource) ReadCell(latIdx, lonIdx int) ([]float64, error) {
	s.reads++
	coord := domain.GridCoordinate{Lat: s.lats[latIdx], Lon: s.lons[lonIdx]}
	values, ok := s.values[coord]
	if !ok {
		return nil, fmt.Errorf("no data at (%v, %v)", coord.Lat, coord.Lon)
	}
	return values, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeOpener struct {
	sources map[string]*fakeSource // keyed by file base name
	opened  []string
}

func (o *fakeOpener) open(path string) (pipeline.GridSource, error) {
	name := filepath.Base(path)
	o.opened = append(o.opened, name)
	src, ok := o.sources[name]
	if !ok {
		return nil, fmt.Errorf("unreadable source: %s", name)
	}
	return src, nil
}

type memStore struct {
	saved     map[string][]domain.ClimateIndexRecord
	loadErr   map[string]error
	saveErr   error
	finalized bool
	keep      bool
}

func newMemStore() *memStore {
	return &memStore{
		saved:   make(map[string][]domain.ClimateIndexRecord),
		loadErr: make(map[string]error),
	}
}

func unitKey(model, scenario string) string { return model + "_" + scenario }

func (m *memStore) Has(model, scenario string) bool {
	if m.loadErr[unitKey(model, scenario)] != nil {
		return true
	}
	_, ok := m.saved[unitKey(model, scenario)]
	return ok
}

func (m *memStore) Load(model, scenario string) ([]domain.ClimateIndexRecord, error) {
	if err := m.loadErr[unitKey(model, scenario)]; err != nil {
		return nil, err
	}
	return m.saved[unitKey(model, scenario)], nil
}

func (m *memStore) Save(model, scenario string, records []domain.ClimateIndexRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if len(records) == 0 {
		return nil
	}
	m.saved[unitKey(model, scenario)] = records
	return nil
}

func (m *memStore) Finalize(keep bool) error {
	m.finalized = true
	m.keep = keep
	return nil
}

type memTable struct {
	records []domain.ClimateIndexRecord
	writes  int
	err     error
}

func (t *memTable) WriteTable(records []domain.ClimateIndexRecord) (string, error) {
	t.writes++
	if t.err != nil {
		return "", t.err
	}
	t.records = records
	return "mem://consolidated", nil
}

type memSink struct {
	written map[domain.SeriesIdentity]domain.DailySeries
	failFor string // city whose writes should fail
}

func newMemSink() *memSink {
	return &memSink{written: make(map[domain.SeriesIdentity]domain.DailySeries)}
}

func (s *memSink) Write(id domain.SeriesIdentity, series domain.DailySeries) error {
	if s.failFor != "" && id.City == s.failFor {
		return errors.New("disk full")
	}
	s.written[id] = series
	return nil
}

type memPublisher struct {
	batches [][]domain.ClimateIndexRecord
	err     error
}

func (p *memPublisher) PublishRecords(_ context.Context, records []domain.ClimateIndexRecord) error {
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, records)
	return nil
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func daysFrom(start time.Time, n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

func histScenario(start, end time.Time) domain.Scenario {
	return domain.Scenario{
		Name:  "Histórico",
		Label: "Histórico",
		File:  "{model}-pr-hist.nc",
		Start: start,
		End:   end,
	}
}

// testGrid is a 2x2 grid covering ten days of January 2020. Pelotas and Rio
// Grande share the lower-left cell; Torres sits on the opposite corner.
func testGrid() (*fakeSource, map[string]domain.ResolvedLocation) {
	cellA := domain.GridCoordinate{Lat: -30, Lon: -50}
	cellB := domain.GridCoordinate{Lat: -29.75, Lon: -49.75}

	src := &fakeSource{
		lats:  []float64{-30, -29.75},
		lons:  []float64{-50, -49.75},
		dates: daysFrom(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), 10),
		values: map[domain.GridCoordinate][]float64{
			cellA: {0, 0, 2, 0, 0, 0, 25, 1, 0, 3},
			cellB: {5, 5, 5, 5, 5, 5, 5, 5, 5, 5},
		},
	}

	resolved := map[string]domain.ResolvedLocation{
		"Pelotas": {
			Location: domain.TargetLocation{Name: "Pelotas", ExternalID: 4300604, Target: cellA},
			Nearest:  cellA,
		},
		"Rio Grande": {
			Location: domain.TargetLocation{Name: "Rio Grande", ExternalID: 4315602, Target: cellA},
			Nearest:  cellA,
		},
		"Torres": {
			Location: domain.TargetLocation{Name: "Torres", ExternalID: 4321501, Target: cellB},
			Nearest:  cellB,
		},
	}
	return src, resolved
}

func cityOrder(records []domain.ClimateIndexRecord) []string {
	var order []string
	for _, r := range records {
		if len(order) == 0 || order[len(order)-1] != r.City {
			order = append(order, r.City)
		}
	}
	return order
}

// --- tests ---

func TestPipeline_Run_ComputesAndConsolidates(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}
	store := newMemStore()
	table := &memTable{}

	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: store,
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.Error(t, p.CheckReadiness(context.Background()))
	require.NoError(t, p.Run(context.Background()))

	// Nine indices per city, all within one month of one year.
	require.Len(t, table.records, 27)
	assert.Equal(t, []string{"Pelotas", "Rio Grande", "Torres"}, cityOrder(table.records))
	assert.Equal(t, "Histórico", table.records[0].Scenario)

	assert.True(t, src.closed)
	assert.Contains(t, store.saved, "ACCESS-CM2_Histórico")
	assert.True(t, store.finalized)
	assert.False(t, store.keep)
	assert.NoError(t, p.CheckReadiness(context.Background()))

	processed, total, failed := p.ProgressSnapshot()
	assert.Equal(t, 3, processed)
	assert.Equal(t, 3, total)
	assert.Equal(t, 0, failed)
}

func TestPipeline_Run_SharedCellReadOnce(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: pipeline.DisabledCheckpoints{},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))

	// Three cities on two distinct cells: the shared cell is read once.
	assert.Equal(t, 2, src.reads)

	hits, misses := p.CacheStats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 2, misses)
}

func TestPipeline_Run_ResumeSkipsCheckpointedUnits(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"NESM3-pr-hist.nc": src}}

	restored := []domain.ClimateIndexRecord{
		{City: "Pelotas", Model: "MIROC6", Scenario: "Histórico", Index: domain.IndexPRCPTOT, Year: 2020, Value: 31},
		{City: "Torres", Model: "MIROC6", Scenario: "Histórico", Index: domain.IndexCDD, Year: 2020, Value: 4},
	}
	store := newMemStore()
	store.saved["MIROC6_Histórico"] = restored

	table := &memTable{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"MIROC6", "NESM3"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: store,
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))

	// The checkpointed unit is never reopened and its records come first.
	assert.Equal(t, []string{"NESM3-pr-hist.nc"}, opener.opened)
	require.Len(t, table.records, len(restored)+27)
	assert.Equal(t, restored, table.records[:len(restored)])
	assert.Equal(t, "NESM3", table.records[len(restored)].Model)

	processed, total, failed := p.ProgressSnapshot()
	assert.Equal(t, 6, processed, "restored combinations count as progress")
	assert.Equal(t, 6, total)
	assert.Equal(t, 0, failed)
}

func TestPipeline_Run_CorruptCheckpointFailsUnit(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{
		"MIROC6-pr-hist.nc": src,
		"NESM3-pr-hist.nc":  src,
	}}

	store := newMemStore()
	store.loadErr["MIROC6_Histórico"] = errors.New("corrupt checkpoint: truncated payload")

	table := &memTable{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"MIROC6", "NESM3"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: store,
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))

	// The corrupt unit is neither recomputed nor silently treated as pending.
	assert.Equal(t, []string{"NESM3-pr-hist.nc"}, opener.opened)
	require.Len(t, table.records, 27)
	assert.Equal(t, "NESM3", table.records[0].Model)
}

func TestPipeline_Run_UnreadableSourceSkipsUnit(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"NESM3-pr-hist.nc": src}}

	store := newMemStore()
	table := &memTable{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"MIROC6", "NESM3"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: store,
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, table.records, 27)
	assert.Equal(t, "NESM3", table.records[0].Model)
	assert.NotContains(t, store.saved, "MIROC6_Histórico")
	assert.Contains(t, store.saved, "NESM3_Histórico")
}

func TestPipeline_Run_NoReadableSourcesAborts(t *testing.T) {
	_, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{}}

	store := newMemStore()
	table := &memTable{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"MIROC6", "NESM3"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: store,
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	err := p.Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoProgress)
	assert.Zero(t, table.writes)
	assert.False(t, store.finalized, "checkpoints survive a failed batch")
}

func TestPipeline_Run_NoResolvedLocationsAborts(t *testing.T) {
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"MIROC6"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    map[string]domain.ResolvedLocation{},
		InputDir:    "/data",
		Open:        (&fakeOpener{}).open,
		Checkpoints: pipeline.DisabledCheckpoints{},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.ErrorIs(t, p.Run(context.Background()), pipeline.ErrNoProgress)
}

func TestPipeline_Run_OffAxisCombinationFails(t *testing.T) {
	src, resolved := testGrid()
	// Simulate a location resolved against a different grid.
	offAxis := domain.GridCoordinate{Lat: -12.5, Lon: -41.25}
	resolved["Lençóis"] = domain.ResolvedLocation{
		Location: domain.TargetLocation{Name: "Lençóis", ExternalID: 2919306, Target: offAxis},
		Nearest:  offAxis,
	}
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	table := &memTable{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: pipeline.DisabledCheckpoints{},
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []string{"Pelotas", "Rio Grande", "Torres"}, cityOrder(table.records))
	processed, total, failed := p.ProgressSnapshot()
	assert.Equal(t, 4, processed)
	assert.Equal(t, 4, total)
	assert.Equal(t, 1, failed)
}

func TestPipeline_Run_WindowOutsideCalendarAborts(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	scen := histScenario(
		time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1900, time.December, 31, 0, 0, 0, 0, time.UTC),
	)
	p := pipeline.New(pipeline.Params{
		Catalog:     &domain.Catalog{Models: []string{"ACCESS-CM2"}, Scenarios: []domain.Scenario{scen}},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: pipeline.DisabledCheckpoints{},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.ErrorIs(t, p.Run(context.Background()), pipeline.ErrNoProgress)

	processed, total, failed := p.ProgressSnapshot()
	assert.Equal(t, 3, processed)
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, failed)
}

func TestPipeline_Run_SeriesSinksReceiveWindowedSeries(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	windowStart := time.Date(2020, time.January, 3, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2020, time.January, 8, 0, 0, 0, 0, time.UTC)

	full := newMemSink()
	minimal := newMemSink()
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(windowStart, windowEnd)},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: pipeline.DisabledCheckpoints{},
		Outputs: []pipeline.OutputRequest{
			pipeline.SeriesFull{Sink: full},
			pipeline.SeriesMinimal{Sink: minimal},
		},
		Logger:  testLogger(),
		Metrics: observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, full.written, 3)
	require.Len(t, minimal.written, 3)

	id := domain.SeriesIdentity{City: "Torres", Model: "ACCESS-CM2", Scenario: "Histórico"}
	series := full.written[id]
	require.Len(t, series, 6)
	assert.Equal(t, windowStart, series[0].Date)
	assert.Equal(t, windowEnd, series[len(series)-1].Date)
}

func TestPipeline_Run_SinkFailureFailsCombination(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	sink := newMemSink()
	sink.failFor = "Rio Grande"
	table := &memTable{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: pipeline.DisabledCheckpoints{},
		Outputs: []pipeline.OutputRequest{
			pipeline.SeriesFull{Sink: sink},
			pipeline.ConsolidatedCSV{Writer: table},
		},
		Logger:  testLogger(),
		Metrics: observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []string{"Pelotas", "Torres"}, cityOrder(table.records))
	_, _, failed := p.ProgressSnapshot()
	assert.Equal(t, 1, failed)
}

func TestPipeline_Run_InterruptedBeforeUnits(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	store := newMemStore()
	table := &memTable{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: store,
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, p.Run(ctx), context.Canceled)
	assert.Empty(t, opener.opened)
	assert.Zero(t, table.writes)
	assert.False(t, store.finalized)
}

func TestPipeline_Run_PublishesComputedUnitsOnly(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"NESM3-pr-hist.nc": src}}

	store := newMemStore()
	store.saved["MIROC6_Histórico"] = []domain.ClimateIndexRecord{
		{City: "Pelotas", Model: "MIROC6", Scenario: "Histórico", Index: domain.IndexPRCPTOT, Year: 2020, Value: 31},
	}

	pub := &memPublisher{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"MIROC6", "NESM3"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: store,
		Publisher:   pub,
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, pub.batches, 1, "restored units are not republished")
	assert.Len(t, pub.batches[0], 27)
	assert.Equal(t, "NESM3", pub.batches[0][0].Model)
}

func TestPipeline_Run_PublishFailureDoesNotFailUnit(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	table := &memTable{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: pipeline.DisabledCheckpoints{},
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Publisher:   &memPublisher{err: errors.New("broker unavailable")},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, table.records, 27)
}

func TestPipeline_Run_KeepsCheckpointsWhenRequested(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	store := newMemStore()
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:        resolved,
		InputDir:        "/data",
		Open:            opener.open,
		Checkpoints:     store,
		KeepCheckpoints: true,
		Logger:          testLogger(),
		Metrics:         observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))
	assert.True(t, store.finalized)
	assert.True(t, store.keep)
}

func TestPipeline_Run_CheckpointSaveFailureStillMerges(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	store := newMemStore()
	store.saveErr = errors.New("read-only filesystem")
	table := &memTable{}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: store,
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, table.records, 27)
}

func TestPipeline_Run_ConsolidatedWriteFailureSurfaces(t *testing.T) {
	src, resolved := testGrid()
	opener := &fakeOpener{sources: map[string]*fakeSource{"ACCESS-CM2-pr-hist.nc": src}}

	store := newMemStore()
	table := &memTable{err: errors.New("disk full")}
	p := pipeline.New(pipeline.Params{
		Catalog: &domain.Catalog{
			Models:    []string{"ACCESS-CM2"},
			Scenarios: []domain.Scenario{histScenario(time.Time{}, time.Time{})},
		},
		Resolved:    resolved,
		InputDir:    "/data",
		Open:        opener.open,
		Checkpoints: store,
		Outputs:     []pipeline.OutputRequest{pipeline.ConsolidatedCSV{Writer: table}},
		Logger:      testLogger(),
		Metrics:     observability.NewMetricsForTesting(),
	})

	err := p.Run(context.Background())
	require.ErrorContains(t, err, "disk full")
	assert.False(t, store.finalized, "checkpoints survive when the artifact is not durable")
}

func TestDisabledCheckpoints(t *testing.T) {
	store := pipeline.DisabledCheckpoints{}

	assert.False(t, store.Has("MIROC6", "Histórico"))
	assert.NoError(t, store.Save("MIROC6", "Histórico", nil))
	assert.NoError(t, store.Finalize(false))

	_, err := store.Load("MIROC6", "Histórico")
	assert.Error(t, err)
}
