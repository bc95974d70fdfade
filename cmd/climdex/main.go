// Command climdex runs the climate-index batch: it reads validated city
// coordinates and a directory of gridded daily precipitation files, computes
// the precipitation indices for every city under every catalog model and
// scenario, and writes the consolidated table plus any requested per-series
// artifacts. Interrupted runs resume from per-unit checkpoints.
//
// Usage:
//
//	climdex [flags] COORDINATES_FILE INPUT_DIR
//
// COORDINATES_FILE is the validated coordinates JSON produced by an earlier
// -r run or by cmd/validate. With -r it is a raw city CSV instead, and the
// command only resolves the cities against the grid and writes the validated
// JSON next to it, without computing any index.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hidrosfera/climdex-etl/internal/adapter/coords"
	httpadapter "github.com/hidrosfera/climdex-etl/internal/adapter/http"
	kafkaadapter "github.com/hidrosfera/climdex-etl/internal/adapter/kafka"
	"github.com/hidrosfera/climdex-etl/internal/adapter/netcdf"
	"github.com/hidrosfera/climdex-etl/internal/adapter/output"
	"github.com/hidrosfera/climdex-etl/internal/config"
	"github.com/hidrosfera/climdex-etl/internal/domain"
	"github.com/hidrosfera/climdex-etl/internal/observability"
	"github.com/hidrosfera/climdex-etl/internal/pipeline"
	"github.com/hidrosfera/climdex-etl/internal/recovery"
)

func main() {
	// A local .env can stand in for exported environment variables.
	_ = godotenv.Load()

	if err := newBatchCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// batchCommand holds the flag state for the climdex command.
type batchCommand struct {
	toParquet   bool
	toCSV       bool
	toNetuno    bool
	rawCoords   bool
	keepTemp    bool
	noRecovery  bool
	catalogPath string
	quiet       int
	verbose     bool
}

func newBatchCommand() *cobra.Command {
	bc := &batchCommand{}

	cmd := &cobra.Command{
		Use:   "climdex [flags] COORDINATES_FILE INPUT_DIR",
		Short: "Compute per-city precipitation climate indices from gridded daily files",
		Long: `climdex walks every model-scenario pair of the catalog, extracts the daily
precipitation series at each city's grid cell, computes the yearly
precipitation indices, and writes one consolidated table for the whole batch.
Completed pairs are checkpointed so an interrupted run picks up where it
stopped.`,
		Args:          cobra.ExactArgs(2),
		RunE:          bc.run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolVarP(&bc.toParquet, "to-parquet", "p", false, "write the consolidated table as Parquet instead of CSV")
	cmd.Flags().BoolVarP(&bc.toCSV, "to-csv", "c", false, "write one dated CSV per city-model-scenario series")
	cmd.Flags().BoolVarP(&bc.toNetuno, "to-netuno", "n", false, "write value-only series CSVs for Netuno (overrides --to-csv)")
	cmd.Flags().BoolVarP(&bc.rawCoords, "raw-coordinates", "r", false, "treat COORDINATES_FILE as a raw city CSV: resolve it against the grid, write the validated JSON, and skip the batch")
	cmd.Flags().BoolVarP(&bc.keepTemp, "keep-temp", "k", false, "keep checkpoint files after a successful run")
	cmd.Flags().BoolVar(&bc.noRecovery, "no-recovery", false, "disable checkpointing and resume")
	cmd.Flags().StringVar(&bc.catalogPath, "catalog", "", "model-scenario catalog YAML (default: built-in catalog)")
	cmd.Flags().CountVarP(&bc.quiet, "quiet", "q", "log warnings and errors only; repeat for errors only")
	cmd.Flags().BoolVarP(&bc.verbose, "verbose", "v", false, "log at debug level (overrides --quiet)")

	return cmd
}

func (bc *batchCommand) run(_ *cobra.Command, args []string) error {
	coordinatesPath, inputDir := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := uuid.New().String()
	logger := observability.NewLogger(bc.logLevel(cfg), cfg.LogFormat).With("run_id", runID)

	if bc.rawCoords {
		return bc.resolveOnly(logger, cfg, coordinatesPath, inputDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return bc.runBatch(ctx, logger, cfg, runID, coordinatesPath, inputDir)
}

// logLevel folds the -q/-v flags over the configured level. One -q raises
// the floor to warnings, two or more to errors; -v wins and drops to debug.
func (bc *batchCommand) logLevel(cfg *config.Config) string {
	switch {
	case bc.verbose:
		return "debug"
	case bc.quiet >= 2:
		return "error"
	case bc.quiet == 1:
		return "warn"
	}
	return cfg.LogLevel
}

// resolveOnly validates a raw coordinates CSV against the smallest readable
// grid in the input directory and writes the validated JSON beside the CSV.
func (bc *batchCommand) resolveOnly(logger *slog.Logger, cfg *config.Config, coordinatesPath, inputDir string) error {
	locations, err := coords.ReadRaw(coordinatesPath)
	if err != nil {
		return fmt.Errorf("read raw coordinates: %w", err)
	}

	refPath, err := netcdf.SmallestFile(inputDir)
	if err != nil {
		return fmt.Errorf("pick reference grid: %w", err)
	}
	src, err := netcdf.Open(refPath, logger)
	if err != nil {
		return err
	}
	lats, lons := src.Axes()
	grid := domain.NewGridIndex(lats, lons)
	if err := src.Close(); err != nil {
		logger.Warn("close reference grid", "error", err)
	}

	resolved, failed := domain.ResolveLocations(locations, grid, cfg.MaxDistance)
	for _, name := range failed {
		logger.Warn("city outside grid tolerance", "city", name, "max_distance", cfg.MaxDistance)
		color.New(color.FgYellow).Fprintf(os.Stdout, "  unresolved: %s\n", name)
	}
	if len(resolved) == 0 {
		return fmt.Errorf("no city resolved within %v degrees of the %s grid", cfg.MaxDistance, filepath.Base(refPath))
	}

	outPath := validatedPath(coordinatesPath)
	if err := coords.WriteValidated(outPath, resolved); err != nil {
		return fmt.Errorf("write validated coordinates: %w", err)
	}
	logger.Info("validated coordinates written",
		"path", outPath,
		"resolved", len(resolved),
		"failed", len(failed),
		"grid", filepath.Base(refPath))

	color.New(color.FgGreen).Fprintf(os.Stdout, "%d of %d cities resolved -> %s\n",
		len(resolved), len(locations), outPath)
	return nil
}

// validatedPath swaps the raw CSV extension for .json.
func validatedPath(rawPath string) string {
	return strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + ".json"
}

func (bc *batchCommand) runBatch(ctx context.Context, logger *slog.Logger, cfg *config.Config, runID, coordinatesPath, inputDir string) error {
	catalog, err := bc.loadCatalog(cfg)
	if err != nil {
		return err
	}

	resolved, err := coords.ReadValidated(coordinatesPath)
	if err != nil {
		return fmt.Errorf("read validated coordinates: %w", err)
	}

	outputs, err := bc.buildOutputs(cfg, logger)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	var publisher pipeline.RecordPublisher
	if cfg.PublishEnabled() {
		kp := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = kp
	}

	p := pipeline.New(pipeline.Params{
		Catalog:  catalog,
		Resolved: resolved,
		InputDir: inputDir,
		Open: func(path string) (pipeline.GridSource, error) {
			return netcdf.Open(path, logger)
		},
		Checkpoints:     bc.buildCheckpoints(cfg, logger),
		Outputs:         outputs,
		Publisher:       publisher,
		KeepCheckpoints: bc.keepTemp,
		CacheSize:       cfg.CacheSize,
		Logger:          logger,
		Metrics:         metrics,
	})

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	started := time.Now()
	runErr := p.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		cancel()
	}

	bc.printSummary(p, catalog, cfg, runID, len(resolved), started)
	return runErr
}

// loadCatalog picks the catalog source: the --catalog flag, then the
// CLIMDEX_CATALOG path, then the built-in default.
func (bc *batchCommand) loadCatalog(cfg *config.Config) (*domain.Catalog, error) {
	path := bc.catalogPath
	if path == "" {
		path = cfg.CatalogPath
	}
	if path == "" {
		return domain.DefaultCatalog(), nil
	}
	catalog, err := domain.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

// buildOutputs maps the format flags to output requests. The consolidated
// table is always produced, as CSV unless -p asks for Parquet; per-series
// files are opt-in, with the Netuno layout taking precedence.
func (bc *batchCommand) buildOutputs(cfg *config.Config, logger *slog.Logger) ([]pipeline.OutputRequest, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var outputs []pipeline.OutputRequest
	if bc.toParquet {
		outputs = append(outputs, pipeline.ConsolidatedParquet{Writer: output.NewParquetTable(cfg.OutputDir, logger)})
	} else {
		outputs = append(outputs, pipeline.ConsolidatedCSV{Writer: output.NewCSVTable(cfg.OutputDir, logger)})
	}

	switch {
	case bc.toNetuno:
		sink, err := output.NewSeriesWriter(cfg.OutputDir, true, logger)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, pipeline.SeriesMinimal{Sink: sink})
	case bc.toCSV:
		sink, err := output.NewSeriesWriter(cfg.OutputDir, false, logger)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, pipeline.SeriesFull{Sink: sink})
	}
	return outputs, nil
}

func (bc *batchCommand) buildCheckpoints(cfg *config.Config, logger *slog.Logger) pipeline.CheckpointStore {
	if bc.noRecovery {
		logger.Info("checkpoint recovery disabled")
		return pipeline.DisabledCheckpoints{}
	}
	return recovery.NewManager(filepath.Join(cfg.TempDir, "checkpoints"), logger)
}

// printSummary renders the end-of-run table on stdout. It runs even after an
// interrupted batch, where it shows how far the run got.
func (bc *batchCommand) printSummary(p *pipeline.Pipeline, catalog *domain.Catalog, cfg *config.Config, runID string, cities int, started time.Time) {
	processed, total, failed := p.ProgressSnapshot()
	hits, misses := p.CacheStats()
	files, size := outputFootprint(cfg.OutputDir, started)

	cache := "no reads"
	if hits+misses > 0 {
		cache = fmt.Sprintf("%d hits, %d misses (%.0f%% hit rate)",
			hits, misses, 100*float64(hits)/float64(hits+misses))
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Batch", runID})
	tbl.AppendRow(table.Row{"Cities", humanize.Comma(int64(cities))})
	tbl.AppendRow(table.Row{"Units", fmt.Sprintf("%d (%d models, %d scenarios)",
		len(catalog.Models)*len(catalog.Scenarios), len(catalog.Models), len(catalog.Scenarios))})
	tbl.AppendRow(table.Row{"Combinations", fmt.Sprintf("%s of %s",
		humanize.Comma(int64(processed)), humanize.Comma(int64(total)))})
	tbl.AppendRow(table.Row{"Failed", humanize.Comma(int64(failed))})
	tbl.AppendRow(table.Row{"Series cache", cache})
	tbl.AppendRow(table.Row{"Artifacts", fmt.Sprintf("%d files, %s", files, humanize.Bytes(size))})
	tbl.AppendRow(table.Row{"Output dir", cfg.OutputDir})
	tbl.AppendFooter(table.Row{"Elapsed", time.Since(started).Round(time.Millisecond).String()})
	tbl.Render()
}

// outputFootprint sums the files written under root since the batch started.
func outputFootprint(root string, since time.Time) (files int, size uint64) {
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().Before(since) {
			return nil
		}
		files++
		size += uint64(info.Size())
		return nil
	})
	return files, size
}
