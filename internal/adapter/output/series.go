package output

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hidrosfera/climdex-etl/internal/domain"
)

// SeriesWriter writes one daily-precipitation CSV per (city, model, scenario)
// into a timestamped subdirectory of the parent output dir. The full layout
// is a headered date,precipitation table; the minimal layout is the value-only
// form rainwater-sizing tools ingest, named with a (Netuno) tag.
type SeriesWriter struct {
	dir     string
	minimal bool
	log     *slog.Logger
}

// NewSeriesWriter creates the run's series subdirectory under parentDir.
func NewSeriesWriter(parentDir string, minimal bool, logger *slog.Logger) (*SeriesWriter, error) {
	dir := filepath.Join(parentDir, domain.OutputTimestamp()+"output")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create series output dir: %w", err)
	}
	return &SeriesWriter{dir: dir, minimal: minimal, log: logger}, nil
}

// Dir returns the subdirectory series files are written into.
func (w *SeriesWriter) Dir() string {
	return w.dir
}

// Write persists one series. The file name is
// {city}_{model}_{scenario}.csv, prefixed with (Netuno) in minimal form.
func (w *SeriesWriter) Write(id domain.SeriesIdentity, series domain.DailySeries) error {
	name := fmt.Sprintf("%s_%s_%s.csv", id.City, id.Model, id.Scenario)
	if w.minimal {
		name = "(Netuno)" + name
	}
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create series file: %w", err)
	}

	buf := bufio.NewWriter(f)
	if err := w.writeRows(buf, series); err != nil {
		f.Close()
		return fmt.Errorf("write series %s: %w", name, err)
	}
	if err := buf.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write series %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close series %s: %w", name, err)
	}

	w.log.Debug("exported precipitation series", "path", path, "days", len(series))
	return nil
}

func (w *SeriesWriter) writeRows(buf *bufio.Writer, series domain.DailySeries) error {
	if w.minimal {
		for _, day := range series {
			if _, err := buf.WriteString(formatValue(day.Precipitation) + "\n"); err != nil {
				return err
			}
		}
		return nil
	}

	if _, err := buf.WriteString("date,precipitation\n"); err != nil {
		return err
	}
	for _, day := range series {
		row := day.Date.Format(time.DateOnly) + "," + formatValue(day.Precipitation) + "\n"
		if _, err := buf.WriteString(row); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
