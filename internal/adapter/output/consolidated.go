// Package output writes the run's artifacts: the consolidated index table
// (CSV or Parquet) and the optional per-series daily CSVs. File names carry
// a timestamp prefix so successive runs never collide.
package output

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"
	parquetlz4 "github.com/parquet-go/parquet-go/compress/lz4"

	"github.com/hidrosfera/climdex-etl/internal/domain"
)

var consolidatedHeader = []string{"city", "model", "scenario", "index", "year", "month", "value"}

// consolidatedRow is the Parquet shape of one index record. Month is null on
// annual rows.
type consolidatedRow struct {
	City     string  `parquet:"city"`
	Model    string  `parquet:"model"`
	Scenario string  `parquet:"scenario"`
	Index    string  `parquet:"index"`
	Year     int32   `parquet:"year"`
	Month    *int32  `parquet:"month,optional"`
	Value    float64 `parquet:"value"`
}

// CSVTable writes the consolidated record set as one timestamped CSV file.
type CSVTable struct {
	dir string
	log *slog.Logger
}

// NewCSVTable creates a consolidated CSV writer rooted at dir.
func NewCSVTable(dir string, logger *slog.Logger) *CSVTable {
	return &CSVTable{dir: dir, log: logger}
}

// WriteTable persists all index records as one CSV table and returns the
// created path. Annual rows leave the month column empty.
func (t *CSVTable) WriteTable(records []domain.ClimateIndexRecord) (string, error) {
	path := filepath.Join(t.dir, domain.OutputTimestamp()+"consolidated.csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create consolidated csv: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(consolidatedHeader); err != nil {
		f.Close()
		return "", fmt.Errorf("write consolidated csv: %w", err)
	}
	for _, r := range records {
		month := ""
		if r.Month != 0 {
			month = strconv.Itoa(int(r.Month))
		}
		row := []string{
			r.City,
			r.Model,
			r.Scenario,
			r.Index,
			strconv.Itoa(r.Year),
			month,
			strconv.FormatFloat(r.Value, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return "", fmt.Errorf("write consolidated csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("write consolidated csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close consolidated csv: %w", err)
	}

	t.log.Info("exported consolidated dataset", "path", path, "records", len(records))
	return path, nil
}

// ParquetTable writes the consolidated record set as one timestamped Parquet
// file with the lz4 codec.
type ParquetTable struct {
	dir string
	log *slog.Logger
}

// NewParquetTable creates a consolidated Parquet writer rooted at dir.
func NewParquetTable(dir string, logger *slog.Logger) *ParquetTable {
	return &ParquetTable{dir: dir, log: logger}
}

// WriteTable persists all index records as one Parquet table and returns the
// created path.
func (t *ParquetTable) WriteTable(records []domain.ClimateIndexRecord) (string, error) {
	path := filepath.Join(t.dir, domain.OutputTimestamp()+"consolidated.parquet")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create consolidated parquet: %w", err)
	}

	rows := make([]consolidatedRow, len(records))
	for i, r := range records {
		rows[i] = consolidatedRow{
			City:     r.City,
			Model:    r.Model,
			Scenario: r.Scenario,
			Index:    r.Index,
			Year:     int32(r.Year),
			Value:    r.Value,
		}
		if r.Month != 0 {
			month := int32(r.Month)
			rows[i].Month = &month
		}
	}

	w := parquet.NewGenericWriter[consolidatedRow](f, parquet.Compression(&parquetlz4.Codec{}))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return "", fmt.Errorf("write consolidated parquet: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("close consolidated parquet: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close consolidated parquet: %w", err)
	}

	t.log.Info("exported consolidated dataset", "path", path, "records", len(records))
	return path, nil
}
