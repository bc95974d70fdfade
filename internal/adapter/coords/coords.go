// Package coords persists target locations and their resolved grid cells.
// The validated-coordinates JSON is written once against a reference grid and
// reused by later runs so resolution does not repeat per batch.
package coords

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hidrosfera/climdex-etl/internal/domain"
)

// validatedEntry is the on-disk shape of one resolved location, keyed by the
// location name in the enclosing object.
type validatedEntry struct {
	ExternalID int                   `json:"external_id"`
	Target     domain.GridCoordinate `json:"target"`
	Nearest    domain.GridCoordinate `json:"nearest"`
}

// ReadValidated loads a validated-coordinates file. Distances are recomputed
// from the stored pairs; the file format does not carry them.
func ReadValidated(path string) (map[string]domain.ResolvedLocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read coordinates: %w", err)
	}

	var entries map[string]validatedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse coordinates %s: %w", path, err)
	}

	resolved := make(map[string]domain.ResolvedLocation, len(entries))
	for name, e := range entries {
		resolved[name] = domain.ResolvedLocation{
			Location: domain.TargetLocation{
				Name:       name,
				ExternalID: e.ExternalID,
				Target:     e.Target,
			},
			Nearest:  e.Nearest,
			Distance: domain.Distance(e.Target, e.Nearest),
		}
	}
	return resolved, nil
}

// WriteValidated writes a validated-coordinates file with two-space indent
// and byte-wise sorted keys, the stable diff-friendly layout downstream runs
// and humans both read. The file is written via temp-and-rename so readers
// never observe a partial document.
func WriteValidated(path string, resolved map[string]domain.ResolvedLocation) error {
	entries := make(map[string]validatedEntry, len(resolved))
	for name, r := range resolved {
		entries[name] = validatedEntry{
			ExternalID: r.Location.ExternalID,
			Target:     r.Location.Target,
			Nearest:    r.Nearest,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode coordinates: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create coordinates temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write coordinates: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write coordinates: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close coordinates temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish coordinates: %w", err)
	}
	return nil
}

// ParseRaw reads the raw municipality export: a headered CSV with columns
// city_id, city, lat, lon. Rows keep file order; duplicate names are settled
// later when locations are keyed by name.
func ParseRaw(r io.Reader) ([]domain.TargetLocation, error) {
	reader := csv.NewReader(r)

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var locations []domain.TargetLocation
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		loc, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// ReadRaw is ParseRaw over a file path.
func ReadRaw(path string) ([]domain.TargetLocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read coordinates: %w", err)
	}
	defer f.Close()

	locations, err := ParseRaw(f)
	if err != nil {
		return nil, fmt.Errorf("parse coordinates %s: %w", path, err)
	}
	return locations, nil
}

func parseRow(row []string) (domain.TargetLocation, error) {
	if len(row) < 4 {
		return domain.TargetLocation{}, fmt.Errorf("want 4 columns (city_id, city, lat, lon), got %d", len(row))
	}
	id, err := strconv.Atoi(row[0])
	if err != nil {
		return domain.TargetLocation{}, fmt.Errorf("city_id %q: %w", row[0], err)
	}
	lat, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return domain.TargetLocation{}, fmt.Errorf("lat %q: %w", row[2], err)
	}
	lon, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return domain.TargetLocation{}, fmt.Errorf("lon %q: %w", row[3], err)
	}
	return domain.TargetLocation{
		Name:       row[1],
		ExternalID: id,
		Target:     domain.GridCoordinate{Lat: lat, Lon: lon},
	}, nil
}
