// Command validate checks a raw city-coordinates CSV against a precipitation
// grid before a batch run: every row must parse into a plausible target, a
// reference grid must open cleanly, and each city must resolve to a grid cell
// within the distance tolerance. On success it writes the validated
// coordinates JSON the batch consumes and round-trips it back.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -coordinates data/cities.csv \
//	  -input-dir /data/grids \
//	  -out data/cities.json
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/hidrosfera/climdex-etl/internal/adapter/coords"
	"github.com/hidrosfera/climdex-etl/internal/adapter/netcdf"
	"github.com/hidrosfera/climdex-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	coordinates := flag.String("coordinates", "", "raw city coordinates CSV (city_id, city, lat, lon)")
	inputDir := flag.String("input-dir", "", "directory containing the gridded precipitation .nc files")
	out := flag.String("out", "", "output path for the validated coordinates JSON (default: CSV path with .json)")
	maxDistance := flag.Float64("max-distance", 1, "maximum degree-space distance between a city and its grid cell")
	flag.Parse()

	if *coordinates == "" || *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	outPath := *out
	if outPath == "" {
		outPath = strings.TrimSuffix(*coordinates, filepath.Ext(*coordinates)) + ".json"
	}

	if code := run(*coordinates, *inputDir, outPath, *maxDistance); code != 0 {
		os.Exit(code)
	}
}

func run(coordinatesPath, inputDir, outPath string, maxDistance float64) int {
	// ── Load inputs ──
	fmt.Println("=== Coordinate Validation ===")
	fmt.Println()

	locations, err := coords.ReadRaw(coordinatesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load coordinates: %v\n", err)
		return 1
	}

	refPath, err := netcdf.SmallestFile(inputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: pick reference grid: %v\n", err)
		return 1
	}

	src, err := netcdf.Open(refPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open reference grid: %v\n", err)
		return 1
	}
	defer src.Close()

	lats, lons := src.Axes()
	dates := src.Dates()
	grid := domain.NewGridIndex(lats, lons)
	resolved, failed := domain.ResolveLocations(locations, grid, maxDistance)

	// ── Run validation phases ──
	phases := []*phase{
		validateTargets(locations),
		validateGrid(lats, lons, dates),
		validateResolution(grid, locations, failed, maxDistance),
		validateRoundTrip(outPath, resolved),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := color.New(color.FgGreen).Sprint("PASS")
		if !p.passed() {
			status = color.New(color.FgRed).Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Targets: %d raw, %d resolved, %d outside tolerance\n", len(locations), len(resolved), len(failed))
	fmt.Printf("Grid: %s (%dx%d cells, %d days)\n", filepath.Base(refPath), len(lats), len(lons), len(dates))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		color.New(color.FgGreen).Fprintf(os.Stdout, "\nAll validations passed. Wrote %s\n", outPath)
		return 0
	}
	color.New(color.FgRed).Fprintln(os.Stdout, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: Coordinate Targets ──
// Field-level sanity over the parsed CSV rows.

func validateTargets(locations []domain.TargetLocation) *phase {
	p := &phase{name: "Phase 1: Coordinate Targets"}

	if len(locations) == 0 {
		p.errorf("no data rows")
		return p
	}

	seen := map[string]bool{}
	for i, loc := range locations {
		line := i + 2 // the header is line 1
		if loc.Name == "" {
			p.errorf("line %d: empty city name", line)
		} else if seen[loc.Name] {
			p.errorf("line %d: duplicate city %q", line, loc.Name)
		}
		seen[loc.Name] = true

		if loc.ExternalID <= 0 {
			p.errorf("line %d: city_id %d is not positive", line, loc.ExternalID)
		}
		if loc.Target.Lat < -90 || loc.Target.Lat > 90 {
			p.errorf("line %d: latitude %g outside [-90, 90]", line, loc.Target.Lat)
		}
		if loc.Target.Lon < -180 || loc.Target.Lon > 180 {
			p.errorf("line %d: longitude %g outside [-180, 180]", line, loc.Target.Lon)
		}
	}
	return p
}

// ── Phase 2: Reference Grid ──
// The axes and calendar of the reference file must make sense before any
// resolution against them is trustworthy.

func validateGrid(lats, lons []float64, dates []time.Time) *phase {
	p := &phase{name: "Phase 2: Reference Grid"}

	if len(lats) == 0 {
		p.errorf("latitude axis is empty")
	}
	if len(lons) == 0 {
		p.errorf("longitude axis is empty")
	}
	for _, lat := range lats {
		if lat < -90 || lat > 90 {
			p.errorf("latitude %g outside [-90, 90]", lat)
		}
	}
	for _, lon := range lons {
		if lon < -180 || lon > 360 {
			p.errorf("longitude %g outside [-180, 360]", lon)
		}
	}
	if v, dup := firstDuplicate(lats); dup {
		p.errorf("latitude axis repeats value %g", v)
	}
	if v, dup := firstDuplicate(lons); dup {
		p.errorf("longitude axis repeats value %g", v)
	}

	if len(dates) == 0 {
		p.errorf("time axis is empty")
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			p.errorf("time axis not strictly increasing at step %d (%s then %s)",
				i, dates[i-1].Format(time.DateOnly), dates[i].Format(time.DateOnly))
			break
		}
	}
	return p
}

// ── Phase 3: Grid Resolution ──
// Every city must land within tolerance of a grid cell. Failures report how
// far away the nearest cell actually is.

func validateResolution(grid *domain.GridIndex, locations []domain.TargetLocation, failed []string, maxDistance float64) *phase {
	p := &phase{name: "Phase 3: Grid Resolution"}

	byName := make(map[string]domain.TargetLocation, len(locations))
	for _, loc := range locations {
		byName[loc.Name] = loc
	}

	for _, name := range failed {
		loc := byName[name]
		nearest, ok := grid.Nearest(loc.Target, math.Inf(1))
		if !ok {
			p.errorf("%s: grid has no cells", name)
			continue
		}
		p.errorf("%s: nearest cell (%g, %g) is %.3f degrees away (max %g)",
			name, nearest.Lat, nearest.Lon, domain.Distance(nearest, loc.Target), maxDistance)
	}
	return p
}

// ── Phase 4: Validated Round-Trip ──
// The written JSON must read back to the same resolution set the batch will
// consume.

func validateRoundTrip(outPath string, resolved map[string]domain.ResolvedLocation) *phase {
	p := &phase{name: "Phase 4: Validated Round-Trip"}

	if len(resolved) == 0 {
		p.errorf("nothing resolved, not writing %s", outPath)
		return p
	}
	if err := coords.WriteValidated(outPath, resolved); err != nil {
		p.errorf("write: %v", err)
		return p
	}
	reread, err := coords.ReadValidated(outPath)
	if err != nil {
		p.errorf("reread: %v", err)
		return p
	}

	if len(reread) != len(resolved) {
		p.errorf("count: wrote %d entries, read %d back", len(resolved), len(reread))
	}
	for name, want := range resolved {
		got, ok := reread[name]
		if !ok {
			p.errorf("%s: missing after round-trip", name)
			continue
		}
		if got.Nearest != want.Nearest {
			p.errorf("%s: nearest wrote (%g, %g), read back (%g, %g)",
				name, want.Nearest.Lat, want.Nearest.Lon, got.Nearest.Lat, got.Nearest.Lon)
		}
		if got.Location.ExternalID != want.Location.ExternalID {
			p.errorf("%s: external_id wrote %d, read back %d",
				name, want.Location.ExternalID, got.Location.ExternalID)
		}
	}
	return p
}

// ── Helpers ──

// firstDuplicate returns the first value that repeats anywhere in the axis.
// Axis values are decoded file constants, so exact comparison is the point.
func firstDuplicate(axis []float64) (float64, bool) {
	seen := make(map[float64]bool, len(axis))
	for _, v := range axis {
		if seen[v] {
			return v, true
		}
		seen[v] = true
	}
	return 0, false
}
