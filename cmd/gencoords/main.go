// Command gencoords generates a synthetic raw-coordinates CSV for demo and
// smoke runs: N cities scattered over a bounding box, with IBGE-style
// external IDs. It resolves the generated cities against a synthetic grid of
// the given resolution using the actual domain package, so the fixture is
// known to survive the batch's own resolution step, and can optionally write
// the validated JSON directly.
//
// Usage:
//
//	go run ./cmd/gencoords \
//	  -out data/cities.csv \
//	  -count 50 \
//	  -validated-out data/cities.json
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hidrosfera/climdex-etl/internal/adapter/coords"
	"github.com/hidrosfera/climdex-etl/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the raw coordinates CSV")
	validatedOut := flag.String("validated-out", "", "optional output path for the validated coordinates JSON")
	count := flag.Int("count", 50, "number of cities to generate")
	seed := flag.Int64("seed", 1, "random seed, fixed for reproducible fixtures")
	latMin := flag.Float64("lat-min", -34, "southern edge of the bounding box")
	latMax := flag.Float64("lat-max", -27, "northern edge of the bounding box")
	lonMin := flag.Float64("lon-min", -58, "western edge of the bounding box")
	lonMax := flag.Float64("lon-max", -49, "eastern edge of the bounding box")
	resolution := flag.Float64("resolution", 0.25, "cell size of the synthetic grid, in degrees")
	maxDistance := flag.Float64("max-distance", 1, "resolution tolerance to verify the fixture against")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *count <= 0 || *latMax <= *latMin || *lonMax <= *lonMin || *resolution <= 0 {
		return fmt.Errorf("invalid box or count")
	}

	rng := rand.New(rand.NewSource(*seed))
	locations := generate(rng, *count, *latMin, *latMax, *lonMin, *lonMax)

	if err := writeCSV(*out, locations); err != nil {
		return fmt.Errorf("writing coordinates CSV: %w", err)
	}
	log.Printf("wrote %d cities: %s", len(locations), *out)

	// Resolve against a synthetic grid of the same box so a broken fixture
	// is caught here, not mid-batch.
	grid := domain.NewGridIndex(
		axis(*latMin, *latMax, *resolution),
		axis(*lonMin, *lonMax, *resolution),
	)
	resolved, failed := domain.ResolveLocations(locations, grid, *maxDistance)
	log.Printf("resolved %d/%d within %g degrees on a %g-degree grid", len(resolved), len(locations), *maxDistance, *resolution)
	for _, name := range failed {
		log.Printf("unresolved: %s", name)
	}

	if *validatedOut != "" {
		if len(resolved) == 0 {
			return fmt.Errorf("nothing resolved, not writing %s", *validatedOut)
		}
		if err := os.MkdirAll(filepath.Dir(*validatedOut), 0o755); err != nil {
			return err
		}
		if err := coords.WriteValidated(*validatedOut, resolved); err != nil {
			return fmt.Errorf("writing validated fixture: %w", err)
		}
		log.Printf("wrote validated fixture: %s", *validatedOut)
	}
	return nil
}

// generate scatters count cities uniformly over the box. IDs follow the
// 43xxxxx range of Rio Grande do Sul municipalities so fixtures read like
// the real export.
func generate(rng *rand.Rand, count int, latMin, latMax, lonMin, lonMax float64) []domain.TargetLocation {
	locations := make([]domain.TargetLocation, count)
	for i := range locations {
		locations[i] = domain.TargetLocation{
			Name:       fmt.Sprintf("Cidade %03d", i+1),
			ExternalID: 4300001 + i,
			Target: domain.GridCoordinate{
				Lat: round4(latMin + rng.Float64()*(latMax-latMin)),
				Lon: round4(lonMin + rng.Float64()*(lonMax-lonMin)),
			},
		}
	}
	return locations
}

func writeCSV(path string, locations []domain.TargetLocation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"city_id", "city", "lat", "lon"}); err != nil {
		return err
	}
	for _, loc := range locations {
		record := []string{
			strconv.Itoa(loc.ExternalID),
			loc.Name,
			strconv.FormatFloat(loc.Target.Lat, 'f', 4, 64),
			strconv.FormatFloat(loc.Target.Lon, 'f', 4, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// axis builds an ascending coordinate axis from min to max inclusive.
func axis(min, max, step float64) []float64 {
	var values []float64
	for v := min; v <= max+step/2; v += step {
		values = append(values, v)
	}
	return values
}

// round4 truncates coordinates to the 4 decimal places the municipality
// export carries.
func round4(v float64) float64 {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	r, _ := strconv.ParseFloat(s, 64)
	return r
}
