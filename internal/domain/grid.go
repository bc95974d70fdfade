package domain

import "math"

// GridIndex answers nearest-cell lookups over one grid's coordinate axes.
// Only the axis definitions matter here, not the data payload, which is why a
// single reference file can resolve coordinates for a whole product family.
type GridIndex struct {
	lats []float64
	lons []float64
}

// NewGridIndex builds an index from a grid's latitude and longitude axes, in
// the order they appear in the source file.
func NewGridIndex(lats, lons []float64) *GridIndex {
	return &GridIndex{lats: lats, lons: lons}
}

// Nearest returns the grid cell closest to target in planar degree space, or
// ok=false when even the closest cell is farther than maxDistance. Exceeding
// the cutoff is an expected outcome, not a defect: the caller decides whether
// to exclude the location, warn, or abort. Ties break toward the lower
// latitude, then the lower longitude, so lookups are reproducible across runs
// and platforms. The axes are independent, so minimizing the distance on each
// axis separately yields the exact nearest cell.
func (g *GridIndex) Nearest(target GridCoordinate, maxDistance float64) (GridCoordinate, bool) {
	if len(g.lats) == 0 || len(g.lons) == 0 {
		return GridCoordinate{}, false
	}

	nearest := GridCoordinate{
		Lat: nearestOnAxis(g.lats, target.Lat),
		Lon: nearestOnAxis(g.lons, target.Lon),
	}
	if Distance(nearest, target) > maxDistance {
		return GridCoordinate{}, false
	}
	return nearest, true
}

// LatIndex returns the position of lat on the latitude axis. Resolved
// coordinates are exact axis values, so the match is exact; ok=false means
// the coordinate was resolved against a grid with different axes.
func (g *GridIndex) LatIndex(lat float64) (int, bool) {
	return indexOf(g.lats, lat)
}

// LonIndex is the longitude counterpart of LatIndex.
func (g *GridIndex) LonIndex(lon float64) (int, bool) {
	return indexOf(g.lons, lon)
}

// nearestOnAxis returns the axis value closest to v. On an exact tie the
// lower value wins, regardless of axis ordering in the file.
func nearestOnAxis(axis []float64, v float64) float64 {
	best := axis[0]
	bestDist := math.Abs(v - axis[0])
	for _, a := range axis[1:] {
		d := math.Abs(v - a)
		if d < bestDist || (d == bestDist && a < best) {
			best = a
			bestDist = d
		}
	}
	return best
}

func indexOf(axis []float64, v float64) (int, bool) {
	for i, a := range axis {
		if a == v {
			return i, true
		}
	}
	return 0, false
}

// Distance is the planar degree-space distance used for cutoff checks. Grid
// spacings are fractions of a degree, so the planar approximation holds at
// the cutoffs involved.
func Distance(a, b GridCoordinate) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lon-b.Lon)
}
