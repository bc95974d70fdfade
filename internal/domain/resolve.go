package domain

import "sort"

// ResolveLocations maps every target to its nearest grid cell within
// maxDistance. Individual failures never abort the set: the returned slice
// lists the names that could not be resolved, sorted ascending. Both the
// failure list and SortedNames use byte-wise ordering, which places accented
// names after unaccented ones — the stable, diff-friendly order every output
// file uses.
func ResolveLocations(locations []TargetLocation, grid *GridIndex, maxDistance float64) (map[string]ResolvedLocation, []string) {
	resolved := make(map[string]ResolvedLocation, len(locations))
	var failed []string

	for _, loc := range locations {
		nearest, ok := grid.Nearest(loc.Target, maxDistance)
		if !ok {
			failed = append(failed, loc.Name)
			continue
		}
		resolved[loc.Name] = ResolvedLocation{
			Location: loc,
			Nearest:  nearest,
			Distance: Distance(nearest, loc.Target),
		}
	}

	sort.Strings(failed)
	return resolved, failed
}

// SortedNames returns the resolved city names in byte-wise ascending order,
// the canonical iteration order for per-city loops and output files.
func SortedNames(resolved map[string]ResolvedLocation) []string {
	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
