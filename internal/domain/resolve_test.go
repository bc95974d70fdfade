package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLocations_MixedOutcomes(t *testing.T) {
	grid := NewGridIndex([]float64{-25.0, -24.75}, []float64{-48.0, -47.75})
	targets := []TargetLocation{
		{Name: "Santos", ExternalID: 1, Target: GridCoordinate{Lat: -24.9, Lon: -47.9}},
		{Name: "Manaus", ExternalID: 2, Target: GridCoordinate{Lat: -3.1, Lon: -60.0}},
	}

	resolved, failed := ResolveLocations(targets, grid, 0.5)

	require.Len(t, resolved, 1)
	require.Equal(t, []string{"Manaus"}, failed)

	santos := resolved["Santos"]
	assert.Equal(t, GridCoordinate{Lat: -25.0, Lon: -48.0}, santos.Nearest)
	assert.Equal(t, 1, santos.Location.ExternalID)
	assert.InDelta(t, Distance(santos.Nearest, santos.Location.Target), santos.Distance, 1e-12)
	assert.LessOrEqual(t, santos.Distance, 0.5)
}

func TestResolveLocations_AllFail(t *testing.T) {
	grid := NewGridIndex([]float64{0}, []float64{0})
	targets := []TargetLocation{
		{Name: "B", Target: GridCoordinate{Lat: 50, Lon: 50}},
		{Name: "A", Target: GridCoordinate{Lat: 60, Lon: 60}},
	}

	resolved, failed := ResolveLocations(targets, grid, 0.1)

	assert.Empty(t, resolved)
	assert.Equal(t, []string{"A", "B"}, failed, "failures are reported sorted")
}

func TestSortedNames_AccentedAfterUnaccented(t *testing.T) {
	resolved := map[string]ResolvedLocation{
		"São Paulo": {},
		"Santos":    {},
		"Sao Paulo": {},
	}

	assert.Equal(t, []string{"Santos", "Sao Paulo", "São Paulo"}, SortedNames(resolved))
}
