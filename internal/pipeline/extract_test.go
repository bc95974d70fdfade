package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSeries_PairsDatesWithValues(t *testing.T) {
	dates := []time.Time{
		time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC),
	}

	series := buildSeries(dates, []float64{1.5, 0})

	require.Len(t, series, 2)
	assert.Equal(t, dates[0], series[0].Date)
	assert.Equal(t, 1.5, series[0].Precipitation)
	assert.Equal(t, dates[1], series[1].Date)
	assert.Equal(t, 0.0, series[1].Precipitation)
}

func TestBuildSeries_SubstitutesZero(t *testing.T) {
	dates := []time.Time{
		time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 5, 0, 0, 0, 0, time.UTC),
	}
	raw := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -9999, 2.25}

	series := buildSeries(dates, raw)

	require.Len(t, series, 5)
	for i := 0; i < 4; i++ {
		assert.Equal(t, 0.0, series[i].Precipitation, "sample %d", i)
	}
	assert.Equal(t, 2.25, series[4].Precipitation)
}

func TestBuildSeries_TruncatesToShorterSide(t *testing.T) {
	dates := []time.Time{
		time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 3, 0, 0, 0, 0, time.UTC),
	}

	series := buildSeries(dates, []float64{1})
	require.Len(t, series, 1)

	series = buildSeries(dates[:1], []float64{1, 2, 3})
	require.Len(t, series, 1)
}

func TestBuildSeries_Empty(t *testing.T) {
	assert.Empty(t, buildSeries(nil, nil))
}
