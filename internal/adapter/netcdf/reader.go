// Package netcdf reads gridded daily precipitation files. It exposes the
// coordinate axes and per-cell time series the pipeline consumes, converting
// declared fill values to NaN and leaving the business rule of what a missing
// day means to the caller.
package netcdf

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// ErrUnreadableSource marks files that exist but cannot serve as a
// precipitation source: unparseable container, missing variables, or an
// unsupported layout. Callers treat it as a per-unit failure, not a crash.
var ErrUnreadableSource = errors.New("unreadable source")

const (
	precipitationVar = "pr"
	timeVar          = "time"

	// Cap on the decoded size of one GetSlice call when scanning the time
	// dimension, so large grids do not pull the whole cube into memory.
	readBudgetBytes = 64 << 20
)

var (
	latCandidates = []string{"lat", "latitude"}
	lonCandidates = []string{"lon", "longitude"}
)

// Reader is an open precipitation file. Axis and time metadata are decoded
// eagerly at open; cell series are read on demand. Not safe for concurrent
// use; the pipeline reads one file at a time.
type Reader struct {
	nc    api.Group
	path  string
	pr    api.VarGetter
	lats  []float64
	lons  []float64
	dates []time.Time

	scale  float64
	offset float64
	fills  []float64

	log *slog.Logger
}

// Open opens a NetCDF precipitation file and decodes its axes and calendar.
// All failures wrap ErrUnreadableSource.
func Open(path string, logger *slog.Logger) (*Reader, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableSource, path, err)
	}

	r := &Reader{nc: nc, path: path, scale: 1, log: logger}
	if err := r.init(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableSource, path, err)
	}

	logger.Debug("opened precipitation source",
		"path", path,
		"lats", len(r.lats),
		"lons", len(r.lons),
		"steps", len(r.dates))
	return r, nil
}

func (r *Reader) init() error {
	var err error
	if r.lats, err = axisValues(r.nc, latCandidates); err != nil {
		return err
	}
	if r.lons, err = axisValues(r.nc, lonCandidates); err != nil {
		return err
	}
	if r.dates, err = timeValues(r.nc); err != nil {
		return err
	}

	pr, err := r.nc.GetVarGetter(precipitationVar)
	if err != nil {
		return fmt.Errorf("variable %q: %v", precipitationVar, err)
	}
	if dims := pr.Dimensions(); len(dims) != 3 {
		return fmt.Errorf("variable %q: want 3 dimensions (time, lat, lon), got %v", precipitationVar, dims)
	}
	r.pr = pr

	attrs := pr.Attributes()
	if v, ok := attrFloat(attrs, "scale_factor"); ok {
		r.scale = v
	}
	if v, ok := attrFloat(attrs, "add_offset"); ok {
		r.offset = v
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(attrs, key); ok {
			r.fills = append(r.fills, v)
		}
	}
	return nil
}

// Axes returns the latitude and longitude axis values in file order.
// The slices are owned by the Reader and must not be mutated.
func (r *Reader) Axes() (lats, lons []float64) {
	return r.lats, r.lons
}

// Dates returns the decoded time axis, truncated to UTC dates. Daily files
// commonly stamp values at midday; index grouping and period filtering only
// care about the civil date.
func (r *Reader) Dates() []time.Time {
	return r.dates
}

// ReadCell reads the full time series at one grid cell. Declared fill values
// come back as NaN. The scan is chunked along the time dimension to bound
// memory on large grids.
func (r *Reader) ReadCell(latIdx, lonIdx int) ([]float64, error) {
	if latIdx < 0 || latIdx >= len(r.lats) || lonIdx < 0 || lonIdx >= len(r.lons) {
		return nil, fmt.Errorf("cell (%d, %d) outside grid %dx%d", latIdx, lonIdx, len(r.lats), len(r.lons))
	}

	steps := len(r.dates)
	series := make([]float64, 0, steps)
	chunk := r.chunkSteps()
	for begin := 0; begin < steps; begin += chunk {
		end := begin + chunk
		if end > steps {
			end = steps
		}
		raw, err := r.pr.GetSlice(int64(begin), int64(end))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: read steps [%d, %d): %v", ErrUnreadableSource, r.path, begin, end, err)
		}
		vals, err := cellSamples(raw, latIdx, lonIdx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableSource, r.path, err)
		}
		for _, v := range vals {
			series = append(series, r.decode(v))
		}
	}
	return series, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	r.nc.Close()
	return nil
}

// decode maps one raw sample to its physical value, or NaN when it matches a
// declared fill sentinel.
func (r *Reader) decode(raw float64) float64 {
	if math.IsNaN(raw) {
		return math.NaN()
	}
	for _, f := range r.fills {
		if raw == f {
			return math.NaN()
		}
	}
	return raw*r.scale + r.offset
}

func (r *Reader) chunkSteps() int {
	perStep := len(r.lats) * len(r.lons) * 8
	if perStep <= 0 {
		return 1
	}
	n := readBudgetBytes / perStep
	if n < 1 {
		n = 1
	}
	if n > len(r.dates) {
		n = len(r.dates)
	}
	return n
}

// cellSamples picks the (latIdx, lonIdx) sample out of every time step in a
// raw 3-dimensional slice returned by GetSlice.
func cellSamples(raw any, latIdx, lonIdx int) ([]float64, error) {
	switch cube := raw.(type) {
	case [][][]float32:
		out := make([]float64, len(cube))
		for i := range cube {
			out[i] = float64(cube[i][latIdx][lonIdx])
		}
		return out, nil
	case [][][]float64:
		out := make([]float64, len(cube))
		for i := range cube {
			out[i] = cube[i][latIdx][lonIdx]
		}
		return out, nil
	case [][][]int16:
		out := make([]float64, len(cube))
		for i := range cube {
			out[i] = float64(cube[i][latIdx][lonIdx])
		}
		return out, nil
	case [][][]int32:
		out := make([]float64, len(cube))
		for i := range cube {
			out[i] = float64(cube[i][latIdx][lonIdx])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported precipitation value type %T", raw)
	}
}

func axisValues(nc api.Group, candidates []string) ([]float64, error) {
	for _, name := range candidates {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			continue
		}
		v, err := vg.Values()
		if err != nil {
			return nil, fmt.Errorf("axis %q: %v", name, err)
		}
		axis, err := toFloat64s(v)
		if err != nil {
			return nil, fmt.Errorf("axis %q: %v", name, err)
		}
		return axis, nil
	}
	return nil, fmt.Errorf("no axis variable found (tried %s)", strings.Join(candidates, ", "))
}

func timeValues(nc api.Group) ([]time.Time, error) {
	vg, err := nc.GetVarGetter(timeVar)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %v", timeVar, err)
	}
	units, ok := attrString(vg.Attributes(), "units")
	if !ok {
		return nil, fmt.Errorf("variable %q has no units attribute", timeVar)
	}
	ref, err := parseTimeReference(units)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %v", timeVar, err)
	}
	offsets, err := toFloat64s(v)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %v", timeVar, err)
	}
	return decodeDates(ref, offsets), nil
}

// parseTimeReference extracts the reference date from a CF-style "days since
// <date>" units string.
func parseTimeReference(units string) (time.Time, error) {
	i := strings.Index(units, "since")
	if i < 0 || strings.TrimSpace(units[:i]) != "days" {
		return time.Time{}, fmt.Errorf("unsupported time units %q, want \"days since <date>\"", units)
	}
	ref := strings.TrimSpace(units[i+len("since"):])
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, ref); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time reference %q", ref)
}

// decodeDates turns day offsets from a reference date into UTC civil dates.
// Fractional offsets (midday stamps) truncate to the day they fall on.
func decodeDates(ref time.Time, offsets []float64) []time.Time {
	dates := make([]time.Time, len(offsets))
	for i, d := range offsets {
		t := ref.Add(time.Duration(d * 24 * float64(time.Hour)))
		year, month, day := t.Date()
		dates[i] = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
	return dates
}

func toFloat64s(v any) ([]float64, error) {
	switch vals := v.(type) {
	case []float64:
		return vals, nil
	case []float32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	v, has := attrs.Get(key)
	if !has {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case int16:
		return float64(t), true
	case []float64:
		if len(t) > 0 {
			return t[0], true
		}
	case []float32:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	case []int32:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	case []int16:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	}
	return 0, false
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	v, has := attrs.Get(key)
	if !has {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
