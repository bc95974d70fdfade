package domain

// GridCoordinate is one discrete latitude/longitude sample point of a source
// grid. Value type; immutable once resolved.
type GridCoordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TargetLocation is a city whose series should be extracted, as supplied in
// the coordinates input. Name is the identity used throughout the pipeline
// and must be unique within a batch.
type TargetLocation struct {
	Name       string
	ExternalID int
	Target     GridCoordinate
}

// ResolvedLocation pairs a target with the grid cell that stands in for it.
// Invariant: Distance never exceeds the cutoff in force when it was resolved;
// targets beyond the cutoff are excluded instead.
type ResolvedLocation struct {
	Location TargetLocation
	Nearest  GridCoordinate
	Distance float64
}
