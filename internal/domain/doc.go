// Package domain models per-city daily precipitation series and the ETCCDI
// climate indices derived from them.
//
// # Data Source
//
// Daily precipitation comes from downscaled CMIP6 model runs, one NetCDF file
// per model/scenario pair (e.g. "ACCESS-CM2-pr-ssp245.nc"), each covering a
// regular latitude/longitude grid over a multi-decade period. The catalog of
// models and scenario windows is injected configuration ([Catalog]), never
// package-level state, so reduced sets can be used in tests and partial runs.
//
// # Units and Conventions
//
// Precipitation values are millimetres per day. Missing values (NaN or the
// file's declared _FillValue/missing_value) are substituted with 0.0 mm at
// extraction time; this is a documented business rule of the pipeline, not an
// error, and no sentinel survives past extraction. Dates are decoded from the
// file's "days since <epoch>" time axis and are always UTC calendar days.
//
// # Wet-Day Convention
//
//	wet day:   daily precipitation ≥ 1.0 mm ([WetDayThreshold])
//	dry day:   daily precipitation < 1.0 mm
//	heavy day: daily precipitation ≥ 20.0 mm ([HeavyDayThreshold])
//
// # Index Definitions
//
// The nine indices computed by [ComputeIndices] follow the ETCCDI core set
// (https://etccdi.pacificclimate.org/list_27_indices.shtml), except the
// seasonality index, which follows Walsh and Lawler (1981). RX1day and RX5day
// are grouped monthly; the rest annually. The R95p threshold is fixed once
// over the whole series (wet days only) and then applied per year.
//
// # Coordinate Resolution
//
// Target cities rarely sit exactly on a grid point. [GridIndex.Nearest] maps
// a city to the closest cell within a distance cutoff; cities beyond the
// cutoff are excluded from processing, never silently defaulted. Resolution
// depends only on the axis definitions, so any one file of a product family
// (conventionally the smallest) can act as the reference for a whole batch.
package domain
