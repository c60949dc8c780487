// Package domain models UKCP18 convection-permitting model (CPM) output and the
// rainfall statistics derived from it.
//
// # Data Source
//
// Hourly 2.2 km UKCP18 land-cpm files are served from the CEDA archive, one file
// per variable, ensemble member and model month:
//
//	pr_rcp85_land-cpm_uk_2.2km_01_1hr_19801201-19801230.nc
//
// The date range in the file name is always day 01 to day 30 because the model
// runs on a 360-day calendar. The target month of a job is parsed from that
// range; the preceding month is fetched too so that multi-hour accumulations
// ending early on day 1 see complete windows. See [PreviousMonthURL].
//
// # Calendar
//
// Model time is "hours since 1970-01-01 00:00:00" on the 360_day calendar:
// twelve months of thirty days. Hourly means are stamped at the half hour
// (00:30, 01:30, ...). [Date360] represents these timestamps; the standard
// library's time.Time cannot, since 30 February is a valid model date.
//
// UKCP18 CPM projections come in three 20-year slices starting December 1980,
// December 2020 and December 2060. The first month of a slice has no
// previous-month file ([IsSliceStart]).
//
// # Grid and masks
//
// Data are on a rotated-pole grid (grid_latitude, grid_longitude) with 2-D true
// latitude/longitude coordinates. Cells are flattened row-major (latitude
// outer) and identified by [CellID]. A water company (WCID) mask on the same
// grid assigns each land cell an id 0..N-1; ocean and unassigned cells are NaN
// or negative.
//
// # Statistics
//
//	Dry days:     daily totals < 0.1 mm, counted per cell, averaged over cells.
//	Month total:  per-cell monthly sum, averaged over cells.
//	Bin counts:   (cell, hour) pairs whose rolling accumulation lies strictly
//	              between consecutive bin edges.
//	Profiles:     events whose accumulation falls in a return-period band
//	              (lower, upper], with the hourly hyetograph leading up to them.
//
// September is additionally summarised for its first half (up to 15 Sep 00:30)
// and reported as month 13.
package domain
