// Package domain models forecast cycles, accumulation windows and the
// per-watershed statistics derived from them.
//
// # Forecast Cycles
//
// A cycle is one run of a numerical weather model, identified by its UTC
// reference time in YYYYMMDDHH form (e.g. "2024050106"). Models publish on a
// fixed synoptic schedule:
//
//	GFS:    00, 06, 12, 18 UTC, 6-hour steps, roughly 3.5h publication lag
//	WRF-PR: 06, 18 UTC, 1-hour steps, roughly 2.5h publication lag
//
// [DetermineCycle] picks the latest slot whose data should be available. When
// nothing today qualifies it falls back to the last slot of the previous day.
//
// # Accumulation
//
// GFS precipitation steps are interval amounts and are summed directly into
// windows of [Model.WindowSize] steps (four 6h steps give a 24h total). WRF
// steps are totals since the reference time and are differenced first:
//
//	step_n = cumulative_n - cumulative_(n-1)
//
// NaN is nodata throughout and propagates through sums, so a cell missing in
// any contributing step is missing in the window.
//
// # File Names
//
// Raw downloads are "f<lead>.grb2" with a zero-padded three-digit lead. Every
// derived artifact of a window carries the same [WindowName]:
//
//	<model>_<cycle>_h<start>-<end>[_resampled].nc
//
// Start and end are the lead hours bounding the accumulation interval. The
// zonal timestep label is the valid time of the window end (see [TimestepLabel]).
//
// # Errors
//
// Stage failures are typed so the workflow runner can tell downloads apart from
// processing: [AcquisitionError] (404 means the cycle is not yet published, 5xx
// means a transient upstream problem), [MissingInputError], [ConversionError],
// [FilesystemError] and [ScheduleResolutionError].
package domain
