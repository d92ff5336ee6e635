// Package tracking keeps the process-wide live state: the reconciled vehicle
// map and the static schedule it is reconciled against.
//
// Reconciler polls a VehicleSource, deduplicates the records, attaches each
// vehicle's Block (reusing the previous one while it still contains the
// reported trip), smooths adherence and stores the result. Concurrent
// callers share one upstream fetch, and a failed fetch leaves the last good
// map in place.
//
// ScheduleCache owns the static feed Index, reloading it once the feed's
// validity has passed and falling back to an on-disk snapshot when the
// upstream cannot be reached.
package tracking
