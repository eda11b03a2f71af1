// Package influxdb provides an optional time-series sink for
// housekeeper run metrics.
//
// Each completed operation (audit, plan, apply, rollback) is written as
// one point on the "housekeeper_runs" measurement, tagged with the
// operation name and carrying the operation's counters as fields.
// Writes are batched and non-blocking; a dropped point is acceptable.
//
// The sink is wired in only when influxdb.enabled is true in the
// configuration; the engine treats a nil sink as "metrics disabled".
package influxdb
