// Package scheduler runs named periodic tasks (cron or interval) in-process.
//
// Each schedule runs at most once at a time: a trigger that fires while the
// previous run is still in flight is skipped, and RunNow obeys the same rule.
package scheduler
