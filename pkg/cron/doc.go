// Package cron runs periodic jobs inside the process.
//
// Jobs are registered with a Schedule (Every, DailyAt, HourlyAt) and run in
// their own goroutine when due; a job still running from its previous slot
// is not started again. With WithLocker each run first takes a distributed
// lock, so several replicas can run the same scheduler and only one of them
// executes a given slot.
package cron
