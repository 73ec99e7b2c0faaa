// Package reconcile holds the scheduled lifecycle jobs.
//
// ReconcileSubscriptions and ReconcileTrials run daily and move lapsed
// subscriptions and trials to expired. ReconcileBranchOperatingStatus runs
// hourly and flips branches open or closed from their operating windows.
//
// Every job selects only rows still in the source state and writes with a
// status-conditional update, so a second run on the same day changes
// nothing. Each item is handled in its own transaction; an item that fails
// (a write conflict, say) is rolled back, logged and retried on the next run
// without stopping the batch.
package reconcile
