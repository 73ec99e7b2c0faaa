package reconcile

import "context"

// Job names.
const (
	JobSubscriptions = "reconcile_subscriptions"
	JobTrials        = "reconcile_trials"
	JobBranches      = "reconcile_branch_operating_status"
)

// Cadence is how often a job is meant to run.
type Cadence string

const (
	Daily  Cadence = "daily"
	Hourly Cadence = "hourly"
)

// Job is a restartable, idempotent unit the process scheduler can run.
type Job struct {
	Name    string
	Cadence Cadence
	Run     func(ctx context.Context) error
}

// Jobs returns the reconciler's jobs for registration with a scheduler.
// The branch job is included only when a BranchStore is configured.
func (r *Reconciler) Jobs() []Job {
	jobs := []Job{
		{Name: JobSubscriptions, Cadence: Daily, Run: discardReport(r.ReconcileSubscriptions)},
		{Name: JobTrials, Cadence: Daily, Run: discardReport(r.ReconcileTrials)},
	}
	if r.branches != nil {
		jobs = append(jobs, Job{Name: JobBranches, Cadence: Hourly, Run: discardReport(r.ReconcileBranchOperatingStatus)})
	}
	return jobs
}

func discardReport(fn func(context.Context) (Report, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}
}
