package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/logger"
	"github.com/dmitrymomot/restokit/pkg/notify"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

// DefaultGracePeriod is how long past its end date a subscription stays active.
const DefaultGracePeriod = subscription.DefaultGracePeriod

// ErrPartialFailure is returned when some items of a batch failed. They are
// left untouched and picked up by the next run.
var ErrPartialFailure = errors.New("reconcile: some transitions failed")

// Store is what the subscription and trial jobs need.
type Store interface {
	subscription.Store
	// DueSubscriptions returns active subscriptions with end_date < cutoff whose cycle is in cycles.
	DueSubscriptions(ctx context.Context, cutoff time.Time, cycles []plans.BillingCycle) ([]subscription.Subscription, error)
	// TrialsCreatedBefore returns tenants in trial status created before cutoff.
	TrialsCreatedBefore(ctx context.Context, cutoff time.Time) ([]subscription.Tenant, error)
}

// BranchStore is what the branch operating-status job needs.
type BranchStore interface {
	AllBranches(ctx context.Context) ([]branch.Branch, error)
	// SetBranchOpen writes is_open only when it differs from open and reports whether it did.
	SetBranchOpen(ctx context.Context, id uuid.UUID, open bool, at time.Time) (bool, error)
}

// Report summarizes one run.
type Report struct {
	Job          string
	Examined     int
	Transitioned int
	Skipped      int
	Failed       int
}

// Reconciler moves lapsed subscriptions and trials to expired and keeps
// branch open flags in step with their operating windows.
// Every run is idempotent: each write is conditional on the current status.
type Reconciler struct {
	store                Store
	branches             BranchStore
	notifier             notify.Notifier
	audit                *audit.Logger
	logger               *slog.Logger
	now                  func() time.Time
	grace                time.Duration
	trialWindow          time.Duration
	yearlyMonthStartOnly bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithGracePeriod sets the grace after a subscription's end date.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.grace = d
		}
	}
}

// WithTrialWindow sets the trial length.
func WithTrialWindow(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.trialWindow = d
		}
	}
}

// WithYearlyMonthStartOnly controls whether yearly subscriptions are only
// examined on the first day of a month. On by default. Entitlement does not
// wait for the scan: subscription.Ledger stops resolving a lapsed row's plan
// once its end date plus grace has passed.
func WithYearlyMonthStartOnly(on bool) Option {
	return func(r *Reconciler) { r.yearlyMonthStartOnly = on }
}

// WithBranches enables the branch operating-status job.
func WithBranches(b BranchStore) Option {
	return func(r *Reconciler) { r.branches = b }
}

// WithNotifier sets where expiry notifications go.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Reconciler) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithAudit records every transition through a.
func WithAudit(a *audit.Logger) Option {
	return func(r *Reconciler) { r.audit = a }
}

// WithLogger sets the reconciler logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Reconciler.
func New(store Store, opts ...Option) *Reconciler {
	if store == nil {
		panic("reconcile: store is required")
	}
	r := &Reconciler{
		store:                store,
		notifier:             notify.NoOp{},
		logger:               slog.Default(),
		now:                  time.Now,
		grace:                DefaultGracePeriod,
		trialWindow:          subscription.DefaultTrialWindow,
		yearlyMonthStartOnly: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReconcileSubscriptions expires every active subscription whose end date
// lies before today minus the grace period. Yearly subscriptions are only
// examined on the first of the month unless that optimization is disabled.
// Each subscription is expired in its own transaction; a failure is logged
// and counted and the batch goes on.
func (r *Reconciler) ReconcileSubscriptions(ctx context.Context) (Report, error) {
	rep := Report{Job: JobSubscriptions}
	now := r.now().UTC()
	cutoff := subscription.ExpiryCutoff(now, r.grace)

	cycles := []plans.BillingCycle{plans.Monthly}
	if !r.yearlyMonthStartOnly || subscription.Date(now).Day() == 1 {
		cycles = append(cycles, plans.Yearly)
	}

	due, err := r.store.DueSubscriptions(ctx, cutoff, cycles)
	if err != nil {
		return rep, fmt.Errorf("list due subscriptions: %w", err)
	}

	for _, sub := range due {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Examined++
		expired, err := r.expireSubscription(ctx, sub, now)
		switch {
		case err != nil:
			rep.Failed++
			r.logger.ErrorContext(ctx, "failed to expire subscription",
				logger.TenantID(sub.TenantID),
				logger.SubscriptionID(sub.ID),
				logger.Error(err))
		case !expired:
			rep.Skipped++
		default:
			rep.Transitioned++
			r.notify(ctx, notify.New(notify.KindSubscriptionExpired, notify.TypeWarning, sub.TenantID, uuid.Nil,
				"Subscription expired",
				fmt.Sprintf("Your %s subscription ended on %s.", sub.PlanID, sub.EndDate.Format(time.DateOnly))).
				With("subscription_id", sub.ID.String()))
		}
	}

	return r.finish(ctx, rep)
}

func (r *Reconciler) expireSubscription(ctx context.Context, sub subscription.Subscription, now time.Time) (bool, error) {
	var expired bool
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		tenant, err := r.store.LockTenant(ctx, sub.TenantID)
		if err != nil {
			return err
		}
		ok, err := r.store.TransitionSubscription(ctx, sub.ID, subscription.StatusActive, subscription.StatusExpired, now)
		if err != nil || !ok {
			return err
		}
		expired = true
		if tenant.ActiveSubscriptionID == sub.ID || tenant.ActiveSubscriptionID == uuid.Nil {
			if err := r.store.SetTenantState(ctx, tenant.ID, subscription.TenantExpired, uuid.Nil); err != nil {
				return err
			}
		}
		return r.record(ctx, audit.ActionSubscriptionExpired, sub.TenantID,
			audit.WithResource("subscription", sub.ID.String()),
			audit.WithMetadata("end_date", sub.EndDate.Format(time.DateOnly)))
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

// ReconcileTrials expires tenants still in trial whose creation time lies
// before today minus the trial window.
func (r *Reconciler) ReconcileTrials(ctx context.Context) (Report, error) {
	rep := Report{Job: JobTrials}
	now := r.now().UTC()

	tenants, err := r.store.TrialsCreatedBefore(ctx, subscription.TrialCutoff(now, r.trialWindow))
	if err != nil {
		return rep, fmt.Errorf("list expired trials: %w", err)
	}

	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Examined++
		var expired bool
		err := r.store.RunInTx(ctx, func(ctx context.Context) error {
			ok, err := r.store.TransitionTenant(ctx, t.ID, subscription.TenantTrial, subscription.TenantExpired)
			if err != nil || !ok {
				return err
			}
			expired = true
			return r.record(ctx, audit.ActionTrialExpired, t.ID,
				audit.WithResource("tenant", t.ID.String()),
				audit.WithMetadata("created_at", t.CreatedAt.Format(time.RFC3339)))
		})
		switch {
		case err != nil:
			rep.Failed++
			r.logger.ErrorContext(ctx, "failed to expire trial",
				logger.TenantID(t.ID),
				logger.Error(err))
		case !expired:
			rep.Skipped++
		default:
			rep.Transitioned++
			r.notify(ctx, notify.New(notify.KindTrialExpired, notify.TypeWarning, t.ID, uuid.Nil,
				"Trial ended", "Choose a plan to keep using the platform."))
		}
	}

	return r.finish(ctx, rep)
}

// ReconcileBranchOperatingStatus sets each branch's open flag from its
// operating window in the branch's own timezone. Only changed rows are written.
func (r *Reconciler) ReconcileBranchOperatingStatus(ctx context.Context) (Report, error) {
	rep := Report{Job: JobBranches}
	if r.branches == nil {
		return rep, nil
	}
	now := r.now()

	all, err := r.branches.AllBranches(ctx)
	if err != nil {
		return rep, fmt.Errorf("list branches: %w", err)
	}

	for _, b := range all {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Examined++
		loc, err := b.Location()
		if err != nil {
			rep.Failed++
			r.logger.ErrorContext(ctx, "branch has invalid timezone",
				logger.BranchID(b.ID),
				slog.String("timezone", b.Timezone),
				logger.Error(err))
			continue
		}
		open := b.Window.IsOpenAt(now, loc)
		if open == b.IsOpen {
			rep.Skipped++
			continue
		}
		changed, err := r.branches.SetBranchOpen(ctx, b.ID, open, now.UTC())
		switch {
		case err != nil:
			rep.Failed++
			r.logger.ErrorContext(ctx, "failed to update branch status",
				logger.BranchID(b.ID),
				logger.Error(err))
		case changed:
			rep.Transitioned++
		default:
			rep.Skipped++
		}
	}

	return r.finish(ctx, rep)
}

func (r *Reconciler) finish(ctx context.Context, rep Report) (Report, error) {
	r.logger.InfoContext(ctx, "reconcile run finished",
		logger.Job(rep.Job),
		slog.Int("examined", rep.Examined),
		slog.Int("transitioned", rep.Transitioned),
		slog.Int("skipped", rep.Skipped),
		slog.Int("failed", rep.Failed))
	if rep.Failed > 0 {
		return rep, fmt.Errorf("%w: %s: %d of %d", ErrPartialFailure, rep.Job, rep.Failed, rep.Examined)
	}
	return rep, nil
}

func (r *Reconciler) record(ctx context.Context, action string, tenantID uuid.UUID, opts ...audit.EventOption) error {
	if r.audit == nil {
		return nil
	}
	opts = append([]audit.EventOption{
		audit.WithTenant(tenantID.String()),
		audit.WithActor("reconciler"),
	}, opts...)
	return r.audit.Log(ctx, action, opts...)
}

func (r *Reconciler) notify(ctx context.Context, n notify.Notification) {
	if err := r.notifier.Notify(ctx, n); err != nil {
		r.logger.ErrorContext(ctx, "expiry notification failed",
			logger.TenantID(n.TenantID),
			logger.Error(err))
	}
}
