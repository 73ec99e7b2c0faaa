package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/logger"
	"github.com/dmitrymomot/restokit/pkg/plans"
)

const (
	// DefaultTrialWindow is how long a new tenant may operate without a subscription.
	DefaultTrialWindow = 15 * 24 * time.Hour
	// DefaultGracePeriod is how long past its end date a subscription still governs.
	DefaultGracePeriod = 48 * time.Hour
)

// PlanVerifier looks plans up in the catalog.
type PlanVerifier interface {
	Plan(id string) (plans.Plan, error)
}

// Ledger owns tenant subscriptions and their state machine.
type Ledger struct {
	store       Store
	catalog     PlanVerifier
	audit       *audit.Logger
	logger      *slog.Logger
	now         func() time.Time
	trialWindow time.Duration
	trialPlanID string
	grace       time.Duration
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(l *slog.Logger) LedgerOption {
	return func(s *Ledger) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAudit records subscription changes through a.
func WithAudit(a *audit.Logger) LedgerOption {
	return func(s *Ledger) { s.audit = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *Ledger) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTrialWindow sets the trial length.
func WithTrialWindow(d time.Duration) LedgerOption {
	return func(s *Ledger) {
		if d > 0 {
			s.trialWindow = d
		}
	}
}

// WithGracePeriod sets how long past its end date an active subscription
// keeps governing the tenant. Use the reconciler's grace period.
func WithGracePeriod(d time.Duration) LedgerOption {
	return func(s *Ledger) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithTrialPlan sets the plan that governs tenants still in their trial.
// Without it trial tenants have no plan and quota checks fail with ErrSubscriptionRequired.
func WithTrialPlan(planID string) LedgerOption {
	return func(s *Ledger) { s.trialPlanID = planID }
}

// NewLedger creates a Ledger.
func NewLedger(store Store, catalog PlanVerifier, opts ...LedgerOption) *Ledger {
	if store == nil {
		panic("subscription: store is required")
	}
	if catalog == nil {
		panic("subscription: plan catalog is required")
	}
	l := &Ledger{
		store:       store,
		catalog:     catalog,
		logger:      slog.Default(),
		now:         time.Now,
		trialWindow: DefaultTrialWindow,
		grace:       DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterTenant creates a tenant in the trial state.
func (l *Ledger) RegisterTenant(ctx context.Context, name string) (*Tenant, error) {
	if name == "" {
		return nil, errors.Join(ErrInvalidParams, errors.New("tenant name is required"))
	}
	now := l.now().UTC()
	t := &Tenant{
		ID:        uuid.New(),
		Name:      name,
		Status:    TenantTrial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.store.CreateTenant(ctx, t); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

// Subscribe creates an active subscription for a tenant that has none and
// marks the tenant active. The duplicate check and the insert run in one
// transaction under the tenant row lock.
func (l *Ledger) Subscribe(ctx context.Context, p SubscribeParams) (*Subscription, error) {
	if p.TenantID == uuid.Nil {
		return nil, errors.Join(ErrInvalidParams, errors.New("tenant id is required"))
	}
	plan, err := l.catalog.Plan(p.PlanID)
	if err != nil {
		return nil, err
	}
	cycle := p.BillingCycle
	if cycle == "" {
		cycle = plan.BillingCycle
	}
	if !cycle.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBillingCycle, cycle)
	}
	start := p.StartDate
	if start.IsZero() {
		start = l.now()
	}
	start = Date(start)

	var sub *Subscription
	err = l.store.RunInTx(ctx, func(ctx context.Context) error {
		tenant, err := l.store.LockTenant(ctx, p.TenantID)
		if err != nil {
			return err
		}
		if err := l.expireLapsed(ctx, tenant); err != nil {
			return err
		}
		if err := EnsureNoActive(ctx, l.store, tenant.ID); err != nil {
			return err
		}
		if !CanTransitionTenant(tenant.Status, TenantActive) {
			return fmt.Errorf("%w: tenant %s is %s", ErrInvalidTransition, tenant.ID, tenant.Status)
		}

		now := l.now().UTC()
		sub = &Subscription{
			ID:           uuid.New(),
			TenantID:     tenant.ID,
			PlanID:       plan.ID,
			BillingCycle: cycle,
			StartDate:    start,
			EndDate:      EndDate(start, cycle),
			Status:       StatusActive,
			CreatedBy:    p.CreatedBy,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := l.store.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := l.store.SetTenantState(ctx, tenant.ID, TenantActive, sub.ID); err != nil {
			return err
		}
		return l.record(ctx, audit.ActionSubscriptionCreated, sub,
			audit.WithMetadata("plan_id", sub.PlanID),
			audit.WithMetadata("end_date", sub.EndDate.Format(time.DateOnly)))
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "subscription created",
		logger.TenantID(sub.TenantID),
		logger.SubscriptionID(sub.ID),
		slog.String("plan_id", sub.PlanID),
		slog.String("billing_cycle", string(sub.BillingCycle)))
	return sub, nil
}

// Cancel moves an active subscription to cancelled and clears the tenant's
// active reference.
func (l *Ledger) Cancel(ctx context.Context, tenantID, subscriptionID, by uuid.UUID) (*Subscription, error) {
	var sub *Subscription
	err := l.store.RunInTx(ctx, func(ctx context.Context) error {
		tenant, err := l.store.LockTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		sub, err = l.store.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.TenantID != tenant.ID {
			return fmt.Errorf("%w: %s does not belong to tenant %s", ErrSubscriptionNotFound, subscriptionID, tenantID)
		}
		if !CanTransition(sub.Status, StatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, StatusCancelled)
		}

		now := l.now().UTC()
		ok, err := l.store.TransitionSubscription(ctx, sub.ID, StatusActive, StatusCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: subscription %s is no longer active", ErrInvalidTransition, sub.ID)
		}
		if err := l.store.SetTenantState(ctx, tenant.ID, TenantCancelled, uuid.Nil); err != nil {
			return err
		}

		sub.Status = StatusCancelled
		sub.UpdatedAt = now
		sub.CancelledAt = &now
		return l.record(ctx, audit.ActionSubscriptionCancelled, sub, audit.WithActor(by.String()))
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "subscription cancelled",
		logger.TenantID(tenantID),
		logger.SubscriptionID(subscriptionID),
		logger.UserID(by))
	return sub, nil
}

// expireLapsed moves an active subscription past its end date and grace to
// expired, as the reconciler would, so a renewal is not blocked by a row the
// reconciler has not reached yet. tenant is updated in place.
func (l *Ledger) expireLapsed(ctx context.Context, tenant *Tenant) error {
	sub, err := l.store.ActiveSubscription(ctx, tenant.ID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	now := l.now().UTC()
	if !sub.Lapsed(now, l.grace) {
		return nil
	}
	ok, err := l.store.TransitionSubscription(ctx, sub.ID, StatusActive, StatusExpired, now)
	if err != nil || !ok {
		return err
	}
	if err := l.store.SetTenantState(ctx, tenant.ID, TenantExpired, uuid.Nil); err != nil {
		return err
	}
	tenant.Status = TenantExpired
	tenant.ActiveSubscriptionID = uuid.Nil

	sub.Status = StatusExpired
	return l.record(ctx, audit.ActionSubscriptionExpired, sub,
		audit.WithActor("system"),
		audit.WithMetadata("end_date", sub.EndDate.Format(time.DateOnly)))
}

// Active returns the tenant's active subscription, or ErrSubscriptionNotFound
// when there is none or it has lapsed past its end date and grace.
func (l *Ledger) Active(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	sub, err := l.store.ActiveSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub.Lapsed(l.now(), l.grace) {
		return nil, fmt.Errorf("%w: subscription %s ended on %s", ErrSubscriptionNotFound, sub.ID, sub.EndDate.Format(time.DateOnly))
	}
	return sub, nil
}

// ResolvePlan returns the plan that currently governs the tenant.
//
// An active subscription decides until its end date plus grace has passed,
// even if the reconciler has not expired it yet. A tenant that has ever subscribed gets no
// trial fallback. A tenant with no subscription rows, still in trial status
// and inside the trial window, is governed by the trial plan when one is
// configured. Everything else is ErrSubscriptionRequired.
func (l *Ledger) ResolvePlan(ctx context.Context, tenantID uuid.UUID) (string, error) {
	sub, err := l.store.ActiveSubscription(ctx, tenantID)
	switch {
	case err == nil && sub.Lapsed(l.now(), l.grace):
		return "", fmt.Errorf("%w: subscription %s ended on %s", ErrSubscriptionRequired, sub.ID, sub.EndDate.Format(time.DateOnly))
	case err == nil:
		return sub.PlanID, nil
	case !errors.Is(err, ErrSubscriptionNotFound):
		return "", err
	}

	tenant, err := l.store.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if tenant.Status != TenantTrial || l.trialPlanID == "" {
		return "", fmt.Errorf("%w: tenant %s is %s", ErrSubscriptionRequired, tenantID, tenant.Status)
	}
	if TrialExpired(tenant.CreatedAt, l.now(), l.trialWindow) {
		return "", fmt.Errorf("%w: trial of tenant %s is over", ErrSubscriptionRequired, tenantID)
	}
	subscribed, err := l.store.HasSubscriptions(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if subscribed {
		return "", fmt.Errorf("%w: tenant %s has no active subscription", ErrSubscriptionRequired, tenantID)
	}
	return l.trialPlanID, nil
}

// TenantState returns the tenant's current status.
func (l *Ledger) TenantState(ctx context.Context, tenantID uuid.UUID) (TenantStatus, error) {
	t, err := l.store.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

func (l *Ledger) record(ctx context.Context, action string, sub *Subscription, opts ...audit.EventOption) error {
	if l.audit == nil {
		return nil
	}
	opts = append([]audit.EventOption{
		audit.WithTenant(sub.TenantID.String()),
		audit.WithActor(sub.CreatedBy.String()),
		audit.WithResource("subscription", sub.ID.String()),
	}, opts...)
	return l.audit.Log(ctx, action, opts...)
}
