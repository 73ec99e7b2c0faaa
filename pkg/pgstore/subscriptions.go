package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/restokit/pkg/pg"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

const activeSubscriptionIndex = "one_active_subscription_per_tenant"

const tenantColumns = `id, name, status, active_subscription_id, created_at, updated_at`

func scanTenant(row pgx.Row) (subscription.Tenant, error) {
	var (
		t      subscription.Tenant
		active *uuid.UUID
	)
	err := row.Scan(&t.ID, &t.Name, &t.Status, &active, &t.CreatedAt, &t.UpdatedAt)
	t.ActiveSubscriptionID = orNil(active)
	return t, err
}

func (s *Store) CreateTenant(ctx context.Context, t *subscription.Tenant) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO tenants (id, name, status, active_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Status, nullable(t.ActiveSubscriptionID), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*subscription.Tenant, error) {
	return s.getTenant(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
}

// LockTenant reads the tenant with SELECT ... FOR UPDATE. Outside a
// transaction the lock is released as soon as the statement ends.
func (s *Store) LockTenant(ctx context.Context, id uuid.UUID) (*subscription.Tenant, error) {
	return s.getTenant(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) getTenant(ctx context.Context, query string, id uuid.UUID) (*subscription.Tenant, error) {
	t, err := scanTenant(s.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (s *Store) SetTenantState(ctx context.Context, id uuid.UUID, status subscription.TenantStatus, activeSubscriptionID uuid.UUID) error {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE tenants SET status = $2, active_subscription_id = $3, updated_at = $4
		WHERE id = $1`,
		id, status, nullable(activeSubscriptionID), s.now().UTC())
	if err != nil {
		return fmt.Errorf("set tenant state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrTenantNotFound
	}
	return nil
}

func (s *Store) TransitionTenant(ctx context.Context, id uuid.UUID, from, to subscription.TenantStatus) (bool, error) {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE tenants SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, from, to, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition tenant: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := s.GetTenant(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

const subscriptionColumns = `id, tenant_id, plan_id, billing_cycle, start_date, end_date, status,
	created_by, created_at, updated_at, cancelled_at`

func scanSubscription(row pgx.Row) (subscription.Subscription, error) {
	var (
		sub       subscription.Subscription
		createdBy *uuid.UUID
	)
	err := row.Scan(&sub.ID, &sub.TenantID, &sub.PlanID, &sub.BillingCycle, &sub.StartDate, &sub.EndDate,
		&sub.Status, &createdBy, &sub.CreatedAt, &sub.UpdatedAt, &sub.CancelledAt)
	sub.CreatedBy = orNil(createdBy)
	return sub, err
}

// CreateSubscription inserts sub. The partial unique index on active
// subscriptions turns a lost race into ErrDuplicateSubscription.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sub.ID, sub.TenantID, sub.PlanID, sub.BillingCycle, sub.StartDate, sub.EndDate, sub.Status,
		nullable(sub.CreatedBy), sub.CreatedAt, sub.UpdatedAt, sub.CancelledAt)
	switch {
	case err == nil:
		return nil
	case pg.IsConstraintViolation(err, activeSubscriptionIndex):
		return subscription.ErrDuplicateSubscription
	case pg.IsForeignKeyViolationError(err):
		return subscription.ErrTenantNotFound
	}
	return fmt.Errorf("create subscription: %w", err)
}

func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return s.oneSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (s *Store) ActiveSubscription(ctx context.Context, tenantID uuid.UUID) (*subscription.Subscription, error) {
	return s.oneSubscription(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = $1 AND status = 'active'`, tenantID)
}

func (s *Store) oneSubscription(ctx context.Context, query string, arg any) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.db(ctx).QueryRow(ctx, query, arg))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

func (s *Store) HasSubscriptions(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE tenant_id = $1)`, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subscriptions: %w", err)
	}
	return exists, nil
}

// TransitionSubscription is a compare-and-set on status, so a second
// reconciler run or a concurrent cancel finds nothing to do.
func (s *Store) TransitionSubscription(ctx context.Context, id uuid.UUID, from, to subscription.Status, at time.Time) (bool, error) {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE subscriptions
		SET status = $3,
		    updated_at = $4,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancelled_at END
		WHERE id = $1 AND status = $2`,
		id, from, to, at)
	if err != nil {
		return false, fmt.Errorf("transition subscription: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := s.GetSubscription(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// Subscriptions returns every subscription of a tenant, oldest first.
func (s *Store) Subscriptions(ctx context.Context, tenantID uuid.UUID) ([]subscription.Subscription, error) {
	rows, err := s.db(ctx).Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return collect(rows, scanSubscription)
}

func (s *Store) DueSubscriptions(ctx context.Context, cutoff time.Time, cycles []plans.BillingCycle) ([]subscription.Subscription, error) {
	names := make([]string, len(cycles))
	for i, c := range cycles {
		names[i] = string(c)
	}
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = 'active' AND end_date < $1 AND billing_cycle = ANY($2)
		ORDER BY end_date, id`,
		cutoff, names)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	return collect(rows, scanSubscription)
}

func (s *Store) TrialsCreatedBefore(ctx context.Context, cutoff time.Time) ([]subscription.Tenant, error) {
	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE status = 'trial' AND created_at < $1
		ORDER BY created_at`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	return collect(rows, scanTenant)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		return scan(row)
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
