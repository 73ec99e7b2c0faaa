package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

func (s *Store) CreateTenant(ctx context.Context, t *subscription.Tenant) error {
	defer s.lock(ctx)()
	if _, ok := s.st.tenants[t.ID]; ok {
		return fmt.Errorf("memstore: tenant %s already exists", t.ID)
	}
	s.st.tenants[t.ID] = *t
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*subscription.Tenant, error) {
	defer s.lock(ctx)()
	t, ok := s.st.tenants[id]
	if !ok {
		return nil, subscription.ErrTenantNotFound
	}
	return &t, nil
}

// LockTenant is GetTenant; the transaction mutex already excludes other writers.
func (s *Store) LockTenant(ctx context.Context, id uuid.UUID) (*subscription.Tenant, error) {
	return s.GetTenant(ctx, id)
}

func (s *Store) SetTenantState(ctx context.Context, id uuid.UUID, status subscription.TenantStatus, activeSubscriptionID uuid.UUID) error {
	defer s.lock(ctx)()
	t, ok := s.st.tenants[id]
	if !ok {
		return subscription.ErrTenantNotFound
	}
	t.Status = status
	t.ActiveSubscriptionID = activeSubscriptionID
	t.UpdatedAt = s.now().UTC()
	s.st.tenants[id] = t
	return nil
}

func (s *Store) TransitionTenant(ctx context.Context, id uuid.UUID, from, to subscription.TenantStatus) (bool, error) {
	defer s.lock(ctx)()
	t, ok := s.st.tenants[id]
	if !ok {
		return false, subscription.ErrTenantNotFound
	}
	if t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = s.now().UTC()
	s.st.tenants[id] = t
	return true, nil
}

// CreateSubscription enforces one active subscription per tenant, like the
// partial unique index in Postgres.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	defer s.lock(ctx)()
	if _, ok := s.st.tenants[sub.TenantID]; !ok {
		return subscription.ErrTenantNotFound
	}
	if sub.Status == subscription.StatusActive {
		for _, other := range s.st.subscriptions {
			if other.TenantID == sub.TenantID && other.Status == subscription.StatusActive {
				return subscription.ErrDuplicateSubscription
			}
		}
	}
	s.st.subscriptions[sub.ID] = *sub
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	defer s.lock(ctx)()
	sub, ok := s.st.subscriptions[id]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *Store) ActiveSubscription(ctx context.Context, tenantID uuid.UUID) (*subscription.Subscription, error) {
	defer s.lock(ctx)()
	for _, sub := range s.st.subscriptions {
		if sub.TenantID == tenantID && sub.Status == subscription.StatusActive {
			return &sub, nil
		}
	}
	return nil, subscription.ErrSubscriptionNotFound
}

func (s *Store) HasSubscriptions(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	defer s.lock(ctx)()
	for _, sub := range s.st.subscriptions {
		if sub.TenantID == tenantID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) TransitionSubscription(ctx context.Context, id uuid.UUID, from, to subscription.Status, at time.Time) (bool, error) {
	defer s.lock(ctx)()
	sub, ok := s.st.subscriptions[id]
	if !ok {
		return false, subscription.ErrSubscriptionNotFound
	}
	if sub.Status != from {
		return false, nil
	}
	sub.Status = to
	sub.UpdatedAt = at
	if to == subscription.StatusCancelled {
		sub.CancelledAt = &at
	}
	s.st.subscriptions[id] = sub
	return true, nil
}

// Subscriptions returns every subscription of a tenant, oldest first.
func (s *Store) Subscriptions(ctx context.Context, tenantID uuid.UUID) ([]subscription.Subscription, error) {
	defer s.lock(ctx)()
	return sortedValues(s.st.subscriptions,
		func(sub subscription.Subscription) bool { return sub.TenantID == tenantID },
		func(a, b subscription.Subscription) int { return a.CreatedAt.Compare(b.CreatedAt) },
	), nil
}

func (s *Store) DueSubscriptions(ctx context.Context, cutoff time.Time, cycles []plans.BillingCycle) ([]subscription.Subscription, error) {
	defer s.lock(ctx)()
	return sortedValues(s.st.subscriptions,
		func(sub subscription.Subscription) bool {
			return sub.Status == subscription.StatusActive &&
				sub.EndDate.Before(cutoff) &&
				slices.Contains(cycles, sub.BillingCycle)
		},
		func(a, b subscription.Subscription) int {
			return cmp.Or(a.EndDate.Compare(b.EndDate), cmp.Compare(a.ID.String(), b.ID.String()))
		},
	), nil
}

func (s *Store) TrialsCreatedBefore(ctx context.Context, cutoff time.Time) ([]subscription.Tenant, error) {
	defer s.lock(ctx)()
	return sortedValues(s.st.tenants,
		func(t subscription.Tenant) bool {
			return t.Status == subscription.TenantTrial && t.CreatedAt.Before(cutoff)
		},
		func(a, b subscription.Tenant) int { return a.CreatedAt.Compare(b.CreatedAt) },
	), nil
}
