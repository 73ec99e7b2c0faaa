package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var subscriptionTransitions = map[Status][]Status{
	StatusActive: {StatusCancelled, StatusExpired},
}

var tenantTransitions = map[TenantStatus][]TenantStatus{
	TenantTrial:     {TenantActive, TenantExpired},
	TenantActive:    {TenantCancelled, TenantExpired},
	TenantCancelled: {TenantActive},
	TenantExpired:   {TenantActive},
}

// CanTransition reports whether a subscription may move from one status to another.
// Cancelled and expired are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range subscriptionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionTenant reports whether a tenant may move between statuses.
// Moving back to active always goes through a new subscription.
func CanTransitionTenant(from, to TenantStatus) bool {
	for _, s := range tenantTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ActiveFinder looks up a tenant's active subscription.
type ActiveFinder interface {
	ActiveSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
}

// EnsureNoActive fails with ErrDuplicateSubscription when the tenant already
// has an active subscription. Call it inside the transaction that inserts
// the new row, after locking the tenant.
func EnsureNoActive(ctx context.Context, store ActiveFinder, tenantID uuid.UUID) error {
	existing, err := store.ActiveSubscription(ctx, tenantID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		return nil
	case err != nil:
		return err
	case existing.IsActive():
		return fmt.Errorf("%w: tenant %s, subscription %s", ErrDuplicateSubscription, tenantID, existing.ID)
	}
	return nil
}
