package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists tenants and subscriptions.
//
// Methods called inside RunInTx take part in that transaction. Conditional
// transitions return false, without error, when the row is no longer in
// the expected state.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error)
	// LockTenant reads the tenant and holds a row lock until the transaction ends.
	LockTenant(ctx context.Context, id uuid.UUID) (*Tenant, error)
	// SetTenantState overwrites status and the active subscription reference (uuid.Nil clears it).
	SetTenantState(ctx context.Context, id uuid.UUID, status TenantStatus, activeSubscriptionID uuid.UUID) error
	TransitionTenant(ctx context.Context, id uuid.UUID, from, to TenantStatus) (bool, error)

	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// ActiveSubscription returns ErrSubscriptionNotFound when the tenant has none.
	ActiveSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
	HasSubscriptions(ctx context.Context, tenantID uuid.UUID) (bool, error)
	TransitionSubscription(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (bool, error)
}
