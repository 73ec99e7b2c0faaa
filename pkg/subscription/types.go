package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/restokit/pkg/plans"
)

// Status is the lifecycle state of a single subscription row.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// TenantStatus is the tenant-level state derived from its subscriptions
// or, before the first subscription, from the trial window.
type TenantStatus string

const (
	TenantTrial     TenantStatus = "trial"
	TenantActive    TenantStatus = "active"
	TenantCancelled TenantStatus = "cancelled"
	TenantExpired   TenantStatus = "expired"
)

// Tenant is a restaurant organization. CreatedAt marks the start of the trial.
type Tenant struct {
	ID                   uuid.UUID
	Name                 string
	Status               TenantStatus
	ActiveSubscriptionID uuid.UUID // uuid.Nil when the tenant has no active subscription
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Subscription is one paid period of a tenant on a plan.
// StartDate and EndDate are calendar dates at UTC midnight.
type Subscription struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	PlanID       string
	BillingCycle plans.BillingCycle
	StartDate    time.Time
	EndDate      time.Time
	Status       Status
	CreatedBy    uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CancelledAt  *time.Time
}

// IsActive reports whether the subscription is in the active state.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == StatusActive
}

// Lapsed reports whether the subscription's end date plus grace has passed
// at now, whatever its stored status says. An active row stays lapsed until
// the reconciler or a new Subscribe expires it.
func (s *Subscription) Lapsed(now time.Time, grace time.Duration) bool {
	return s != nil && s.EndDate.Before(ExpiryCutoff(now, grace))
}

// SubscribeParams describes a new subscription.
type SubscribeParams struct {
	TenantID uuid.UUID
	PlanID   string
	// BillingCycle defaults to the plan's cycle when empty.
	BillingCycle plans.BillingCycle
	// StartDate defaults to today.
	StartDate time.Time
	CreatedBy uuid.UUID
}
