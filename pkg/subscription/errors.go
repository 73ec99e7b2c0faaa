package subscription

import "errors"

var (
	ErrTenantNotFound       = errors.New("subscription: tenant not found")
	ErrSubscriptionNotFound = errors.New("subscription: subscription not found")

	// ErrDuplicateSubscription is returned when the tenant already has an active subscription.
	ErrDuplicateSubscription = errors.New("subscription: tenant already has an active subscription")

	// ErrSubscriptionRequired is returned when the tenant has neither an
	// active subscription nor a running trial.
	ErrSubscriptionRequired = errors.New("subscription: active subscription or trial required")

	ErrInvalidBillingCycle = errors.New("subscription: invalid billing cycle")
	ErrInvalidTransition   = errors.New("subscription: invalid status transition")
	ErrInvalidParams       = errors.New("subscription: invalid parameters")
)
