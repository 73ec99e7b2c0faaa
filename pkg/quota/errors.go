package quota

import (
	"errors"

	"github.com/dmitrymomot/restokit/pkg/subscription"
)

var (
	// ErrQuotaExceeded is returned by Reserve when the requested delta does
	// not fit, or a capability gate is off.
	ErrQuotaExceeded = errors.New("quota: limit exceeded")

	// ErrSubscriptionRequired is subscription.ErrSubscriptionRequired, repeated
	// here so callers of this package can match it without another import.
	ErrSubscriptionRequired = subscription.ErrSubscriptionRequired

	ErrInvalidDelta          = errors.New("quota: delta must be positive")
	ErrUnsupportedLimit      = errors.New("quota: limit type cannot be enforced")
	ErrDowngradeNotPossible  = errors.New("quota: downgrade not possible, usage exceeds target plan")
	ErrFailedToCountUsage    = errors.New("quota: failed to count usage")
	ErrCleanerNotConfigured  = errors.New("quota: staged file cleaner not configured")
	ErrStagedCleanupFailed   = errors.New("quota: failed to delete staged files")
	ErrCounterAlreadyDefined = errors.New("quota: counter already registered for key")
)
