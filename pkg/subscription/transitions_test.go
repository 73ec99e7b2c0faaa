package subscription_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/restokit/pkg/subscription"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	assert.True(t, subscription.CanTransition(subscription.StatusActive, subscription.StatusCancelled))
	assert.True(t, subscription.CanTransition(subscription.StatusActive, subscription.StatusExpired))

	for _, from := range []subscription.Status{subscription.StatusCancelled, subscription.StatusExpired} {
		for _, to := range []subscription.Status{subscription.StatusActive, subscription.StatusCancelled, subscription.StatusExpired} {
			assert.False(t, subscription.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionTenant(t *testing.T) {
	t.Parallel()

	allowed := map[subscription.TenantStatus][]subscription.TenantStatus{
		subscription.TenantTrial:     {subscription.TenantActive, subscription.TenantExpired},
		subscription.TenantActive:    {subscription.TenantCancelled, subscription.TenantExpired},
		subscription.TenantCancelled: {subscription.TenantActive},
		subscription.TenantExpired:   {subscription.TenantActive},
	}
	all := []subscription.TenantStatus{
		subscription.TenantTrial, subscription.TenantActive,
		subscription.TenantCancelled, subscription.TenantExpired,
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, subscription.CanTransitionTenant(from, to), "%s -> %s", from, to)
		}
	}
}
