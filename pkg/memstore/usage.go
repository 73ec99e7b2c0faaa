package memstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

func (s *Store) RecordedUsage(ctx context.Context, tenantID uuid.UUID, key plans.Key) (decimal.Decimal, error) {
	defer s.lock(ctx)()
	return s.st.usage[usageKey{tenantID, key}], nil
}

func (s *Store) AddUsage(ctx context.Context, tenantID uuid.UUID, key plans.Key, delta decimal.Decimal) error {
	defer s.lock(ctx)()
	if _, ok := s.st.tenants[tenantID]; !ok {
		return subscription.ErrTenantNotFound
	}
	k := usageKey{tenantID, key}
	total := s.st.usage[k].Add(delta)
	if total.IsNegative() {
		total = decimal.Zero
	}
	s.st.usage[k] = total
	return nil
}
