package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/restokit/pkg/pg"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

func (s *Store) RecordedUsage(ctx context.Context, tenantID uuid.UUID, key plans.Key) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := s.db(ctx).QueryRow(ctx,
		`SELECT amount FROM tenant_usage WHERE tenant_id = $1 AND key = $2`, tenantID, key).Scan(&amount)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("read usage: %w", err)
	}
	return amount, nil
}

// AddUsage upserts the running total, flooring it at zero.
func (s *Store) AddUsage(ctx context.Context, tenantID uuid.UUID, key plans.Key, delta decimal.Decimal) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO tenant_usage (tenant_id, key, amount)
		VALUES ($1, $2, GREATEST($3::numeric, 0))
		ON CONFLICT (tenant_id, key)
		DO UPDATE SET amount = GREATEST(tenant_usage.amount + $3::numeric, 0)`,
		tenantID, key, delta)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return subscription.ErrTenantNotFound
		}
		return fmt.Errorf("add usage: %w", err)
	}
	return nil
}
