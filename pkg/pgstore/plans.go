package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/restokit/pkg/plans"
)

// PlanSource loads plan definitions from the plans and plan_limits tables.
type PlanSource struct {
	pool *pgxpool.Pool
}

// NewPlanSource creates a PlanSource.
func NewPlanSource(pool *pgxpool.Pool) *PlanSource {
	return &PlanSource{pool: pool}
}

// Load reads every plan with its limits, ordered by plan id.
func (s *PlanSource) Load(ctx context.Context) ([]plans.Definition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, price, currency, billing_cycle, is_public
		FROM plans ORDER BY id`)
	if err != nil {
		return nil, errors.Join(plans.ErrFailedToLoadPlans, err)
	}
	defs, err := collect(rows, func(row pgx.Row) (plans.Definition, error) {
		var d plans.Definition
		err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Price, &d.Currency, &d.BillingCycle, &d.Public)
		return d, err
	})
	if err != nil {
		return nil, errors.Join(plans.ErrFailedToLoadPlans, err)
	}

	index := make(map[string]int, len(defs))
	for i, d := range defs {
		index[d.ID] = i
	}

	rows, err = s.pool.Query(ctx, `SELECT plan_id, key, value, data_type FROM plan_limits ORDER BY plan_id, key`)
	if err != nil {
		return nil, errors.Join(plans.ErrFailedToLoadPlans, err)
	}
	type limitRow struct {
		planID string
		limit  plans.LimitDefinition
	}
	limits, err := collect(rows, func(row pgx.Row) (limitRow, error) {
		var r limitRow
		err := row.Scan(&r.planID, &r.limit.Key, &r.limit.Value, &r.limit.DataType)
		return r, err
	})
	if err != nil {
		return nil, errors.Join(plans.ErrFailedToLoadPlans, err)
	}
	for _, r := range limits {
		i, ok := index[r.planID]
		if !ok {
			continue
		}
		defs[i].Limits = append(defs[i].Limits, r.limit)
	}
	return defs, nil
}

// SavePlans upserts definitions and replaces their limits in one transaction.
// Used to seed the database from a YAML catalog.
func (s *PlanSource) SavePlans(ctx context.Context, defs ...plans.Definition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save plans: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for _, d := range defs {
		_, err := tx.Exec(ctx, `
			INSERT INTO plans (id, name, description, price, currency, billing_cycle, is_public)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, description = EXCLUDED.description, price = EXCLUDED.price,
				currency = EXCLUDED.currency, billing_cycle = EXCLUDED.billing_cycle, is_public = EXCLUDED.is_public`,
			d.ID, d.Name, d.Description, d.Price, d.Currency, d.BillingCycle, d.Public)
		if err != nil {
			return fmt.Errorf("save plan %s: %w", d.ID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM plan_limits WHERE plan_id = $1`, d.ID); err != nil {
			return fmt.Errorf("save plan %s: %w", d.ID, err)
		}
		for _, l := range d.Limits {
			if _, err := tx.Exec(ctx,
				`INSERT INTO plan_limits (plan_id, key, value, data_type) VALUES ($1, $2, $3, $4)`,
				d.ID, l.Key, l.Value, l.DataType); err != nil {
				return fmt.Errorf("save plan %s limit %s: %w", d.ID, l.Key, err)
			}
		}
	}
	return tx.Commit(ctx)
}
