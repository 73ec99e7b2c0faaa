// Package pgstore implements the governance stores on PostgreSQL.
//
// One Store value satisfies subscription.Store, quota.Store, rbac.Store,
// branch.Store, reconcile.Store, reconcile.BranchStore and the audit
// storage interfaces. Every statement goes through pg.Conn, so calls made
// inside RunInTx share its SERIALIZABLE transaction. LockTenant issues
// SELECT ... FOR UPDATE on the tenant row, which serializes check-then-act
// sequences per tenant on top of the isolation level.
//
// The schema lives in the embedded migrations directory and is applied with
// goose through Migrate:
//
//	if err := pgstore.Migrate(ctx, pool, cfg, logger); err != nil {
//	    return err
//	}
//	store := pgstore.New(pool, pg.NewTransactor(pool))
//
// PlanSource reads the plans and plan_limits tables so that a catalog can be
// loaded from the database instead of YAML.
package pgstore

import (
	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/quota"
	"github.com/dmitrymomot/restokit/pkg/rbac"
	"github.com/dmitrymomot/restokit/pkg/reconcile"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

var (
	_ subscription.Store    = (*Store)(nil)
	_ quota.Store           = (*Store)(nil)
	_ rbac.Store            = (*Store)(nil)
	_ branch.Store          = (*Store)(nil)
	_ reconcile.Store       = (*Store)(nil)
	_ reconcile.BranchStore = (*Store)(nil)
	_ audit.Storage         = (*Store)(nil)
	_ audit.Querier         = (*Store)(nil)
	_ plans.Source          = (*PlanSource)(nil)
)
