package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/config"
	"github.com/dmitrymomot/restokit/pkg/notify"
	"github.com/dmitrymomot/restokit/pkg/pgstore"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/quota"
	"github.com/dmitrymomot/restokit/pkg/rbac"
	"github.com/dmitrymomot/restokit/pkg/reconcile"
	"github.com/dmitrymomot/restokit/pkg/storage"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

// engine holds the wired governance components.
type engine struct {
	ledger     *subscription.Ledger
	enforcer   *quota.Enforcer
	registry   *rbac.Registry
	guard      *rbac.Guard
	branches   *branch.Service
	reconciler *reconcile.Reconciler
}

type engineOptions struct {
	strictPlans bool
}

func (rt *runtime) engine(ctx context.Context, o engineOptions) (*engine, error) {
	src, err := rt.planSource()
	if err != nil {
		return nil, err
	}
	catalogOpts := []plans.CatalogOption{plans.WithLogger(rt.log)}
	if o.strictPlans {
		catalogOpts = append(catalogOpts, plans.WithStrictValidation())
	}
	catalog, err := plans.NewCatalog(ctx, src, catalogOpts...)
	if err != nil {
		return nil, fmt.Errorf("load plan catalog: %w", err)
	}

	cleaner, err := rt.cleaner(ctx)
	if err != nil {
		return nil, err
	}

	auditLog := audit.NewLogger(rt.store, audit.WithUserIDExtractor(rbac.ActorExtractor))
	notifier := notify.NewLogNotifier(rt.log)

	ledger := subscription.NewLedger(rt.store, catalog,
		subscription.WithLogger(rt.log),
		subscription.WithAudit(auditLog),
		subscription.WithTrialWindow(rt.gov.TrialWindow),
		subscription.WithGracePeriod(rt.gov.GracePeriod),
		subscription.WithTrialPlan(rt.gov.TrialPlanID))

	enforcer := quota.NewEnforcer(catalog, ledger, rt.store,
		quota.WithCounter(plans.MaxBranches, branch.Counter(rt.store)),
		quota.WithCleaner(cleaner),
		quota.WithAudit(auditLog),
		quota.WithLogger(rt.log))

	registry := rbac.NewRegistry(rt.store)
	if err := registry.EnsurePermissions(ctx, branch.PermissionManageBranches); err != nil {
		return nil, fmt.Errorf("ensure permissions: %w", err)
	}
	resolver := rbac.NewResolver(rt.store)
	guard := rbac.NewGuard(rt.store, resolver,
		rbac.WithAudit(auditLog),
		rbac.WithNotifier(notifier),
		rbac.WithLogger(rt.log))

	branches := branch.NewService(rt.store, resolver, enforcer,
		branch.WithAudit(auditLog),
		branch.WithLogger(rt.log))

	reconciler := reconcile.New(rt.store,
		reconcile.WithGracePeriod(rt.gov.GracePeriod),
		reconcile.WithTrialWindow(rt.gov.TrialWindow),
		reconcile.WithYearlyMonthStartOnly(rt.gov.YearlyMonthStartOnly),
		reconcile.WithBranches(rt.store),
		reconcile.WithNotifier(notifier),
		reconcile.WithAudit(auditLog),
		reconcile.WithLogger(rt.log))

	return &engine{
		ledger:     ledger,
		enforcer:   enforcer,
		registry:   registry,
		guard:      guard,
		branches:   branches,
		reconciler: reconciler,
	}, nil
}

// planSource prefers PLANS_FILE and falls back to the plans tables.
func (rt *runtime) planSource() (plans.Source, error) {
	switch {
	case rt.gov.PlansFile != "":
		return plans.NewYAMLSource(rt.gov.PlansFile), nil
	case rt.pool != nil:
		return pgstore.NewPlanSource(rt.pool), nil
	}
	return nil, errors.New("PLANS_FILE is required with the memory store")
}

// cleaner deletes rejected uploads from S3 when a bucket is configured and
// from the local staging directory otherwise.
func (rt *runtime) cleaner(ctx context.Context) (quota.Cleaner, error) {
	var s3cfg storage.S3Config
	if err := config.Load(&s3cfg); err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	if s3cfg.Enabled() {
		c, err := storage.NewS3Cleaner(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("create s3 cleaner: %w", err)
		}
		return c, nil
	}
	c, err := storage.NewLocalCleaner(rt.app.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("create local cleaner: %w", err)
	}
	return c, nil
}
