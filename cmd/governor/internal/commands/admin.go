package commands

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/pgstore"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/rbac"
	"github.com/dmitrymomot/restokit/pkg/reconcile"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	rt, err := loadRuntime(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.requirePostgres(); err != nil {
		return err
	}
	if !rt.app.AutoMigrate {
		if err := pgstore.Migrate(ctx, rt.pool, rt.pgCfg, rt.log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	fmt.Println("schema is up to date")
	return nil
}

type SeedPlansCmd struct {
	File string `arg:"" type:"existingfile" help:"YAML plan catalog."`
}

func (c *SeedPlansCmd) Run(ctx context.Context, globals *Globals) error {
	rt, err := loadRuntime(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.requirePostgres(); err != nil {
		return err
	}

	defs, err := plans.NewYAMLSource(c.File).Load(ctx)
	if err != nil {
		return err
	}
	if _, err := plans.NewCatalog(ctx, plans.NewInMemSource(defs...), plans.WithStrictValidation()); err != nil {
		return fmt.Errorf("validate %s: %w", c.File, err)
	}
	if err := pgstore.NewPlanSource(rt.pool).SavePlans(ctx, defs...); err != nil {
		return fmt.Errorf("save plans: %w", err)
	}
	fmt.Printf("seeded %d plans\n", len(defs))
	return nil
}

type BootstrapCmd struct {
	User        string   `required:"" help:"User that receives the super admin role."`
	Role        string   `default:"Super Admin" help:"Role name."`
	Permissions []string `default:"manage_branches" help:"Permissions granted to the role."`
}

func (c *BootstrapCmd) Run(ctx context.Context, globals *Globals) error {
	userID, err := uuid.Parse(c.User)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	rt, eng, err := loadEngine(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := eng.registry.EnsurePermissions(ctx, c.Permissions...); err != nil {
		return err
	}
	role, err := eng.guard.Bootstrap(ctx, rbac.BootstrapParams{
		UserID:      userID,
		RoleName:    c.Role,
		Permissions: c.Permissions,
	})
	if err != nil {
		return err
	}
	fmt.Printf("role %s (%s) assigned to %s\n", role.Name, role.ID, userID)
	return nil
}

// JobNames lists the reconciliation jobs for flag enums.
const JobNames = reconcile.JobSubscriptions + "," + reconcile.JobTrials + "," + reconcile.JobBranches

type ReconcileCmd struct {
	Job []string `default:"${jobs}" enum:"${jobs}" help:"Jobs to run (${jobs})."`
}

func (c *ReconcileCmd) Run(ctx context.Context, globals *Globals) error {
	rt, eng, err := loadEngine(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	runs := map[string]func(context.Context) (reconcile.Report, error){
		reconcile.JobSubscriptions: eng.reconciler.ReconcileSubscriptions,
		reconcile.JobTrials:        eng.reconciler.ReconcileTrials,
		reconcile.JobBranches:      eng.reconciler.ReconcileBranchOperatingStatus,
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tEXAMINED\tTRANSITIONED\tSKIPPED\tFAILED")
	var failed error
	for _, name := range c.Job {
		rep, err := runs[name](ctx)
		if err != nil {
			failed = err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", name, rep.Examined, rep.Transitioned, rep.Skipped, rep.Failed)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return failed
}

type TenantCmd struct {
	Name string `arg:"" help:"Tenant name."`
}

func (c *TenantCmd) Run(ctx context.Context, globals *Globals) error {
	rt, eng, err := loadEngine(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	t, err := eng.ledger.RegisterTenant(ctx, c.Name)
	if err != nil {
		return err
	}
	fmt.Printf("tenant %s created in %s status\n", t.ID, t.Status)
	return nil
}

type SubscribeCmd struct {
	Tenant string `required:"" help:"Tenant id."`
	Plan   string `required:"" help:"Plan id."`
	Cycle  string `help:"Billing cycle (monthly or yearly), the plan's own when empty."`
	Start  string `help:"Start date (YYYY-MM-DD), today when empty."`
	By     string `help:"Acting user id."`
}

func (c *SubscribeCmd) Run(ctx context.Context, globals *Globals) error {
	tenantID, err := uuid.Parse(c.Tenant)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}
	by, err := optionalUUID(c.By)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	var start time.Time
	if c.Start != "" {
		if start, err = time.Parse(time.DateOnly, c.Start); err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
	}

	rt, eng, err := loadEngine(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	if by != uuid.Nil {
		ctx = rbac.SetActorToContext(ctx, by)
	}
	sub, err := eng.ledger.Subscribe(ctx, subscription.SubscribeParams{
		TenantID:     tenantID,
		PlanID:       c.Plan,
		BillingCycle: plans.BillingCycle(c.Cycle),
		StartDate:    start,
		CreatedBy:    by,
	})
	if err != nil {
		return err
	}
	fmt.Printf("subscription %s on %s (%s) runs %s to %s\n",
		sub.ID, sub.PlanID, sub.BillingCycle,
		sub.StartDate.Format(time.DateOnly), sub.EndDate.Format(time.DateOnly))
	return nil
}

type UsageCmd struct {
	Tenant string `arg:"" help:"Tenant id."`
}

func (c *UsageCmd) Run(ctx context.Context, globals *Globals) error {
	tenantID, err := uuid.Parse(c.Tenant)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}
	rt, eng, err := loadEngine(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	usage, err := eng.enforcer.Usage(ctx, tenantID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tUSED\tLIMIT\tALLOWED")
	for _, key := range slices.Sorted(maps.Keys(usage)) {
		res := usage[key]
		limit := res.Limit.String()
		switch {
		case res.Capability:
			limit = "-"
		case res.Unlimited:
			limit = "unlimited"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", key, res.Used, limit, res.Allowed)
	}
	return w.Flush()
}

type BranchCmd struct {
	Tenant   string `required:"" help:"Tenant id."`
	Actor    string `required:"" help:"User creating the branch."`
	Name     string `required:"" help:"Branch name."`
	Timezone string `default:"UTC" help:"IANA timezone of the branch."`
	Opens    string `default:"09:00" help:"Opening time (HH:MM)."`
	Closes   string `default:"22:00" help:"Closing time (HH:MM)."`
}

func (c *BranchCmd) Run(ctx context.Context, globals *Globals) error {
	tenantID, err := uuid.Parse(c.Tenant)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}
	actorID, err := uuid.Parse(c.Actor)
	if err != nil {
		return fmt.Errorf("invalid actor id: %w", err)
	}
	rt, eng, err := loadEngine(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	b, err := eng.branches.Create(rbac.SetActorToContext(ctx, actorID), actorID, branch.CreateParams{
		TenantID: tenantID,
		Name:     c.Name,
		Timezone: c.Timezone,
		Opens:    c.Opens,
		Closes:   c.Closes,
	})
	if err != nil {
		return err
	}
	fmt.Printf("branch %s created, open now: %t\n", b.ID, b.IsOpen)
	return nil
}

func loadEngine(ctx context.Context, globals *Globals) (*runtime, *engine, error) {
	rt, err := loadRuntime(ctx, globals)
	if err != nil {
		return nil, nil, err
	}
	eng, err := rt.engine(ctx, engineOptions{})
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	return rt, eng, nil
}

func optionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
