package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/dmitrymomot/restokit/cmd/governor/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug logging."`
		Version kong.VersionFlag

		Serve     commands.ServeCmd     `cmd:"" default:"1" help:"Run the reconciliation scheduler and the status server."`
		Migrate   commands.MigrateCmd   `cmd:"" help:"Apply the database schema."`
		SeedPlans commands.SeedPlansCmd `cmd:"" help:"Upsert plans from a YAML catalog into the database."`
		Bootstrap commands.BootstrapCmd `cmd:"" help:"Create the first super admin role and assign it to a user."`
		Reconcile commands.ReconcileCmd `cmd:"" help:"Run reconciliation jobs once and exit."`
		Tenant    commands.TenantCmd    `cmd:"" help:"Register a tenant."`
		Subscribe commands.SubscribeCmd `cmd:"" help:"Start a subscription for a tenant."`
		Usage     commands.UsageCmd     `cmd:"" help:"Print a tenant's quota usage."`
		Branch    commands.BranchCmd    `cmd:"" help:"Create a branch for a tenant."`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("governor"),
		kong.Description("Tenant resource governance engine."),
		kong.Vars{
			"version": version,
			"jobs":    commands.JobNames,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
