package commands

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/restokit/pkg/config"
	"github.com/dmitrymomot/restokit/pkg/cron"
	"github.com/dmitrymomot/restokit/pkg/httpserver"
	"github.com/dmitrymomot/restokit/pkg/lock"
	"github.com/dmitrymomot/restokit/pkg/logger"
	"github.com/dmitrymomot/restokit/pkg/pg"
	"github.com/dmitrymomot/restokit/pkg/pgstore"
	"github.com/dmitrymomot/restokit/pkg/reconcile"
)

type ServeCmd struct {
	StrictPlans bool `help:"Refuse to start when any plan limit is malformed." env:"PLANS_STRICT"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	rt, err := loadRuntime(ctx, globals)
	if err != nil {
		return err
	}
	defer rt.Close()

	eng, err := rt.engine(ctx, engineOptions{strictPlans: c.StrictPlans})
	if err != nil {
		return err
	}

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return fmt.Errorf("load http config: %w", err)
	}

	var checks []httpserver.Check
	if rt.pool != nil {
		schema, err := pgstore.SchemaCheck(rt.pool, rt.pgCfg)
		if err != nil {
			return err
		}
		checks = append(checks,
			httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(rt.pool)},
			httpserver.Check{Name: "schema", Fn: schema})
	}

	schedOpts := []cron.Option{
		cron.WithCheckInterval(rt.gov.SchedulerCheckInterval),
		cron.WithLogger(rt.log),
	}
	if rt.app.LockEnabled {
		var lockCfg lock.Config
		if err := config.Load(&lockCfg); err != nil {
			return fmt.Errorf("load redis config: %w", err)
		}
		client, err := lock.Connect(ctx, lockCfg)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()

		locker := lock.NewLocker(client, lock.WithPrefix(lockCfg.KeyPrefix), lock.WithLogger(rt.log))
		schedOpts = append(schedOpts, cron.WithLocker(locker, rt.gov.JobLockTTL))
		checks = append(checks, httpserver.Check{Name: "redis", Fn: lock.Healthcheck(client)})
	}

	scheduler := cron.NewScheduler(schedOpts...)
	for _, job := range eng.reconciler.Jobs() {
		schedule := rt.schedule(job.Cadence)
		if err := scheduler.Add(job.Name, schedule, job.Run); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		rt.log.InfoContext(ctx, "job scheduled", logger.Job(job.Name), "schedule", schedule.String())
	}

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(rt.log))
	router := httpserver.NewRouter(rt.log, httpCfg.CheckTimeout, checks...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := scheduler.Start(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx, router)
	})

	err = g.Wait()
	rt.log.InfoContext(ctx, "governor stopped")
	return err
}

func (rt *runtime) schedule(c reconcile.Cadence) cron.Schedule {
	if c == reconcile.Hourly {
		return cron.HourlyAt(rt.gov.BranchesAtMinute)
	}
	return cron.DailyAt(rt.gov.DailyHour, rt.gov.DailyMinute)
}
