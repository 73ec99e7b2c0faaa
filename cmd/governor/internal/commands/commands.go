package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/config"
	"github.com/dmitrymomot/restokit/pkg/logger"
	"github.com/dmitrymomot/restokit/pkg/memstore"
	"github.com/dmitrymomot/restokit/pkg/pg"
	"github.com/dmitrymomot/restokit/pkg/pgstore"
	"github.com/dmitrymomot/restokit/pkg/quota"
	"github.com/dmitrymomot/restokit/pkg/rbac"
	"github.com/dmitrymomot/restokit/pkg/reconcile"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

type Globals struct {
	Debug   bool
	Version string
}

// ErrPostgresRequired is returned by commands that only make sense against a
// persistent store.
var ErrPostgresRequired = errors.New("command requires STORE_BACKEND=postgres")

// governanceStore is every storage interface the engine components consume.
// Both memstore.Store and pgstore.Store satisfy it.
type governanceStore interface {
	subscription.Store
	quota.Store
	rbac.Store
	branch.Store
	reconcile.Store
	reconcile.BranchStore
	audit.Storage
}

var (
	_ governanceStore = (*memstore.Store)(nil)
	_ governanceStore = (*pgstore.Store)(nil)
)

// runtime is the process-wide state shared by all commands: configuration,
// the root logger and the selected store.
type runtime struct {
	app   config.App
	gov   config.Governance
	pgCfg pg.Config
	log   *slog.Logger
	store governanceStore
	pool  *pgxpool.Pool
}

func loadRuntime(ctx context.Context, globals *Globals) (*runtime, error) {
	rt := &runtime{}
	if err := config.Load(&rt.app); err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}
	if err := config.Load(&rt.gov); err != nil {
		return nil, fmt.Errorf("load governance config: %w", err)
	}

	opts := []logger.Option{
		logger.WithEnvironment(rt.app.Env, rt.app.Name),
		logger.WithLevelName(rt.app.LogLevel),
		logger.WithContextExtractors(actorAttr),
	}
	if globals.Debug {
		opts = append(opts, logger.WithLevel(slog.LevelDebug))
	}
	rt.log = logger.New(opts...).With(slog.String("version", globals.Version))
	logger.SetAsDefault(rt.log)

	if rt.app.StoreBackend == config.StoreMemory {
		rt.store = memstore.New()
		rt.log.WarnContext(ctx, "using in-memory store, state is lost on exit")
		return rt, nil
	}

	if err := rt.openPostgres(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}

// actorAttr logs the acting user carried in the context by rbac.SetActorToContext.
func actorAttr(ctx context.Context) (slog.Attr, bool) {
	id, ok := rbac.GetActorFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return logger.UserID(id.String()), true
}

func (rt *runtime) openPostgres(ctx context.Context) error {
	if err := config.Load(&rt.pgCfg); err != nil {
		return fmt.Errorf("load postgres config: %w", err)
	}
	pool, err := pg.Connect(ctx, rt.pgCfg)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	rt.pool = pool

	if rt.app.AutoMigrate {
		if err := pgstore.Migrate(ctx, pool, rt.pgCfg, rt.log); err != nil {
			pool.Close()
			return fmt.Errorf("migrate: %w", err)
		}
	}

	tx := pg.NewTransactor(pool,
		pg.WithRetryDelay(rt.pgCfg.TxRetryDelay),
		pg.WithTxLogger(rt.log))
	rt.store = pgstore.New(pool, tx)
	rt.log.InfoContext(ctx, "using postgres store")
	return nil
}

func (rt *runtime) requirePostgres() error {
	if rt.pool == nil {
		return ErrPostgresRequired
	}
	return nil
}

func (rt *runtime) Close() {
	if rt.pool != nil {
		rt.pool.Close()
	}
}
