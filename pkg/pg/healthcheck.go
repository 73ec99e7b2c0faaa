package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Healthcheck returns a readiness probe that pings the pool.
// An unreachable database is also reported as ErrTransientStore.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, Classify(err))
		}
		return nil
	}
}

// SchemaCheck returns a readiness probe that fails until migration version
// want is recorded as applied in the goose table named by cfg.
func SchemaCheck(pool *pgxpool.Pool, cfg Config, want int64) func(context.Context) error {
	table := cfg.MigrationsTable
	if table == "" {
		table = "goose_db_version"
	}
	query := "SELECT COALESCE(MAX(version_id), 0) FROM " + pgx.Identifier{table}.Sanitize() + " WHERE is_applied"

	return func(ctx context.Context) error {
		var got int64
		if err := pool.QueryRow(ctx, query).Scan(&got); err != nil {
			return errors.Join(ErrHealthcheckFailed, Classify(err))
		}
		if got < want {
			return errors.Join(ErrHealthcheckFailed, fmt.Errorf("schema at version %d, want %d", got, want))
		}
		return nil
	}
}
