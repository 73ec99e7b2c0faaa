package pgstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/restokit/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationsDir is the directory inside the embedded filesystem that holds the schema.
const MigrationsDir = "migrations"

// Logger is the subset of *slog.Logger needed to report migration progress.
type Logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log Logger) error {
	return pg.Migrate(ctx, pool, cfg, migrations, MigrationsDir, log)
}

// LatestVersion returns the version of the newest embedded migration.
func LatestVersion() (int64, error) {
	files, err := fs.Glob(migrations, MigrationsDir+"/*.sql")
	if err != nil {
		return 0, err
	}
	var latest int64
	for _, f := range files {
		name := path.Base(f)
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return 0, fmt.Errorf("migration %s has no version prefix", name)
		}
		v, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("migration %s: %w", name, err)
		}
		latest = max(latest, v)
	}
	return latest, nil
}

// SchemaCheck returns a readiness probe that fails until every embedded
// migration has been applied.
func SchemaCheck(pool *pgxpool.Pool, cfg pg.Config) (func(context.Context) error, error) {
	v, err := LatestVersion()
	if err != nil {
		return nil, err
	}
	return pg.SchemaCheck(pool, cfg, v), nil
}

// Store is the PostgreSQL implementation of the governance stores.
type Store struct {
	*pg.Transactor
	pool *pgxpool.Pool
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for updated_at columns the callers don't pass.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store. tx runs RunInTx; all statements use pool unless a
// transaction is bound to the context.
func New(pool *pgxpool.Pool, tx *pg.Transactor, opts ...Option) *Store {
	s := &Store{Transactor: tx, pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) db(ctx context.Context) pg.DBTX {
	return pg.Conn(ctx, s.pool)
}

// nullable maps uuid.Nil to SQL NULL.
func nullable(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func orNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
