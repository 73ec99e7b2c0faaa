package pg

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txCtxKey struct{}

// Conn returns the transaction bound to ctx by RunInTx, or pool when ctx carries none.
// Stores call it for every statement so they join an enclosing transaction transparently.
func Conn(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txCtxKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// InTx reports whether ctx carries a transaction started by RunInTx.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txCtxKey{}).(pgx.Tx)
	return ok
}

// Transactor runs functions inside serializable transactions.
type Transactor struct {
	pool       *pgxpool.Pool
	retryDelay time.Duration
	maxTries   uint
	logger     *slog.Logger
}

// TransactorOption configures a Transactor.
type TransactorOption func(*Transactor)

// WithRetryDelay sets the pause before retrying a transaction that lost a serialization race.
func WithRetryDelay(d time.Duration) TransactorOption {
	return func(t *Transactor) {
		if d >= 0 {
			t.retryDelay = d
		}
	}
}

// WithTxLogger sets the logger used to report retried transactions.
func WithTxLogger(l *slog.Logger) TransactorOption {
	return func(t *Transactor) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransactor creates a Transactor. A transaction that fails with a
// serialization error is retried exactly once before ErrConcurrencyConflict
// is returned.
func NewTransactor(pool *pgxpool.Pool, opts ...TransactorOption) *Transactor {
	t := &Transactor{
		pool:       pool,
		retryDelay: 25 * time.Millisecond,
		maxTries:   2,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RunInTx executes fn inside a SERIALIZABLE transaction bound to the context
// passed to fn. Calls nested inside an existing transaction join it.
// Any error returned by fn rolls the whole transaction back.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := t.runOnce(ctx, fn)
		switch {
		case err == nil:
			return struct{}{}, nil
		case IsSerializationError(err):
			if attempt < int(t.maxTries) {
				t.logger.WarnContext(ctx, "retrying transaction after serialization failure",
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
			}
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(t.retryDelay)),
		backoff.WithMaxTries(t.maxTries),
	)

	return Classify(err)
}

func (t *Transactor) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txCtxKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxCommitRollback) {
			return errors.Join(ErrConcurrencyConflict, err)
		}
		return err
	}
	return nil
}
