package pg_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/restokit/pkg/pg"
)

func pgError(code string) error {
	return fmt.Errorf("query failed: %w", &pgconn.PgError{Code: code, ConstraintName: "one_active_subscription_per_tenant"})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "serialization failure", err: pgError(pgerrcode.SerializationFailure), want: pg.ErrConcurrencyConflict},
		{name: "deadlock", err: pgError(pgerrcode.DeadlockDetected), want: pg.ErrConcurrencyConflict},
		{name: "connection failure", err: pgError(pgerrcode.ConnectionFailure), want: pg.ErrTransientStore},
		{name: "admin shutdown", err: pgError(pgerrcode.AdminShutdown), want: pg.ErrTransientStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(pg.Classify(tt.err), tt.want))
		})
	}

	t.Run("unrelated errors pass through", func(t *testing.T) {
		err := pgError(pgerrcode.UniqueViolation)
		assert.Same(t, err, pg.Classify(err))
		assert.NoError(t, pg.Classify(nil))
	})

	t.Run("already classified", func(t *testing.T) {
		err := errors.Join(pg.ErrTransientStore, errors.New("dial"))
		assert.Same(t, err, pg.Classify(err))
	})
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, pg.IsNotFoundError(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, pg.IsNotFoundError(nil))
	assert.True(t, pg.IsDuplicateKeyError(pgError(pgerrcode.UniqueViolation)))
	assert.True(t, pg.IsConstraintViolation(pgError(pgerrcode.UniqueViolation), "one_active_subscription_per_tenant"))
	assert.False(t, pg.IsConstraintViolation(pgError(pgerrcode.UniqueViolation), "other"))
	assert.True(t, pg.IsForeignKeyViolationError(pgError(pgerrcode.ForeignKeyViolation)))
	assert.True(t, pg.IsSerializationError(pgError(pgerrcode.SerializationFailure)))
	assert.False(t, pg.IsTransientError(pgError(pgerrcode.UniqueViolation)))
}
