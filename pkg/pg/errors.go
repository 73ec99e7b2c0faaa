package pg

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToOpenDBConnection = errors.New("failed to open db connection")
	ErrEmptyConnectionString    = errors.New("empty postgres connection string, set PG_CONN_URL")
	ErrHealthcheckFailed        = errors.New("healthcheck failed, connection is not available")
	ErrFailedToParseDBConfig    = errors.New("failed to parse db config")
	ErrFailedToApplyMigrations  = errors.New("failed to apply migrations")

	// ErrConcurrencyConflict is returned when a transaction keeps losing a
	// serialization race after its bounded retry.
	ErrConcurrencyConflict = errors.New("concurrent conflicting write, transaction aborted")

	// ErrTransientStore is returned when the database cannot be reached.
	// Callers may retry later; scheduled jobs defer to their next run.
	ErrTransientStore = errors.New("database temporarily unavailable")
)

// IsNotFoundError detects pgx.ErrNoRows.
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError detects unique constraint violations (SQLSTATE 23505).
func IsDuplicateKeyError(err error) bool {
	return hasCode(err, pgerrcode.UniqueViolation)
}

// IsConstraintViolation reports whether err is a unique violation on the named constraint.
func IsConstraintViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == constraint
}

// IsForeignKeyViolationError detects referential integrity violations (SQLSTATE 23503).
func IsForeignKeyViolationError(err error) bool {
	return hasCode(err, pgerrcode.ForeignKeyViolation)
}

// IsSerializationError detects serialization failures and deadlocks, both of
// which are safe to retry from the start of the transaction.
func IsSerializationError(err error) bool {
	return hasCode(err, pgerrcode.SerializationFailure) || hasCode(err, pgerrcode.DeadlockDetected)
}

// IsTransientError detects connection-class failures and server shutdowns.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ConnectionException,
			pgerrcode.ConnectionDoesNotExist,
			pgerrcode.ConnectionFailure,
			pgerrcode.CannotConnectNow,
			pgerrcode.SQLClientUnableToEstablishSQLConnection,
			pgerrcode.AdminShutdown,
			pgerrcode.CrashShutdown,
			pgerrcode.TooManyConnections:
			return true
		}
		return false
	}

	// pgconn reports dial and network failures as *ConnectError or via SafeToRetry.
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr) || pgconn.SafeToRetry(err)
}

// Classify wraps err with ErrConcurrencyConflict or ErrTransientStore when it
// belongs to one of those classes and returns it unchanged otherwise.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConcurrencyConflict), errors.Is(err, ErrTransientStore):
		return err
	case IsSerializationError(err):
		return errors.Join(ErrConcurrencyConflict, err)
	case IsTransientError(err):
		return errors.Join(ErrTransientStore, err)
	}
	return err
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
