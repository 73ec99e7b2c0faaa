// Package pg wraps pgx/v5 with the pieces the governance stores need:
// a retrying pool constructor, goose migrations from an embedded filesystem,
// SQLSTATE classification (via jackc/pgerrcode) and a Transactor that runs
// check-then-act sequences in SERIALIZABLE transactions.
//
// Stores obtain their query handle with Conn(ctx, pool), so a repository call
// made inside Transactor.RunInTx automatically joins the caller's transaction:
//
//	err := tx.RunInTx(ctx, func(ctx context.Context) error {
//	    if err := subs.LockTenant(ctx, tenantID); err != nil {
//	        return err
//	    }
//	    return subs.Insert(ctx, sub)
//	})
//
// A serialization failure is retried once (cenkalti/backoff/v5). If the retry
// also loses, the error matches ErrConcurrencyConflict. Connection failures
// match ErrTransientStore.
package pg
