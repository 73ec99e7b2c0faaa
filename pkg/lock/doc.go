// Package lock provides Redis connection helpers and a single-holder lock
// used to keep scheduled reconciliation jobs from running concurrently on
// several replicas.
//
// A lock is a SET NX PX key holding a random token. Release runs a Lua
// compare-and-delete so a holder whose lease already expired cannot remove
// a lock someone else has since taken.
//
//	client, err := lock.Connect(ctx, cfg)
//	locker := lock.NewLocker(client, lock.WithPrefix(cfg.KeyPrefix))
//	ran, err := locker.WithLock(ctx, "cron:reconcile_subscriptions", time.Minute, job)
//
// *Locker satisfies cron.Locker.
package lock
