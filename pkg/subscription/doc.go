// Package subscription keeps the per-tenant subscription ledger.
//
// A tenant starts in trial. Subscribe opens an active subscription when the
// tenant has none and moves the tenant to active; Cancel closes it early.
// Expiry is never performed here: the reconcile package moves lapsed
// subscriptions and trials to expired on a schedule.
//
// At most one subscription per tenant is active at any time. The rule is
// checked by EnsureNoActive inside the same transaction as the insert,
// with the tenant row locked, and backed by a partial unique index in the
// Postgres store.
//
// Subscription dates are calendar dates (UTC midnight). EndDate adds one
// month or one year and clamps to the end of shorter months.
package subscription
