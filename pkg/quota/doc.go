// Package quota enforces plan limits against tenant usage.
//
// Number limits are ceilings: a request for delta more units is allowed when
// used+delta <= limit, and Unlimited (-1) always allows. Boolean limits are
// capability gates. Usage comes either from a registered Counter that
// measures the resource directly (branch rows) or from usage recorded with
// RecordUsage (storage gigabytes).
//
// CheckQuota is read-only. Mutating flows call Reserve, which locks the
// tenant, re-checks, runs the caller's write and records usage in a single
// transaction, so concurrent requests cannot jointly overshoot a limit.
// Uploads that were staged before the check use ReserveStaged, which deletes
// the staged files through the Cleaner when the reservation fails.
//
// A malformed limit fails closed with plans.ErrConfiguration, and a tenant
// with neither a subscription nor a running trial gets ErrSubscriptionRequired.
package quota
