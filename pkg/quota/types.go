package quota

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

// Result is the outcome of a quota check.
// For capability gates Used and Limit are zero and Allowed is the gate value.
type Result struct {
	Key        plans.Key
	Allowed    bool
	Used       decimal.Decimal
	Limit      decimal.Decimal
	Unlimited  bool
	Capability bool
}

// Remaining returns the headroom left, or -1 for unlimited.
func (r Result) Remaining() decimal.Decimal {
	if r.Unlimited {
		return decimal.NewFromInt(plans.Unlimited)
	}
	left := r.Limit.Sub(r.Used)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// PlanResolver returns the plan currently governing a tenant.
type PlanResolver interface {
	ResolvePlan(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// Catalog reads plans and their limits.
type Catalog interface {
	Plan(id string) (plans.Plan, error)
	Limit(planID string, key plans.Key) (plans.Limit, error)
}

// Store holds recorded usage. Counted keys (see WithCounter) never touch it.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockTenant holds the tenant row lock until the transaction ends.
	LockTenant(ctx context.Context, id uuid.UUID) (*subscription.Tenant, error)
	RecordedUsage(ctx context.Context, tenantID uuid.UUID, key plans.Key) (decimal.Decimal, error)
	// AddUsage adds delta to the recorded total; the total never drops below zero.
	AddUsage(ctx context.Context, tenantID uuid.UUID, key plans.Key, delta decimal.Decimal) error
}

// Counter computes current usage of a key from the resources themselves,
// e.g. a count of branch rows. It must be cheap: it runs on every check.
type Counter func(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)

// CapabilityProbe reports whether a tenant currently relies on a capability.
// It lets CanDowngrade refuse plans that would switch it off.
type CapabilityProbe func(ctx context.Context, tenantID uuid.UUID) (bool, error)

// Cleaner deletes files staged to storage before the quota check.
type Cleaner interface {
	DeleteFiles(ctx context.Context, paths []string) error
}

// StagedFile is an upload already written to storage.
type StagedFile struct {
	Path string
	Size int64 // bytes
}

var bytesPerGB = decimal.NewFromInt(1 << 30)

// BytesToGB converts a byte count to GiB, the unit of storage_quota_gb.
func BytesToGB(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Div(bytesPerGB)
}
