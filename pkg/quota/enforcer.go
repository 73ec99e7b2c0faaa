package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/logger"
	"github.com/dmitrymomot/restokit/pkg/plans"
)

// Enforcer checks requested usage against the tenant's plan limits.
type Enforcer struct {
	catalog  Catalog
	plans    PlanResolver
	store    Store
	counters CounterRegistry
	probes   map[plans.Key]CapabilityProbe
	cleaner  Cleaner
	audit    *audit.Logger
	logger   *slog.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithCounter measures key with fn instead of recorded usage.
// Panics when key already has a counter.
func WithCounter(key plans.Key, fn Counter) Option {
	return func(e *Enforcer) {
		if _, exists := e.counters[key]; exists {
			panic(fmt.Errorf("%w: %s", ErrCounterAlreadyDefined, key))
		}
		e.counters.Register(key, fn)
	}
}

// WithCapabilityProbe tells CanDowngrade how to detect use of a capability.
func WithCapabilityProbe(key plans.Key, fn CapabilityProbe) Option {
	return func(e *Enforcer) {
		if fn != nil {
			e.probes[key] = fn
		}
	}
}

// WithCleaner sets the collaborator that deletes staged files on a failed ReserveStaged.
func WithCleaner(c Cleaner) Option {
	return func(e *Enforcer) { e.cleaner = c }
}

// WithAudit records compensating deletions through a.
func WithAudit(a *audit.Logger) Option {
	return func(e *Enforcer) { e.audit = a }
}

// WithLogger sets the enforcer logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enforcer) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEnforcer creates an Enforcer.
func NewEnforcer(catalog Catalog, resolver PlanResolver, store Store, opts ...Option) *Enforcer {
	if catalog == nil || resolver == nil || store == nil {
		panic("quota: catalog, plan resolver and store are required")
	}
	e := &Enforcer{
		catalog:  catalog,
		plans:    resolver,
		store:    store,
		counters: NewRegistry(),
		probes:   make(map[plans.Key]CapabilityProbe),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckQuota reports whether delta more units of key fit the tenant's plan.
// Allowed is used+delta <= limit for number limits and the flag itself for
// boolean limits. It never writes; use Reserve to check and act atomically.
func (e *Enforcer) CheckQuota(ctx context.Context, tenantID uuid.UUID, key plans.Key, delta decimal.Decimal) (Result, error) {
	if delta.IsNegative() {
		return Result{Key: key}, fmt.Errorf("%w: %s", ErrInvalidDelta, delta)
	}
	planID, err := e.plans.ResolvePlan(ctx, tenantID)
	if err != nil {
		return Result{Key: key}, err
	}
	return e.check(ctx, tenantID, planID, key, delta)
}

func (e *Enforcer) check(ctx context.Context, tenantID uuid.UUID, planID string, key plans.Key, delta decimal.Decimal) (Result, error) {
	res := Result{Key: key}
	limit, err := e.catalog.Limit(planID, key)
	if err != nil {
		if errors.Is(err, plans.ErrConfiguration) {
			e.logger.ErrorContext(ctx, "plan limit is malformed, denying",
				logger.TenantID(tenantID),
				logger.QuotaKey(string(key)),
				slog.String("plan_id", planID),
				logger.Error(err))
		}
		return res, err
	}

	switch limit.Type {
	case plans.TypeBoolean:
		on, _ := limit.Value.Bool()
		res.Capability = true
		res.Allowed = on
		return res, nil
	case plans.TypeNumber:
	default:
		return res, fmt.Errorf("%w: %s is a %s limit", ErrUnsupportedLimit, key, limit.Type)
	}

	used, err := e.usage(ctx, tenantID, key)
	if err != nil {
		return res, err
	}
	res.Used = used
	if limit.Value.IsUnlimited() {
		res.Unlimited = true
		res.Limit = decimal.NewFromInt(plans.Unlimited)
		res.Allowed = true
		return res, nil
	}
	ceiling, _ := limit.Value.Number()
	res.Limit = ceiling
	res.Allowed = used.Add(delta).LessThanOrEqual(ceiling)
	return res, nil
}

func (e *Enforcer) usage(ctx context.Context, tenantID uuid.UUID, key plans.Key) (decimal.Decimal, error) {
	var (
		used decimal.Decimal
		err  error
	)
	if counter, ok := e.counters[key]; ok {
		used, err = counter(ctx, tenantID)
	} else {
		used, err = e.store.RecordedUsage(ctx, tenantID, key)
	}
	if err != nil {
		return decimal.Zero, errors.Join(ErrFailedToCountUsage, err)
	}
	return used, nil
}

// RecordUsage adds delta to the tenant's recorded usage of key. A negative
// delta releases usage. Keys measured by a Counter are not recorded.
func (e *Enforcer) RecordUsage(ctx context.Context, tenantID uuid.UUID, key plans.Key, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	if _, counted := e.counters[key]; counted {
		return nil
	}
	return e.store.AddUsage(ctx, tenantID, key, delta)
}

// Reserve checks delta against the limit and, when it fits, runs act and
// records the usage, all in one transaction holding the tenant lock.
// Two concurrent reservations for the same tenant cannot both pass on the
// same headroom: the loser sees the winner's usage and gets ErrQuotaExceeded.
// act may be nil when there is nothing to write besides the usage.
func (e *Enforcer) Reserve(ctx context.Context, tenantID uuid.UUID, key plans.Key, delta decimal.Decimal, act func(ctx context.Context) error) (Result, error) {
	var res Result
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := e.store.LockTenant(ctx, tenantID); err != nil {
			return err
		}
		var err error
		res, err = e.CheckQuota(ctx, tenantID, key, delta)
		if err != nil {
			return err
		}
		if !res.Allowed {
			return e.exceeded(res, delta)
		}
		if act != nil {
			if err := act(ctx); err != nil {
				return err
			}
		}
		if res.Capability {
			return nil
		}
		return e.RecordUsage(ctx, tenantID, key, delta)
	})
	if err != nil && errors.Is(err, ErrQuotaExceeded) {
		e.logger.InfoContext(ctx, "quota exceeded",
			logger.TenantID(tenantID),
			logger.QuotaKey(string(key)),
			slog.String("used", res.Used.String()),
			slog.String("limit", res.Limit.String()),
			slog.String("delta", delta.String()))
	}
	return res, err
}

func (e *Enforcer) exceeded(res Result, delta decimal.Decimal) error {
	if res.Capability {
		return fmt.Errorf("%w: %s is not included in the plan", ErrQuotaExceeded, res.Key)
	}
	return fmt.Errorf("%w: %s used %s + %s > limit %s", ErrQuotaExceeded, res.Key, res.Used, delta, res.Limit)
}

// ReserveStaged reserves storage for files already uploaded. When the
// reservation fails for any reason the staged files are deleted before
// the error is returned.
func (e *Enforcer) ReserveStaged(ctx context.Context, tenantID uuid.UUID, key plans.Key, files []StagedFile, act func(ctx context.Context) error) (Result, error) {
	var total int64
	paths := make([]string, 0, len(files))
	for _, f := range files {
		total += f.Size
		paths = append(paths, f.Path)
	}

	res, err := e.Reserve(ctx, tenantID, key, BytesToGB(total), act)
	if err == nil {
		return res, nil
	}
	if len(paths) == 0 {
		return res, err
	}
	if e.cleaner == nil {
		return res, errors.Join(err, ErrCleanerNotConfigured)
	}
	if cerr := e.cleaner.DeleteFiles(ctx, paths); cerr != nil {
		e.logger.ErrorContext(ctx, "failed to delete staged files after rejected reservation",
			logger.TenantID(tenantID),
			logger.QuotaKey(string(key)),
			slog.Int("files", len(paths)),
			logger.Error(cerr))
		return res, errors.Join(err, ErrStagedCleanupFailed, cerr)
	}
	if e.audit != nil {
		if aerr := e.audit.Log(ctx, audit.ActionStagedFilesCompensation,
			audit.WithTenant(tenantID.String()),
			audit.WithResource("quota", string(key)),
			audit.WithMetadata("paths", paths),
			audit.WithMetadata("reason", err.Error())); aerr != nil {
			e.logger.WarnContext(ctx, "failed to audit staged file cleanup", logger.Error(aerr))
		}
	}
	return res, err
}

// HasCapability reports whether the tenant's plan turns the boolean limit key on.
func (e *Enforcer) HasCapability(ctx context.Context, tenantID uuid.UUID, key plans.Key) (bool, error) {
	planID, err := e.plans.ResolvePlan(ctx, tenantID)
	if err != nil {
		return false, err
	}
	limit, err := e.catalog.Limit(planID, key)
	if err != nil {
		return false, err
	}
	on, ok := limit.Value.Bool()
	if !ok {
		return false, fmt.Errorf("%w: %s is a %s limit", plans.ErrUnexpectedDataType, key, limit.Type)
	}
	return on, nil
}

// Usage returns a Result for every number and boolean limit of the tenant's plan.
// Malformed limits are left out and logged.
func (e *Enforcer) Usage(ctx context.Context, tenantID uuid.UUID) (map[plans.Key]Result, error) {
	planID, err := e.plans.ResolvePlan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	plan, err := e.catalog.Plan(planID)
	if err != nil {
		return nil, err
	}

	out := make(map[plans.Key]Result, len(plan.Limits))
	for _, key := range plan.Keys() {
		if plan.Limits[key].Type == plans.TypeString {
			continue
		}
		res, err := e.check(ctx, tenantID, planID, key, decimal.Zero)
		if errors.Is(err, plans.ErrConfiguration) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[key] = res
	}
	return out, nil
}

// CanDowngrade returns ErrDowngradeNotPossible when the tenant's current
// usage does not fit targetPlanID, or when the target switches off a
// capability a registered probe reports as in use.
func (e *Enforcer) CanDowngrade(ctx context.Context, tenantID uuid.UUID, targetPlanID string) error {
	target, err := e.catalog.Plan(targetPlanID)
	if err != nil {
		return err
	}
	currentID, err := e.plans.ResolvePlan(ctx, tenantID)
	if err != nil {
		return err
	}
	current, err := e.catalog.Plan(currentID)
	if err != nil {
		return err
	}

	cmp := plans.ComparePlans(&current, &target)
	for key, change := range cmp.DecreasedLimits {
		used, err := e.usage(ctx, tenantID, key)
		if err != nil {
			return err
		}
		if used.GreaterThan(change.To) {
			return fmt.Errorf("%w: %s usage %s exceeds %s", ErrDowngradeNotPossible, key, used, change.To)
		}
	}
	for _, key := range cmp.LostCapabilities {
		probe, ok := e.probes[key]
		if !ok {
			continue
		}
		inUse, err := probe(ctx, tenantID)
		if err != nil {
			return errors.Join(ErrFailedToCountUsage, err)
		}
		if inUse {
			return fmt.Errorf("%w: %s is in use", ErrDowngradeNotPossible, key)
		}
	}
	return nil
}
