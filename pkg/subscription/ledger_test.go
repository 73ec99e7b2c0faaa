package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/memstore"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

type fixture struct {
	store  *memstore.Store
	ledger *subscription.Ledger
	now    time.Time
}

func newCatalog(t *testing.T) *plans.Catalog {
	t.Helper()
	cat, err := plans.NewCatalog(context.Background(), plans.NewInMemSource(
		plans.Definition{
			ID: "basic", Name: "Basic", Price: decimal.RequireFromString("29"), BillingCycle: plans.Monthly,
			Limits: []plans.LimitDefinition{{Key: plans.MaxBranches, Value: "2", DataType: plans.TypeNumber}},
		},
		plans.Definition{
			ID: "pro", Name: "Pro", Price: decimal.RequireFromString("299"), BillingCycle: plans.Yearly,
			Limits: []plans.LimitDefinition{{Key: plans.MaxBranches, Value: "-1", DataType: plans.TypeNumber}},
		},
		plans.Definition{
			ID: "trial", Name: "Trial", BillingCycle: plans.Monthly,
			Limits: []plans.LimitDefinition{{Key: plans.MaxBranches, Value: "1", DataType: plans.TypeNumber}},
		},
	))
	require.NoError(t, err)
	return cat
}

func newFixture(t *testing.T, opts ...subscription.LedgerOption) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(),
		now:   time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC),
	}
	opts = append([]subscription.LedgerOption{
		subscription.WithClock(func() time.Time { return f.now }),
		subscription.WithAudit(audit.NewLogger(f.store)),
	}, opts...)
	f.ledger = subscription.NewLedger(f.store, newCatalog(t), opts...)
	return f
}

func (f *fixture) tenant(t *testing.T) *subscription.Tenant {
	t.Helper()
	tenant, err := f.ledger.RegisterTenant(context.Background(), "Trattoria")
	require.NoError(t, err)
	return tenant
}

func TestLedger_RegisterTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenant := f.tenant(t)
	assert.Equal(t, subscription.TenantTrial, tenant.Status)
	assert.Equal(t, uuid.Nil, tenant.ActiveSubscriptionID)
	assert.Equal(t, f.now, tenant.CreatedAt)

	_, err := f.ledger.RegisterTenant(context.Background(), "")
	assert.ErrorIs(t, err, subscription.ErrInvalidParams)
}

func TestLedger_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("monthly subscription activates tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		tenant := f.tenant(t)
		actor := uuid.New()

		sub, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{
			TenantID:  tenant.ID,
			PlanID:    "basic",
			StartDate: day(2024, time.January, 15),
			CreatedBy: actor,
		})
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, plans.Monthly, sub.BillingCycle)
		assert.Equal(t, day(2024, time.February, 15), sub.EndDate)

		state, err := f.ledger.TenantState(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.TenantActive, state)

		stored, err := f.store.GetTenant(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.ID, stored.ActiveSubscriptionID)

		events, err := f.store.Query(ctx, audit.Criteria{Action: audit.ActionSubscriptionCreated})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, tenant.ID.String(), events[0].TenantID)
		assert.Equal(t, actor.String(), events[0].UserID)
	})

	t.Run("billing cycle overrides plan default", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tenant := f.tenant(t)

		sub, err := f.ledger.Subscribe(context.Background(), subscription.SubscribeParams{
			TenantID: tenant.ID, PlanID: "basic", BillingCycle: plans.Yearly,
		})
		require.NoError(t, err)
		assert.Equal(t, plans.Yearly, sub.BillingCycle)
		assert.Equal(t, day(2025, time.January, 15), sub.EndDate)
	})

	t.Run("second active subscription is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		tenant := f.tenant(t)

		first, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "basic"})
		require.NoError(t, err)

		_, err = f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "pro"})
		assert.ErrorIs(t, err, subscription.ErrDuplicateSubscription)

		active, err := f.ledger.Active(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, active.ID)
	})

	t.Run("concurrent subscribes leave one active", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		tenant := f.tenant(t)

		const n = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			ok   int
			dups int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "basic"})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, subscription.ErrDuplicateSubscription):
					dups++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, ok)
		assert.Equal(t, n-1, dups)

		subs, err := f.store.Subscriptions(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tenant := f.tenant(t)
		ctx := context.Background()

		_, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{PlanID: "basic"})
		assert.ErrorIs(t, err, subscription.ErrInvalidParams)

		_, err = f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "gold"})
		assert.ErrorIs(t, err, plans.ErrPlanNotFound)

		_, err = f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "basic", BillingCycle: "weekly"})
		assert.ErrorIs(t, err, subscription.ErrInvalidBillingCycle)

		_, err = f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: uuid.New(), PlanID: "basic"})
		assert.ErrorIs(t, err, subscription.ErrTenantNotFound)
	})
}

func TestLedger_SubscribeReplacesLapsedSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t, subscription.WithGracePeriod(0))
	ctx := context.Background()
	tenant := f.tenant(t)
	old, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{
		TenantID:  tenant.ID,
		PlanID:    "pro",
		StartDate: day(2023, time.January, 10),
	})
	require.NoError(t, err)

	f.now = day(2024, time.January, 10)
	_, err = f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "basic"})
	assert.ErrorIs(t, err, subscription.ErrDuplicateSubscription, "last covered day")

	f.now = day(2024, time.January, 11)
	renewed, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "basic"})
	require.NoError(t, err)

	stale, err := f.store.GetSubscription(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, stale.Status)

	stored, err := f.store.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.TenantActive, stored.Status)
	assert.Equal(t, renewed.ID, stored.ActiveSubscriptionID)

	events, err := f.store.Query(ctx, audit.Criteria{Action: audit.ActionSubscriptionExpired})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "system", events[0].UserID)
}

func TestLedger_Cancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	tenant := f.tenant(t)
	admin := uuid.New()

	sub, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "basic"})
	require.NoError(t, err)

	cancelled, err := f.ledger.Cancel(ctx, tenant.ID, sub.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	stored, err := f.store.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.TenantCancelled, stored.Status)
	assert.Equal(t, uuid.Nil, stored.ActiveSubscriptionID)

	_, err = f.ledger.Active(ctx, tenant.ID)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	t.Run("cancelled is terminal", func(t *testing.T) {
		_, err := f.ledger.Cancel(ctx, tenant.ID, sub.ID, admin)
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
	})

	t.Run("other tenant's subscription", func(t *testing.T) {
		other := f.tenant(t)
		_, err := f.ledger.Cancel(ctx, other.ID, sub.ID, admin)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("new subscription after cancel", func(t *testing.T) {
		renewed, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "pro"})
		require.NoError(t, err)
		assert.NotEqual(t, sub.ID, renewed.ID)

		state, err := f.ledger.TenantState(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.TenantActive, state)
	})
}

func TestLedger_ResolvePlan(t *testing.T) {
	t.Parallel()

	t.Run("active subscription decides", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, subscription.WithTrialPlan("trial"))
		tenant := f.tenant(t)
		_, err := f.ledger.Subscribe(context.Background(), subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "pro"})
		require.NoError(t, err)

		planID, err := f.ledger.ResolvePlan(context.Background(), tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, "pro", planID)
	})

	t.Run("trial tenant gets trial plan inside window", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, subscription.WithTrialPlan("trial"))
		tenant := f.tenant(t)

		planID, err := f.ledger.ResolvePlan(context.Background(), tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, "trial", planID)

		f.now = f.now.AddDate(0, 0, 16)
		_, err = f.ledger.ResolvePlan(context.Background(), tenant.ID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionRequired)
	})

	t.Run("no trial plan configured", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tenant := f.tenant(t)

		_, err := f.ledger.ResolvePlan(context.Background(), tenant.ID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionRequired)
	})

	t.Run("cancelled subscription does not fall back to trial", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, subscription.WithTrialPlan("trial"))
		ctx := context.Background()
		tenant := f.tenant(t)
		sub, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "basic"})
		require.NoError(t, err)
		_, err = f.ledger.Cancel(ctx, tenant.ID, sub.ID, uuid.New())
		require.NoError(t, err)

		_, err = f.ledger.ResolvePlan(ctx, tenant.ID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionRequired)
	})

	t.Run("active row past end date and grace stops governing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		tenant := f.tenant(t)
		_, err := f.ledger.Subscribe(ctx, subscription.SubscribeParams{
			TenantID:  tenant.ID,
			PlanID:    "pro",
			StartDate: day(2023, time.January, 30),
		})
		require.NoError(t, err)

		// End date 2024-01-30, grace 48h: the plan holds through Feb 1.
		f.now = day(2024, time.February, 1).Add(23 * time.Hour)
		planID, err := f.ledger.ResolvePlan(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, "pro", planID)

		f.now = day(2024, time.February, 2)
		_, err = f.ledger.ResolvePlan(ctx, tenant.ID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionRequired)
		_, err = f.ledger.Active(ctx, tenant.ID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.ledger.ResolvePlan(context.Background(), uuid.New())
		assert.ErrorIs(t, err, subscription.ErrTenantNotFound)
	})
}
