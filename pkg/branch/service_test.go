package branch_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/memstore"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/quota"
	"github.com/dmitrymomot/restokit/pkg/rbac"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

type harness struct {
	store   *memstore.Store
	service *branch.Service
	tenant  uuid.UUID
	manager uuid.UUID
	waiter  uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	cat, err := plans.NewCatalog(ctx, plans.NewInMemSource(plans.Definition{
		ID: "basic", Name: "Basic", BillingCycle: plans.Monthly,
		Limits: []plans.LimitDefinition{{Key: plans.MaxBranches, Value: "2", DataType: plans.TypeNumber}},
	}))
	require.NoError(t, err)

	ledger := subscription.NewLedger(store, cat)
	tenant, err := ledger.RegisterTenant(ctx, "Noodle Bar")
	require.NoError(t, err)
	_, err = ledger.Subscribe(ctx, subscription.SubscribeParams{TenantID: tenant.ID, PlanID: "basic"})
	require.NoError(t, err)

	registry := rbac.NewRegistry(store)
	resolver := rbac.NewResolver(store)
	guard := rbac.NewGuard(store, resolver)
	root := uuid.New()
	_, err = guard.Bootstrap(ctx, rbac.BootstrapParams{UserID: root, Permissions: []string{branch.PermissionManageBranches}})
	require.NoError(t, err)

	h := &harness{store: store, tenant: tenant.ID, manager: uuid.New(), waiter: uuid.New()}
	role, err := registry.CreateRole(ctx, "Manager", rbac.TagTenantAdmin, tenant.ID)
	require.NoError(t, err)
	require.NoError(t, guard.SetRolePermission(ctx, root, role.ID, branch.PermissionManageBranches, true))
	require.NoError(t, registry.AssignRole(ctx, h.manager, role.ID, tenant.ID, root))

	enforcer := quota.NewEnforcer(cat, ledger, store, quota.WithCounter(plans.MaxBranches, branch.Counter(store)))
	h.service = branch.NewService(store, resolver, enforcer,
		branch.WithAudit(audit.NewLogger(store)),
		branch.WithClock(func() time.Time { return at(12, 0) }))
	return h
}

func (h *harness) params(name string) branch.CreateParams {
	return branch.CreateParams{TenantID: h.tenant, Name: name, Opens: "10:00", Closes: "22:00"}
}

func TestService_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates until the plan limit", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		b, err := h.service.Create(ctx, h.manager, h.params("Downtown"))
		require.NoError(t, err)
		assert.Equal(t, "Downtown", b.Name)
		assert.True(t, b.IsOpen)

		_, err = h.service.Create(ctx, h.manager, h.params("Harbor"))
		require.NoError(t, err)

		_, err = h.service.Create(ctx, h.manager, h.params("Airport"))
		assert.ErrorIs(t, err, quota.ErrQuotaExceeded)

		list, err := h.service.List(ctx, h.tenant)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		got, err := h.service.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)

		events, err := h.store.Query(ctx, audit.Criteria{Action: audit.ActionBranchCreated})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("requires manage_branches", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.service.Create(ctx, h.waiter, h.params("Downtown"))
		assert.ErrorIs(t, err, rbac.ErrForbidden)

		n, err := h.store.CountBranches(ctx, h.tenant)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("closed at creation time", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		p := h.params("Night Owl")
		p.Opens, p.Closes = "18:00", "02:00"
		b, err := h.service.Create(ctx, h.manager, p)
		require.NoError(t, err)
		assert.False(t, b.IsOpen)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		p := h.params("")
		_, err := h.service.Create(ctx, h.manager, p)
		assert.ErrorIs(t, err, branch.ErrInvalidBranch)

		p = h.params("Downtown")
		p.Closes = "25:00"
		_, err = h.service.Create(ctx, h.manager, p)
		assert.ErrorIs(t, err, branch.ErrInvalidWindow)

		p = h.params("Downtown")
		p.Timezone = "Mars/Olympus_Mons"
		_, err = h.service.Create(ctx, h.manager, p)
		assert.ErrorIs(t, err, branch.ErrInvalidBranch)

		_, err = h.service.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, branch.ErrBranchNotFound)
	})
}
