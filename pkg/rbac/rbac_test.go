package rbac_test

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
	"github.com/dmitrymomot/restokit/pkg/notify"
	"github.com/dmitrymomot/restokit/pkg/rbac"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

const (
	manageBranches = "manage_branches"
	manageStaff    = "manage_staff"
	viewReports    = "view_reports"
)

type env struct {
	store    *memstore.Store
	registry *rbac.Registry
	resolver *rbac.Resolver
	guard    *rbac.Guard
	notes    *notify.Recorder

	tenant     uuid.UUID
	superAdmin uuid.UUID
	adminRole  *rbac.Role
	staffRole  *rbac.Role
	admin      uuid.UUID // holds adminRole in tenant
	staff      uuid.UUID // holds staffRole in tenant
}

// newEnv bootstraps a super admin, creates a tenant admin role granting
// manage_branches and manage_staff, and a staff role granting view_reports.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	e := &env{
		store:      memstore.New(),
		notes:      &notify.Recorder{},
		tenant:     uuid.New(),
		superAdmin: uuid.New(),
		admin:      uuid.New(),
		staff:      uuid.New(),
	}
	e.registry = rbac.NewRegistry(e.store)
	e.resolver = rbac.NewResolver(e.store)
	e.guard = rbac.NewGuard(e.store, e.resolver,
		rbac.WithAudit(audit.NewLogger(e.store)),
		rbac.WithNotifier(e.notes))

	_, err := e.guard.Bootstrap(ctx, rbac.BootstrapParams{
		UserID:      e.superAdmin,
		Permissions: []string{manageBranches, manageStaff, viewReports},
	})
	require.NoError(t, err)

	e.createTenant(t, e.tenant)

	e.adminRole, err = e.registry.CreateRole(ctx, "Tenant Admin", rbac.TagTenantAdmin, e.tenant)
	require.NoError(t, err)
	e.staffRole, err = e.registry.CreateRole(ctx, "Staff", rbac.TagStaff, e.tenant)
	require.NoError(t, err)

	require.NoError(t, e.guard.SetRolePermission(ctx, e.superAdmin, e.adminRole.ID, manageBranches, true))
	require.NoError(t, e.guard.SetRolePermission(ctx, e.superAdmin, e.adminRole.ID, manageStaff, true))
	require.NoError(t, e.guard.SetRolePermission(ctx, e.superAdmin, e.staffRole.ID, viewReports, true))

	require.NoError(t, e.registry.AssignRole(ctx, e.admin, e.adminRole.ID, e.tenant, e.superAdmin))
	require.NoError(t, e.registry.AssignRole(ctx, e.staff, e.staffRole.ID, e.tenant, e.superAdmin))
	return e
}

func (e *env) createTenant(t *testing.T, id uuid.UUID) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, e.store.CreateTenant(context.Background(), &subscription.Tenant{
		ID: id, Name: "Bistro", Status: subscription.TenantTrial, CreatedAt: now, UpdatedAt: now,
	}))
}

func (e *env) createBranch(t *testing.T, tenantID uuid.UUID) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	b := &branch.Branch{ID: uuid.New(), TenantID: tenantID, Name: "Main", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.store.CreateBranch(context.Background(), b))
	return b.ID
}

func (e *env) resolve(t *testing.T, user uuid.UUID, perm string, scope rbac.Scope) bool {
	t.Helper()
	ok, err := e.resolver.Resolve(context.Background(), user, perm, scope)
	require.NoError(t, err)
	return ok
}

func TestValidPermissionName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"manage_branches", "kds2", "ab"} {
		assert.True(t, rbac.ValidPermissionName(name), name)
	}
	for _, name := range []string{"", "a", "Manage", "manage-branches", "_x", "x_", "1abc"} {
		assert.False(t, rbac.ValidPermissionName(name), name)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	t.Run("duplicate permission", func(t *testing.T) {
		_, err := e.registry.CreatePermission(ctx, manageBranches, "")
		assert.ErrorIs(t, err, rbac.ErrPermissionExists)
	})

	t.Run("invalid permission name", func(t *testing.T) {
		_, err := e.registry.CreatePermission(ctx, "Delete Everything", "")
		assert.ErrorIs(t, err, rbac.ErrInvalidPermissionName)
	})

	t.Run("ensure permissions is idempotent", func(t *testing.T) {
		require.NoError(t, e.registry.EnsurePermissions(ctx, manageBranches, "edit_menu"))
		require.NoError(t, e.registry.EnsurePermissions(ctx, "edit_menu"))
		perms, err := e.registry.Permissions(ctx)
		require.NoError(t, err)
		names := make([]string, 0, len(perms))
		for _, p := range perms {
			names = append(names, p.Name)
		}
		assert.Equal(t, []string{"edit_menu", manageBranches, manageStaff, viewReports}, names)
	})

	t.Run("super admin must be global", func(t *testing.T) {
		_, err := e.registry.CreateRole(ctx, "Root", rbac.TagSuperAdmin, e.tenant)
		assert.ErrorIs(t, err, rbac.ErrInvalidRole)
	})

	t.Run("unknown tag", func(t *testing.T) {
		_, err := e.registry.CreateRole(ctx, "Chef", "chef", e.tenant)
		assert.ErrorIs(t, err, rbac.ErrInvalidRole)
	})

	t.Run("role of another tenant cannot be assigned", func(t *testing.T) {
		err := e.registry.AssignRole(ctx, uuid.New(), e.adminRole.ID, uuid.New(), e.superAdmin)
		assert.ErrorIs(t, err, rbac.ErrInvalidRole)
	})

	t.Run("role permissions", func(t *testing.T) {
		grants, err := e.registry.RolePermissions(ctx, e.adminRole.ID)
		require.NoError(t, err)
		require.Len(t, grants, 2)
		assert.Equal(t, manageBranches, grants[0].PermissionName)
		assert.Equal(t, manageStaff, grants[1].PermissionName)

		_, err = e.registry.RolePermissions(ctx, uuid.New())
		assert.ErrorIs(t, err, rbac.ErrRoleNotFound)
	})
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("role grant applies in its tenant only", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		assert.True(t, e.resolve(t, e.admin, manageBranches, rbac.TenantScope(e.tenant)))
		assert.False(t, e.resolve(t, e.admin, manageBranches, rbac.TenantScope(uuid.New())))
		assert.False(t, e.resolve(t, e.admin, viewReports, rbac.TenantScope(e.tenant)))
	})

	t.Run("global role applies everywhere", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		assert.True(t, e.resolve(t, e.superAdmin, viewReports, rbac.TenantScope(uuid.New())))
	})

	t.Run("no role is default deny", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		assert.False(t, e.resolve(t, uuid.New(), viewReports, rbac.TenantScope(e.tenant)))
	})

	t.Run("explicit deny beats role grant", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		scope := rbac.TenantScope(e.tenant)
		require.True(t, e.resolve(t, e.staff, viewReports, scope))

		require.NoError(t, e.guard.DenyUserPermission(ctx, e.superAdmin, e.staff, viewReports, scope))
		assert.False(t, e.resolve(t, e.staff, viewReports, scope))

		err := e.resolver.Authorize(ctx, e.staff, viewReports, scope)
		assert.ErrorIs(t, err, rbac.ErrForbidden)
	})

	t.Run("explicit allow beats missing grant", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		scope := rbac.TenantScope(e.tenant)
		require.False(t, e.resolve(t, e.staff, manageBranches, scope))

		require.NoError(t, e.guard.GrantUserPermission(ctx, e.admin, e.staff, manageBranches, scope))
		assert.True(t, e.resolve(t, e.staff, manageBranches, scope))
		assert.NoError(t, e.resolver.Authorize(ctx, e.staff, manageBranches, scope))
	})

	t.Run("branch override is more specific than tenant override", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		branchA, branchB := e.createBranch(t, e.tenant), e.createBranch(t, e.tenant)

		require.NoError(t, e.guard.DenyUserPermission(ctx, e.superAdmin, e.staff, viewReports, rbac.BranchScope(e.tenant, branchA)))

		assert.False(t, e.resolve(t, e.staff, viewReports, rbac.BranchScope(e.tenant, branchA)))
		assert.True(t, e.resolve(t, e.staff, viewReports, rbac.BranchScope(e.tenant, branchB)))
		assert.True(t, e.resolve(t, e.staff, viewReports, rbac.TenantScope(e.tenant)))

		require.NoError(t, e.guard.DenyUserPermission(ctx, e.superAdmin, e.staff, viewReports, rbac.TenantScope(e.tenant)))
		require.NoError(t, e.guard.GrantUserPermission(ctx, e.superAdmin, e.staff, viewReports, rbac.BranchScope(e.tenant, branchB)))
		assert.True(t, e.resolve(t, e.staff, viewReports, rbac.BranchScope(e.tenant, branchB)))
		assert.False(t, e.resolve(t, e.staff, viewReports, rbac.TenantScope(e.tenant)))
	})

	t.Run("invalid scope and unknown permission", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.resolver.Resolve(ctx, e.staff, viewReports, rbac.Scope{})
		assert.ErrorIs(t, err, rbac.ErrInvalidScope)

		ok, err := e.resolver.Resolve(ctx, e.superAdmin, "launch_rockets", rbac.TenantScope(e.tenant))
		assert.False(t, ok)
		assert.ErrorIs(t, err, rbac.ErrForbidden)
		assert.ErrorIs(t, err, rbac.ErrPermissionNotFound)

		err = e.resolver.Authorize(ctx, e.superAdmin, "launch_rockets", rbac.TenantScope(e.tenant))
		assert.ErrorIs(t, err, rbac.ErrForbidden)
		assert.ErrorIs(t, err, rbac.ErrPermissionNotFound)
	})

	t.Run("effective permission set", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		got, err := e.resolver.Effective(ctx, e.admin, rbac.TenantScope(e.tenant))
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{manageBranches: true, manageStaff: true, viewReports: false}, got)
	})
}

func TestGuard_UserOverrides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("grantor without the permission is rejected and nothing changes", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		scope := rbac.TenantScope(e.tenant)
		before, err := e.store.ListUserPermissions(ctx, e.admin)
		require.NoError(t, err)
		eventsBefore := len(e.store.Events())

		err = e.guard.GrantUserPermission(ctx, e.staff, e.admin, manageBranches, scope)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
		err = e.guard.DenyUserPermission(ctx, e.staff, e.admin, manageBranches, scope)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)

		after, err := e.store.ListUserPermissions(ctx, e.admin)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Empty(t, e.notes.Sent())

		// Only the two refusals are audited.
		assert.Len(t, e.store.Events(), eventsBefore+2)
		denied, err := e.store.Query(ctx, audit.Criteria{Action: audit.ActionDelegationDenied})
		require.NoError(t, err)
		require.Len(t, denied, 2)
		assert.Equal(t, audit.ResultFailure, denied[0].Result)
		assert.Equal(t, e.staff.String(), denied[0].UserID)
		assert.Equal(t, manageBranches, denied[0].Metadata["permission"])
		assert.NotEmpty(t, denied[0].Error)
	})

	t.Run("grant is audited and notified", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		scope := rbac.TenantScope(e.tenant)
		require.NoError(t, e.guard.GrantUserPermission(ctx, e.admin, e.staff, manageBranches, scope))

		events, err := e.store.Query(ctx, audit.Criteria{Action: audit.ActionUserPermissionGranted})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, e.admin.String(), events[0].UserID)
		assert.Equal(t, e.tenant.String(), events[0].TenantID)
		assert.Equal(t, e.staff.String(), events[0].ResourceID)
		assert.Equal(t, manageBranches, events[0].Metadata["permission"])

		sent := e.notes.OfKind(notify.KindPermissionGranted)
		require.Len(t, sent, 1)
		assert.Equal(t, e.staff, sent[0].UserID)
	})

	t.Run("revoke removes override and role grant applies again", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		scope := rbac.TenantScope(e.tenant)
		require.NoError(t, e.guard.DenyUserPermission(ctx, e.superAdmin, e.staff, viewReports, scope))
		require.False(t, e.resolve(t, e.staff, viewReports, scope))

		require.NoError(t, e.guard.RevokeUserPermission(ctx, e.superAdmin, e.staff, viewReports, scope))
		assert.True(t, e.resolve(t, e.staff, viewReports, scope))

		err := e.guard.RevokeUserPermission(ctx, e.superAdmin, e.staff, viewReports, scope)
		assert.ErrorIs(t, err, rbac.ErrOverrideNotFound)
	})

	t.Run("grantor stripped of permission cannot revoke the override", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		scope := rbac.TenantScope(e.tenant)

		require.NoError(t, e.guard.GrantUserPermission(ctx, e.admin, e.staff, manageBranches, scope))
		require.NoError(t, e.guard.RevokeRolePermission(ctx, e.superAdmin, e.adminRole.ID, manageBranches))
		require.False(t, e.resolve(t, e.admin, manageBranches, scope))

		err := e.guard.RevokeUserPermission(ctx, e.admin, e.staff, manageBranches, scope)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
		assert.True(t, e.resolve(t, e.staff, manageBranches, scope))

		// Another path to the permission restores the grantor's authority.
		require.NoError(t, e.guard.GrantUserPermission(ctx, e.superAdmin, e.admin, manageBranches, scope))
		require.NoError(t, e.guard.RevokeUserPermission(ctx, e.admin, e.staff, manageBranches, scope))
		assert.False(t, e.resolve(t, e.staff, manageBranches, scope))
	})

	t.Run("invalid scope", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		err := e.guard.GrantUserPermission(ctx, e.admin, e.staff, manageBranches, rbac.Scope{})
		assert.ErrorIs(t, err, rbac.ErrInvalidScope)

		err = e.guard.GrantUserPermission(ctx, e.admin, e.staff, manageBranches, rbac.BranchScope(e.tenant, uuid.New()))
		assert.ErrorIs(t, err, rbac.ErrInvalidScope)
	})

	t.Run("branch of another tenant cannot be scoped under own tenant", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		other := uuid.New()
		e.createTenant(t, other)
		foreignBranch := e.createBranch(t, other)
		victim := uuid.New()
		foreignScope := rbac.BranchScope(other, foreignBranch)

		// Tenant admin of e.tenant cannot relabel another tenant's branch as its own.
		err := e.guard.DenyUserPermission(ctx, e.admin, victim, manageBranches, rbac.BranchScope(e.tenant, foreignBranch))
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
		assert.ErrorIs(t, err, rbac.ErrInvalidScope)
		err = e.guard.RevokeUserPermission(ctx, e.admin, victim, manageBranches, rbac.BranchScope(e.tenant, foreignBranch))
		assert.ErrorIs(t, err, rbac.ErrInvalidScope)

		overrides, err := e.store.ListUserPermissions(ctx, victim)
		require.NoError(t, err)
		assert.Empty(t, overrides)

		// A legitimate override in the other tenant is untouched by same-branch writes elsewhere.
		require.NoError(t, e.guard.GrantUserPermission(ctx, e.superAdmin, victim, manageBranches, foreignScope))
		_, err = e.store.UserPermission(ctx, victim, mustPermission(t, e, manageBranches), rbac.BranchScope(e.tenant, foreignBranch))
		assert.ErrorIs(t, err, rbac.ErrOverrideNotFound)
		assert.True(t, e.resolve(t, victim, manageBranches, foreignScope))
		assert.False(t, e.resolve(t, victim, manageBranches, rbac.TenantScope(e.tenant)))
	})
}

func mustPermission(t *testing.T, e *env, name string) uuid.UUID {
	t.Helper()
	p, err := e.store.PermissionByName(context.Background(), name)
	require.NoError(t, err)
	return p.ID
}

func TestGuard_RolePermissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("tenant admin edits roles of its tenant within its authority", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		require.NoError(t, e.guard.SetRolePermission(ctx, e.admin, e.staffRole.ID, manageStaff, true))
		assert.True(t, e.resolve(t, e.staff, manageStaff, rbac.TenantScope(e.tenant)))

		require.NoError(t, e.guard.RevokeRolePermission(ctx, e.admin, e.staffRole.ID, manageStaff))
		assert.False(t, e.resolve(t, e.staff, manageStaff, rbac.TenantScope(e.tenant)))

		err := e.guard.RevokeRolePermission(ctx, e.admin, e.staffRole.ID, manageStaff)
		assert.ErrorIs(t, err, rbac.ErrGrantNotFound)
	})

	t.Run("permission outside own role is rejected", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		before, err := e.store.ListRolePermissions(ctx, e.staffRole.ID)
		require.NoError(t, err)

		err = e.guard.SetRolePermission(ctx, e.admin, e.staffRole.ID, "view_reports", false)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
		err = e.guard.RevokeRolePermission(ctx, e.admin, e.staffRole.ID, viewReports)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)

		after, err := e.store.ListRolePermissions(ctx, e.staffRole.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("user override does not count for role edits", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		require.NoError(t, e.guard.GrantUserPermission(ctx, e.superAdmin, e.admin, viewReports, rbac.TenantScope(e.tenant)))
		err := e.guard.SetRolePermission(ctx, e.admin, e.staffRole.ID, viewReports, true)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
	})

	t.Run("tenant admin cannot edit another tenant's or global roles", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		foreign, err := e.registry.CreateRole(ctx, "Staff", rbac.TagStaff, uuid.New())
		require.NoError(t, err)
		err = e.guard.SetRolePermission(ctx, e.admin, foreign.ID, manageBranches, true)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)

		global, err := e.registry.CreateRole(ctx, "Support", rbac.TagStaff, uuid.Nil)
		require.NoError(t, err)
		err = e.guard.SetRolePermission(ctx, e.admin, global.ID, manageBranches, true)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
	})

	t.Run("grantor without role", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		err := e.guard.SetRolePermission(ctx, uuid.New(), e.staffRole.ID, viewReports, true)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
	})

	t.Run("global role assigned in a tenant is confined to that tenant", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		support, err := e.registry.CreateRole(ctx, "Support", rbac.TagStaff, uuid.Nil)
		require.NoError(t, err)
		require.NoError(t, e.guard.SetRolePermission(ctx, e.superAdmin, support.ID, manageStaff, true))
		agent := uuid.New()
		require.NoError(t, e.registry.AssignRole(ctx, agent, support.ID, e.tenant, e.superAdmin))

		foreign, err := e.registry.CreateRole(ctx, "Staff", rbac.TagStaff, uuid.New())
		require.NoError(t, err)
		err = e.guard.SetRolePermission(ctx, agent, foreign.ID, manageStaff, true)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)

		err = e.guard.SetRolePermission(ctx, agent, e.adminRole.ID, manageStaff, false)
		require.NoError(t, err)

		// Its own global role is out of reach too.
		err = e.guard.RevokeRolePermission(ctx, agent, support.ID, manageStaff)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
		grants, err := e.registry.RolePermissions(ctx, foreign.ID)
		require.NoError(t, err)
		assert.Empty(t, grants)
	})
}

func TestGuard_AssignRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("grantor holding every role permission may assign", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		cashier := uuid.New()
		require.NoError(t, e.guard.GrantUserPermission(ctx, e.superAdmin, e.admin, viewReports, rbac.TenantScope(e.tenant)))

		require.NoError(t, e.guard.AssignRole(ctx, e.admin, cashier, e.staffRole.ID, e.tenant))
		assert.True(t, e.resolve(t, cashier, viewReports, rbac.TenantScope(e.tenant)))
		assert.Len(t, e.notes.OfKind(notify.KindRoleAssigned), 1)
	})

	t.Run("grantor missing a role permission is rejected", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		err := e.guard.AssignRole(ctx, e.staff, uuid.New(), e.adminRole.ID, e.tenant)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
	})

	t.Run("role from another tenant", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		err := e.guard.AssignRole(ctx, e.superAdmin, uuid.New(), e.staffRole.ID, uuid.New())
		assert.ErrorIs(t, err, rbac.ErrInvalidRole)
	})

	t.Run("tenant admin cannot demote a super admin", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		require.NoError(t, e.guard.GrantUserPermission(ctx, e.superAdmin, e.admin, viewReports, rbac.TenantScope(e.tenant)))

		err := e.guard.AssignRole(ctx, e.admin, e.superAdmin, e.staffRole.ID, e.tenant)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)

		ur, err := e.store.UserRole(ctx, e.superAdmin)
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, ur.TenantID)
		assert.True(t, e.resolve(t, e.superAdmin, manageStaff, rbac.TenantScope(uuid.New())))
		assert.Empty(t, e.notes.OfKind(notify.KindRoleAssigned))
	})

	t.Run("assignment in another tenant cannot be taken over", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		other := uuid.New()
		otherStaff, err := e.registry.CreateRole(ctx, "Staff", rbac.TagStaff, other)
		require.NoError(t, err)
		waiter := uuid.New()
		require.NoError(t, e.registry.AssignRole(ctx, waiter, otherStaff.ID, other, e.superAdmin))
		require.NoError(t, e.guard.GrantUserPermission(ctx, e.superAdmin, e.admin, viewReports, rbac.TenantScope(e.tenant)))

		err = e.guard.AssignRole(ctx, e.admin, waiter, e.staffRole.ID, e.tenant)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
		ur, err := e.store.UserRole(ctx, waiter)
		require.NoError(t, err)
		assert.Equal(t, other, ur.TenantID)

		// An unscoped super admin may move the user.
		require.NoError(t, e.guard.AssignRole(ctx, e.superAdmin, waiter, e.staffRole.ID, e.tenant))
		ur, err = e.store.UserRole(ctx, waiter)
		require.NoError(t, err)
		assert.Equal(t, e.tenant, ur.TenantID)
	})

	t.Run("replacing a role needs its permissions", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		// peer holds adminRole; admin keeps view_reports but loses manage_staff.
		require.NoError(t, e.guard.GrantUserPermission(ctx, e.superAdmin, e.admin, viewReports, rbac.TenantScope(e.tenant)))
		peer := uuid.New()
		require.NoError(t, e.registry.AssignRole(ctx, peer, e.adminRole.ID, e.tenant, e.superAdmin))
		require.NoError(t, e.guard.DenyUserPermission(ctx, e.superAdmin, e.admin, manageStaff, rbac.TenantScope(e.tenant)))

		err := e.guard.AssignRole(ctx, e.admin, peer, e.staffRole.ID, e.tenant)
		assert.ErrorIs(t, err, rbac.ErrAuthorityExceeded)
		ur, err := e.store.UserRole(ctx, peer)
		require.NoError(t, err)
		assert.Equal(t, e.adminRole.ID, ur.RoleID)
	})
}

func TestGuard_Bootstrap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("works once", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.guard.Bootstrap(ctx, rbac.BootstrapParams{UserID: uuid.New(), Permissions: []string{manageBranches}})
		assert.ErrorIs(t, err, rbac.ErrAlreadyBootstrapped)

		events, err := e.store.Query(ctx, audit.Criteria{Action: audit.ActionBootstrap})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "system", events[0].UserID)
	})

	t.Run("seeds a global super admin", func(t *testing.T) {
		t.Parallel()
		store := memstore.New()
		resolver := rbac.NewResolver(store)
		guard := rbac.NewGuard(store, resolver)
		root := uuid.New()

		role, err := guard.Bootstrap(ctx, rbac.BootstrapParams{UserID: root, Permissions: []string{"manage_plans"}})
		require.NoError(t, err)
		assert.Equal(t, rbac.TagSuperAdmin, role.Tag)
		assert.True(t, role.IsGlobal())

		ok, err := resolver.Resolve(ctx, root, "manage_plans", rbac.TenantScope(uuid.New()))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("invalid permission name rolls everything back", func(t *testing.T) {
		t.Parallel()
		store := memstore.New()
		guard := rbac.NewGuard(store, rbac.NewResolver(store))

		_, err := guard.Bootstrap(ctx, rbac.BootstrapParams{UserID: uuid.New(), Permissions: []string{"ok_name", "Bad Name"}})
		assert.ErrorIs(t, err, rbac.ErrInvalidPermissionName)

		perms, err := store.ListPermissions(ctx)
		require.NoError(t, err)
		assert.Empty(t, perms)
		done, err := store.HasPrivilegedGrants(ctx)
		require.NoError(t, err)
		assert.False(t, done)
	})

	t.Run("requires user and permissions", func(t *testing.T) {
		t.Parallel()
		store := memstore.New()
		guard := rbac.NewGuard(store, rbac.NewResolver(store))
		_, err := guard.Bootstrap(ctx, rbac.BootstrapParams{UserID: uuid.New()})
		assert.ErrorIs(t, err, rbac.ErrInvalidRole)
	})
}

func TestActorContext(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	ctx := rbac.SetActorToContext(context.Background(), id)
	got, ok := rbac.GetActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	s, ok := rbac.ActorExtractor(ctx)
	assert.True(t, ok)
	assert.Equal(t, id.String(), s)

	_, ok = rbac.ActorExtractor(context.Background())
	assert.False(t, ok)
}
