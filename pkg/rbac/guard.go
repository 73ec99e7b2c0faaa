package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/logger"
	"github.com/dmitrymomot/restokit/pkg/notify"
)

// Guard performs permission writes on behalf of a grantor. Every write is
// preceded by a check that the grantor holds the permission being granted
// or revoked; the check and the write share one transaction.
type Guard struct {
	store    Store
	resolver *Resolver
	audit    *audit.Logger
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithAudit records every write through a.
func WithAudit(a *audit.Logger) GuardOption {
	return func(g *Guard) { g.audit = a }
}

// WithNotifier tells affected users about grants, revokes and role changes.
func WithNotifier(n notify.Notifier) GuardOption {
	return func(g *Guard) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithLogger sets the guard logger.
func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard creates a Guard.
func NewGuard(store Store, resolver *Resolver, opts ...GuardOption) *Guard {
	if store == nil || resolver == nil {
		panic("rbac: store and resolver are required")
	}
	g := &Guard{
		store:    store,
		resolver: resolver,
		notifier: notify.NoOp{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GrantUserPermission gives userID an explicit allow for permission in scope.
func (g *Guard) GrantUserPermission(ctx context.Context, grantorID, userID uuid.UUID, permission string, scope Scope) error {
	return g.setOverride(ctx, grantorID, userID, permission, scope, true)
}

// DenyUserPermission gives userID an explicit deny for permission in scope,
// which wins over any role grant.
func (g *Guard) DenyUserPermission(ctx context.Context, grantorID, userID uuid.UUID, permission string, scope Scope) error {
	return g.setOverride(ctx, grantorID, userID, permission, scope, false)
}

func (g *Guard) setOverride(ctx context.Context, grantorID, userID uuid.UUID, permission string, scope Scope, granted bool) error {
	if !scope.Valid() {
		return errors.Join(ErrInvalidScope, errors.New("tenant is required"))
	}
	action := audit.ActionUserPermissionGranted
	if !granted {
		action = audit.ActionUserPermissionRevoked
	}

	err := g.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.checkScope(ctx, scope); err != nil {
			return err
		}
		perm, err := g.store.PermissionByName(ctx, permission)
		if err != nil {
			return err
		}
		if err := g.requireHeld(ctx, grantorID, perm, scope); err != nil {
			return err
		}
		if err := g.store.UpsertUserPermission(ctx, UserPermission{
			UserID:         userID,
			PermissionID:   perm.ID,
			PermissionName: perm.Name,
			Scope:          scope,
			Granted:        granted,
			GrantedBy:      grantorID,
			UpdatedAt:      g.now().UTC(),
		}); err != nil {
			return err
		}
		return g.record(ctx, action, grantorID, scope.TenantID,
			audit.WithResource("user", userID.String()),
			audit.WithMetadata("permission", perm.Name),
			audit.WithMetadata("scope", string(scope.Kind())),
			audit.WithMetadata("scope_id", scope.ID().String()),
			audit.WithMetadata("granted", granted))
	})
	if err != nil {
		return g.fail(ctx, err, "user permission override rejected", grantorID, permission)
	}

	kind := notify.KindPermissionGranted
	if !granted {
		kind = notify.KindPermissionRevoked
	}
	g.notify(ctx, notify.New(kind, notify.TypeInfo, scope.TenantID, userID,
		"Permission updated", fmt.Sprintf("%s is now %s", permission, grantWord(granted))).
		With("permission", permission))
	return nil
}

// RevokeUserPermission removes userID's override for permission in scope,
// so the role grant applies again. The grantor must still hold the permission.
func (g *Guard) RevokeUserPermission(ctx context.Context, grantorID, userID uuid.UUID, permission string, scope Scope) error {
	if !scope.Valid() {
		return errors.Join(ErrInvalidScope, errors.New("tenant is required"))
	}
	err := g.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.checkScope(ctx, scope); err != nil {
			return err
		}
		perm, err := g.store.PermissionByName(ctx, permission)
		if err != nil {
			return err
		}
		if err := g.requireHeld(ctx, grantorID, perm, scope); err != nil {
			return err
		}
		deleted, err := g.store.DeleteUserPermission(ctx, userID, perm.ID, scope)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: user %s, %s", ErrOverrideNotFound, userID, perm.Name)
		}
		return g.record(ctx, audit.ActionUserPermissionRevoked, grantorID, scope.TenantID,
			audit.WithResource("user", userID.String()),
			audit.WithMetadata("permission", perm.Name),
			audit.WithMetadata("scope", string(scope.Kind())),
			audit.WithMetadata("scope_id", scope.ID().String()),
			audit.WithMetadata("override_removed", true))
	})
	if err != nil {
		return g.fail(ctx, err, "user permission revoke rejected", grantorID, permission)
	}

	g.notify(ctx, notify.New(notify.KindPermissionRevoked, notify.TypeInfo, scope.TenantID, userID,
		"Permission updated", fmt.Sprintf("override for %s removed", permission)).
		With("permission", permission))
	return nil
}

// SetRolePermission creates or updates a role-level grant. The grantor's own
// role must grant the permission.
func (g *Guard) SetRolePermission(ctx context.Context, grantorID, roleID uuid.UUID, permission string, granted bool) error {
	err := g.store.RunInTx(ctx, func(ctx context.Context) error {
		role, perm, err := g.roleEdit(ctx, grantorID, roleID, permission)
		if err != nil {
			return err
		}
		if err := g.store.UpsertRolePermission(ctx, RolePermission{
			RoleID:         role.ID,
			PermissionID:   perm.ID,
			PermissionName: perm.Name,
			Granted:        granted,
			UpdatedBy:      grantorID,
			UpdatedAt:      g.now().UTC(),
		}); err != nil {
			return err
		}
		return g.record(ctx, audit.ActionRolePermissionSet, grantorID, role.TenantID,
			audit.WithResource("role", role.ID.String()),
			audit.WithMetadata("permission", perm.Name),
			audit.WithMetadata("granted", granted))
	})
	if err != nil {
		return g.fail(ctx, err, "role permission change rejected", grantorID, permission)
	}
	return nil
}

// RevokeRolePermission deletes a role-level grant.
func (g *Guard) RevokeRolePermission(ctx context.Context, grantorID, roleID uuid.UUID, permission string) error {
	err := g.store.RunInTx(ctx, func(ctx context.Context) error {
		role, perm, err := g.roleEdit(ctx, grantorID, roleID, permission)
		if err != nil {
			return err
		}
		deleted, err := g.store.DeleteRolePermission(ctx, role.ID, perm.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: role %s, %s", ErrGrantNotFound, role.ID, perm.Name)
		}
		return g.record(ctx, audit.ActionRolePermissionRevoked, grantorID, role.TenantID,
			audit.WithResource("role", role.ID.String()),
			audit.WithMetadata("permission", perm.Name))
	})
	if err != nil {
		return g.fail(ctx, err, "role permission revoke rejected", grantorID, permission)
	}
	return nil
}

// AssignRole gives userID the role within tenantID, replacing the role they
// hold. The grantor must hold, in that tenant, every permission the new role
// grants, and every permission the replaced role grants in the replaced
// assignment's tenant. Replacing an assignment made outside tenantID, or a
// super_admin assignment, also needs a grantor with an unscoped global role.
func (g *Guard) AssignRole(ctx context.Context, grantorID, userID, roleID, tenantID uuid.UUID) error {
	err := g.store.RunInTx(ctx, func(ctx context.Context) error {
		role, err := g.store.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if !role.AppliesTo(tenantID) {
			return fmt.Errorf("%w: role %s belongs to another tenant", ErrInvalidRole, role.ID)
		}
		if err := g.requireRole(ctx, grantorID, role, TenantScope(tenantID)); err != nil {
			return err
		}

		current, err := g.store.UserRole(ctx, userID)
		switch {
		case errors.Is(err, ErrRoleNotAssigned):
		case err != nil:
			return err
		default:
			if err := g.canReplace(ctx, grantorID, current, tenantID); err != nil {
				return err
			}
		}

		if err := g.store.SetUserRole(ctx, UserRole{
			UserID:     userID,
			RoleID:     role.ID,
			TenantID:   tenantID,
			AssignedBy: grantorID,
			AssignedAt: g.now().UTC(),
		}); err != nil {
			return err
		}
		return g.record(ctx, audit.ActionRoleAssigned, grantorID, tenantID,
			audit.WithResource("user", userID.String()),
			audit.WithMetadata("role_id", role.ID.String()),
			audit.WithMetadata("role_tag", string(role.Tag)))
	})
	if err != nil {
		return g.fail(ctx, err, "role assignment rejected", grantorID, "")
	}

	g.notify(ctx, notify.New(notify.KindRoleAssigned, notify.TypeInfo, tenantID, userID,
		"Role changed", "your role was updated").With("role_id", roleID.String()))
	return nil
}

// BootstrapParams seeds the first privileged role.
type BootstrapParams struct {
	UserID      uuid.UUID
	RoleName    string
	Permissions []string
}

// Bootstrap seeds the first super_admin role with its permissions and assigns
// it to UserID, bypassing the delegation check. It works once: after any
// super_admin grant exists it fails with ErrAlreadyBootstrapped.
func (g *Guard) Bootstrap(ctx context.Context, p BootstrapParams) (*Role, error) {
	if p.UserID == uuid.Nil || len(p.Permissions) == 0 {
		return nil, errors.Join(ErrInvalidRole, errors.New("bootstrap needs a user and at least one permission"))
	}
	if p.RoleName == "" {
		p.RoleName = "Super Admin"
	}

	var role *Role
	err := g.store.RunInTx(ctx, func(ctx context.Context) error {
		done, err := g.store.HasPrivilegedGrants(ctx)
		if err != nil {
			return err
		}
		if done {
			return ErrAlreadyBootstrapped
		}

		now := g.now().UTC()
		role = &Role{ID: uuid.New(), Name: p.RoleName, Tag: TagSuperAdmin, CreatedAt: now}
		if err := g.store.CreateRole(ctx, role); err != nil {
			return err
		}
		for _, name := range p.Permissions {
			perm, err := g.store.PermissionByName(ctx, name)
			if errors.Is(err, ErrPermissionNotFound) {
				if !ValidPermissionName(name) {
					return fmt.Errorf("%w: %q", ErrInvalidPermissionName, name)
				}
				perm = &Permission{ID: uuid.New(), Name: name, CreatedAt: now}
				err = g.store.CreatePermission(ctx, perm)
			}
			if err != nil {
				return err
			}
			if err := g.store.UpsertRolePermission(ctx, RolePermission{
				RoleID:         role.ID,
				PermissionID:   perm.ID,
				PermissionName: perm.Name,
				Granted:        true,
				UpdatedAt:      now,
			}); err != nil {
				return err
			}
		}
		if err := g.store.SetUserRole(ctx, UserRole{UserID: p.UserID, RoleID: role.ID, AssignedAt: now}); err != nil {
			return err
		}
		return g.record(ctx, audit.ActionBootstrap, uuid.Nil, uuid.Nil,
			audit.WithActor("system"),
			audit.WithResource("role", role.ID.String()),
			audit.WithMetadata("user_id", p.UserID.String()),
			audit.WithMetadata("permissions", p.Permissions))
	})
	if err != nil {
		return nil, err
	}

	g.logger.WarnContext(ctx, "rbac bootstrapped: first super_admin role seeded",
		logger.UserID(p.UserID),
		slog.String("role_id", role.ID.String()),
		slog.Int("permissions", len(p.Permissions)))
	return role, nil
}

// requireHeld checks the grantor's effective permission in scope.
func (g *Guard) requireHeld(ctx context.Context, grantorID uuid.UUID, perm *Permission, scope Scope) error {
	held, err := g.resolver.resolve(ctx, grantorID, perm.ID, scope)
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("%w: grantor %s does not hold %s", ErrAuthorityExceeded, grantorID, perm.Name)
	}
	return nil
}

// requireRole checks the grantor holds every permission role grants, in scope.
func (g *Guard) requireRole(ctx context.Context, grantorID uuid.UUID, role *Role, scope Scope) error {
	grants, err := g.store.ListRolePermissions(ctx, role.ID)
	if err != nil {
		return err
	}
	for _, rp := range grants {
		if !rp.Granted {
			continue
		}
		held, err := g.resolver.resolve(ctx, grantorID, rp.PermissionID, scope)
		if err != nil {
			return err
		}
		if !held {
			return fmt.Errorf("%w: grantor %s lacks %s granted by role %s", ErrAuthorityExceeded, grantorID, rp.PermissionName, role.Name)
		}
	}
	return nil
}

// canReplace checks the grantor may take current away from its user.
func (g *Guard) canReplace(ctx context.Context, grantorID uuid.UUID, current *UserRole, tenantID uuid.UUID) error {
	role, err := g.store.GetRole(ctx, current.RoleID)
	if err != nil {
		return err
	}
	if current.TenantID != tenantID || role.Tag == TagSuperAdmin {
		_, boundary, err := g.grantorRole(ctx, grantorID)
		if err != nil {
			return err
		}
		if boundary != uuid.Nil {
			return fmt.Errorf("%w: user %s holds role %s outside tenant %s", ErrAuthorityExceeded, current.UserID, role.Name, tenantID)
		}
	}
	scope := TenantScope(tenantID)
	if current.TenantID != uuid.Nil {
		scope = TenantScope(current.TenantID)
	}
	return g.requireRole(ctx, grantorID, role, scope)
}

// grantorRole returns the grantor's role and the tenant they are confined to:
// the assignment's tenant, else the role's. uuid.Nil means a global role
// assigned without a tenant.
func (g *Guard) grantorRole(ctx context.Context, grantorID uuid.UUID) (*Role, uuid.UUID, error) {
	ur, err := g.store.UserRole(ctx, grantorID)
	if errors.Is(err, ErrRoleNotAssigned) {
		return nil, uuid.Nil, fmt.Errorf("%w: grantor %s has no role", ErrAuthorityExceeded, grantorID)
	}
	if err != nil {
		return nil, uuid.Nil, err
	}
	own, err := g.store.GetRole(ctx, ur.RoleID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	boundary := ur.TenantID
	if boundary == uuid.Nil {
		boundary = own.TenantID
	}
	return own, boundary, nil
}

// checkScope rejects a branch scope whose branch belongs to another tenant.
func (g *Guard) checkScope(ctx context.Context, scope Scope) error {
	if scope.Kind() != ScopeBranch {
		return nil
	}
	owner, err := g.store.BranchTenant(ctx, scope.BranchID)
	if err != nil {
		return err
	}
	if owner != scope.TenantID {
		return fmt.Errorf("%w: %w: branch %s does not belong to tenant %s",
			ErrAuthorityExceeded, ErrInvalidScope, scope.BranchID, scope.TenantID)
	}
	return nil
}

// roleEdit loads the target role and checks the grantor's own role grants the
// permission. A grantor confined to a tenant edits only that tenant's roles;
// global roles are editable only through an unscoped global role.
func (g *Guard) roleEdit(ctx context.Context, grantorID, roleID uuid.UUID, permission string) (*Role, *Permission, error) {
	target, err := g.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	perm, err := g.store.PermissionByName(ctx, permission)
	if err != nil {
		return nil, nil, err
	}

	own, boundary, err := g.grantorRole(ctx, grantorID)
	if err != nil {
		return nil, nil, err
	}
	if boundary != uuid.Nil && target.TenantID != boundary {
		return nil, nil, fmt.Errorf("%w: role %s is outside grantor's tenant", ErrAuthorityExceeded, target.ID)
	}

	rp, err := g.store.RolePermission(ctx, own.ID, perm.ID)
	if errors.Is(err, ErrGrantNotFound) {
		return nil, nil, fmt.Errorf("%w: grantor role %s does not grant %s", ErrAuthorityExceeded, own.Name, perm.Name)
	}
	if err != nil {
		return nil, nil, err
	}
	if !rp.Granted {
		return nil, nil, fmt.Errorf("%w: grantor role %s denies %s", ErrAuthorityExceeded, own.Name, perm.Name)
	}
	return target, perm, nil
}

func (g *Guard) record(ctx context.Context, action string, actorID, tenantID uuid.UUID, opts ...audit.EventOption) error {
	if g.audit == nil {
		return nil
	}
	base := []audit.EventOption{audit.WithActor(actorID.String())}
	if tenantID != uuid.Nil {
		base = append(base, audit.WithTenant(tenantID.String()))
	}
	return g.audit.Log(ctx, action, append(base, opts...)...)
}

func (g *Guard) fail(ctx context.Context, err error, msg string, grantorID uuid.UUID, permission string) error {
	if !errors.Is(err, ErrAuthorityExceeded) {
		return err
	}
	g.logger.WarnContext(ctx, msg,
		logger.UserID(grantorID),
		logger.Permission(permission),
		logger.Error(err))
	if g.audit != nil {
		opts := []audit.EventOption{audit.WithActor(grantorID.String())}
		if permission != "" {
			opts = append(opts, audit.WithMetadata("permission", permission))
		}
		if aerr := g.audit.LogFailure(ctx, audit.ActionDelegationDenied, err, opts...); aerr != nil {
			g.logger.ErrorContext(ctx, "failed to audit rejected delegation", logger.Error(aerr))
		}
	}
	return err
}

func (g *Guard) notify(ctx context.Context, n notify.Notification) {
	if err := g.notifier.Notify(ctx, n); err != nil {
		g.logger.ErrorContext(ctx, "permission notification failed",
			logger.UserID(n.UserID),
			logger.Error(err))
	}
}

func grantWord(granted bool) string {
	if granted {
		return "allowed"
	}
	return "denied"
}
