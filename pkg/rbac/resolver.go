package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Resolver answers "may this user do X here".
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver.
func NewResolver(store Store) *Resolver {
	if store == nil {
		panic("rbac: store is required")
	}
	return &Resolver{store: store}
}

// Resolve returns the user's effective permission in scope. The most
// specific rule wins:
//
//  1. a branch override for the scope's branch,
//  2. a tenant override for the scope's tenant,
//  3. the user's role grant, when the role is global or belongs to the tenant,
//  4. deny.
//
// Overrides are authoritative in both directions: an explicit deny beats a
// role grant and an explicit allow beats a missing one. A permission missing
// from the catalog is denied with an error matching both ErrForbidden and
// ErrPermissionNotFound.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, permission string, scope Scope) (bool, error) {
	if !scope.Valid() {
		return false, errors.Join(ErrInvalidScope, errors.New("tenant is required"))
	}
	perm, err := r.store.PermissionByName(ctx, permission)
	if errors.Is(err, ErrPermissionNotFound) {
		return false, fmt.Errorf("%w: %w: %q", ErrForbidden, ErrPermissionNotFound, permission)
	}
	if err != nil {
		return false, err
	}
	return r.resolve(ctx, userID, perm.ID, scope)
}

func (r *Resolver) resolve(ctx context.Context, userID, permissionID uuid.UUID, scope Scope) (bool, error) {
	if scope.Kind() == ScopeBranch {
		granted, found, err := r.override(ctx, userID, permissionID, scope)
		if err != nil || found {
			return granted, err
		}
	}
	granted, found, err := r.override(ctx, userID, permissionID, scope.Tenant())
	if err != nil || found {
		return granted, err
	}

	ur, err := r.store.UserRole(ctx, userID)
	if errors.Is(err, ErrRoleNotAssigned) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	role, err := r.store.GetRole(ctx, ur.RoleID)
	if err != nil {
		return false, err
	}
	if !role.AppliesTo(scope.TenantID) || (ur.TenantID != uuid.Nil && ur.TenantID != scope.TenantID) {
		return false, nil
	}
	rp, err := r.store.RolePermission(ctx, role.ID, permissionID)
	if errors.Is(err, ErrGrantNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rp.Granted, nil
}

func (r *Resolver) override(ctx context.Context, userID, permissionID uuid.UUID, scope Scope) (granted, found bool, err error) {
	up, err := r.store.UserPermission(ctx, userID, permissionID, scope)
	if errors.Is(err, ErrOverrideNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return up.Granted, true, nil
}

// Authorize returns nil when the user holds permission in scope and ErrForbidden otherwise.
func (r *Resolver) Authorize(ctx context.Context, userID uuid.UUID, permission string, scope Scope) error {
	ok, err := r.Resolve(ctx, userID, permission, scope)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %s lacks %s", ErrForbidden, userID, permission)
	}
	return nil
}

// Effective resolves every catalog permission for the user in scope.
func (r *Resolver) Effective(ctx context.Context, userID uuid.UUID, scope Scope) (map[string]bool, error) {
	if !scope.Valid() {
		return nil, errors.Join(ErrInvalidScope, errors.New("tenant is required"))
	}
	perms, err := r.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(perms))
	for _, p := range perms {
		granted, err := r.resolve(ctx, userID, p.ID, scope)
		if err != nil {
			return nil, err
		}
		out[p.Name] = granted
	}
	return out, nil
}
