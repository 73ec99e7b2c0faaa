package memstore

import (
	"cmp"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/restokit/pkg/rbac"
)

func (s *Store) CreatePermission(ctx context.Context, p *rbac.Permission) error {
	defer s.lock(ctx)()
	for _, existing := range s.st.permissions {
		if existing.Name == p.Name {
			return fmt.Errorf("%w: %s", rbac.ErrPermissionExists, p.Name)
		}
	}
	s.st.permissions[p.ID] = *p
	return nil
}

func (s *Store) PermissionByName(ctx context.Context, name string) (*rbac.Permission, error) {
	defer s.lock(ctx)()
	for _, p := range s.st.permissions {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, rbac.ErrPermissionNotFound
}

func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	defer s.lock(ctx)()
	return sortedValues(s.st.permissions,
		func(rbac.Permission) bool { return true },
		func(a, b rbac.Permission) int { return cmp.Compare(a.Name, b.Name) },
	), nil
}

func (s *Store) CreateRole(ctx context.Context, r *rbac.Role) error {
	defer s.lock(ctx)()
	for _, existing := range s.st.roles {
		if existing.Name == r.Name && existing.TenantID == r.TenantID {
			return fmt.Errorf("%w: role %q already exists", rbac.ErrInvalidRole, r.Name)
		}
	}
	s.st.roles[r.ID] = *r
	return nil
}

func (s *Store) GetRole(ctx context.Context, id uuid.UUID) (*rbac.Role, error) {
	defer s.lock(ctx)()
	r, ok := s.st.roles[id]
	if !ok {
		return nil, rbac.ErrRoleNotFound
	}
	return &r, nil
}

func (s *Store) RolePermission(ctx context.Context, roleID, permissionID uuid.UUID) (*rbac.RolePermission, error) {
	defer s.lock(ctx)()
	rp, ok := s.st.grants[grantKey{roleID, permissionID}]
	if !ok {
		return nil, rbac.ErrGrantNotFound
	}
	return &rp, nil
}

func (s *Store) ListRolePermissions(ctx context.Context, roleID uuid.UUID) ([]rbac.RolePermission, error) {
	defer s.lock(ctx)()
	return sortedValues(s.st.grants,
		func(rp rbac.RolePermission) bool { return rp.RoleID == roleID },
		func(a, b rbac.RolePermission) int { return cmp.Compare(a.PermissionName, b.PermissionName) },
	), nil
}

func (s *Store) UpsertRolePermission(ctx context.Context, rp rbac.RolePermission) error {
	defer s.lock(ctx)()
	if _, ok := s.st.roles[rp.RoleID]; !ok {
		return rbac.ErrRoleNotFound
	}
	p, ok := s.st.permissions[rp.PermissionID]
	if !ok {
		return rbac.ErrPermissionNotFound
	}
	rp.PermissionName = p.Name
	s.st.grants[grantKey{rp.RoleID, rp.PermissionID}] = rp
	return nil
}

func (s *Store) DeleteRolePermission(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error) {
	defer s.lock(ctx)()
	k := grantKey{roleID, permissionID}
	if _, ok := s.st.grants[k]; !ok {
		return false, nil
	}
	delete(s.st.grants, k)
	return true, nil
}

func (s *Store) HasPrivilegedGrants(ctx context.Context) (bool, error) {
	defer s.lock(ctx)()
	for _, rp := range s.st.grants {
		if !rp.Granted {
			continue
		}
		if r, ok := s.st.roles[rp.RoleID]; ok && r.Tag == rbac.TagSuperAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UserRole(ctx context.Context, userID uuid.UUID) (*rbac.UserRole, error) {
	defer s.lock(ctx)()
	ur, ok := s.st.userRoles[userID]
	if !ok {
		return nil, rbac.ErrRoleNotAssigned
	}
	return &ur, nil
}

func (s *Store) SetUserRole(ctx context.Context, ur rbac.UserRole) error {
	defer s.lock(ctx)()
	if _, ok := s.st.roles[ur.RoleID]; !ok {
		return rbac.ErrRoleNotFound
	}
	s.st.userRoles[ur.UserID] = ur
	return nil
}

func overrideKeyOf(userID, permissionID uuid.UUID, scope rbac.Scope) overrideKey {
	return overrideKey{user: userID, perm: permissionID, tenant: scope.TenantID, kind: scope.Kind(), scope: scope.ID()}
}

func (s *Store) BranchTenant(ctx context.Context, branchID uuid.UUID) (uuid.UUID, error) {
	defer s.lock(ctx)()
	b, ok := s.st.branches[branchID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: branch %s not found", rbac.ErrInvalidScope, branchID)
	}
	return b.TenantID, nil
}

func (s *Store) UserPermission(ctx context.Context, userID, permissionID uuid.UUID, scope rbac.Scope) (*rbac.UserPermission, error) {
	defer s.lock(ctx)()
	up, ok := s.st.overrides[overrideKeyOf(userID, permissionID, scope)]
	if !ok {
		return nil, rbac.ErrOverrideNotFound
	}
	return &up, nil
}

func (s *Store) ListUserPermissions(ctx context.Context, userID uuid.UUID) ([]rbac.UserPermission, error) {
	defer s.lock(ctx)()
	return sortedValues(s.st.overrides,
		func(up rbac.UserPermission) bool { return up.UserID == userID },
		func(a, b rbac.UserPermission) int {
			return cmp.Or(
				cmp.Compare(a.PermissionName, b.PermissionName),
				cmp.Compare(a.Scope.Kind(), b.Scope.Kind()),
				cmp.Compare(a.Scope.ID().String(), b.Scope.ID().String()),
			)
		},
	), nil
}

func (s *Store) UpsertUserPermission(ctx context.Context, up rbac.UserPermission) error {
	defer s.lock(ctx)()
	p, ok := s.st.permissions[up.PermissionID]
	if !ok {
		return rbac.ErrPermissionNotFound
	}
	up.PermissionName = p.Name
	s.st.overrides[overrideKeyOf(up.UserID, up.PermissionID, up.Scope)] = up
	return nil
}

func (s *Store) DeleteUserPermission(ctx context.Context, userID, permissionID uuid.UUID, scope rbac.Scope) (bool, error) {
	defer s.lock(ctx)()
	k := overrideKeyOf(userID, permissionID, scope)
	if _, ok := s.st.overrides[k]; !ok {
		return false, nil
	}
	delete(s.st.overrides, k)
	return true, nil
}
