package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/restokit/pkg/pg"
	"github.com/dmitrymomot/restokit/pkg/rbac"
)

func (s *Store) CreatePermission(ctx context.Context, p *rbac.Permission) error {
	_, err := s.db(ctx).Exec(ctx,
		`INSERT INTO permissions (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Name, p.Description, p.CreatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", rbac.ErrPermissionExists, p.Name)
		}
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

func scanPermission(row pgx.Row) (rbac.Permission, error) {
	var p rbac.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	return p, err
}

func (s *Store) PermissionByName(ctx context.Context, name string) (*rbac.Permission, error) {
	p, err := scanPermission(s.db(ctx).QueryRow(ctx,
		`SELECT id, name, description, created_at FROM permissions WHERE name = $1`, name))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, rbac.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT id, name, description, created_at FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return collect(rows, scanPermission)
}

func (s *Store) CreateRole(ctx context.Context, r *rbac.Role) error {
	_, err := s.db(ctx).Exec(ctx,
		`INSERT INTO roles (id, name, tag, tenant_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.Name, r.Tag, nullable(r.TenantID), r.CreatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: role %q already exists", rbac.ErrInvalidRole, r.Name)
		}
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, id uuid.UUID) (*rbac.Role, error) {
	var (
		r        rbac.Role
		tenantID *uuid.UUID
	)
	err := s.db(ctx).QueryRow(ctx,
		`SELECT id, name, tag, tenant_id, created_at FROM roles WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &r.Tag, &tenantID, &r.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, rbac.ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	r.TenantID = orNil(tenantID)
	return &r, nil
}

const rolePermissionSelect = `
	SELECT rp.role_id, rp.permission_id, p.name, rp.granted, rp.updated_by, rp.updated_at
	FROM role_permissions rp
	JOIN permissions p ON p.id = rp.permission_id`

func scanRolePermission(row pgx.Row) (rbac.RolePermission, error) {
	var (
		rp        rbac.RolePermission
		updatedBy *uuid.UUID
	)
	err := row.Scan(&rp.RoleID, &rp.PermissionID, &rp.PermissionName, &rp.Granted, &updatedBy, &rp.UpdatedAt)
	rp.UpdatedBy = orNil(updatedBy)
	return rp, err
}

func (s *Store) RolePermission(ctx context.Context, roleID, permissionID uuid.UUID) (*rbac.RolePermission, error) {
	rp, err := scanRolePermission(s.db(ctx).QueryRow(ctx,
		rolePermissionSelect+` WHERE rp.role_id = $1 AND rp.permission_id = $2`, roleID, permissionID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, rbac.ErrGrantNotFound
		}
		return nil, fmt.Errorf("get role permission: %w", err)
	}
	return &rp, nil
}

func (s *Store) ListRolePermissions(ctx context.Context, roleID uuid.UUID) ([]rbac.RolePermission, error) {
	rows, err := s.db(ctx).Query(ctx, rolePermissionSelect+` WHERE rp.role_id = $1 ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	return collect(rows, scanRolePermission)
}

func (s *Store) UpsertRolePermission(ctx context.Context, rp rbac.RolePermission) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role_id, permission_id)
		DO UPDATE SET granted = EXCLUDED.granted, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`,
		rp.RoleID, rp.PermissionID, rp.Granted, nullable(rp.UpdatedBy), rp.UpdatedAt)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return s.missingGrantParent(ctx, rp.RoleID)
		}
		return fmt.Errorf("upsert role permission: %w", err)
	}
	return nil
}

// missingGrantParent tells which side of a failed grant insert is missing.
func (s *Store) missingGrantParent(ctx context.Context, roleID uuid.UUID) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	return rbac.ErrPermissionNotFound
}

func (s *Store) DeleteRolePermission(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error) {
	tag, err := s.db(ctx).Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return false, fmt.Errorf("delete role permission: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) HasPrivilegedGrants(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM role_permissions rp
			JOIN roles r ON r.id = rp.role_id
			WHERE r.tag = $1 AND rp.granted
		)`, rbac.TagSuperAdmin).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check privileged grants: %w", err)
	}
	return exists, nil
}

func (s *Store) UserRole(ctx context.Context, userID uuid.UUID) (*rbac.UserRole, error) {
	var (
		ur                   rbac.UserRole
		tenantID, assignedBy *uuid.UUID
	)
	err := s.db(ctx).QueryRow(ctx,
		`SELECT user_id, role_id, tenant_id, assigned_by, assigned_at FROM user_roles WHERE user_id = $1`, userID).
		Scan(&ur.UserID, &ur.RoleID, &tenantID, &assignedBy, &ur.AssignedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, rbac.ErrRoleNotAssigned
		}
		return nil, fmt.Errorf("get user role: %w", err)
	}
	ur.TenantID = orNil(tenantID)
	ur.AssignedBy = orNil(assignedBy)
	return &ur, nil
}

// SetUserRole replaces the user's single role.
func (s *Store) SetUserRole(ctx context.Context, ur rbac.UserRole) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, tenant_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET role_id = EXCLUDED.role_id, tenant_id = EXCLUDED.tenant_id,
		              assigned_by = EXCLUDED.assigned_by, assigned_at = EXCLUDED.assigned_at`,
		ur.UserID, ur.RoleID, nullable(ur.TenantID), nullable(ur.AssignedBy), ur.AssignedAt)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return rbac.ErrRoleNotFound
		}
		return fmt.Errorf("set user role: %w", err)
	}
	return nil
}

func (s *Store) BranchTenant(ctx context.Context, branchID uuid.UUID) (uuid.UUID, error) {
	var tenantID uuid.UUID
	err := s.db(ctx).QueryRow(ctx, `SELECT tenant_id FROM branches WHERE id = $1`, branchID).Scan(&tenantID)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return uuid.Nil, fmt.Errorf("%w: branch %s not found", rbac.ErrInvalidScope, branchID)
		}
		return uuid.Nil, fmt.Errorf("get branch tenant: %w", err)
	}
	return tenantID, nil
}

const userPermissionSelect = `
	SELECT up.user_id, up.permission_id, p.name, up.scope_kind, up.scope_id, up.tenant_id,
	       up.granted, up.granted_by, up.updated_at
	FROM user_permissions up
	JOIN permissions p ON p.id = up.permission_id`

func scanUserPermission(row pgx.Row) (rbac.UserPermission, error) {
	var (
		up        rbac.UserPermission
		kind      rbac.ScopeKind
		scopeID   uuid.UUID
		grantedBy *uuid.UUID
	)
	err := row.Scan(&up.UserID, &up.PermissionID, &up.PermissionName, &kind, &scopeID, &up.Scope.TenantID,
		&up.Granted, &grantedBy, &up.UpdatedAt)
	if kind == rbac.ScopeBranch {
		up.Scope.BranchID = scopeID
	}
	up.GrantedBy = orNil(grantedBy)
	return up, err
}

func (s *Store) UserPermission(ctx context.Context, userID, permissionID uuid.UUID, scope rbac.Scope) (*rbac.UserPermission, error) {
	up, err := scanUserPermission(s.db(ctx).QueryRow(ctx, userPermissionSelect+`
		WHERE up.user_id = $1 AND up.permission_id = $2 AND up.tenant_id = $3
		  AND up.scope_kind = $4 AND up.scope_id = $5`,
		userID, permissionID, scope.TenantID, scope.Kind(), scope.ID()))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, rbac.ErrOverrideNotFound
		}
		return nil, fmt.Errorf("get user permission: %w", err)
	}
	return &up, nil
}

func (s *Store) ListUserPermissions(ctx context.Context, userID uuid.UUID) ([]rbac.UserPermission, error) {
	rows, err := s.db(ctx).Query(ctx, userPermissionSelect+`
		WHERE up.user_id = $1 ORDER BY p.name, up.scope_kind, up.scope_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user permissions: %w", err)
	}
	return collect(rows, scanUserPermission)
}

func (s *Store) UpsertUserPermission(ctx context.Context, up rbac.UserPermission) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, scope_kind, scope_id, tenant_id, granted, granted_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, permission_id, tenant_id, scope_kind, scope_id)
		DO UPDATE SET granted = EXCLUDED.granted, granted_by = EXCLUDED.granted_by, updated_at = EXCLUDED.updated_at`,
		up.UserID, up.PermissionID, up.Scope.Kind(), up.Scope.ID(), up.Scope.TenantID,
		up.Granted, nullable(up.GrantedBy), up.UpdatedAt)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return rbac.ErrPermissionNotFound
		}
		return fmt.Errorf("upsert user permission: %w", err)
	}
	return nil
}

func (s *Store) DeleteUserPermission(ctx context.Context, userID, permissionID uuid.UUID, scope rbac.Scope) (bool, error) {
	tag, err := s.db(ctx).Exec(ctx, `
		DELETE FROM user_permissions
		WHERE user_id = $1 AND permission_id = $2 AND tenant_id = $3 AND scope_kind = $4 AND scope_id = $5`,
		userID, permissionID, scope.TenantID, scope.Kind(), scope.ID())
	if err != nil {
		return false, fmt.Errorf("delete user permission: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
