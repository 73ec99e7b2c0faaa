package rbac

import (
	"context"

	"github.com/google/uuid"
)

// Store persists roles, permissions and grants.
//
// Single-row getters return ErrRoleNotFound, ErrPermissionNotFound,
// ErrRoleNotAssigned, ErrGrantNotFound or ErrOverrideNotFound when the row is absent.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreatePermission(ctx context.Context, p *Permission) error
	PermissionByName(ctx context.Context, name string) (*Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)

	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id uuid.UUID) (*Role, error)

	RolePermission(ctx context.Context, roleID, permissionID uuid.UUID) (*RolePermission, error)
	ListRolePermissions(ctx context.Context, roleID uuid.UUID) ([]RolePermission, error)
	UpsertRolePermission(ctx context.Context, rp RolePermission) error
	DeleteRolePermission(ctx context.Context, roleID, permissionID uuid.UUID) (bool, error)
	// HasPrivilegedGrants reports whether any super_admin role holds a granted permission.
	HasPrivilegedGrants(ctx context.Context) (bool, error)

	UserRole(ctx context.Context, userID uuid.UUID) (*UserRole, error)
	SetUserRole(ctx context.Context, ur UserRole) error

	// BranchTenant returns the tenant owning branchID, or an error wrapping
	// ErrInvalidScope when the branch does not exist.
	BranchTenant(ctx context.Context, branchID uuid.UUID) (uuid.UUID, error)

	// User overrides are keyed by user, permission, tenant, scope kind and scope id.
	UserPermission(ctx context.Context, userID, permissionID uuid.UUID, scope Scope) (*UserPermission, error)
	ListUserPermissions(ctx context.Context, userID uuid.UUID) ([]UserPermission, error)
	UpsertUserPermission(ctx context.Context, up UserPermission) error
	DeleteUserPermission(ctx context.Context, userID, permissionID uuid.UUID, scope Scope) (bool, error)
}
