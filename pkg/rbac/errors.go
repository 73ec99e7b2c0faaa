package rbac

import "errors"

// Domain errors for RBAC operations.
var (
	// ErrForbidden is returned when a user does not hold the requested permission.
	ErrForbidden = errors.New("rbac.forbidden")

	// ErrAuthorityExceeded is returned when a grantor tries to grant or revoke
	// a permission they do not hold themselves. Nothing is written.
	ErrAuthorityExceeded = errors.New("rbac.authority_exceeded")

	// ErrRoleNotFound is returned when a role does not exist.
	ErrRoleNotFound = errors.New("rbac.role_not_found")

	// ErrPermissionNotFound is returned when a permission name is not in the catalog.
	ErrPermissionNotFound = errors.New("rbac.permission_not_found")

	// ErrPermissionExists is returned when creating a permission whose name is taken.
	ErrPermissionExists = errors.New("rbac.permission_exists")

	// ErrRoleNotAssigned is returned when a user has no role.
	ErrRoleNotAssigned = errors.New("rbac.role_not_assigned")

	// ErrGrantNotFound is returned when a role has no row for a permission.
	ErrGrantNotFound = errors.New("rbac.grant_not_found")

	// ErrOverrideNotFound is returned when revoking a per-user override that does not exist.
	ErrOverrideNotFound = errors.New("rbac.override_not_found")

	ErrInvalidPermissionName = errors.New("rbac.invalid_permission_name")
	ErrInvalidRole           = errors.New("rbac.invalid_role")
	ErrInvalidScope          = errors.New("rbac.invalid_scope")

	// ErrAlreadyBootstrapped is returned by Bootstrap once a privileged role holds any grant.
	ErrAlreadyBootstrapped = errors.New("rbac.already_bootstrapped")
)
