package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Registry manages the permission catalog and roles.
type Registry struct {
	store Store
	now   func() time.Time
}

// NewRegistry creates a Registry.
func NewRegistry(store Store) *Registry {
	if store == nil {
		panic("rbac: store is required")
	}
	return &Registry{store: store, now: time.Now}
}

// CreatePermission adds a permission to the global catalog.
func (r *Registry) CreatePermission(ctx context.Context, name, description string) (*Permission, error) {
	name = strings.TrimSpace(name)
	if !ValidPermissionName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPermissionName, name)
	}
	p := &Permission{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.CreatePermission(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EnsurePermissions creates every missing permission in names. Existing ones are left alone.
func (r *Registry) EnsurePermissions(ctx context.Context, names ...string) error {
	for _, name := range names {
		_, err := r.store.PermissionByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrPermissionNotFound) {
			return err
		}
		if _, err := r.CreatePermission(ctx, name, ""); err != nil && !errors.Is(err, ErrPermissionExists) {
			return err
		}
	}
	return nil
}

// Permission returns the catalog entry for name.
func (r *Registry) Permission(ctx context.Context, name string) (*Permission, error) {
	return r.store.PermissionByName(ctx, name)
}

// Permissions returns the whole catalog.
func (r *Registry) Permissions(ctx context.Context) ([]Permission, error) {
	return r.store.ListPermissions(ctx)
}

// CreateRole creates a role. Pass uuid.Nil as tenantID for a global role.
func (r *Registry) CreateRole(ctx context.Context, name string, tag RoleTag, tenantID uuid.UUID) (*Role, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.Join(ErrInvalidRole, errors.New("role name is required"))
	}
	if !tag.Valid() {
		return nil, errors.Join(ErrInvalidRole, fmt.Errorf("unknown role tag %q", tag))
	}
	if tag == TagSuperAdmin && tenantID != uuid.Nil {
		return nil, errors.Join(ErrInvalidRole, errors.New("super_admin roles are global"))
	}
	role := &Role{
		ID:        uuid.New(),
		Name:      name,
		Tag:       tag,
		TenantID:  tenantID,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Role returns the role with the given id.
func (r *Registry) Role(ctx context.Context, id uuid.UUID) (*Role, error) {
	return r.store.GetRole(ctx, id)
}

// RolePermissions lists the role's grants and explicit denials.
func (r *Registry) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]RolePermission, error) {
	if _, err := r.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return r.store.ListRolePermissions(ctx, roleID)
}

// AssignRole sets a user's role without a delegation check. It is meant for
// provisioning, such as making the signing-up owner tenant_admin of the new
// tenant. User-initiated changes go through Guard.AssignRole.
func (r *Registry) AssignRole(ctx context.Context, userID, roleID, tenantID, assignedBy uuid.UUID) error {
	role, err := r.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if !role.AppliesTo(tenantID) {
		return fmt.Errorf("%w: role %s belongs to another tenant", ErrInvalidRole, role.ID)
	}
	return r.store.SetUserRole(ctx, UserRole{
		UserID:     userID,
		RoleID:     role.ID,
		TenantID:   tenantID,
		AssignedBy: assignedBy,
		AssignedAt: r.now().UTC(),
	})
}
