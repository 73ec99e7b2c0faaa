package rbac

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// RoleTag classifies a role.
type RoleTag string

const (
	TagSuperAdmin  RoleTag = "super_admin"
	TagTenantAdmin RoleTag = "tenant_admin"
	TagStaff       RoleTag = "staff"
	TagCustomer    RoleTag = "customer"
)

// Valid reports whether t is a known role tag.
func (t RoleTag) Valid() bool {
	switch t {
	case TagSuperAdmin, TagTenantAdmin, TagStaff, TagCustomer:
		return true
	}
	return false
}

// Role groups permission grants. TenantID is uuid.Nil for global roles.
type Role struct {
	ID        uuid.UUID
	Name      string
	Tag       RoleTag
	TenantID  uuid.UUID
	CreatedAt time.Time
}

// IsGlobal reports whether the role applies across tenants.
func (r Role) IsGlobal() bool { return r.TenantID == uuid.Nil }

// AppliesTo reports whether the role may grant anything inside tenantID.
func (r Role) AppliesTo(tenantID uuid.UUID) bool {
	return r.IsGlobal() || r.TenantID == tenantID
}

// Permission is an entry of the global permission catalog.
type Permission struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

var permissionName = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$`)

// ValidPermissionName reports whether name is snake_case, like manage_branches.
func ValidPermissionName(name string) bool {
	return len(name) <= 100 && permissionName.MatchString(name)
}

// RolePermission is a role-level grant or explicit denial.
type RolePermission struct {
	RoleID         uuid.UUID
	PermissionID   uuid.UUID
	PermissionName string
	Granted        bool
	UpdatedBy      uuid.UUID
	UpdatedAt      time.Time
}

// UserRole links a user to their single active role.
type UserRole struct {
	UserID     uuid.UUID
	RoleID     uuid.UUID
	TenantID   uuid.UUID
	AssignedBy uuid.UUID
	AssignedAt time.Time
}

// ScopeKind is the level a per-user override applies at.
type ScopeKind string

const (
	ScopeTenant ScopeKind = "tenant"
	ScopeBranch ScopeKind = "branch"
)

// Scope is the boundary a permission is checked or overridden in.
// BranchID is uuid.Nil for tenant-wide scope.
type Scope struct {
	TenantID uuid.UUID
	BranchID uuid.UUID
}

// TenantScope returns a tenant-wide scope.
func TenantScope(tenantID uuid.UUID) Scope { return Scope{TenantID: tenantID} }

// BranchScope returns a scope limited to one branch.
func BranchScope(tenantID, branchID uuid.UUID) Scope {
	return Scope{TenantID: tenantID, BranchID: branchID}
}

// Kind returns the scope level.
func (s Scope) Kind() ScopeKind {
	if s.BranchID != uuid.Nil {
		return ScopeBranch
	}
	return ScopeTenant
}

// ID returns the identifier of the scope's own level.
func (s Scope) ID() uuid.UUID {
	if s.BranchID != uuid.Nil {
		return s.BranchID
	}
	return s.TenantID
}

// Tenant returns the tenant-wide scope enclosing s.
func (s Scope) Tenant() Scope { return Scope{TenantID: s.TenantID} }

// Valid reports whether s names a tenant.
func (s Scope) Valid() bool { return s.TenantID != uuid.Nil }

// UserPermission is a per-user override of a role grant in one scope.
type UserPermission struct {
	UserID         uuid.UUID
	PermissionID   uuid.UUID
	PermissionName string
	Scope          Scope
	Granted        bool
	GrantedBy      uuid.UUID
	UpdatedAt      time.Time
}
