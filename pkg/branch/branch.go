package branch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBranchNotFound = errors.New("branch: branch not found")
	ErrInvalidBranch  = errors.New("branch: invalid branch")
	ErrInvalidWindow  = errors.New("branch: invalid operating window")
)

// PermissionManageBranches is required to create branches.
const PermissionManageBranches = "manage_branches"

// Branch is a restaurant location of a tenant.
type Branch struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Timezone  string // IANA name, e.g. Europe/Berlin
	Window    OperatingWindow
	IsOpen    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location loads the branch timezone, falling back to UTC when it is empty.
func (b Branch) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, errors.Join(ErrInvalidBranch, err)
	}
	return loc, nil
}

// Store persists branches.
type Store interface {
	CreateBranch(ctx context.Context, b *Branch) error
	GetBranch(ctx context.Context, id uuid.UUID) (*Branch, error)
	CountBranches(ctx context.Context, tenantID uuid.UUID) (int64, error)
	ListBranches(ctx context.Context, tenantID uuid.UUID) ([]Branch, error)
}
