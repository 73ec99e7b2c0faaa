package branch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/logger"
	"github.com/dmitrymomot/restokit/pkg/plans"
	"github.com/dmitrymomot/restokit/pkg/quota"
	"github.com/dmitrymomot/restokit/pkg/rbac"
)

// Authorizer checks a user's permission.
type Authorizer interface {
	Authorize(ctx context.Context, userID uuid.UUID, permission string, scope rbac.Scope) error
}

// Reserver runs a write under a quota reservation.
type Reserver interface {
	Reserve(ctx context.Context, tenantID uuid.UUID, key plans.Key, delta decimal.Decimal, act func(ctx context.Context) error) (quota.Result, error)
}

// Counter measures max_branches usage from branch rows.
func Counter(store Store) quota.Counter {
	return func(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
		n, err := store.CountBranches(ctx, tenantID)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(n), nil
	}
}

// Service creates branches: authorize, then reserve quota and insert atomically.
type Service struct {
	store  Store
	authz  Authorizer
	quota  Reserver
	audit  *audit.Logger
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAudit records branch creation through a.
func WithAudit(a *audit.Logger) Option {
	return func(s *Service) { s.audit = a }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a branch Service.
func NewService(store Store, authz Authorizer, reserver Reserver, opts ...Option) *Service {
	if store == nil || authz == nil || reserver == nil {
		panic("branch: store, authorizer and quota reserver are required")
	}
	s := &Service{
		store:  store,
		authz:  authz,
		quota:  reserver,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams describes a new branch. Opens and Closes are "HH:MM".
type CreateParams struct {
	TenantID uuid.UUID
	Name     string
	Timezone string
	Opens    string
	Closes   string
}

// Create adds a branch for the tenant when actorID holds manage_branches
// and the plan's max_branches leaves room.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, p CreateParams) (*Branch, error) {
	b, err := s.build(p)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actorID, PermissionManageBranches, rbac.TenantScope(p.TenantID)); err != nil {
		return nil, err
	}

	_, err = s.quota.Reserve(ctx, p.TenantID, plans.MaxBranches, decimal.NewFromInt(1), func(ctx context.Context) error {
		if err := s.store.CreateBranch(ctx, b); err != nil {
			return err
		}
		if s.audit == nil {
			return nil
		}
		return s.audit.Log(ctx, audit.ActionBranchCreated,
			audit.WithTenant(b.TenantID.String()),
			audit.WithActor(actorID.String()),
			audit.WithResource("branch", b.ID.String()))
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "branch created",
		logger.TenantID(b.TenantID),
		logger.BranchID(b.ID),
		logger.UserID(actorID))
	return b, nil
}

func (s *Service) build(p CreateParams) (*Branch, error) {
	if p.TenantID == uuid.Nil {
		return nil, errors.Join(ErrInvalidBranch, errors.New("tenant id is required"))
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, errors.Join(ErrInvalidBranch, errors.New("name is required"))
	}
	opens, err := ParseTimeOfDay(p.Opens)
	if err != nil {
		return nil, err
	}
	closes, err := ParseTimeOfDay(p.Closes)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	b := &Branch{
		ID:        uuid.New(),
		TenantID:  p.TenantID,
		Name:      name,
		Timezone:  p.Timezone,
		Window:    OperatingWindow{Opens: opens, Closes: closes},
		CreatedAt: now,
		UpdatedAt: now,
	}
	loc, err := b.Location()
	if err != nil {
		return nil, err
	}
	b.IsOpen = b.Window.IsOpenAt(now, loc)
	return b, nil
}

// Get returns a branch by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Branch, error) {
	return s.store.GetBranch(ctx, id)
}

// List returns the tenant's branches.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Branch, error) {
	return s.store.ListBranches(ctx, tenantID)
}
