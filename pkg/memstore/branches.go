package memstore

import (
	"cmp"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

func byCreated(a, b branch.Branch) int {
	return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Name, b.Name))
}

func (s *Store) CreateBranch(ctx context.Context, b *branch.Branch) error {
	defer s.lock(ctx)()
	if _, ok := s.st.tenants[b.TenantID]; !ok {
		return subscription.ErrTenantNotFound
	}
	s.st.branches[b.ID] = *b
	return nil
}

func (s *Store) GetBranch(ctx context.Context, id uuid.UUID) (*branch.Branch, error) {
	defer s.lock(ctx)()
	b, ok := s.st.branches[id]
	if !ok {
		return nil, branch.ErrBranchNotFound
	}
	return &b, nil
}

func (s *Store) CountBranches(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	defer s.lock(ctx)()
	var n int64
	for _, b := range s.st.branches {
		if b.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListBranches(ctx context.Context, tenantID uuid.UUID) ([]branch.Branch, error) {
	defer s.lock(ctx)()
	return sortedValues(s.st.branches,
		func(b branch.Branch) bool { return b.TenantID == tenantID },
		byCreated,
	), nil
}

func (s *Store) AllBranches(ctx context.Context) ([]branch.Branch, error) {
	defer s.lock(ctx)()
	return sortedValues(s.st.branches, func(branch.Branch) bool { return true }, byCreated), nil
}

func (s *Store) SetBranchOpen(ctx context.Context, id uuid.UUID, open bool, at time.Time) (bool, error) {
	defer s.lock(ctx)()
	b, ok := s.st.branches[id]
	if !ok {
		return false, branch.ErrBranchNotFound
	}
	if b.IsOpen == open {
		return false, nil
	}
	b.IsOpen = open
	b.UpdatedAt = at
	s.st.branches[id] = b
	return true, nil
}
