package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/pg"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

const branchColumns = `id, tenant_id, name, timezone, opens_at, closes_at, is_open, created_at, updated_at`

func scanBranch(row pgx.Row) (branch.Branch, error) {
	var (
		b             branch.Branch
		opens, closes int16
	)
	err := row.Scan(&b.ID, &b.TenantID, &b.Name, &b.Timezone, &opens, &closes, &b.IsOpen, &b.CreatedAt, &b.UpdatedAt)
	b.Window = branch.OperatingWindow{Opens: branch.TimeOfDay(opens), Closes: branch.TimeOfDay(closes)}
	return b, err
}

func (s *Store) CreateBranch(ctx context.Context, b *branch.Branch) error {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO branches (`+branchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.TenantID, b.Name, b.Timezone, int16(b.Window.Opens), int16(b.Window.Closes),
		b.IsOpen, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return subscription.ErrTenantNotFound
		}
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

func (s *Store) GetBranch(ctx context.Context, id uuid.UUID) (*branch.Branch, error) {
	b, err := scanBranch(s.db(ctx).QueryRow(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = $1`, id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, branch.ErrBranchNotFound
		}
		return nil, fmt.Errorf("get branch: %w", err)
	}
	return &b, nil
}

func (s *Store) CountBranches(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	if err := s.db(ctx).QueryRow(ctx,
		`SELECT count(*) FROM branches WHERE tenant_id = $1`, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count branches: %w", err)
	}
	return n, nil
}

func (s *Store) ListBranches(ctx context.Context, tenantID uuid.UUID) ([]branch.Branch, error) {
	rows, err := s.db(ctx).Query(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE tenant_id = $1 ORDER BY created_at, name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return collect(rows, scanBranch)
}

func (s *Store) AllBranches(ctx context.Context) ([]branch.Branch, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT `+branchColumns+` FROM branches ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return collect(rows, scanBranch)
}

// SetBranchOpen writes only when the flag differs.
func (s *Store) SetBranchOpen(ctx context.Context, id uuid.UUID, open bool, at time.Time) (bool, error) {
	tag, err := s.db(ctx).Exec(ctx, `
		UPDATE branches SET is_open = $2, updated_at = $3
		WHERE id = $1 AND is_open <> $2`,
		id, open, at)
	if err != nil {
		return false, fmt.Errorf("set branch open: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := s.GetBranch(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
