package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/restokit/pkg/audit"
)

// Store writes audit events. Inside RunInTx they commit or roll back with
// the change they describe.
func (s *Store) Store(ctx context.Context, events ...audit.Event) error {
	db := s.db(ctx)
	for _, e := range events {
		_, err := db.Exec(ctx, `
			INSERT INTO audit_events (id, tenant_id, user_id, action, resource, resource_id, result, error, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.TenantID, e.UserID, e.Action, e.Resource, e.ResourceID, e.Result, e.Error, e.Metadata, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("store audit event %s: %w", e.Action, err)
		}
	}
	return nil
}

// Query returns matching events, oldest first.
func (s *Store) Query(ctx context.Context, criteria audit.Criteria) ([]audit.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("tenant_id", criteria.TenantID)
	add("user_id", criteria.UserID)
	add("action", criteria.Action)
	add("resource", criteria.Resource)

	query := `SELECT id, tenant_id, user_id, action, resource, resource_id, result, error, metadata, created_at FROM audit_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if criteria.Limit > 0 {
		args = append(args, criteria.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return collect(rows, func(row pgx.Row) (audit.Event, error) {
		var e audit.Event
		err := row.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID,
			&e.Result, &e.Error, &e.Metadata, &e.CreatedAt)
		return e, err
	})
}
