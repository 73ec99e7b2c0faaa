// Package rbac resolves and guards permissions.
//
// The model has three layers. A global catalog of permissions (snake_case
// names such as manage_branches). Roles, global or owned by a tenant, that
// grant or deny catalog permissions. Per-user overrides that allow or deny a
// single permission in a tenant or in one branch.
//
// Resolver answers "may user U do P in scope S", most specific rule first:
// branch override, tenant override, role grant, deny.
//
// Guard performs every grant, revoke and role assignment on behalf of a
// grantor and refuses with ErrAuthorityExceeded when the grantor does not
// hold the permission in question. The check and the write run in one
// transaction. Revocations are checked the same way as grants. The only
// unchecked write is Bootstrap, which seeds the first super_admin role once
// and is always audited.
//
//	registry := rbac.NewRegistry(store)
//	resolver := rbac.NewResolver(store)
//	guard := rbac.NewGuard(store, resolver, rbac.WithAudit(auditLog))
//
//	if err := resolver.Authorize(ctx, userID, "manage_branches", rbac.TenantScope(tenantID)); err != nil {
//		return err // rbac.ErrForbidden
//	}
package rbac
