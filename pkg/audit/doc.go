// Package audit records who changed what in the governance engine.
//
// Every permission grant or revoke, role edit, role assignment, bootstrap,
// subscription change and reconciler transition produces an Event. Events are
// written through the Storage the Logger was built with; the Postgres store
// writes them in the same transaction as the change they describe, so an
// aborted change leaves no audit row behind.
//
//	log := audit.NewLogger(store, audit.WithUserIDExtractor(actorFromCtx))
//	err := log.Log(ctx, audit.ActionRoleAssigned,
//		audit.WithResource("user", userID.String()),
//		audit.WithMetadata("role_id", roleID.String()))
package audit
