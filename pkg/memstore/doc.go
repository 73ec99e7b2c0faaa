// Package memstore is an in-memory implementation of every governance store:
// subscription.Store, quota.Store, rbac.Store, branch.Store, reconcile.Store,
// reconcile.BranchStore and audit.Storage.
//
// It backs the unit tests and the governor binary when STORE_BACKEND is
// "memory". RunInTx holds one store-wide mutex for the whole callback, which gives
// the same outcome as SERIALIZABLE isolation: concurrent check-then-act
// sequences run one after another, and the loser observes the winner's write.
package memstore

import (
	"github.com/dmitrymomot/restokit/pkg/audit"
	"github.com/dmitrymomot/restokit/pkg/branch"
	"github.com/dmitrymomot/restokit/pkg/quota"
	"github.com/dmitrymomot/restokit/pkg/rbac"
	"github.com/dmitrymomot/restokit/pkg/reconcile"
	"github.com/dmitrymomot/restokit/pkg/subscription"
)

var (
	_ subscription.Store    = (*Store)(nil)
	_ quota.Store           = (*Store)(nil)
	_ rbac.Store            = (*Store)(nil)
	_ branch.Store          = (*Store)(nil)
	_ reconcile.Store       = (*Store)(nil)
	_ reconcile.BranchStore = (*Store)(nil)
	_ audit.Storage         = (*Store)(nil)
	_ audit.Querier         = (*Store)(nil)
)
