// Package branch is the branch-creation collaborator of the governance
// engine: it authorizes the actor, reserves max_branches quota and inserts
// the branch in one transaction. It also owns operating windows, which the
// hourly reconciler uses to flip branches open and closed.
package branch
