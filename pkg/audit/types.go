package audit

import (
	"fmt"
	"time"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultError   Result = "error"
)

// Actions recorded by the governance components.
const (
	ActionSubscriptionCreated     = "subscription.created"
	ActionSubscriptionCancelled   = "subscription.cancelled"
	ActionSubscriptionExpired     = "subscription.expired"
	ActionTrialExpired            = "tenant.trial_expired"
	ActionUserPermissionGranted   = "permission.user_granted"
	ActionUserPermissionRevoked   = "permission.user_revoked"
	ActionRolePermissionSet       = "permission.role_set"
	ActionRolePermissionRevoked   = "permission.role_revoked"
	ActionRoleAssigned            = "role.assigned"
	ActionDelegationDenied        = "permission.delegation_denied"
	ActionBootstrap               = "rbac.bootstrap"
	ActionBranchCreated           = "branch.created"
	ActionStagedFilesCompensation = "storage.staged_files_deleted"
)

// Event represents a single audit log entry
type Event struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	UserID     string         `json:"user_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Result     Result         `json:"result"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Validate checks if the event has all required fields
func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

// Criteria filters stored events.
type Criteria struct {
	TenantID string
	UserID   string
	Action   string
	Resource string
	Limit    int
}

// Matches reports whether e satisfies every non-empty field of c.
func (c Criteria) Matches(e Event) bool {
	return (c.TenantID == "" || c.TenantID == e.TenantID) &&
		(c.UserID == "" || c.UserID == e.UserID) &&
		(c.Action == "" || c.Action == e.Action) &&
		(c.Resource == "" || c.Resource == e.Resource)
}
