package notify

import (
	"time"

	"github.com/google/uuid"
)

// Type represents the notification type/severity.
type Type string

const (
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
)

// Kind identifies the governance event that produced a notification.
type Kind string

const (
	KindSubscriptionExpired Kind = "subscription_expired"
	KindTrialExpired        Kind = "trial_expired"
	KindPermissionGranted   Kind = "permission_granted"
	KindPermissionRevoked   Kind = "permission_revoked"
	KindRoleAssigned        Kind = "role_assigned"
)

// Notification is a message addressed to a tenant or a single user.
// UserID is uuid.Nil for tenant-wide notifications.
type Notification struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Type      Type           `json:"type"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	UserID    uuid.UUID      `json:"user_id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// New builds a notification with a fresh id and timestamp.
func New(kind Kind, typ Type, tenantID, userID uuid.UUID, title, message string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Type:      typ,
		TenantID:  tenantID,
		UserID:    userID,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// With returns a copy of n with key set in Data.
func (n Notification) With(key string, value any) Notification {
	data := make(map[string]any, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	data[key] = value
	n.Data = data
	return n
}
