package rbac

import (
	"context"

	"github.com/google/uuid"
)

// actorCtxKey is the context key for the acting user.
type actorCtxKey struct{}

// SetActorToContext stores the acting user's id in the context.
func SetActorToContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, userID)
}

// GetActorFromContext retrieves the acting user's id from the context.
func GetActorFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(actorCtxKey{}).(uuid.UUID)
	return id, ok
}

// ActorExtractor adapts the context actor for audit.WithUserIDExtractor.
func ActorExtractor(ctx context.Context) (string, bool) {
	id, ok := GetActorFromContext(ctx)
	if !ok {
		return "", false
	}
	return id.String(), true
}
