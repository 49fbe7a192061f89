package shared

import (
	"context"
	"strings"
)

// SystemActor is recorded when no user is attached to the request.
const SystemActor = "sistema"

type actorContextKey struct{}

// ContextWithActor stores the acting user's name in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting user, falling back to SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
