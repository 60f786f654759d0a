package auth

import "context"

type contextKey string

const actorKey contextKey = "actor"

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   string
	Role string
}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
