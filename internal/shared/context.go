package shared

import "context"

// Actor is the caller identity supplied by the authentication collaborator.
type Actor struct {
	ID   int64
	Role string
}

// Valid reports whether the actor carries an identity.
func (a Actor) Valid() bool { return a.ID > 0 }

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.Valid()
}

// CurrentActor returns the context actor, or the zero Actor when none is set.
func CurrentActor(ctx context.Context) Actor {
	actor, _ := ActorFromContext(ctx)
	return actor
}
