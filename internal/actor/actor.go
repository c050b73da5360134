package actor

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Role is the capability an authenticated user carries. Authentication
// itself is terminated upstream at the marketplace gateway; this service
// only consumes the resolved identity.
type Role string

const (
	RoleClient Role = "client"
	RolePro    Role = "pro"
	RoleAdmin  Role = "admin"
)

type Actor struct {
	UserID snowflake.ID
	Role   Role
}

func (a Actor) IsClient() bool { return a.Role == RoleClient }
func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}
