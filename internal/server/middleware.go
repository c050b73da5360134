package server

import (
	"strings"

	"github.com/UrrutyLabs/encuentraya-payments/internal/actor"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// ActorRequired resolves the caller identity injected by the gateway.
// Authentication is terminated upstream; an absent or malformed identity
// header means the request never passed the gateway.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		rawRole := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))
		if rawID == "" || rawRole == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := snowflake.ParseString(rawID)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		var role actor.Role
		switch rawRole {
		case string(actor.RoleClient):
			role = actor.RoleClient
		case string(actor.RolePro):
			role = actor.RolePro
		case string(actor.RoleAdmin):
			role = actor.RoleAdmin
		default:
			AbortWithError(c, ErrUnauthorized)
			return
		}

		act := actor.Actor{UserID: userID, Role: role}
		c.Request = c.Request.WithContext(actor.WithActor(c.Request.Context(), act))
		c.Next()
	}
}

func (s *Server) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		act, ok := actor.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		for _, role := range roles {
			if string(act.Role) == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

func actorFrom(c *gin.Context) (actor.Actor, bool) {
	return actor.FromContext(c.Request.Context())
}
