package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgsync/internal/identity"
	obscontext "github.com/smallbiznis/orgsync/internal/observability/context"
)

// IdentityRequired trusts the gateway's X-User-Id / X-User-Role headers and
// places the caller on the request context.
func IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := identity.New(
			c.GetHeader(identity.HeaderUserID),
			c.GetHeader(identity.HeaderUserRole),
		)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := identity.WithActor(c.Request.Context(), actor)
		ctx = obscontext.WithActor(ctx, "user", actor.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (identity.Actor, bool) {
	return identity.FromContext(c.Request.Context())
}
