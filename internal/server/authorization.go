package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgsync/internal/identity"
)

// authorize checks the caller against the role policy. ownerID is the user the
// target belongs to, or "" when ownership does not apply.
func (s *Server) authorize(c *gin.Context, object, action, ownerID string) (identity.Actor, error) {
	actor, ok := actorFromContext(c)
	if !ok {
		return identity.Actor{}, identity.ErrUnauthorized
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action, ownerID); err != nil {
		return identity.Actor{}, err
	}
	return actor, nil
}

// authorizeAction gates routes whose decision does not depend on the target.
func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.authorize(c, object, action, ""); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeOwner gates routes whose target user id is the :param path value.
func (s *Server) authorizeOwner(object, action, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.authorize(c, object, action, c.Param(param)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
