package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgsync/internal/authorization"
	"github.com/smallbiznis/orgsync/internal/identity"
	invitationdomain "github.com/smallbiznis/orgsync/internal/invitation/domain"
)

func (s *Server) CreateInvitation(c *gin.Context) {
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	actor, _ := actorFromContext(c)

	invitation, err := s.invitationSvc.Create(c.Request.Context(), invitationdomain.CreateInvitationRequest{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Message:        req.Message,
	}, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": invitation})
}

func (s *Server) AcceptInvitation(c *gin.Context) {
	s.respondToInvitation(c, s.invitationSvc.Accept)
}

func (s *Server) RejectInvitation(c *gin.Context) {
	s.respondToInvitation(c, s.invitationSvc.Reject)
}

// respondToInvitation loads the invitation first so the respond grant can be
// scoped to the invited user.
func (s *Server) respondToInvitation(
	c *gin.Context,
	transition func(ctx context.Context, id string, actor identity.Actor) (*invitationdomain.Invitation, error),
) {
	ctx := c.Request.Context()
	current, err := s.invitationSvc.GetByID(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	actor, err := s.authorize(c, authorization.ObjectInvitation, authorization.ActionRespond, current.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invitation, err := transition(ctx, current.ID, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invitation})
}

func (s *Server) GetInvitation(c *gin.Context) {
	invitation, err := s.invitationSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invitation})
}

func (s *Server) ListUserInvitations(c *gin.Context) {
	items, err := s.invitationSvc.ListByUser(c.Request.Context(), c.Param("userId"), c.Query("status"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse[invitationdomain.Invitation]{Data: items})
}

func (s *Server) ListOrganizationInvitations(c *gin.Context) {
	items, err := s.invitationSvc.ListByOrganization(c.Request.Context(), c.Param("orgId"), c.Query("status"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse[invitationdomain.Invitation]{Data: items})
}
