package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/orgsync/internal/user/domain"
)

func (s *Server) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	actor, _ := actorFromContext(c)

	user, err := s.userSvc.Create(c.Request.Context(), userdomain.CreateUserRequest{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     req.Role,
	}, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) GetUser(c *gin.Context) {
	user, err := s.userSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) GetUserByEmail(c *gin.Context) {
	user, err := s.userSvc.GetByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) SearchUsers(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	size, err := queryInt(c, "size")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.userSvc.Search(c.Request.Context(), userdomain.SearchRequest{
		Name: c.Query("name"),
		Page: page,
		Size: size,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ListUserOrganizations(c *gin.Context) {
	ids, err := s.userSvc.ListOrganizations(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, idsResponse{Data: ids})
}

func (s *Server) UpdateUserStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	actor, _ := actorFromContext(c)

	user, err := s.userSvc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) DeleteUser(c *gin.Context) {
	actor, _ := actorFromContext(c)
	if err := s.userSvc.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
