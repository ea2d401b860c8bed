package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/orgsync/internal/organization/domain"
)

func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	actor, _ := actorFromContext(c)

	org, err := s.organizationSvc.Create(c.Request.Context(), organizationdomain.CreateOrganizationRequest{
		Name:           req.Name,
		RegistryNumber: req.RegistryNumber,
		ContactEmail:   req.ContactEmail,
		CompanySize:    req.CompanySize,
		YearFounded:    req.YearFounded,
	}, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": org})
}

func (s *Server) GetOrganization(c *gin.Context) {
	org, err := s.organizationSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) GetOrganizationByRegistry(c *gin.Context) {
	org, err := s.organizationSvc.GetByRegistryNumber(c.Request.Context(), c.Param("registryNumber"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) SearchOrganizations(c *gin.Context) {
	req := organizationdomain.SearchRequest{Name: c.Query("name")}
	for field, dst := range map[string]*int{
		"year_founded": &req.YearFounded,
		"min_size":     &req.MinSize,
		"max_size":     &req.MaxSize,
		"page":         &req.Page,
		"size":         &req.Size,
	} {
		value, err := queryInt(c, field)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		*dst = value
	}

	result, err := s.organizationSvc.Search(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ListOrganizationUsers(c *gin.Context) {
	ids, err := s.organizationSvc.ListUsers(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, idsResponse{Data: ids})
}

func (s *Server) UpdateOrganizationStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	actor, _ := actorFromContext(c)

	org, err := s.organizationSvc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) DeleteOrganization(c *gin.Context) {
	actor, _ := actorFromContext(c)
	if err := s.organizationSvc.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
