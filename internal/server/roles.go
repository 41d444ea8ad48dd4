package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/capgrid/rentd/internal/authorization"
)

type roleChangeRequest struct {
	Role      string `json:"role"`
	Principal string `json:"principal"`
}

func (s *Server) GrantRole(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req roleChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role := authorization.Role(strings.TrimSpace(req.Role))
	err := s.authz.GrantRole(c.Request.Context(), caller, role, strings.TrimSpace(req.Principal))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) RevokeRole(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req roleChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role := authorization.Role(strings.TrimSpace(req.Role))
	err := s.authz.RevokeRole(c.Request.Context(), caller, role, strings.TrimSpace(req.Principal))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) RenounceRole(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req roleChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role := authorization.Role(strings.TrimSpace(req.Role))
	if err := s.authz.RenounceRole(c.Request.Context(), caller, role); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
