package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type setValueRequest struct {
	Value string `json:"value"`
}

type setUintRequest struct {
	Value uint64 `json:"value"`
}

type setDurationRequest struct {
	Value string `json:"value"`
}

func parseDurationRequest(c *gin.Context) (time.Duration, bool) {
	var req setDurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return 0, false
	}
	d, err := time.ParseDuration(req.Value)
	if err != nil {
		AbortWithError(c, newValidationError("value", "invalid_duration", "value must be a Go duration string"))
		return 0, false
	}
	return d, true
}

func (s *Server) SetPrice(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	value, ok := parseWei(req.Value)
	if !ok {
		AbortWithError(c, newValidationError("value", "invalid_unit_price", "value must be a non-negative decimal string"))
		return
	}

	old, err := s.admin.SetPrice(c.Request.Context(), caller, value)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"old": old.String(), "new": value.String()}})
}

func (s *Server) SetFixedPrice(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	value, ok := parseWei(req.Value)
	if !ok {
		AbortWithError(c, newValidationError("value", "invalid_fixed_price", "value must be a non-negative decimal string"))
		return
	}

	old, err := s.admin.SetFixedPrice(c.Request.Context(), caller, value)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"old": old.String(), "new": value.String()}})
}

func (s *Server) RefreshPrice(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := s.admin.RefreshPrice(c.Request.Context(), caller); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) SetMaxUnits(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setUintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	old, err := s.admin.SetMaxUnits(c.Request.Context(), caller, req.Value)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"old": old, "new": req.Value}})
}

func (s *Server) SetDeprecationTimestamp(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	at, err := time.Parse(time.RFC3339, req.Value)
	if err != nil {
		AbortWithError(c, newValidationError("value", "invalid_timestamp", "value must be RFC3339"))
		return
	}

	old, err := s.admin.SetDeprecationTimestamp(c.Request.Context(), caller, at)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"old": old.UTC().Format(time.RFC3339),
		"new": at.UTC().Format(time.RFC3339),
	}})
}

func (s *Server) SetCacheDuration(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	d, ok := parseDurationRequest(c)
	if !ok {
		return
	}

	old, err := s.admin.SetCacheDuration(c.Request.Context(), caller, d)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"old": old.String(), "new": d.String()}})
}

func (s *Server) SetMaxAge(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	d, ok := parseDurationRequest(c)
	if !ok {
		return
	}

	old, err := s.admin.SetMaxAge(c.Request.Context(), caller, d)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"old": old.String(), "new": d.String()}})
}

func (s *Server) SetMinAnswer(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	value, ok := parseWei(req.Value)
	if !ok {
		AbortWithError(c, newValidationError("value", "invalid_min_answer", "value must be a non-negative decimal string"))
		return
	}

	old, err := s.admin.SetMinAnswer(c.Request.Context(), caller, value)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"old": old.String(), "new": value.String()}})
}

func (s *Server) SetMaxAnswer(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	value, ok := parseWei(req.Value)
	if !ok {
		AbortWithError(c, newValidationError("value", "invalid_max_answer", "value must be a non-negative decimal string"))
		return
	}

	old, err := s.admin.SetMaxAnswer(c.Request.Context(), caller, value)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"old": old.String(), "new": value.String()}})
}

func (s *Server) SetGracePeriod(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	d, ok := parseDurationRequest(c)
	if !ok {
		return
	}

	old, err := s.admin.SetGracePeriod(c.Request.Context(), caller, d)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"old": old.String(), "new": d.String()}})
}

func (s *Server) SetVault(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	old, err := s.admin.SetVault(c.Request.Context(), caller, req.Value)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"old": old, "new": req.Value}})
}

func (s *Server) SetPriceFeed(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.admin.SetPriceFeed(c.Request.Context(), caller, req.Value); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) SetUptimeFeed(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.admin.SetUptimeFeed(c.Request.Context(), caller, req.Value); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Pause(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := s.admin.Pause(c.Request.Context(), caller); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (s *Server) Unpause(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := s.admin.Unpause(c.Request.Context(), caller); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
