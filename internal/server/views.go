package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetPrice(c *gin.Context) {
	raw := c.Query("units")
	units, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || units == 0 {
		AbortWithError(c, newValidationError("units", "invalid_units", "units must be a positive integer"))
		return
	}

	cost, err := s.pricing.Price(c.Request.Context(), units)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"units":    units,
		"cost_wei": cost.String(),
	}})
}

func (s *Server) GetUnitPrice(c *gin.Context) {
	cost, err := s.pricing.UnitPrice(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"unit_price_wei": cost.String(),
	}})
}

func (s *Server) GetCapacity(c *gin.Context) {
	state, err := s.ledger.State(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"rented_units":   state.RentedUnits,
		"max_units":      state.MaxUnits,
		"deprecation_at": state.DeprecationAt.UTC().Format(time.RFC3339),
		"paused":         state.Paused,
	}})
}

func (s *Server) GetTreasury(c *gin.Context) {
	state, err := s.custody.State(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"balance_wei": state.Balance.String(),
		"vault":       state.Vault,
	}})
}

func (s *Server) GetOracleSnapshot(c *gin.Context) {
	snapshot, primed := s.oracle.Snapshot()
	if !primed {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"primed": false}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"primed":       true,
		"current":      snapshot.Current.String(),
		"previous":     snapshot.Previous.String(),
		"updated_at":   snapshot.UpdatedAt.UTC().Format(time.RFC3339),
		"refreshed_at": snapshot.RefreshedAt.UTC().Format(time.RFC3339),
	}})
}
