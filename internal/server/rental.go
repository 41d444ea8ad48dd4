package server

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	obscontext "github.com/capgrid/rentd/internal/observability/context"
	rentaldomain "github.com/capgrid/rentd/internal/rental/domain"
)

// parseWei reads a decimal base-unit amount from its wire form.
func parseWei(raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}

func requireCaller(c *gin.Context) (string, bool) {
	caller := obscontext.CallerFromGin(c)
	if caller == "" {
		AbortWithError(c, newValidationError("caller", "missing_caller", "X-Caller header is required"))
		return "", false
	}
	return caller, true
}

type rentRequest struct {
	ID      uint64 `json:"id"`
	Units   uint64 `json:"units"`
	Payment string `json:"payment_wei"`
}

type allocationResponse struct {
	OpID        string `json:"op_id"`
	Units       uint64 `json:"units"`
	CostWei     string `json:"cost_wei"`
	RefundWei   string `json:"refund_wei"`
	RentedUnits uint64 `json:"rented_units"`
	MaxUnits    uint64 `json:"max_units"`
}

func toAllocationResponse(res rentaldomain.Result) allocationResponse {
	return allocationResponse{
		OpID:        res.OpID,
		Units:       res.Units,
		CostWei:     res.Cost.String(),
		RefundWei:   res.Refund.String(),
		RentedUnits: res.RentedUnits,
		MaxUnits:    res.MaxUnits,
	}
}

func (s *Server) Rent(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req rentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	payment, ok := parseWei(req.Payment)
	if !ok {
		AbortWithError(c, newValidationError("payment_wei", "invalid_payment", "payment_wei must be a non-negative decimal string"))
		return
	}

	res, err := s.gateway.Rent(c.Request.Context(), rentaldomain.RentRequest{
		Buyer:   caller,
		ID:      req.ID,
		Units:   req.Units,
		Payment: payment,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toAllocationResponse(res)})
}

type batchRentRequest struct {
	IDs     []uint64 `json:"ids"`
	Units   []uint64 `json:"units"`
	Payment string   `json:"payment_wei"`
}

func (s *Server) BatchRent(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req batchRentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	payment, ok := parseWei(req.Payment)
	if !ok {
		AbortWithError(c, newValidationError("payment_wei", "invalid_payment", "payment_wei must be a non-negative decimal string"))
		return
	}

	res, err := s.gateway.BatchRent(c.Request.Context(), rentaldomain.BatchRentRequest{
		Buyer:   caller,
		IDs:     req.IDs,
		Units:   req.Units,
		Payment: payment,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toAllocationResponse(res)})
}

type creditRequest struct {
	ID    uint64 `json:"id"`
	Units uint64 `json:"units"`
}

func (s *Server) Credit(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.gateway.Credit(c.Request.Context(), caller, req.ID, req.Units)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toAllocationResponse(res)})
}

type batchCreditRequest struct {
	IDs   []uint64 `json:"ids"`
	Units uint64   `json:"units"`
}

func (s *Server) BatchCredit(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req batchCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.gateway.BatchCredit(c.Request.Context(), caller, req.IDs, req.Units)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toAllocationResponse(res)})
}

type continuousCreditRequest struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Units uint64 `json:"units"`
}

func (s *Server) ContinuousCredit(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req continuousCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.gateway.ContinuousCredit(c.Request.Context(), caller, req.Start, req.End, req.Units)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toAllocationResponse(res)})
}

type withdrawRequest struct {
	Amount string `json:"amount_wei"`
}

func (s *Server) Withdraw(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	amount, ok := parseWei(req.Amount)
	if !ok {
		AbortWithError(c, newValidationError("amount_wei", "invalid_amount", "amount_wei must be a non-negative decimal string"))
		return
	}

	w, err := s.gateway.Withdraw(c.Request.Context(), caller, amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": w})
}
