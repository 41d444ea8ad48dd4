package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	admindomain "github.com/capgrid/rentd/internal/admin/domain"
	"github.com/capgrid/rentd/internal/authorization"
	capacitydomain "github.com/capgrid/rentd/internal/capacity/domain"
	oracledomain "github.com/capgrid/rentd/internal/oracle/domain"
	pricingdomain "github.com/capgrid/rentd/internal/pricing/domain"
	rentaldomain "github.com/capgrid/rentd/internal/rental/domain"
	treasurydomain "github.com/capgrid/rentd/internal/treasury/domain"
)

// APIError is the typed envelope returned for every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Code }

var ErrNotFound = &APIError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "malformed request body"}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

// statusMap pairs each domain sentinel with its HTTP status. Every entry
// keeps the sentinel's snake_case text as the wire code so callers can
// distinguish "underfunded" from "no capacity" from "oracle down".
var statusMap = []struct {
	err    error
	status int
}{
	{rentaldomain.ErrInvalidAmount, http.StatusBadRequest},
	{rentaldomain.ErrInvalidBatchInput, http.StatusBadRequest},
	{rentaldomain.ErrInvalidPayment, http.StatusPaymentRequired},
	{rentaldomain.ErrContractDeprecated, http.StatusGone},
	{rentaldomain.ErrPaused, http.StatusServiceUnavailable},

	{capacitydomain.ErrExceedsCapacity, http.StatusConflict},
	{capacitydomain.ErrUnitsOverflow, http.StatusBadRequest},
	{capacitydomain.ErrInvalidRangeInput, http.StatusBadRequest},
	{capacitydomain.ErrStateUninitialized, http.StatusInternalServerError},

	{oracledomain.ErrInvalidPrice, http.StatusBadGateway},
	{oracledomain.ErrStaleAnswer, http.StatusBadGateway},
	{oracledomain.ErrIncompleteRound, http.StatusBadGateway},
	{oracledomain.ErrInvalidRoundTimestamp, http.StatusBadGateway},
	{oracledomain.ErrPriceOutOfBounds, http.StatusBadGateway},
	{oracledomain.ErrSequencerDown, http.StatusBadGateway},
	{oracledomain.ErrGracePeriodNotOver, http.StatusBadGateway},
	{oracledomain.ErrPriceUnavailable, http.StatusBadGateway},
	{oracledomain.ErrInvalidMinAnswer, http.StatusBadRequest},
	{oracledomain.ErrInvalidMaxAnswer, http.StatusBadRequest},
	{oracledomain.ErrInvalidMaxAge, http.StatusBadRequest},
	{oracledomain.ErrInvalidGracePeriod, http.StatusBadRequest},
	{oracledomain.ErrInvalidFeed, http.StatusBadRequest},

	{pricingdomain.ErrInvalidUnitPrice, http.StatusBadRequest},
	{pricingdomain.ErrInvalidFixedPrice, http.StatusBadRequest},
	{pricingdomain.ErrInvalidCacheDuration, http.StatusBadRequest},

	{treasurydomain.ErrInvalidPayment, http.StatusBadRequest},
	{treasurydomain.ErrInvalidVault, http.StatusBadRequest},
	{treasurydomain.ErrCallFailed, http.StatusBadGateway},

	{admindomain.ErrInvalidDeprecationTimestamp, http.StatusBadRequest},
	{admindomain.ErrInvalidFeedURL, http.StatusBadRequest},

	{authorization.ErrNotOwner, http.StatusForbidden},
	{authorization.ErrNotOperator, http.StatusForbidden},
	{authorization.ErrNotTreasurer, http.StatusForbidden},
	{authorization.ErrNotRoleAdmin, http.StatusForbidden},
	{authorization.ErrUnauthorized, http.StatusForbidden},
	{authorization.ErrInvalidRole, http.StatusBadRequest},
	{authorization.ErrInvalidPrincipal, http.StatusBadRequest},
}

// AbortWithError writes the typed envelope for err and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	for _, entry := range statusMap {
		if errors.Is(err, entry.err) {
			c.AbortWithStatusJSON(entry.status, gin.H{"error": &APIError{
				Status:  entry.status,
				Code:    entry.err.Error(),
				Message: entry.err.Error(),
			}})
			return
		}
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "internal error",
	}})
}
