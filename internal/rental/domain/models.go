package domain

import (
	"errors"
	"math/big"
	"time"
)

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidBatchInput  = errors.New("invalid_batch_input")
	ErrInvalidPayment     = errors.New("invalid_payment")
	ErrContractDeprecated = errors.New("contract_deprecated")
	ErrPaused             = errors.New("paused")
)

// Kind distinguishes paid rentals from operator credits in the ledger.
type Kind string

const (
	KindRent   Kind = "rent"
	KindCredit Kind = "credit"
)

// RentRequest is a paid allocation for a single id. Payment is the attached
// native amount in base units.
type RentRequest struct {
	Buyer   string
	ID      uint64
	Units   uint64
	Payment *big.Int
}

// BatchRentRequest allocates per-id unit counts in one paid operation.
// Zero-unit entries are valid but contribute nothing to cost or events.
type BatchRentRequest struct {
	Buyer   string
	IDs     []uint64
	Units   []uint64
	Payment *big.Int
}

// Result reports the outcome of a gateway allocation. Cost and Refund are
// zero for credit operations.
type Result struct {
	OpID        string
	Units       uint64
	Cost        *big.Int
	Refund      *big.Int
	RentedUnits uint64
	MaxUnits    uint64
}

// Reservation is one persisted (id, units) allocation. CostWei holds the
// operation's aggregate cost; rows sharing an OpID share it.
type Reservation struct {
	ID        string    `json:"id"`
	OpID      string    `json:"op_id"`
	RentedID  uint64    `json:"rented_id"`
	Units     uint64    `json:"units"`
	Buyer     string    `json:"buyer"`
	Kind      Kind      `json:"kind"`
	CostWei   string    `json:"cost_wei"`
	CreatedAt time.Time `json:"created_at"`
}
