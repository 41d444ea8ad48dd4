package domain

import (
	"errors"
	"time"
)

// State is the global capacity counter. RentedUnits only ever grows; no
// release path exists.
type State struct {
	RentedUnits   uint64
	MaxUnits      uint64
	DeprecationAt time.Time
	Paused        bool
}

var (
	ErrExceedsCapacity = errors.New("exceeds_capacity")
	// ErrUnitsOverflow is an arithmetic overflow, not a capacity failure;
	// callers treat it as fatal rather than retriable.
	ErrUnitsOverflow      = errors.New("units_overflow")
	ErrStateUninitialized = errors.New("capacity_state_uninitialized")
	ErrInvalidRangeInput  = errors.New("invalid_range_input")
)
