package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Ledger tracks rented units against the global ceiling. Reserve runs inside
// the caller's transaction so a rolled-back operation never leaks units.
type Ledger interface {
	State(ctx context.Context) (State, error)

	// Reserve checks rentedUnits + total against maxUnits with
	// overflow-checked arithmetic and applies the increment. The check and
	// increment share the caller's transaction and the engine's serialized
	// execution, making them one atomic step.
	Reserve(ctx context.Context, tx *gorm.DB, total uint64) (State, error)

	SetMaxUnits(ctx context.Context, max uint64) (uint64, error)
	SetDeprecationAt(ctx context.Context, at time.Time) (time.Time, error)
	SetPaused(ctx context.Context, paused bool) error
}

// SumUnits aggregates a batch with overflow checking.
func SumUnits(perIDUnits []uint64) (uint64, error) {
	var total uint64
	for _, units := range perIDUnits {
		next := total + units
		if next < total {
			return 0, ErrUnitsOverflow
		}
		total = next
	}
	return total, nil
}

// RangeTotal returns the id count and aggregate units for an inclusive
// [start, end] range.
func RangeTotal(start, end, unitsPerID uint64) (count uint64, total uint64, err error) {
	if end < start {
		return 0, 0, ErrInvalidRangeInput
	}
	count = end - start + 1
	if count == 0 {
		// end-start+1 wrapped: the range spans the whole id space.
		return 0, 0, ErrUnitsOverflow
	}
	if unitsPerID != 0 && count > ^uint64(0)/unitsPerID {
		return 0, 0, ErrUnitsOverflow
	}
	return count, count * unitsPerID, nil
}
