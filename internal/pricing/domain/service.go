package domain

import (
	"context"
	"errors"
	"math/big"
	"time"
)

// Config is the pricing parameter set. UnitPriceRef and FixedOverride are
// 1e8-scale reference-currency values; a zero FixedOverride disables the
// override and restores oracle-driven pricing.
type Config struct {
	UnitPriceRef  *big.Int
	FixedOverride *big.Int
	CacheDuration time.Duration
}

// Engine converts the reference-currency unit price into native cost using
// the cached oracle rate.
type Engine interface {
	// UnitPrice returns the native cost of a single unit, rounded up.
	UnitPrice(ctx context.Context) (*big.Int, error)

	// Price returns the native cost of units as one full-precision ceiling
	// division, never units x UnitPrice.
	Price(ctx context.Context, units uint64) (*big.Int, error)

	// EffectiveRate exposes the rate Price would use right now, refreshing
	// the cache when the window has lapsed.
	EffectiveRate(ctx context.Context) (*big.Int, error)

	// RefreshNow forces an oracle refresh regardless of cache age.
	RefreshNow(ctx context.Context) error

	Snapshot() Config

	SetUnitPrice(price *big.Int) (*big.Int, error)
	SetFixedPrice(price *big.Int) (*big.Int, error)
	SetCacheDuration(d time.Duration) (time.Duration, error)
}

var (
	ErrInvalidUnitPrice     = errors.New("invalid_unit_price")
	ErrInvalidFixedPrice    = errors.New("invalid_fixed_price")
	ErrInvalidCacheDuration = errors.New("invalid_cache_duration")
)
