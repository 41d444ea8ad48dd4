package domain

import (
	"context"
	"errors"
	"math/big"
	"time"
)

var (
	ErrInvalidDeprecationTimestamp = errors.New("invalid_deprecation_timestamp")
	ErrInvalidFeedURL              = errors.New("invalid_feed_url")
)

// Controller is the role-gated parameter surface. Every setter returns the
// previous value and records a Set<Parameter> event with both values.
// Setters stay available while paused and after deprecation; only the
// rent and credit paths are gated.
type Controller interface {
	// SetPrice changes the reference-currency unit price. Owner or treasurer.
	SetPrice(ctx context.Context, actor string, ref *big.Int) (*big.Int, error)

	// SetFixedPrice sets the bounds-checked override; zero disables it. Owner only.
	SetFixedPrice(ctx context.Context, actor string, v *big.Int) (*big.Int, error)

	// RefreshPrice forces an oracle refresh regardless of cache age. Owner or treasurer.
	RefreshPrice(ctx context.Context, actor string) error

	SetMaxUnits(ctx context.Context, actor string, max uint64) (uint64, error)
	SetDeprecationTimestamp(ctx context.Context, actor string, at time.Time) (time.Time, error)
	SetCacheDuration(ctx context.Context, actor string, d time.Duration) (time.Duration, error)
	SetMaxAge(ctx context.Context, actor string, d time.Duration) (time.Duration, error)
	SetMinAnswer(ctx context.Context, actor string, v *big.Int) (*big.Int, error)
	SetMaxAnswer(ctx context.Context, actor string, v *big.Int) (*big.Int, error)
	SetGracePeriod(ctx context.Context, actor string, d time.Duration) (time.Duration, error)
	SetVault(ctx context.Context, actor string, vault string) (string, error)
	SetPriceFeed(ctx context.Context, actor string, url string) error
	SetUptimeFeed(ctx context.Context, actor string, url string) error

	Pause(ctx context.Context, actor string) error
	Unpause(ctx context.Context, actor string) error
}
