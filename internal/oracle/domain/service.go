package domain

import (
	"context"
	"math/big"
	"time"
)

// Cache validates feed readings and keeps the last accepted price. Refresh
// either fully succeeds or leaves the cache untouched.
type Cache interface {
	Refresh(ctx context.Context) error

	// Read returns the cached price for the clock's current sequence. When
	// the cache was refreshed at this very sequence, the previously accepted
	// value is served so that every caller sharing the sequence prices
	// identically.
	Read() (*big.Int, error)

	Snapshot() (CachedPrice, bool)
	Validation() ValidationConfig

	SetMaxPriceAge(age time.Duration) (time.Duration, error)
	SetGracePeriod(period time.Duration) (time.Duration, error)
	SetMinAnswer(min *big.Int) (*big.Int, error)
	SetMaxAnswer(max *big.Int) (*big.Int, error)
	SetPriceFeed(feed Feed) error
	SetUptimeFeed(feed Feed) error
}
