package domain

import (
	"context"
	"errors"
	"math/big"
	"time"
)

// Round is one point-in-time reading from an external feed. Answer carries
// the feed's fixed-point value (1e8 scale for the price feed; 0/1 status for
// the uptime feed, where 0 means up).
type Round struct {
	RoundID   uint64
	Answer    *big.Int
	StartedAt time.Time
	UpdatedAt time.Time
}

// Feed is a read-only external oracle. Calls are synchronous and fallible;
// the engine never retries — a failed read aborts the enclosing operation.
type Feed interface {
	LatestRound(ctx context.Context) (Round, error)
}

// CachedPrice is the last accepted price reading. Previous keeps the prior
// accepted value so operations sharing a sequence observe one price.
type CachedPrice struct {
	Current     *big.Int
	Previous    *big.Int
	UpdatedAt   time.Time
	UpdatedSeq  uint64
	RefreshedAt time.Time
}

// ValidationConfig bounds what the cache will accept from the feeds.
type ValidationConfig struct {
	MaxPriceAge time.Duration
	GracePeriod time.Duration
	MinAnswer   *big.Int
	MaxAnswer   *big.Int
}

var (
	ErrInvalidPrice          = errors.New("invalid_price")
	ErrStaleAnswer           = errors.New("stale_answer")
	ErrIncompleteRound       = errors.New("incomplete_round")
	ErrInvalidRoundTimestamp = errors.New("invalid_round_timestamp")
	ErrPriceOutOfBounds      = errors.New("price_out_of_bounds")
	ErrSequencerDown         = errors.New("sequencer_down")
	ErrGracePeriodNotOver    = errors.New("grace_period_not_over")
	ErrPriceUnavailable      = errors.New("price_unavailable")

	ErrInvalidMinAnswer = errors.New("invalid_min_answer")
	ErrInvalidMaxAnswer = errors.New("invalid_max_answer")
	ErrInvalidMaxAge      = errors.New("invalid_max_age")
	ErrInvalidGracePeriod = errors.New("invalid_grace_period")
	ErrInvalidFeed      = errors.New("invalid_feed")
)
