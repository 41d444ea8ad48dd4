package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/capgrid/rentd/internal/clock"
	"github.com/capgrid/rentd/internal/config"
	oracledomain "github.com/capgrid/rentd/internal/oracle/domain"
	pricingdomain "github.com/capgrid/rentd/internal/pricing/domain"
)

// scale converts a reference-currency rate into native base units
// (1e18 per whole native unit).
var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type ServiceParam struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
	Cache  oracledomain.Cache
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	cache oracledomain.Cache

	mu            sync.Mutex
	unitPriceRef  *big.Int
	fixedOverride *big.Int
	cacheDuration time.Duration
}

func NewService(p ServiceParam) pricingdomain.Engine {
	return &Service{
		log:           p.Log.Named("pricing.service"),
		clock:         p.Clock,
		cache:         p.Cache,
		unitPriceRef:  new(big.Int).Set(p.Config.Engine.UnitPriceRef),
		fixedOverride: big.NewInt(0),
		cacheDuration: p.Config.Engine.CacheDuration,
	}
}

func (s *Service) UnitPrice(ctx context.Context) (*big.Int, error) {
	return s.Price(ctx, 1)
}

func (s *Service) Price(ctx context.Context, units uint64) (*big.Int, error) {
	rate, err := s.EffectiveRate(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	ref := new(big.Int).Set(s.unitPriceRef)
	s.mu.Unlock()

	// One full-precision ceiling division; per-unit rounding would compound
	// across large batches.
	numerator := new(big.Int).Mul(ref, new(big.Int).SetUint64(units))
	numerator.Mul(numerator, scale)
	return divCeil(numerator, rate), nil
}

func (s *Service) EffectiveRate(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	override := new(big.Int).Set(s.fixedOverride)
	window := s.cacheDuration
	s.mu.Unlock()

	if override.Sign() != 0 {
		return override, nil
	}

	snap, primed := s.cache.Snapshot()
	if !primed || s.clock.Now().Sub(snap.UpdatedAt) > window {
		if err := s.cache.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return s.cache.Read()
}

func (s *Service) RefreshNow(ctx context.Context) error {
	return s.cache.Refresh(ctx)
}

func (s *Service) Snapshot() pricingdomain.Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	return pricingdomain.Config{
		UnitPriceRef:  new(big.Int).Set(s.unitPriceRef),
		FixedOverride: new(big.Int).Set(s.fixedOverride),
		CacheDuration: s.cacheDuration,
	}
}

func (s *Service) SetUnitPrice(price *big.Int) (*big.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, pricingdomain.ErrInvalidUnitPrice
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.unitPriceRef
	s.unitPriceRef = new(big.Int).Set(price)
	return old, nil
}

// SetFixedPrice installs an administrator override. Zero disables it; a
// nonzero value must sit inside the oracle answer bounds.
func (s *Service) SetFixedPrice(price *big.Int) (*big.Int, error) {
	if price == nil || price.Sign() < 0 {
		return nil, pricingdomain.ErrInvalidFixedPrice
	}
	if price.Sign() != 0 {
		bounds := s.cache.Validation()
		if price.Cmp(bounds.MinAnswer) < 0 || price.Cmp(bounds.MaxAnswer) > 0 {
			return nil, pricingdomain.ErrInvalidFixedPrice
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.fixedOverride
	s.fixedOverride = new(big.Int).Set(price)
	return old, nil
}

func (s *Service) SetCacheDuration(d time.Duration) (time.Duration, error) {
	if d < 0 {
		return 0, pricingdomain.ErrInvalidCacheDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cacheDuration
	s.cacheDuration = d
	return old, nil
}

// divCeil returns ceil(numerator / denominator) for positive denominators.
func divCeil(numerator, denominator *big.Int) *big.Int {
	quotient, remainder := new(big.Int).QuoRem(numerator, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}
