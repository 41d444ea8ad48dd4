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
	"github.com/capgrid/rentd/internal/observability/metrics"
	oracledomain "github.com/capgrid/rentd/internal/oracle/domain"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	PriceFeed  oracledomain.Feed `name:"price_feed"`
	UptimeFeed oracledomain.Feed `name:"uptime_feed"`
	Metrics    *metrics.EngineMetrics `optional:"true"`
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock

	mu         sync.Mutex
	priceFeed  oracledomain.Feed
	uptimeFeed oracledomain.Feed
	validation oracledomain.ValidationConfig
	cached     oracledomain.CachedPrice
	primed     bool

	metrics *metrics.EngineMetrics
}

func NewService(p ServiceParam) oracledomain.Cache {
	return &Service{
		log:        p.Log.Named("oracle.cache"),
		clock:      p.Clock,
		priceFeed:  p.PriceFeed,
		uptimeFeed: p.UptimeFeed,
		validation: oracledomain.ValidationConfig{
			MaxPriceAge: p.Config.Engine.MaxPriceAge,
			GracePeriod: p.Config.Engine.GracePeriod,
			MinAnswer:   new(big.Int).Set(p.Config.Engine.MinAnswer),
			MaxAnswer:   new(big.Int).Set(p.Config.Engine.MaxAnswer),
		},
		metrics: p.Metrics,
	}
}

// Refresh reads both feeds, validates, and only then mutates the cache.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(ctx); err != nil {
		s.metrics.IncOracleRefresh("failure")
		return err
	}
	s.metrics.IncOracleRefresh("success")
	return nil
}

func (s *Service) refreshLocked(ctx context.Context) error {
	now := s.clock.Now()

	if err := s.checkUptime(ctx, now); err != nil {
		return err
	}

	value, err := s.readPrice(ctx, now)
	if err != nil {
		return err
	}

	prev := s.cached.Current
	if prev == nil {
		// First accepted reading: no prior window exists, so same-sequence
		// reads fall through to the fresh value.
		prev = value
	}
	s.cached = oracledomain.CachedPrice{
		Current:     value,
		Previous:    prev,
		UpdatedAt:   now,
		UpdatedSeq:  s.clock.Sequence(),
		RefreshedAt: now,
	}
	s.primed = true

	s.log.Debug("price cache refreshed",
		zap.String("price", value.String()),
		zap.Time("at", now),
		zap.Uint64("seq", s.cached.UpdatedSeq),
	)
	return nil
}

func (s *Service) checkUptime(ctx context.Context, now time.Time) error {
	round, err := s.uptimeFeed.LatestRound(ctx)
	if err != nil {
		return err
	}
	if round.RoundID == 0 {
		return oracledomain.ErrIncompleteRound
	}
	if round.Answer == nil || round.Answer.Sign() != 0 {
		return oracledomain.ErrSequencerDown
	}
	// StartedAt marks the last status change; readings are not trusted until
	// the grace period has fully elapsed since restoration.
	if now.Sub(round.StartedAt) <= s.validation.GracePeriod {
		return oracledomain.ErrGracePeriodNotOver
	}
	return nil
}

func (s *Service) readPrice(ctx context.Context, now time.Time) (*big.Int, error) {
	round, err := s.priceFeed.LatestRound(ctx)
	if err != nil {
		return nil, err
	}
	if round.RoundID == 0 {
		return nil, oracledomain.ErrIncompleteRound
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, oracledomain.ErrInvalidPrice
	}
	if round.UpdatedAt.After(now) {
		return nil, oracledomain.ErrInvalidRoundTimestamp
	}
	if now.Sub(round.UpdatedAt) > s.validation.MaxPriceAge {
		return nil, oracledomain.ErrStaleAnswer
	}
	if round.Answer.Cmp(s.validation.MinAnswer) < 0 || round.Answer.Cmp(s.validation.MaxAnswer) > 0 {
		return nil, oracledomain.ErrPriceOutOfBounds
	}
	return new(big.Int).Set(round.Answer), nil
}

func (s *Service) Read() (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		return nil, oracledomain.ErrPriceUnavailable
	}
	if s.cached.UpdatedSeq == s.clock.Sequence() && s.cached.Previous != nil {
		return new(big.Int).Set(s.cached.Previous), nil
	}
	return new(big.Int).Set(s.cached.Current), nil
}

func (s *Service) Snapshot() (oracledomain.CachedPrice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		return oracledomain.CachedPrice{}, false
	}
	snap := s.cached
	snap.Current = new(big.Int).Set(s.cached.Current)
	snap.Previous = new(big.Int).Set(s.cached.Previous)
	return snap, true
}

func (s *Service) Validation() oracledomain.ValidationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return oracledomain.ValidationConfig{
		MaxPriceAge: s.validation.MaxPriceAge,
		GracePeriod: s.validation.GracePeriod,
		MinAnswer:   new(big.Int).Set(s.validation.MinAnswer),
		MaxAnswer:   new(big.Int).Set(s.validation.MaxAnswer),
	}
}

func (s *Service) SetMaxPriceAge(age time.Duration) (time.Duration, error) {
	if age <= 0 {
		return 0, oracledomain.ErrInvalidMaxAge
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.validation.MaxPriceAge
	s.validation.MaxPriceAge = age
	return old, nil
}

func (s *Service) SetGracePeriod(period time.Duration) (time.Duration, error) {
	if period < 0 {
		return 0, oracledomain.ErrInvalidGracePeriod
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.validation.GracePeriod
	s.validation.GracePeriod = period
	return old, nil
}

func (s *Service) SetMinAnswer(min *big.Int) (*big.Int, error) {
	if min == nil || min.Sign() <= 0 {
		return nil, oracledomain.ErrInvalidMinAnswer
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if min.Cmp(s.validation.MaxAnswer) >= 0 {
		return nil, oracledomain.ErrInvalidMinAnswer
	}
	old := s.validation.MinAnswer
	s.validation.MinAnswer = new(big.Int).Set(min)
	return old, nil
}

func (s *Service) SetMaxAnswer(max *big.Int) (*big.Int, error) {
	if max == nil || max.Sign() <= 0 {
		return nil, oracledomain.ErrInvalidMaxAnswer
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if max.Cmp(s.validation.MinAnswer) <= 0 {
		return nil, oracledomain.ErrInvalidMaxAnswer
	}
	old := s.validation.MaxAnswer
	s.validation.MaxAnswer = new(big.Int).Set(max)
	return old, nil
}

func (s *Service) SetPriceFeed(feed oracledomain.Feed) error {
	if feed == nil {
		return oracledomain.ErrInvalidFeed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.priceFeed = feed
	return nil
}

func (s *Service) SetUptimeFeed(feed oracledomain.Feed) error {
	if feed == nil {
		return oracledomain.ErrInvalidFeed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uptimeFeed = feed
	return nil
}
