package service

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	admindomain "github.com/capgrid/rentd/internal/admin/domain"
	"github.com/capgrid/rentd/internal/authorization"
	capacitydomain "github.com/capgrid/rentd/internal/capacity/domain"
	"github.com/capgrid/rentd/internal/clock"
	"github.com/capgrid/rentd/internal/config"
	"github.com/capgrid/rentd/internal/events"
	oracledomain "github.com/capgrid/rentd/internal/oracle/domain"
	"github.com/capgrid/rentd/internal/oracle/feed"
	pricingdomain "github.com/capgrid/rentd/internal/pricing/domain"
	treasurydomain "github.com/capgrid/rentd/internal/treasury/domain"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  config.Config
	Pricing pricingdomain.Engine
	Oracle  oracledomain.Cache
	Ledger  capacitydomain.Ledger
	Custody treasurydomain.Custody
	Authz   authorization.Service
	Outbox  *events.Outbox
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	pricing pricingdomain.Engine
	oracle  oracledomain.Cache
	ledger  capacitydomain.Ledger
	custody treasurydomain.Custody
	authz   authorization.Service
	outbox  *events.Outbox

	priceFeedURL  string
	uptimeFeedURL string
}

func NewService(p ServiceParam) admindomain.Controller {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("admin.controller"),
		clock:         p.Clock,
		pricing:       p.Pricing,
		oracle:        p.Oracle,
		ledger:        p.Ledger,
		custody:       p.Custody,
		authz:         p.Authz,
		outbox:        p.Outbox,
		priceFeedURL:  p.Config.Engine.PriceFeedURL,
		uptimeFeedURL: p.Config.Engine.UptimeFeedURL,
	}
}

func (s *Service) requireOwner(ctx context.Context, actor string) error {
	return s.authz.Check(ctx, actor, authorization.RoleOwner)
}

func (s *Service) requireOwnerOrTreasurer(ctx context.Context, actor string) error {
	err := s.authz.Check(ctx, actor, authorization.RoleOwner)
	if err == nil {
		return nil
	}
	if !errors.Is(err, authorization.ErrNotOwner) {
		return err
	}
	if errTres := s.authz.Check(ctx, actor, authorization.RoleTreasurer); errTres == nil {
		return nil
	}
	return authorization.ErrUnauthorized
}

// emit publishes the parameter-change event and mirrors the new value into
// engine_params so the effective configuration survives a restart.
func (s *Service) emit(ctx context.Context, eventType, param, old, new string) {
	err := s.outbox.Publish(ctx, events.Event{
		Type:    eventType,
		Payload: events.ParamChangePayload{Old: old, New: new}.ToMap(),
	})
	if err != nil {
		s.log.Warn("parameter event not recorded", zap.String("event", eventType), zap.Error(err))
	}

	err = s.db.WithContext(ctx).Exec(
		`INSERT INTO engine_params (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		param, new, time.Now().UTC(),
	).Error
	if err != nil {
		s.log.Warn("parameter not mirrored", zap.String("param", param), zap.Error(err))
	}
}

func (s *Service) SetPrice(ctx context.Context, actor string, ref *big.Int) (*big.Int, error) {
	if err := s.requireOwnerOrTreasurer(ctx, actor); err != nil {
		return nil, err
	}
	old, err := s.pricing.SetUnitPrice(ref)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.EventSetPrice, "unit_price_usd", old.String(), ref.String())
	return old, nil
}

func (s *Service) SetFixedPrice(ctx context.Context, actor string, v *big.Int) (*big.Int, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return nil, err
	}
	old, err := s.pricing.SetFixedPrice(v)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.EventSetFixedEthUsdPrice, "fixed_eth_usd_price", old.String(), v.String())
	return old, nil
}

func (s *Service) RefreshPrice(ctx context.Context, actor string) error {
	if err := s.requireOwnerOrTreasurer(ctx, actor); err != nil {
		return err
	}
	return s.pricing.RefreshNow(ctx)
}

func (s *Service) SetMaxUnits(ctx context.Context, actor string, max uint64) (uint64, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return 0, err
	}
	old, err := s.ledger.SetMaxUnits(ctx, max)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, events.EventSetMaxUnits, "max_units", strconv.FormatUint(old, 10), strconv.FormatUint(max, 10))
	return old, nil
}

func (s *Service) SetDeprecationTimestamp(ctx context.Context, actor string, at time.Time) (time.Time, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return time.Time{}, err
	}
	if at.Before(s.clock.Now()) {
		return time.Time{}, admindomain.ErrInvalidDeprecationTimestamp
	}
	old, err := s.ledger.SetDeprecationAt(ctx, at)
	if err != nil {
		return time.Time{}, err
	}
	s.emit(ctx, events.EventSetDeprecationTimestamp, "deprecation_at",
		old.UTC().Format(time.RFC3339), at.UTC().Format(time.RFC3339))
	return old, nil
}

func (s *Service) SetCacheDuration(ctx context.Context, actor string, d time.Duration) (time.Duration, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return 0, err
	}
	old, err := s.pricing.SetCacheDuration(d)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, events.EventSetCacheDuration, "cache_duration", old.String(), d.String())
	return old, nil
}

func (s *Service) SetMaxAge(ctx context.Context, actor string, d time.Duration) (time.Duration, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return 0, err
	}
	old, err := s.oracle.SetMaxPriceAge(d)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, events.EventSetMaxAge, "max_price_age", old.String(), d.String())
	return old, nil
}

func (s *Service) SetMinAnswer(ctx context.Context, actor string, v *big.Int) (*big.Int, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return nil, err
	}
	old, err := s.oracle.SetMinAnswer(v)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.EventSetMinAnswer, "min_answer", old.String(), v.String())
	return old, nil
}

func (s *Service) SetMaxAnswer(ctx context.Context, actor string, v *big.Int) (*big.Int, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return nil, err
	}
	old, err := s.oracle.SetMaxAnswer(v)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.EventSetMaxAnswer, "max_answer", old.String(), v.String())
	return old, nil
}

func (s *Service) SetGracePeriod(ctx context.Context, actor string, d time.Duration) (time.Duration, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return 0, err
	}
	old, err := s.oracle.SetGracePeriod(d)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, events.EventSetGracePeriod, "grace_period", old.String(), d.String())
	return old, nil
}

func (s *Service) SetVault(ctx context.Context, actor string, vault string) (string, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return "", err
	}
	old, err := s.custody.SetVault(ctx, vault)
	if err != nil {
		return "", err
	}
	s.emit(ctx, events.EventSetVault, "vault", old, vault)
	return old, nil
}

func (s *Service) SetPriceFeed(ctx context.Context, actor string, url string) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	if url == "" {
		return admindomain.ErrInvalidFeedURL
	}
	if err := s.oracle.SetPriceFeed(feed.NewHTTPFeed(url)); err != nil {
		return err
	}
	s.emit(ctx, events.EventSetPriceFeed, "price_feed_url", s.priceFeedURL, url)
	s.priceFeedURL = url
	return nil
}

func (s *Service) SetUptimeFeed(ctx context.Context, actor string, url string) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	if url == "" {
		return admindomain.ErrInvalidFeedURL
	}
	if err := s.oracle.SetUptimeFeed(feed.NewHTTPFeed(url)); err != nil {
		return err
	}
	s.emit(ctx, events.EventSetUptimeFeed, "uptime_feed_url", s.uptimeFeedURL, url)
	s.uptimeFeedURL = url
	return nil
}

func (s *Service) Pause(ctx context.Context, actor string) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	if err := s.ledger.SetPaused(ctx, true); err != nil {
		return err
	}
	s.emit(ctx, events.EventPause, "paused", "false", "true")
	return nil
}

func (s *Service) Unpause(ctx context.Context, actor string) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	if err := s.ledger.SetPaused(ctx, false); err != nil {
		return err
	}
	s.emit(ctx, events.EventUnpause, "paused", "true", "false")
	return nil
}
