package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bwmarrin/snowflake"
)

// DispatchConfig controls the outbox dispatch loop.
type DispatchConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BatchSize:    100,
		PollInterval: 2 * time.Second,
	}
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	defaults := DefaultDispatchConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	return c
}

// Sink receives dispatched events. The default sink only logs; deployments
// plug in an indexer-facing sink here.
type Sink interface {
	Deliver(ctx context.Context, eventType string, payload map[string]any) error
}

type logSink struct {
	log *zap.Logger
}

func (s logSink) Deliver(_ context.Context, eventType string, payload map[string]any) error {
	s.log.Info("event", zap.String("type", eventType), zap.Any("payload", payload))
	return nil
}

type DispatcherParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Sink   Sink           `optional:"true"`
	Config DispatchConfig `optional:"true"`
}

// Dispatcher drains the outbox, delivering events to the sink and marking
// them published.
type Dispatcher struct {
	db   *gorm.DB
	log  *zap.Logger
	sink Sink
	cfg  DispatchConfig
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	cfg := p.Config.withDefaults()
	sink := p.Sink
	log := p.Log.Named("events.dispatch")
	if sink == nil {
		sink = logSink{log: log}
	}
	return &Dispatcher{
		db:   p.DB,
		log:  log,
		sink: sink,
		cfg:  cfg,
	}
}

func (d *Dispatcher) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := d.RunOnce(); err != nil {
			d.log.Warn("event dispatch run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) RunOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := d.processBatch(ctx, d.cfg.BatchSize)
	return err
}

type outboxRow struct {
	ID        snowflake.ID
	EventType string
	Payload   datatypes.JSONMap
}

func (d *Dispatcher) processBatch(ctx context.Context, limit int) (int, error) {
	if d.db == nil || d.sink == nil {
		return 0, errors.New("dispatcher_unavailable")
	}
	if limit <= 0 {
		limit = d.cfg.BatchSize
	}

	var rows []outboxRow
	err := d.db.WithContext(ctx).Raw(
		`SELECT id, event_type, payload
		 FROM rental_events
		 WHERE published = false
		 ORDER BY created_at
		 LIMIT ?`,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, row := range rows {
		if err := d.sink.Deliver(ctx, row.EventType, row.Payload); err != nil {
			return delivered, err
		}
		if err := d.db.WithContext(ctx).Exec(
			`UPDATE rental_events SET published = true WHERE id = ?`,
			row.ID,
		).Error; err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}
