package events

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOutbox(t *testing.T) (*Outbox, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(
		`CREATE TABLE IF NOT EXISTS rental_events (
			id BIGINT PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload TEXT,
			dedupe_key TEXT UNIQUE,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)`,
	).Error; err != nil {
		t.Fatalf("create rental_events: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return NewOutbox(db, node), db
}

func countEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Raw(`SELECT COUNT(*) FROM rental_events`).Scan(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestPublishDeduplicatesByKey(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()

	event := Event{
		Type:      EventRent,
		Payload:   RentPayload{Buyer: "buyer-1", ID: 7, Units: 1}.ToMap(),
		DedupeKey: "rent:op-1:7",
	}
	if err := outbox.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := outbox.Publish(ctx, event); err != nil {
		t.Fatalf("duplicate publish must be silent: %v", err)
	}
	if n := countEvents(t, db); n != 1 {
		t.Fatalf("expected 1 event, got %d", n)
	}
}

func TestPublishWithoutKeyNeverCollapses(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := outbox.Publish(ctx, Event{
			Type:    EventSetPrice,
			Payload: ParamChangePayload{Old: "1", New: "2"}.ToMap(),
		})
		if err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if n := countEvents(t, db); n != 3 {
		t.Fatalf("expected 3 events, got %d", n)
	}
}

func TestPublishTxRollsBackWithTransaction(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := outbox.PublishTx(ctx, tx, Event{
			Type:    EventRent,
			Payload: RentPayload{Buyer: "buyer-1", ID: 1, Units: 1}.ToMap(),
		}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	if err == nil {
		t.Fatalf("expected rollback error")
	}
	if n := countEvents(t, db); n != 0 {
		t.Fatalf("rolled-back event must not persist, got %d", n)
	}
}

type recordingSink struct {
	delivered []string
	failAfter int
}

func (s *recordingSink) Deliver(_ context.Context, eventType string, _ map[string]any) error {
	if s.failAfter > 0 && len(s.delivered) >= s.failAfter {
		return gorm.ErrInvalidData
	}
	s.delivered = append(s.delivered, eventType)
	return nil
}

func TestDispatcherMarksDeliveredEventsPublished(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := outbox.Publish(ctx, Event{Type: EventRent}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	sink := &recordingSink{}
	dispatcher := NewDispatcher(DispatcherParams{
		DB:     db,
		Log:    zap.NewNop(),
		Sink:   sink,
		Config: DispatchConfig{BatchSize: 10, PollInterval: time.Second},
	})
	if err := dispatcher.RunOnce(); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(sink.delivered) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(sink.delivered))
	}

	var unpublished int64
	if err := db.Raw(`SELECT COUNT(*) FROM rental_events WHERE published = false`).Scan(&unpublished).Error; err != nil {
		t.Fatalf("count unpublished: %v", err)
	}
	if unpublished != 0 {
		t.Fatalf("expected all published, %d left", unpublished)
	}
}

func TestDispatcherStopsAtSinkFailure(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := outbox.Publish(ctx, Event{Type: EventRent}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	sink := &recordingSink{failAfter: 1}
	dispatcher := NewDispatcher(DispatcherParams{
		DB:     db,
		Log:    zap.NewNop(),
		Sink:   sink,
		Config: DispatchConfig{BatchSize: 10, PollInterval: time.Second},
	})
	if err := dispatcher.RunOnce(); err == nil {
		t.Fatalf("expected sink failure to surface")
	}

	// Undelivered rows stay queued for the next run.
	var unpublished int64
	if err := db.Raw(`SELECT COUNT(*) FROM rental_events WHERE published = false`).Scan(&unpublished).Error; err != nil {
		t.Fatalf("count unpublished: %v", err)
	}
	if unpublished != 2 {
		t.Fatalf("expected 2 queued events, got %d", unpublished)
	}
}
