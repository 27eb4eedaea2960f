package repository

import (
	"context"
	"time"

	"WhalePulse/internal/domain/models"
)

// Archive is the append-only persistence surface for signals, trades,
// alerts, and portfolio snapshots. Writes happen outside the ledger's
// critical section.
type Archive interface {
	Init(ctx context.Context) error // ensure tables exist
	SaveSignal(ctx context.Context, s *models.Signal) error
	SaveTrade(ctx context.Context, t *models.Trade) error
	SaveAlert(ctx context.Context, a *models.AlertRecord) error
	UpdateAlertDelivery(ctx context.Context, a *models.AlertRecord) error
	SaveSnapshot(ctx context.Context, p *models.Portfolio, at time.Time) error
	RecentSignals(ctx context.Context, asset string, limit int) ([]*models.Signal, error)
	TradesBetween(ctx context.Context, asset string, from, to time.Time, limit int) ([]*models.Trade, error)
	LastSignalID(ctx context.Context) (uint64, error)
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher mirrors broadcast events to the outbound events topic.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e *models.Event) error
	Close() error
}

// Quotes exposes the last observed price per asset.
type Quotes interface {
	LastPrice(asset string) (float64, bool)
}

// Metrics records operational counters for the pipeline.
type Metrics interface {
	RecordSignal(kind string)
	RecordTrade(side string)
	RecordRejection(reason string)
	RecordAlertDelivery(channel string, ok bool)
	RecordObserverCount(n int)
	RecordLastPrice(asset string, price float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
