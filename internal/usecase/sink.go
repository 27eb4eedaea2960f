package usecase

import (
	"context"
	"time"

	"WhalePulse/internal/alerts"
	"WhalePulse/internal/domain/models"
	domrepo "WhalePulse/internal/domain/repository"
	"WhalePulse/internal/realtime"
	"WhalePulse/internal/trading"
)

// EventSink routes controller output: events to the hub (which mirrors them
// to the events topic), trades to the archive, alerts to the dispatcher.
// Archive writes run off the caller's goroutine so execution never waits on
// ClickHouse.
type EventSink struct {
	hub        *realtime.Hub
	dispatcher *alerts.Dispatcher
	archive    domrepo.Archive
	metrics    domrepo.Metrics
}

func NewEventSink(hub *realtime.Hub, dispatcher *alerts.Dispatcher, archive domrepo.Archive, metrics domrepo.Metrics) *EventSink {
	return &EventSink{hub: hub, dispatcher: dispatcher, archive: archive, metrics: metrics}
}

func (s *EventSink) PublishEvent(t models.EventType, asset string, payload any) {
	s.hub.Publish(t, asset, payload)

	if t == models.EventTrade {
		if trade, ok := payload.(*models.Trade); ok && s.archive != nil {
			go s.saveTrade(trade)
		}
	}
}

func (s *EventSink) Notify(kind string, priority models.AlertPriority, payload any) {
	s.dispatcher.Enqueue(kind, priority, payload)
}

func (s *EventSink) saveTrade(trade *models.Trade) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.archive.SaveTrade(ctx, trade); err != nil {
		s.metrics.RecordError("trade_persist")
	}
}

var _ trading.Sink = (*EventSink)(nil)
