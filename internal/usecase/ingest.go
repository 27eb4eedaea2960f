package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"WhalePulse/internal/domain/models"
	domrepo "WhalePulse/internal/domain/repository"
	"WhalePulse/internal/realtime"
	"WhalePulse/internal/repository"
	"WhalePulse/internal/trading"
	pkgkafka "WhalePulse/pkg/kafka"
)

// WhaleHandler consumes whale activity records into the window store.
type WhaleHandler struct {
	topic   string
	store   *repository.RecordStore
	metrics domrepo.Metrics
}

func NewWhaleHandler(topic string, store *repository.RecordStore, metrics domrepo.Metrics) *WhaleHandler {
	return &WhaleHandler{topic: topic, store: store, metrics: metrics}
}

func (h *WhaleHandler) Topic() string { return h.topic }

func (h *WhaleHandler) Handle(ctx context.Context, b []byte) error {
	var r models.WhaleRecord
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if r.Asset == "" || r.AmountUSD <= 0 {
		h.metrics.RecordError("whale_invalid")
		return fmt.Errorf("invalid whale record asset=%q amount=%f", r.Asset, r.AmountUSD)
	}
	if r.Direction != models.WhaleAccumulate && r.Direction != models.WhaleDistribute {
		h.metrics.RecordError("whale_invalid")
		return fmt.Errorf("invalid whale direction %q", r.Direction)
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(r.Timestamp).Seconds())
	h.store.AddWhale(r)
	return nil
}

var _ pkgkafka.MessageHandler = (*WhaleHandler)(nil)

// SentimentHandler consumes social sentiment samples into the window store.
type SentimentHandler struct {
	topic   string
	store   *repository.RecordStore
	metrics domrepo.Metrics
}

func NewSentimentHandler(topic string, store *repository.RecordStore, metrics domrepo.Metrics) *SentimentHandler {
	return &SentimentHandler{topic: topic, store: store, metrics: metrics}
}

func (h *SentimentHandler) Topic() string { return h.topic }

func (h *SentimentHandler) Handle(ctx context.Context, b []byte) error {
	var r models.SentimentRecord
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if r.Asset == "" || r.Score < -1 || r.Score > 1 {
		h.metrics.RecordError("sentiment_invalid")
		return fmt.Errorf("invalid sentiment record asset=%q score=%f", r.Asset, r.Score)
	}
	h.store.AddSentiment(r)
	return nil
}

var _ pkgkafka.MessageHandler = (*SentimentHandler)(nil)

// TickHandler consumes price ticks. Each tick marks the ledger to market and
// runs stop/target checks before it can influence any later signal, then
// feeds the throttled broadcast.
type TickHandler struct {
	topic      string
	store      *repository.RecordStore
	controller *trading.Controller
	throttler  *realtime.PriceThrottler
	metrics    domrepo.Metrics
}

func NewTickHandler(topic string, store *repository.RecordStore, controller *trading.Controller, throttler *realtime.PriceThrottler, metrics domrepo.Metrics) *TickHandler {
	return &TickHandler{topic: topic, store: store, controller: controller, throttler: throttler, metrics: metrics}
}

func (h *TickHandler) Topic() string { return h.topic }

func (h *TickHandler) Handle(ctx context.Context, b []byte) error {
	var t models.PriceTick
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if t.Asset == "" || t.Price <= 0 {
		h.metrics.RecordError("tick_invalid")
		return fmt.Errorf("invalid tick asset=%q price=%f", t.Asset, t.Price)
	}

	h.store.AddTick(t)
	h.controller.OnPriceTick(ctx, t.Asset, t.Price)
	h.throttler.Offer(t)
	return nil
}

var _ pkgkafka.MessageHandler = (*TickHandler)(nil)
