package usecase

import (
	"context"
	"errors"
	"time"

	domrepo "WhalePulse/internal/domain/repository"
	"WhalePulse/internal/ledger"
	"WhalePulse/internal/repository"
	"WhalePulse/internal/services/features"
	"WhalePulse/internal/services/scoring"
	"WhalePulse/internal/trading"
	"WhalePulse/pkg/logger"
)

// CycleConfig paces the signal pipeline.
type CycleConfig struct {
	Interval         time.Duration // time between analysis cycles
	Window           time.Duration // lookback per cycle
	VolatilityWindow int           // trailing log returns for realized vol
	SnapshotInterval time.Duration // portfolio snapshot persistence cadence
}

func (c CycleConfig) withDefaults() CycleConfig {
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.Window == 0 {
		c.Window = 5 * time.Minute
	}
	if c.VolatilityWindow == 0 {
		c.VolatilityWindow = 20
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = time.Minute
	}
	return c
}

// Cycle drives the periodic analysis loop: for every asset with buffered
// records, fuse the window into features, score it, and hand any signal to
// the controller. Price ticks are applied on arrival by their consumer, so
// stop/target breaches always land before the cycle's new signals.
type Cycle struct {
	cfg        CycleConfig
	store      *repository.RecordStore
	normalizer *features.Normalizer
	scorer     *scoring.Scorer
	controller *trading.Controller
	ledger     *ledger.Ledger
	archive    domrepo.Archive
	metrics    domrepo.Metrics
	log        *logger.Logger
	now        func() time.Time
}

func NewCycle(
	cfg CycleConfig,
	store *repository.RecordStore,
	normalizer *features.Normalizer,
	scorer *scoring.Scorer,
	controller *trading.Controller,
	lg *ledger.Ledger,
	archive domrepo.Archive,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *Cycle {
	return &Cycle{
		cfg:        cfg.withDefaults(),
		store:      store,
		normalizer: normalizer,
		scorer:     scorer,
		controller: controller,
		ledger:     lg,
		archive:    archive,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

// Run blocks until the context ends, producing signals every interval and
// persisting portfolio snapshots on their own cadence.
func (c *Cycle) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	snapshots := time.NewTicker(c.cfg.SnapshotInterval)
	defer ticker.Stop()
	defer snapshots.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		case <-snapshots.C:
			c.saveSnapshot(ctx)
		}
	}
}

// RunOnce executes a single analysis cycle over every known asset.
func (c *Cycle) RunOnce(ctx context.Context) {
	start := c.now()
	end := start
	from := end.Add(-c.cfg.Window)

	for _, asset := range c.store.Assets() {
		c.analyzeAsset(ctx, asset, from, end)
	}
	c.metrics.RecordLatency("cycle_seconds", time.Since(start).Seconds())
}

func (c *Cycle) analyzeAsset(ctx context.Context, asset string, from, to time.Time) {
	whales := c.store.WhalesBetween(asset, from, to)
	sentiment := c.store.SentimentBetween(asset, from, to)

	vector, err := c.normalizer.Normalize(whales, sentiment, asset, from, to)
	if err != nil {
		if !errors.Is(err, features.ErrInsufficientData) {
			c.metrics.RecordError("normalize")
			c.log.Warn("normalization failed", logger.String("asset", asset), logger.Error(err))
		}
		return
	}

	price, ok := c.ledger.LastPrice(asset)
	if !ok {
		// No quote yet; a signal without an entry price is useless.
		return
	}

	prices := c.store.RecentPrices(asset, c.cfg.VolatilityWindow+1)
	vol := features.RealizedVolatility(features.LogReturns(prices), c.cfg.VolatilityWindow)

	sig := c.scorer.Score(vector, price, vol)
	if sig == nil {
		return
	}

	if err := c.archive.SaveSignal(ctx, sig); err != nil {
		c.metrics.RecordError("signal_persist")
	}
	c.log.Info("signal generated",
		logger.Uint64("signal_id", sig.ID),
		logger.String("asset", asset),
		logger.String("kind", string(sig.Kind)),
		logger.Float64("confidence", sig.Confidence))
	c.controller.HandleSignal(ctx, sig)
}

func (c *Cycle) saveSnapshot(ctx context.Context) {
	snap := c.ledger.Snapshot()
	if err := c.archive.SaveSnapshot(ctx, &snap, c.now()); err != nil {
		c.metrics.RecordError("snapshot_persist")
	}
}
