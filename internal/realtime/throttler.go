package realtime

import (
	"context"
	"sync"
	"time"

	"WhalePulse/internal/domain/models"
)

// PriceThrottler coalesces raw price ticks into periodic broadcasts. Ticks
// arrive far faster than observers need them; only the latest price per
// asset is kept and flushed on each interval.
type PriceThrottler struct {
	hub      *Hub
	interval time.Duration

	mu     sync.Mutex
	latest map[string]models.PriceTick
}

func NewPriceThrottler(hub *Hub, interval time.Duration) *PriceThrottler {
	if interval == 0 {
		interval = 200 * time.Millisecond
	}
	return &PriceThrottler{
		hub:      hub,
		interval: interval,
		latest:   make(map[string]models.PriceTick),
	}
}

// Offer stores the newest tick for an asset, replacing any unflushed one.
func (t *PriceThrottler) Offer(tick models.PriceTick) {
	t.mu.Lock()
	t.latest[tick.Asset] = tick
	t.mu.Unlock()
}

// Run flushes coalesced ticks to the hub until the context ends.
func (t *PriceThrottler) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.flush()
		}
	}
}

func (t *PriceThrottler) flush() {
	t.mu.Lock()
	if len(t.latest) == 0 {
		t.mu.Unlock()
		return
	}
	batch := t.latest
	t.latest = make(map[string]models.PriceTick)
	t.mu.Unlock()

	for asset, tick := range batch {
		t.hub.Publish(models.EventPrice, asset, tick)
	}
}
