package alerts

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"WhalePulse/internal/domain/models"
	"WhalePulse/internal/domain/repository"
	"WhalePulse/internal/service/ratelimit"
	"WhalePulse/pkg/logger"
)

// Config bounds the dispatcher's queue and retry behaviour.
type Config struct {
	QueueSize      int
	MaxAttempts    int
	ChannelTimeout time.Duration
	RetryInterval  time.Duration

	// Flood control for low/medium priority alerts, per kind.
	RateCapacity  float64
	RateRefillSec float64
}

func (c Config) withDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = 512
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.ChannelTimeout == 0 {
		c.ChannelTimeout = 10 * time.Second
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = time.Minute
	}
	if c.RateCapacity == 0 {
		c.RateCapacity = 10
	}
	if c.RateRefillSec == 0 {
		c.RateRefillSec = 0.5
	}
	return c
}

// Dispatcher fans notable events out to notification channels with
// first-success delivery and bounded retries. Enqueue never blocks the
// caller: a full queue drops the alert and counts it.
type Dispatcher struct {
	cfg      Config
	channels []Channel
	archive  repository.Archive
	metrics  repository.Metrics
	log      *logger.Logger
	limiter  *ratelimit.Limiter

	mu      sync.Mutex
	records map[uint64]*models.AlertRecord // undelivered and recently delivered
	queued  map[uint64]bool                // ids sitting in the queue or in flight
	nextID  uint64

	queue   chan *models.AlertRecord
	stopCh  chan struct{}
	started bool
}

const retainedRecords = 4096

func NewDispatcher(cfg Config, channels []Channel, archive repository.Archive, metrics repository.Metrics, log *logger.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:      cfg,
		channels: channels,
		archive:  archive,
		metrics:  metrics,
		log:      log,
		limiter:  ratelimit.New(),
		records:  make(map[uint64]*models.AlertRecord),
		queued:   make(map[uint64]bool),
		queue:    make(chan *models.AlertRecord, cfg.QueueSize),
		stopCh:   make(chan struct{}),
	}
}

// Enqueue creates an alert record and hands it to the delivery worker.
// Fire-and-forget: the trading path is never delayed by delivery.
func (d *Dispatcher) Enqueue(kind string, priority models.AlertPriority, payload any) {
	// High and critical alerts always pass; the rest are flood-limited per
	// kind so a noisy rejection loop cannot drown the channels.
	if priority == models.PriorityLow || priority == models.PriorityMedium {
		if !d.limiter.Allow("alert:"+kind, d.cfg.RateCapacity, d.cfg.RateRefillSec) {
			d.metrics.RecordError("alert_rate_limited")
			return
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.metrics.RecordError("alert_marshal")
		return
	}

	d.mu.Lock()
	d.nextID++
	rec := &models.AlertRecord{
		ID:        d.nextID,
		Priority:  priority,
		Kind:      kind,
		Payload:   string(body),
		CreatedAt: time.Now(),
	}
	d.records[rec.ID] = rec

	// A record dropped on overflow keeps attempts at zero; the retry loop
	// picks it up later.
	select {
	case d.queue <- rec:
		d.queued[rec.ID] = true
	default:
		d.metrics.RecordError("alert_queue_full")
	}
	d.pruneLocked()
	d.mu.Unlock()
}

// Start launches the delivery worker and the periodic retry loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		for {
			select {
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			case rec := <-d.queue:
				d.deliver(ctx, rec)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(d.cfg.RetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.RetryFailed(ctx, d.cfg.MaxAttempts)
			}
		}
	}()
}

// Stop halts the worker and retry loops.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()
	close(d.stopCh)
}

// RetryFailed re-attempts undelivered records with fewer than maxAttempts
// delivery rounds, oldest first. That includes records dropped on queue
// overflow before their first attempt; records still waiting in the queue
// or in flight are skipped to avoid a double send. Records at the attempt
// cap are left in their degraded state and excluded from future batches.
func (d *Dispatcher) RetryFailed(ctx context.Context, maxAttempts int) int {
	d.mu.Lock()
	batch := make([]*models.AlertRecord, 0)
	for _, rec := range d.records {
		if !rec.Delivered && !d.queued[rec.ID] && rec.DeliveryAttempts < maxAttempts {
			batch = append(batch, rec)
		}
	}
	d.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].CreatedAt.Before(batch[j].CreatedAt) })
	for _, rec := range batch {
		d.deliver(ctx, rec)
	}
	return len(batch)
}

// Record returns a copy of an alert record, for tests and the API.
func (d *Dispatcher) Record(id uint64) (models.AlertRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	if !ok {
		return models.AlertRecord{}, false
	}
	return *rec, true
}

// Undelivered counts records still awaiting a successful delivery.
func (d *Dispatcher) Undelivered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, rec := range d.records {
		if !rec.Delivered {
			n++
		}
	}
	return n
}

// deliver runs one delivery round: channels routed by priority are tried in
// order until the first success. Each round counts as one attempt.
func (d *Dispatcher) deliver(ctx context.Context, rec *models.AlertRecord) {
	targets := d.route(rec.Priority)
	if len(targets) == 0 {
		return
	}

	d.mu.Lock()
	delete(d.queued, rec.ID)
	if rec.Delivered || rec.DeliveryAttempts >= d.cfg.MaxAttempts {
		d.mu.Unlock()
		return
	}
	rec.DeliveryAttempts++
	d.mu.Unlock()

	var lastErr error
	delivered := false
	for _, ch := range targets {
		cctx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
		err := ch.Send(cctx, rec)
		cancel()
		d.metrics.RecordAlertDelivery(ch.Name(), err == nil)
		if err == nil {
			delivered = true
			break
		}
		lastErr = err
	}

	d.mu.Lock()
	rec.Delivered = delivered
	if lastErr != nil && !delivered {
		rec.LastError = lastErr.Error()
	}
	snapshot := *rec
	d.mu.Unlock()

	if d.archive != nil {
		if snapshot.DeliveryAttempts == 1 {
			if err := d.archive.SaveAlert(ctx, &snapshot); err != nil {
				d.metrics.RecordError("alert_persist")
			}
		} else if err := d.archive.UpdateAlertDelivery(ctx, &snapshot); err != nil {
			d.metrics.RecordError("alert_persist")
		}
	}

	if !delivered {
		d.log.Warn("alert delivery failed",
			logger.Uint64("alert_id", snapshot.ID),
			logger.Int("attempts", snapshot.DeliveryAttempts),
			logger.String("error", snapshot.LastError))
		if snapshot.DeliveryAttempts >= d.cfg.MaxAttempts {
			d.metrics.RecordError("alert_exhausted")
		}
	}
}

// route maps priority to the channel set: low-priority alerts go to the
// first channel only, critical to every channel.
func (d *Dispatcher) route(p models.AlertPriority) []Channel {
	if len(d.channels) == 0 {
		return nil
	}
	switch p {
	case models.PriorityLow:
		return d.channels[:1]
	default:
		return d.channels
	}
}

func (d *Dispatcher) pruneLocked() {
	if len(d.records) <= retainedRecords {
		return
	}
	// Drop oldest delivered records first, then oldest exhausted ones.
	type aged struct {
		id uint64
		at time.Time
	}
	var candidates []aged
	for id, rec := range d.records {
		if rec.Delivered || rec.DeliveryAttempts >= d.cfg.MaxAttempts {
			candidates = append(candidates, aged{id, rec.CreatedAt})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].at.Before(candidates[j].at) })
	for _, c := range candidates {
		if len(d.records) <= retainedRecords {
			break
		}
		delete(d.records, c.id)
	}
}
