package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"WhalePulse/internal/domain/models"
	"WhalePulse/internal/domain/repository"
	"WhalePulse/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// maxConsecutiveDrops evicts an observer whose buffer never drains.
	maxConsecutiveDrops = 8
)

// Config bounds the hub's queues.
type Config struct {
	ObserverBuffer int
	InboundBuffer  int
}

func (c Config) withDefaults() Config {
	if c.ObserverBuffer == 0 {
		c.ObserverBuffer = 64
	}
	if c.InboundBuffer == 0 {
		c.InboundBuffer = 1024
	}
	return c
}

type observer struct {
	id    uint64
	conn  *websocket.Conn
	send  chan models.Event
	drops int // consecutive events lost to a full buffer
	dead  bool
}

// Hub broadcasts events to websocket observers. A single dispatch goroutine
// assigns the global sequence number, so every observer sees events in the
// same order. Slow observers lose events rather than stall the dispatcher;
// an observer whose buffer stays full is evicted, and a dead observer is
// pruned on its next send.
type Hub struct {
	cfg      Config
	log      *logger.Logger
	metrics  repository.Metrics
	upgrader websocket.Upgrader

	mu        sync.Mutex
	observers map[uint64]*observer
	nextID    uint64
	started   bool

	in     chan models.Event
	mirror chan models.Event
	pub    repository.EventPublisher
	stopCh chan struct{}
}

func NewHub(cfg Config, metrics repository.Metrics, log *logger.Logger) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		observers: make(map[uint64]*observer),
		in:        make(chan models.Event, cfg.InboundBuffer),
		mirror:    make(chan models.Event, cfg.InboundBuffer),
		stopCh:    make(chan struct{}),
	}
}

// SetMirror attaches an outbound publisher; every sequenced event is copied
// to it from a dedicated goroutine so a slow broker never stalls dispatch.
func (h *Hub) SetMirror(pub repository.EventPublisher) {
	h.pub = pub
}

// Start launches the dispatch goroutine.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.dispatch(ctx)
	if h.pub != nil {
		go h.mirrorLoop(ctx)
	}
}

// Stop halts the dispatcher. Observer connections close on their own when
// their read loops fail.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	h.mu.Unlock()
	close(h.stopCh)
}

// Publish queues an event for broadcast. The sequence number is assigned by
// the dispatcher, not here. Never blocks: a full inbound queue drops the
// event and counts it.
func (h *Hub) Publish(eventType models.EventType, asset string, payload any) {
	ev := models.Event{
		Type:    eventType,
		Asset:   asset,
		Payload: payload,
		At:      time.Now(),
	}
	select {
	case h.in <- ev:
	default:
		h.metrics.RecordError("hub_inbound_full")
	}
}

// Observers returns the current observer count.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

func (h *Hub) dispatch(ctx context.Context) {
	var seq uint64
	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-h.in:
			seq++
			ev.Seq = seq
			h.fanOut(ev)
			if h.pub != nil {
				select {
				case h.mirror <- ev:
				default:
					h.metrics.RecordError("hub_mirror_full")
				}
			}
		}
	}
}

func (h *Hub) mirrorLoop(ctx context.Context) {
	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-h.mirror:
			if err := h.pub.PublishEvent(ctx, &ev); err != nil {
				h.metrics.RecordError("event_mirror")
			}
		}
	}
}

func (h *Hub) fanOut(ev models.Event) {
	h.mu.Lock()
	var pruned int
	for id, obs := range h.observers {
		if obs.dead {
			delete(h.observers, id)
			pruned++
			continue
		}
		select {
		case obs.send <- ev:
			obs.drops = 0
		default:
			// Slow consumer: skip this event for this observer.
			h.metrics.RecordError("hub_observer_full")
			obs.drops++
			if obs.drops >= maxConsecutiveDrops {
				obs.dead = true
				delete(h.observers, id)
				pruned++
				// Closing the conn ends the read loop, which unregisters.
				obs.conn.Close()
			}
		}
	}
	count := len(h.observers)
	h.mu.Unlock()

	if pruned > 0 {
		h.metrics.RecordObserverCount(count)
	}
}

// HandleWebSocket upgrades an HTTP request and attaches the connection as an
// observer until it disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.String("error", err.Error()))
		return
	}

	obs := h.register(conn)
	defer func() {
		h.unregister(obs)
		conn.Close()
	}()

	go h.writeLoop(obs)
	h.readLoop(obs)
}

func (h *Hub) register(conn *websocket.Conn) *observer {
	h.mu.Lock()
	h.nextID++
	obs := &observer{
		id:   h.nextID,
		conn: conn,
		send: make(chan models.Event, h.cfg.ObserverBuffer),
	}
	h.observers[obs.id] = obs
	count := len(h.observers)
	h.mu.Unlock()

	h.metrics.RecordObserverCount(count)
	h.log.Info("observer connected", logger.Uint64("observer_id", obs.id), logger.Int("observers", count))
	return obs
}

func (h *Hub) unregister(obs *observer) {
	h.mu.Lock()
	obs.dead = true
	delete(h.observers, obs.id)
	count := len(h.observers)
	h.mu.Unlock()

	h.metrics.RecordObserverCount(count)
	h.log.Info("observer disconnected", logger.Uint64("observer_id", obs.id), logger.Int("observers", count))
}

func (h *Hub) writeLoop(obs *observer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case ev := <-obs.send:
			obs.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := obs.conn.WriteJSON(ev); err != nil {
				obs.conn.Close()
				return
			}
		case <-ticker.C:
			if err := obs.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				obs.conn.Close()
				return
			}
		}
	}
}

// readLoop discards inbound frames; it exists to run the pong handler and
// detect disconnects.
func (h *Hub) readLoop(obs *observer) {
	obs.conn.SetReadLimit(maxMessageSize)
	obs.conn.SetReadDeadline(time.Now().Add(pongWait))
	obs.conn.SetPongHandler(func(string) error {
		obs.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := obs.conn.ReadMessage(); err != nil {
			return
		}
	}
}
