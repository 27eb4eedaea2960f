package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"WhalePulse/internal/domain/models"
	"WhalePulse/pkg/logger"
)

type noopMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newNoopMetrics() *noopMetrics {
	return &noopMetrics{errors: make(map[string]int)}
}

func (m *noopMetrics) RecordSignal(kind string)                    {}
func (m *noopMetrics) RecordTrade(side string)                     {}
func (m *noopMetrics) RecordRejection(reason string)               {}
func (m *noopMetrics) RecordAlertDelivery(channel string, ok bool) {}
func (m *noopMetrics) RecordObserverCount(n int)                   {}
func (m *noopMetrics) RecordLastPrice(asset string, p float64)     {}
func (m *noopMetrics) RecordLatency(op string, s float64)          {}

func (m *noopMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *noopMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func waitForObservers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Observers() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("observers = %d, want %d", hub.Observers(), want)
}

func TestHubBroadcastsInSequenceOrder(t *testing.T) {
	hub := NewHub(Config{}, newNoopMetrics(), testLogger(t))
	hub.Start(context.Background())
	defer hub.Stop()

	conn, closeConn := dialHub(t, hub)
	defer closeConn()
	waitForObservers(t, hub, 1)

	const n = 5
	for i := 0; i < n; i++ {
		hub.Publish(models.EventSignal, "BTC", map[string]int{"n": i})
	}

	for i := 0; i < n; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev models.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d, want %d", i, ev.Seq, i+1)
		}
		if ev.Type != models.EventSignal || ev.Asset != "BTC" {
			t.Fatalf("unexpected envelope %+v", ev)
		}
	}
}

func TestHubSequenceIsGlobalAcrossAssets(t *testing.T) {
	hub := NewHub(Config{}, newNoopMetrics(), testLogger(t))
	hub.Start(context.Background())
	defer hub.Stop()

	conn, closeConn := dialHub(t, hub)
	defer closeConn()
	waitForObservers(t, hub, 1)

	assets := []string{"BTC", "ETH", "SOL", "BTC"}
	for _, a := range assets {
		hub.Publish(models.EventPrice, a, nil)
	}

	var last uint64
	for range assets {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev models.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Seq != last+1 {
			t.Fatalf("seq %d after %d, want contiguous", ev.Seq, last)
		}
		last = ev.Seq
	}
}

func TestHubDisconnectPrunesObserver(t *testing.T) {
	hub := NewHub(Config{}, newNoopMetrics(), testLogger(t))
	hub.Start(context.Background())
	defer hub.Stop()

	conn, closeConn := dialHub(t, hub)
	waitForObservers(t, hub, 1)
	conn.Close()
	waitForObservers(t, hub, 0)
	closeConn()
}

// An observer that never drains its buffer loses events for a while, then
// gets evicted so the hub is not stuck skipping it forever.
func TestHubEvictsPersistentlySlowObserver(t *testing.T) {
	metrics := newNoopMetrics()
	hub := NewHub(Config{ObserverBuffer: 1}, metrics, testLogger(t))

	// Register without a write loop so the buffer never drains.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.register(conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForObservers(t, hub, 1)

	// One event fills the buffer; each following send is a consecutive drop
	// until the eviction threshold.
	for i := 0; i <= maxConsecutiveDrops; i++ {
		hub.fanOut(models.Event{Type: models.EventPrice, Asset: "BTC", Seq: uint64(i + 1)})
	}

	if got := hub.Observers(); got != 0 {
		t.Fatalf("observers = %d, want the slow observer evicted", got)
	}
	if got := metrics.errorCount("hub_observer_full"); got != maxConsecutiveDrops {
		t.Fatalf("drops recorded = %d, want %d", got, maxConsecutiveDrops)
	}
}

func TestHubPublishDropsWhenInboundFull(t *testing.T) {
	metrics := newNoopMetrics()
	// Not started: the inbound queue fills and overflow must not block.
	hub := NewHub(Config{InboundBuffer: 2}, metrics, testLogger(t))

	for i := 0; i < 5; i++ {
		hub.Publish(models.EventPrice, "BTC", nil)
	}
	if got := metrics.errorCount("hub_inbound_full"); got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}
}

func TestThrottlerCoalescesTicks(t *testing.T) {
	hub := NewHub(Config{}, newNoopMetrics(), testLogger(t))
	th := NewPriceThrottler(hub, 10*time.Millisecond)

	now := time.Now()
	for i, p := range []float64{100, 101, 102} {
		th.Offer(models.PriceTick{Asset: "BTC", Price: p, Timestamp: now.Add(time.Duration(i) * time.Millisecond)})
	}
	th.Offer(models.PriceTick{Asset: "ETH", Price: 2_000, Timestamp: now})
	th.flush()

	// One event per asset, carrying only the newest tick.
	if got := len(hub.in); got != 2 {
		t.Fatalf("flushed %d events, want 2", got)
	}
	prices := make(map[string]float64)
	for i := 0; i < 2; i++ {
		ev := <-hub.in
		tick, ok := ev.Payload.(models.PriceTick)
		if !ok {
			t.Fatalf("payload is %T, want PriceTick", ev.Payload)
		}
		prices[ev.Asset] = tick.Price
	}
	if prices["BTC"] != 102 || prices["ETH"] != 2_000 {
		t.Fatalf("flushed prices = %v", prices)
	}

	// A flush with nothing pending publishes nothing.
	th.flush()
	if len(hub.in) != 0 {
		t.Fatalf("empty flush published %d events", len(hub.in))
	}
}

func TestHubStopIsIdempotent(t *testing.T) {
	hub := NewHub(Config{}, newNoopMetrics(), testLogger(t))
	hub.Start(context.Background())
	hub.Stop()
	hub.Stop()
}
