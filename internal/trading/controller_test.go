package trading

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"WhalePulse/internal/domain/models"
	"WhalePulse/internal/ledger"
	"WhalePulse/pkg/logger"
)

type stubSink struct {
	mu     sync.Mutex
	events []models.EventType
	alerts []string
}

func (s *stubSink) PublishEvent(t models.EventType, asset string, payload any) {
	s.mu.Lock()
	s.events = append(s.events, t)
	s.mu.Unlock()
}

func (s *stubSink) Notify(kind string, priority models.AlertPriority, payload any) {
	s.mu.Lock()
	s.alerts = append(s.alerts, kind)
	s.mu.Unlock()
}

func (s *stubSink) countEvents(t models.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == t {
			n++
		}
	}
	return n
}

type stubMetrics struct {
	mu         sync.Mutex
	rejections []string
	trades     []string
	signals    []string
	errors     []string
}

func (m *stubMetrics) RecordSignal(kind string) {
	m.mu.Lock()
	m.signals = append(m.signals, kind)
	m.mu.Unlock()
}

func (m *stubMetrics) RecordTrade(side string) {
	m.mu.Lock()
	m.trades = append(m.trades, side)
	m.mu.Unlock()
}

func (m *stubMetrics) RecordRejection(reason string) {
	m.mu.Lock()
	m.rejections = append(m.rejections, reason)
	m.mu.Unlock()
}

func (m *stubMetrics) RecordAlertDelivery(channel string, ok bool) {}

func (m *stubMetrics) RecordObserverCount(n int) {}

func (m *stubMetrics) RecordLastPrice(asset string, price float64) {}

func (m *stubMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors = append(m.errors, kind)
	m.mu.Unlock()
}

func (m *stubMetrics) RecordLatency(op string, seconds float64) {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestController(t *testing.T, cfg Config, balance float64) (*Controller, *ledger.Ledger, *stubSink, *stubMetrics) {
	t.Helper()
	lg := ledger.New(balance)
	sink := &stubSink{}
	metrics := &stubMetrics{}
	c := NewController(cfg, lg, sink, metrics, testLogger(t))
	return c, lg, sink, metrics
}

func testSignal(id uint64, action models.SignalAction, confidence, risk float64) *models.Signal {
	return &models.Signal{
		ID:          id,
		Asset:       "BTC",
		Kind:        models.KindEarlyAccumulation,
		Action:      action,
		Confidence:  confidence,
		RiskScore:   risk,
		EntryPrice:  50_000,
		TargetPrice: 55_000,
		StopPrice:   48_000,
		CreatedAt:   time.Now(),
	}
}

func TestAutoGateOffStillTracksSignal(t *testing.T) {
	c, lg, sink, _ := newTestController(t, Config{AutoTrading: false}, 100_000)

	sig := testSignal(1, models.ActionBuy, 0.9, 0.4)
	c.HandleSignal(context.Background(), sig)

	if sink.countEvents(models.EventSignal) != 1 {
		t.Fatalf("signal event not published")
	}
	if lg.OpenPositions() != 0 {
		t.Fatalf("auto gate off but trade executed")
	}

	// The tracked signal remains manually executable.
	res := c.ExecuteSignal(context.Background(), 1)
	if !res.Success {
		t.Fatalf("manual execution failed: %s", res.Reason)
	}
	if lg.OpenPositions() != 1 {
		t.Fatalf("manual execution opened no position")
	}
}

func TestAutoGateOnExecutes(t *testing.T) {
	c, lg, _, _ := newTestController(t, Config{AutoTrading: true}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.4))
	if lg.OpenPositions() != 1 {
		t.Fatalf("auto trading on but nothing executed")
	}
}

func TestExecuteUnknownSignal(t *testing.T) {
	c, _, _, _ := newTestController(t, Config{}, 100_000)
	if res := c.ExecuteSignal(context.Background(), 99); res.Success {
		t.Fatalf("executing an unknown id succeeded")
	}
}

func TestRejectLowConfidenceRegardlessOfGate(t *testing.T) {
	for _, auto := range []bool{true, false} {
		c, _, _, metrics := newTestController(t, Config{AutoTrading: auto, MinConfidence: 0.7}, 100_000)

		sig := testSignal(1, models.ActionBuy, 0.5, 0.4)
		c.HandleSignal(context.Background(), sig)
		res := c.ExecuteSignal(context.Background(), 1)

		if res.Success || res.Reason != string(models.RejectLowConfidence) {
			t.Fatalf("auto=%v: reason = %q, want low_confidence", auto, res.Reason)
		}
		metrics.mu.Lock()
		rejected := len(metrics.rejections) > 0 && metrics.rejections[len(metrics.rejections)-1] == string(models.RejectLowConfidence)
		metrics.mu.Unlock()
		if !rejected {
			t.Fatalf("auto=%v: rejection not recorded", auto)
		}
	}
}

// Confidence is checked before risk: a signal failing both rejects as
// low_confidence.
func TestRejectionOrderIsFixed(t *testing.T) {
	c, _, _, _ := newTestController(t, Config{AutoTrading: true}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.5, 0.99))
	res := c.ExecuteSignal(context.Background(), 1)
	if res.Reason != string(models.RejectLowConfidence) {
		t.Fatalf("reason = %q, want low_confidence first", res.Reason)
	}
}

func TestRejectRiskLimit(t *testing.T) {
	c, _, _, _ := newTestController(t, Config{MaxRiskScore: 0.85}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.9))
	res := c.ExecuteSignal(context.Background(), 1)
	if res.Reason != string(models.RejectRiskLimitExceeded) {
		t.Fatalf("reason = %q, want risk_limit_exceeded", res.Reason)
	}
}

func TestRejectMaxPositions(t *testing.T) {
	c, _, _, _ := newTestController(t, Config{AutoTrading: true, MaxOpenPositions: 1, Cooldown: time.Nanosecond}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.4))

	eth := testSignal(2, models.ActionBuy, 0.9, 0.4)
	eth.Asset = "ETH"
	c.HandleSignal(context.Background(), eth)
	res := c.ExecuteSignal(context.Background(), 2)
	if res.Reason != string(models.RejectMaxPositionsReached) {
		t.Fatalf("reason = %q, want max_positions_reached", res.Reason)
	}

	// An add-on buy for the already-open asset is exempt from the cap.
	time.Sleep(time.Millisecond)
	c.HandleSignal(context.Background(), testSignal(3, models.ActionBuy, 0.9, 0.4))
	res = c.ExecuteSignal(context.Background(), 3)
	if !res.Success {
		t.Fatalf("add-on buy rejected: %s", res.Reason)
	}
}

func TestRejectInsufficientFunds(t *testing.T) {
	// Sizing above the whole account makes the cost exceed available cash.
	c, _, _, _ := newTestController(t, Config{PositionFraction: 1.5}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.4))
	res := c.ExecuteSignal(context.Background(), 1)
	if res.Reason != string(models.RejectInsufficientFunds) {
		t.Fatalf("reason = %q, want insufficient_funds", res.Reason)
	}
}

func TestRejectSellWithoutPosition(t *testing.T) {
	c, _, _, _ := newTestController(t, Config{}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionSell, 0.9, 0.4))
	res := c.ExecuteSignal(context.Background(), 1)
	if res.Reason != string(models.RejectNoOpenPosition) {
		t.Fatalf("reason = %q, want no_open_position", res.Reason)
	}
}

func TestRejectCooldown(t *testing.T) {
	c, _, _, _ := newTestController(t, Config{AutoTrading: true, Cooldown: time.Hour}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.4))
	c.HandleSignal(context.Background(), testSignal(2, models.ActionBuy, 0.9, 0.4))
	res := c.ExecuteSignal(context.Background(), 2)
	if res.Reason != string(models.RejectCooldownActive) {
		t.Fatalf("reason = %q, want cooldown_active", res.Reason)
	}

	// Advancing past the cooldown clears the gate.
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	res = c.ExecuteSignal(context.Background(), 2)
	if !res.Success {
		t.Fatalf("post-cooldown execution rejected: %s", res.Reason)
	}
}

func TestBuySizingIsFractionOfPortfolio(t *testing.T) {
	c, lg, _, _ := newTestController(t, Config{AutoTrading: true, PositionFraction: 0.05}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.4))

	pos, ok := lg.Position("BTC")
	if !ok {
		t.Fatalf("no position opened")
	}
	// 5% of 100000 at 50000 per unit.
	if math.Abs(pos.Quantity-0.1) > 1e-9 {
		t.Fatalf("quantity = %f, want 0.1", pos.Quantity)
	}
	if math.Abs(lg.CashBalance()-95_000) > 1e-9 {
		t.Fatalf("cash = %f, want 95000", lg.CashBalance())
	}
}

func TestAutoToggleEmitsOnlyOnChange(t *testing.T) {
	c, _, sink, _ := newTestController(t, Config{AutoTrading: false}, 100_000)

	c.SetAutoTrading(true)
	c.SetAutoTrading(true)
	if !c.AutoTrading() {
		t.Fatalf("gate not enabled")
	}
	if n := sink.countEvents(models.EventStatus); n != 1 {
		t.Fatalf("status events = %d, want 1 for repeated enable", n)
	}

	c.SetAutoTrading(false)
	if n := sink.countEvents(models.EventStatus); n != 2 {
		t.Fatalf("status events = %d, want 2 after disable", n)
	}
}

func TestStopLossBreachClosesPosition(t *testing.T) {
	c, lg, sink, _ := newTestController(t, Config{AutoTrading: true}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.4))
	if lg.OpenPositions() != 1 {
		t.Fatalf("setup: position not opened")
	}

	c.OnPriceTick(context.Background(), "BTC", 47_000)
	if lg.OpenPositions() != 0 {
		t.Fatalf("stop breach left the position open")
	}

	p := lg.Snapshot()
	last := p.TradeHistory[len(p.TradeHistory)-1]
	if last.Side != models.SideSell || last.RealizedPnL == nil || *last.RealizedPnL >= 0 {
		t.Fatalf("closing trade = %+v, want losing sell", last)
	}

	// A second tick with no position is a no-op.
	before := sink.countEvents(models.EventTrade)
	c.OnPriceTick(context.Background(), "BTC", 46_000)
	if sink.countEvents(models.EventTrade) != before {
		t.Fatalf("tick without position emitted a trade")
	}
}

func TestTargetBreachClosesPosition(t *testing.T) {
	c, lg, _, _ := newTestController(t, Config{AutoTrading: true}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.4))
	c.OnPriceTick(context.Background(), "BTC", 56_000)

	if lg.OpenPositions() != 0 {
		t.Fatalf("target breach left the position open")
	}
	p := lg.Snapshot()
	last := p.TradeHistory[len(p.TradeHistory)-1]
	if last.RealizedPnL == nil || *last.RealizedPnL <= 0 {
		t.Fatalf("target close pnl = %v, want positive", last.RealizedPnL)
	}
}

func TestTickBetweenStopAndTargetHolds(t *testing.T) {
	c, lg, _, _ := newTestController(t, Config{AutoTrading: true}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.4))
	c.OnPriceTick(context.Background(), "BTC", 51_000)

	if lg.OpenPositions() != 1 {
		t.Fatalf("in-range tick closed the position")
	}
}

// Concurrent manual executions must not slip past the position cap
// between the risk check and the ledger call.
func TestConcurrentExecutionsRespectPositionCap(t *testing.T) {
	const n = 16
	c, lg, _, _ := newTestController(t, Config{MaxOpenPositions: 1, Cooldown: time.Nanosecond}, 1_000_000)

	assets := []string{"BTC", "ETH", "SOL", "AVAX", "DOT", "LINK", "ADA", "XRP",
		"ATOM", "NEAR", "APT", "ARB", "OP", "SUI", "TIA", "INJ"}
	for i := 0; i < n; i++ {
		sig := testSignal(uint64(i+1), models.ActionBuy, 0.9, 0.4)
		sig.Asset = assets[i]
		c.HandleSignal(context.Background(), sig)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			if res := c.ExecuteSignal(context.Background(), id); res.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1 under cap", successes)
	}
	if lg.OpenPositions() != 1 {
		t.Fatalf("open positions = %d, want 1", lg.OpenPositions())
	}
}

func TestClosePositionManually(t *testing.T) {
	c, lg, _, _ := newTestController(t, Config{AutoTrading: true}, 100_000)

	c.HandleSignal(context.Background(), testSignal(1, models.ActionBuy, 0.9, 0.4))
	res := c.ClosePosition(context.Background(), "BTC")
	if !res.Success || res.Trade == nil {
		t.Fatalf("close failed: %s", res.Reason)
	}
	if lg.OpenPositions() != 0 {
		t.Fatalf("position survived manual close")
	}

	res = c.ClosePosition(context.Background(), "BTC")
	if res.Success || res.Reason != string(models.RejectNoOpenPosition) {
		t.Fatalf("double close: %+v", res)
	}
}
