package ledger

import (
	"math"
	"sync"
	"testing"

	"WhalePulse/internal/domain/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuyThenCloseRealizesPnL(t *testing.T) {
	l := New(100_000)

	trade, err := l.Execute(ExecRequest{
		Asset:    "BTC",
		Side:     models.SideBuy,
		Quantity: 0.1,
		Price:    50_000,
		SignalID: 7,
	})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if trade.Side != models.SideBuy || trade.RealizedPnL != nil {
		t.Fatalf("unexpected buy trade %+v", trade)
	}
	if !almostEqual(l.CashBalance(), 95_000) {
		t.Fatalf("cash after buy = %f, want 95000", l.CashBalance())
	}

	closing, err := l.Close("BTC", 54_000, 9)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if closing.RealizedPnL == nil || !almostEqual(*closing.RealizedPnL, 400) {
		t.Fatalf("realized pnl = %v, want 400", closing.RealizedPnL)
	}
	if !almostEqual(l.CashBalance(), 100_400) {
		t.Fatalf("cash after close = %f, want 100400", l.CashBalance())
	}
	if !almostEqual(l.TotalValue(), 100_400) {
		t.Fatalf("total value = %f, want 100400", l.TotalValue())
	}
	if _, open := l.Position("BTC"); open {
		t.Fatalf("position still open after close")
	}
}

func TestRoundTripAtSamePriceIsFlat(t *testing.T) {
	l := New(10_000)

	if _, err := l.Execute(ExecRequest{Asset: "ETH", Side: models.SideBuy, Quantity: 2, Price: 1_500}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	trade, err := l.Close("ETH", 1_500, 0)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if trade.RealizedPnL == nil || !almostEqual(*trade.RealizedPnL, 0) {
		t.Fatalf("realized pnl = %v, want 0", trade.RealizedPnL)
	}
	if !almostEqual(l.CashBalance(), 10_000) {
		t.Fatalf("cash = %f, want pre-buy 10000", l.CashBalance())
	}
}

func TestBuyInsufficientFunds(t *testing.T) {
	l := New(100)

	_, err := l.Execute(ExecRequest{Asset: "BTC", Side: models.SideBuy, Quantity: 1, Price: 200})
	if err != ErrInsufficientFunds {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if !almostEqual(l.CashBalance(), 100) {
		t.Fatalf("cash changed on rejected buy: %f", l.CashBalance())
	}
	if l.OpenPositions() != 0 {
		t.Fatalf("position opened on rejected buy")
	}
}

func TestCloseWithoutPosition(t *testing.T) {
	l := New(1_000)
	if _, err := l.Close("BTC", 100, 0); err != ErrNoOpenPosition {
		t.Fatalf("err = %v, want ErrNoOpenPosition", err)
	}
}

func TestInvalidExecutionParams(t *testing.T) {
	l := New(1_000)
	if _, err := l.Execute(ExecRequest{Asset: "BTC", Side: models.SideBuy, Quantity: 0, Price: 100}); err == nil {
		t.Fatalf("zero quantity accepted")
	}
	if _, err := l.Execute(ExecRequest{Asset: "BTC", Side: models.SideBuy, Quantity: 1, Price: -5}); err == nil {
		t.Fatalf("negative price accepted")
	}
}

func TestAddOnBuyBlendsAverageEntry(t *testing.T) {
	l := New(10_000)

	if _, err := l.Execute(ExecRequest{Asset: "SOL", Side: models.SideBuy, Quantity: 10, Price: 100}); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if _, err := l.Execute(ExecRequest{Asset: "SOL", Side: models.SideBuy, Quantity: 10, Price: 200, StopPrice: 140, TargetPrice: 260}); err != nil {
		t.Fatalf("add-on buy: %v", err)
	}

	pos, ok := l.Position("SOL")
	if !ok {
		t.Fatalf("position missing")
	}
	if !almostEqual(pos.Quantity, 20) || !almostEqual(pos.EntryPrice, 150) {
		t.Fatalf("blended position = %+v, want qty 20 entry 150", pos)
	}
	if !almostEqual(pos.StopPrice, 140) || !almostEqual(pos.TargetPrice, 260) {
		t.Fatalf("exits not refreshed: %+v", pos)
	}

	trade, err := l.Close("SOL", 150, 0)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !almostEqual(*trade.RealizedPnL, 0) {
		t.Fatalf("pnl at blended entry = %f, want 0", *trade.RealizedPnL)
	}
}

func TestMarkToMarketUnrealized(t *testing.T) {
	l := New(10_000)
	if _, err := l.Execute(ExecRequest{Asset: "BTC", Side: models.SideBuy, Quantity: 1, Price: 1_000}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	l.MarkToMarket("BTC", 1_100)

	p := l.Snapshot()
	if !almostEqual(p.UnrealizedPnL, 100) {
		t.Fatalf("unrealized = %f, want 100", p.UnrealizedPnL)
	}
	if !almostEqual(p.TotalValue, 10_100) {
		t.Fatalf("total value = %f, want 10100", p.TotalValue)
	}
}

func TestSnapshotSharesNothing(t *testing.T) {
	l := New(10_000)
	if _, err := l.Execute(ExecRequest{Asset: "BTC", Side: models.SideBuy, Quantity: 1, Price: 100}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	p := l.Snapshot()
	delete(p.Positions, "BTC")
	p.TradeHistory[0].Quantity = 999

	if _, ok := l.Position("BTC"); !ok {
		t.Fatalf("mutating snapshot removed the live position")
	}
	if q := l.Snapshot().TradeHistory[0].Quantity; !almostEqual(q, 1) {
		t.Fatalf("mutating snapshot changed trade history: %f", q)
	}
}

// Concurrent buys against limited cash must never drive the balance
// negative; exactly the affordable number of executions succeed.
func TestConcurrentBuysPreserveCash(t *testing.T) {
	l := New(1_000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Execute(ExecRequest{Asset: "BTC", Side: models.SideBuy, Quantity: 1, Price: 30})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if err != ErrInsufficientFunds {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 33 {
		t.Fatalf("succeeded = %d, want 33", succeeded)
	}
	want := 1_000 - 30*float64(succeeded)
	if l.CashBalance() < 0 || !almostEqual(l.CashBalance(), want) {
		t.Fatalf("cash = %f, want %f", l.CashBalance(), want)
	}
}
