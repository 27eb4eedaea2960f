package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"WhalePulse/internal/domain/models"
)

var (
	// ErrInsufficientFunds means a buy would drive the cash balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoOpenPosition means a sell/close referenced an asset with no position.
	ErrNoOpenPosition = errors.New("no open position")
)

// ExecRequest describes one requested mutation of the paper account.
type ExecRequest struct {
	Asset       string
	Side        models.TradeSide
	Quantity    float64
	Price       float64
	SignalID    uint64
	StopPrice   float64 // carried onto the position on buys
	TargetPrice float64
}

// Ledger is the authoritative store of cash, open positions and P&L for the
// single paper account. All mutations run under one lock: the account's cash
// is shared across assets, so a single lock domain is the correctness
// boundary. The critical section never performs I/O.
type Ledger struct {
	mu           sync.Mutex
	cash         float64
	realizedPnL  float64
	positions    map[string]models.Position
	trades       []models.Trade
	history      []models.BalancePoint
	lastPrice    map[string]float64
	nextTradeID  uint64
	historyLimit int
	now          func() time.Time
}

// New creates a ledger with the given starting cash balance.
func New(initialCash float64) *Ledger {
	l := &Ledger{
		cash:         initialCash,
		positions:    make(map[string]models.Position),
		lastPrice:    make(map[string]float64),
		historyLimit: 1000,
		now:          time.Now,
	}
	l.history = append(l.history, models.BalancePoint{Timestamp: l.now(), TotalValue: initialCash})
	return l
}

// Execute applies a buy or sell. Buys debit cash and open or extend the
// asset's position with average-entry blending; sells close the full
// position and realize P&L. Returns the appended trade.
func (l *Ledger) Execute(req ExecRequest) (*models.Trade, error) {
	if req.Quantity <= 0 || req.Price <= 0 {
		return nil, fmt.Errorf("invalid execution qty=%f price=%f", req.Quantity, req.Price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if req.Side == models.SideSell {
		return l.closeLocked(req.Asset, req.Price, req.SignalID)
	}

	cost := req.Quantity * req.Price
	if cost > l.cash {
		return nil, ErrInsufficientFunds
	}
	l.cash -= cost

	pos, ok := l.positions[req.Asset]
	if !ok {
		pos = models.Position{
			Asset:       req.Asset,
			Quantity:    req.Quantity,
			EntryPrice:  req.Price,
			OpenedAt:    l.now(),
			StopPrice:   req.StopPrice,
			TargetPrice: req.TargetPrice,
		}
	} else {
		// Add-on buy: blend the average entry, keep the earlier open time,
		// refresh exits from the newer signal when provided.
		totalCost := pos.EntryPrice*pos.Quantity + cost
		pos.Quantity += req.Quantity
		pos.EntryPrice = totalCost / pos.Quantity
		if req.StopPrice > 0 {
			pos.StopPrice = req.StopPrice
		}
		if req.TargetPrice > 0 {
			pos.TargetPrice = req.TargetPrice
		}
	}
	l.positions[req.Asset] = pos
	l.lastPrice[req.Asset] = req.Price

	t := l.appendTradeLocked(req.Asset, models.SideBuy, req.Quantity, req.Price, nil, req.SignalID)
	l.snapshotBalanceLocked()
	return t, nil
}

// Close exits the full position for an asset at the given price, realizing
// P&L against the blended entry.
func (l *Ledger) Close(asset string, exitPrice float64, signalID uint64) (*models.Trade, error) {
	if exitPrice <= 0 {
		return nil, fmt.Errorf("invalid exit price %f", exitPrice)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked(asset, exitPrice, signalID)
}

func (l *Ledger) closeLocked(asset string, exitPrice float64, signalID uint64) (*models.Trade, error) {
	pos, ok := l.positions[asset]
	if !ok {
		return nil, ErrNoOpenPosition
	}

	pnl := (exitPrice - pos.EntryPrice) * pos.Quantity
	l.cash += pos.Quantity * exitPrice
	l.realizedPnL += pnl
	delete(l.positions, asset)
	l.lastPrice[asset] = exitPrice

	t := l.appendTradeLocked(asset, models.SideSell, pos.Quantity, exitPrice, &pnl, signalID)
	l.snapshotBalanceLocked()
	return t, nil
}

// MarkToMarket records the current price for an asset and snapshots total
// portfolio value into the balance history.
func (l *Ledger) MarkToMarket(asset string, price float64) {
	if price <= 0 {
		return
	}
	l.mu.Lock()
	l.lastPrice[asset] = price
	l.snapshotBalanceLocked()
	l.mu.Unlock()
}

// Position returns the open position for an asset, if any.
func (l *Ledger) Position(asset string) (models.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[asset]
	return pos, ok
}

// LastPrice returns the most recent marked or traded price for an asset.
func (l *Ledger) LastPrice(asset string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	price, ok := l.lastPrice[asset]
	return price, ok
}

// OpenPositions returns the number of currently open positions.
func (l *Ledger) OpenPositions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// CashBalance returns the available cash.
func (l *Ledger) CashBalance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// TotalValue is cash plus open positions at their last marked price.
func (l *Ledger) TotalValue() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalValueLocked()
}

// Snapshot returns a read-only copy of the portfolio for broadcast and API
// reads. The copy shares nothing with ledger state.
func (l *Ledger) Snapshot() models.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := models.Portfolio{
		CashBalance:      l.cash,
		RealizedPnLTotal: l.realizedPnL,
		UnrealizedPnL:    l.unrealizedLocked(),
		TotalValue:       l.totalValueLocked(),
		Positions:        make(map[string]models.Position, len(l.positions)),
		TradeHistory:     make([]models.Trade, len(l.trades)),
		BalanceHistory:   make([]models.BalancePoint, len(l.history)),
	}
	for asset, pos := range l.positions {
		p.Positions[asset] = pos
	}
	copy(p.TradeHistory, l.trades)
	copy(p.BalanceHistory, l.history)
	return p
}

func (l *Ledger) appendTradeLocked(asset string, side models.TradeSide, qty, price float64, pnl *float64, signalID uint64) *models.Trade {
	l.nextTradeID++
	t := models.Trade{
		ID:          l.nextTradeID,
		Asset:       asset,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		Timestamp:   l.now(),
		RealizedPnL: pnl,
		SignalID:    signalID,
	}
	l.trades = append(l.trades, t)
	return &t
}

func (l *Ledger) totalValueLocked() float64 {
	total := l.cash
	for asset, pos := range l.positions {
		price, ok := l.lastPrice[asset]
		if !ok {
			price = pos.EntryPrice
		}
		total += pos.Quantity * price
	}
	return total
}

func (l *Ledger) unrealizedLocked() float64 {
	var pnl float64
	for asset, pos := range l.positions {
		price, ok := l.lastPrice[asset]
		if !ok {
			continue
		}
		pnl += (price - pos.EntryPrice) * pos.Quantity
	}
	return pnl
}

func (l *Ledger) snapshotBalanceLocked() {
	l.history = append(l.history, models.BalancePoint{
		Timestamp:  l.now(),
		TotalValue: l.totalValueLocked(),
	})
	if len(l.history) > l.historyLimit {
		l.history = l.history[len(l.history)-l.historyLimit:]
	}
}
