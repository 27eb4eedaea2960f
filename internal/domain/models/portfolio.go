package models

import "time"

// TradeSide is the executed direction of a paper trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Position is an open paper holding. At most one open position per asset;
// quantity is strictly positive while the position exists.
type Position struct {
	Asset       string    `json:"asset"`
	Quantity    float64   `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"` // average across add-on buys
	OpenedAt    time.Time `json:"opened_at"`
	StopPrice   float64   `json:"stop_price"`
	TargetPrice float64   `json:"target_price"`
}

// Trade is an append-only ledger entry. RealizedPnL is set only on closing
// trades; SignalID references the signal that triggered the execution, zero
// for stop/target closes.
type Trade struct {
	ID          uint64    `json:"id"`
	Asset       string    `json:"asset"`
	Side        TradeSide `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Timestamp   time.Time `json:"timestamp"`
	RealizedPnL *float64  `json:"realized_pnl,omitempty"`
	SignalID    uint64    `json:"signal_id,omitempty"`
}

// BalancePoint is one sample of total portfolio value over time.
type BalancePoint struct {
	Timestamp  time.Time `json:"timestamp"`
	TotalValue float64   `json:"total_value"`
}

// Portfolio is a read-only snapshot of the single paper account.
// total value = cash + sum(position qty x last mark price).
type Portfolio struct {
	CashBalance      float64             `json:"cash_balance"`
	RealizedPnLTotal float64             `json:"realized_pnl_total"`
	UnrealizedPnL    float64             `json:"unrealized_pnl"`
	TotalValue       float64             `json:"total_value"`
	Positions        map[string]Position `json:"positions"`
	TradeHistory     []Trade             `json:"trade_history"`
	BalanceHistory   []BalancePoint      `json:"balance_history"`
}
