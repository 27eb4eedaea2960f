package models

import "time"

// SignalKind identifies which fusion rule produced a signal.
type SignalKind string

const (
	KindEarlyAccumulation SignalKind = "early_accumulation" // whales buying, social still quiet
	KindMomentumBuild     SignalKind = "momentum_build"     // sentiment rising with whale backing
	KindFOMOWarning       SignalKind = "fomo_warning"       // social buzz peaking, whales exiting
	KindContrarianPlay    SignalKind = "contrarian_play"    // negative sentiment, heavy accumulation
)

// SignalAction is the recommended trade direction.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
	ActionHold SignalAction = "hold"
)

// Signal is a generated trading recommendation. IDs are strictly increasing
// across assets; a signal is read-only after creation and referenced by at
// most one resulting trade.
type Signal struct {
	ID          uint64       `json:"id"`
	Asset       string       `json:"asset"`
	Kind        SignalKind   `json:"kind"`
	Action      SignalAction `json:"action"`
	Confidence  float64      `json:"confidence"` // [0, 1]
	RiskScore   float64      `json:"risk_score"` // [0, 1]
	EntryPrice  float64      `json:"entry_price"`
	TargetPrice float64      `json:"target_price"`
	StopPrice   float64      `json:"stop_price"`
	Reasoning   string       `json:"reasoning"`
	CreatedAt   time.Time    `json:"created_at"`
}

// RejectReason explains why the controller refused a signal.
type RejectReason string

const (
	RejectLowConfidence       RejectReason = "low_confidence"
	RejectRiskLimitExceeded   RejectReason = "risk_limit_exceeded"
	RejectMaxPositionsReached RejectReason = "max_positions_reached"
	RejectInsufficientFunds   RejectReason = "insufficient_funds"
	RejectNoOpenPosition      RejectReason = "no_open_position"
	RejectCooldownActive      RejectReason = "cooldown_active"
)

// Rejection pairs a refused signal with its reason for broadcast.
type Rejection struct {
	Signal *Signal      `json:"signal"`
	Reason RejectReason `json:"reason"`
}
