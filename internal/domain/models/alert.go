package models

import "time"

// AlertPriority orders alerts for channel routing.
type AlertPriority string

const (
	PriorityLow      AlertPriority = "low"
	PriorityMedium   AlertPriority = "medium"
	PriorityHigh     AlertPriority = "high"
	PriorityCritical AlertPriority = "critical"
)

// Alert kinds emitted by the core pipeline.
const (
	AlertSignalCreated  = "signal_created"
	AlertTradeExecuted  = "trade_executed"
	AlertSignalRejected = "signal_rejected"
	AlertPositionClosed = "position_closed"
	AlertSystemWarning  = "system_warning"
)

// AlertRecord tracks one notable event through delivery. Append-only with
// in-place delivery accounting; never deleted.
type AlertRecord struct {
	ID               uint64        `json:"id"`
	Priority         AlertPriority `json:"priority"`
	Kind             string        `json:"kind"`
	Payload          string        `json:"payload"`
	CreatedAt        time.Time     `json:"created_at"`
	DeliveryAttempts int           `json:"delivery_attempts"`
	Delivered        bool          `json:"delivered"`
	LastError        string        `json:"last_error,omitempty"`
}
