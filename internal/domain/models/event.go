package models

import "time"

// EventType tags a broadcast envelope.
type EventType string

const (
	EventSignal    EventType = "signal"
	EventTrade     EventType = "trade"
	EventRejection EventType = "rejection"
	EventPortfolio EventType = "portfolio"
	EventAlert     EventType = "alert"
	EventPrice     EventType = "price"
	EventStatus    EventType = "status"
)

// Event is the envelope pushed to observers and mirrored to the events
// topic. Seq is assigned by the hub in emission order.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    EventType `json:"type"`
	Asset   string    `json:"asset,omitempty"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}
