package models

// Requests for the trading command/read API. Defined in domain for
// consistency and reuse.

type ExecuteSignalRequest struct {
	SignalID uint64 `json:"signal_id" validate:"required,gt=0"`
}

type ClosePositionRequest struct {
	Asset string `json:"asset" validate:"required,min=2,max=16"`
}

type AutoTradingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type SignalsQueryRequest struct {
	Asset string `query:"asset" json:"asset"`
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

// CommandResult is the uniform outcome of manual trading commands.
type CommandResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Trade   *Trade `json:"trade,omitempty"`
}
