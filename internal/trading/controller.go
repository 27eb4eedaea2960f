package trading

import (
	"context"
	"errors"
	"sync"
	"time"

	"WhalePulse/internal/domain/models"
	"WhalePulse/internal/domain/repository"
	"WhalePulse/internal/ledger"
	"WhalePulse/pkg/logger"
)

// Sink receives the controller's outbound events and alerts. Both calls are
// fire-and-forget: a slow observer or channel never blocks execution.
type Sink interface {
	PublishEvent(t models.EventType, asset string, payload any)
	Notify(kind string, priority models.AlertPriority, payload any)
}

// Config holds the controller's risk limits.
type Config struct {
	MinConfidence    float64       // signals under this are rejected
	MaxRiskScore     float64       // signals over this are rejected
	MaxOpenPositions int           // cap on concurrently open positions
	PositionFraction float64       // buy notional as a fraction of portfolio value
	Cooldown         time.Duration // minimum gap between executions per asset
	AutoTrading      bool          // initial state of the auto gate
}

func (c Config) withDefaults() Config {
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.7
	}
	if c.MaxRiskScore == 0 {
		c.MaxRiskScore = 0.85
	}
	if c.MaxOpenPositions == 0 {
		c.MaxOpenPositions = 10
	}
	if c.PositionFraction == 0 {
		c.PositionFraction = 0.05
	}
	if c.Cooldown == 0 {
		c.Cooldown = 15 * time.Minute
	}
	return c
}

// assetState is the per-asset execution state machine snapshot:
// idle -> pending_execution -> executed | rejected -> idle.
type assetState struct {
	State  string              `json:"state"`
	Reason models.RejectReason `json:"reason,omitempty"`
	At     time.Time           `json:"at"`
}

// Controller consumes signals, applies risk checks in a fixed order, and
// executes against the ledger or rejects with a reason. It also owns the
// auto-trading gate and the stop/target breach monitor.
type Controller struct {
	cfg     Config
	ledger  *ledger.Ledger
	sink    Sink
	metrics repository.Metrics
	log     *logger.Logger

	mu       sync.Mutex
	auto     bool
	lastExec map[string]time.Time
	states   map[string]assetState
	signals  map[uint64]*models.Signal // recent signals addressable by manual execution
	order    []uint64                  // insertion order for pruning
	now      func() time.Time

	// execMu serializes evaluate: the position, funds, and cooldown gates
	// stay valid through the ledger call even when a manual command races
	// the auto path.
	execMu sync.Mutex
}

const trackedSignals = 1024

func NewController(cfg Config, lg *ledger.Ledger, sink Sink, metrics repository.Metrics, log *logger.Logger) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:      cfg,
		ledger:   lg,
		sink:     sink,
		metrics:  metrics,
		log:      log,
		auto:     cfg.AutoTrading,
		lastExec: make(map[string]time.Time),
		states:   make(map[string]assetState),
		signals:  make(map[uint64]*models.Signal),
		now:      time.Now,
	}
}

// HandleSignal ingests a freshly scored signal. The signal is always
// published and tracked for manual execution; the auto gate decides whether
// it is evaluated now. The gate is read once, so a toggle is effective only
// for signals arriving after it completes.
func (c *Controller) HandleSignal(ctx context.Context, sig *models.Signal) {
	c.mu.Lock()
	c.track(sig)
	auto := c.auto
	c.mu.Unlock()

	c.metrics.RecordSignal(string(sig.Kind))
	c.sink.PublishEvent(models.EventSignal, sig.Asset, sig)
	c.sink.Notify(models.AlertSignalCreated, signalPriority(sig), sig)

	if !auto {
		return
	}
	c.evaluate(ctx, sig)
}

// ExecuteSignal is the manual execution command. It bypasses the
// auto-trading gate but still passes every risk check.
func (c *Controller) ExecuteSignal(ctx context.Context, signalID uint64) models.CommandResult {
	c.mu.Lock()
	sig, ok := c.signals[signalID]
	c.mu.Unlock()
	if !ok {
		return models.CommandResult{Success: false, Reason: "unknown signal id"}
	}
	return c.evaluate(ctx, sig)
}

// ClosePosition manually exits an open position at the last marked price.
func (c *Controller) ClosePosition(ctx context.Context, asset string) models.CommandResult {
	price, ok := c.ledger.LastPrice(asset)
	if !ok {
		return models.CommandResult{Success: false, Reason: string(models.RejectNoOpenPosition)}
	}
	trade, err := c.ledger.Close(asset, price, 0)
	if err != nil {
		if errors.Is(err, ledger.ErrNoOpenPosition) {
			return models.CommandResult{Success: false, Reason: string(models.RejectNoOpenPosition)}
		}
		return models.CommandResult{Success: false, Reason: err.Error()}
	}

	c.markExecuted(asset)
	c.metrics.RecordTrade(string(trade.Side))
	c.publishTrade(asset, trade)
	c.sink.Notify(models.AlertPositionClosed, models.PriorityHigh, trade)
	c.log.Info("position closed manually",
		logger.String("asset", asset), logger.Float64("pnl", deref(trade.RealizedPnL)))
	return models.CommandResult{Success: true, Trade: trade}
}

// SetAutoTrading flips the shared gate. Repeated sets to the same value are
// observationally idempotent: state events fire only on change.
func (c *Controller) SetAutoTrading(enabled bool) {
	c.mu.Lock()
	changed := c.auto != enabled
	c.auto = enabled
	c.mu.Unlock()

	if !changed {
		return
	}
	c.log.Info("auto-trading toggled", logger.Bool("enabled", enabled))
	c.sink.PublishEvent(models.EventStatus, "", map[string]any{"auto_trading": enabled})
	c.sink.Notify(models.AlertSystemWarning, models.PriorityMedium,
		map[string]any{"auto_trading": enabled})
}

// AutoTrading reports the current gate state.
func (c *Controller) AutoTrading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto
}

// OnPriceTick marks the asset to market and closes positions whose stop or
// target was breached. Breach handling runs before any new signal for the
// asset in the same cycle, which makes the breach-vs-signal race
// deterministic.
func (c *Controller) OnPriceTick(ctx context.Context, asset string, price float64) {
	c.ledger.MarkToMarket(asset, price)
	c.metrics.RecordLastPrice(asset, price)

	pos, ok := c.ledger.Position(asset)
	if !ok {
		return
	}

	var cause string
	switch {
	case pos.StopPrice > 0 && price <= pos.StopPrice:
		cause = "stop_loss"
	case pos.TargetPrice > 0 && price >= pos.TargetPrice:
		cause = "target_reached"
	default:
		return
	}

	trade, err := c.ledger.Close(asset, price, 0)
	if err != nil {
		// Lost the race with a concurrent close; nothing to unwind.
		return
	}
	c.markExecuted(asset)
	c.metrics.RecordTrade(string(trade.Side))
	c.publishTrade(asset, trade)
	c.sink.Notify(models.AlertPositionClosed, models.PriorityHigh, map[string]any{
		"trade": trade,
		"cause": cause,
	})
	c.log.Info("exit triggered",
		logger.String("asset", asset),
		logger.String("cause", cause),
		logger.Float64("price", price),
		logger.Float64("pnl", deref(trade.RealizedPnL)))
}

// Status reports the gate and per-asset machine states for the API.
func (c *Controller) Status() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	states := make(map[string]assetState, len(c.states))
	for k, v := range c.states {
		states[k] = v
	}
	return map[string]any{
		"auto_trading":    c.auto,
		"asset_states":    states,
		"tracked_signals": len(c.signals),
	}
}

// evaluate runs the risk checks in order (first failure wins) and executes
// or rejects.
func (c *Controller) evaluate(ctx context.Context, sig *models.Signal) models.CommandResult {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.setState(sig.Asset, "pending_execution", "")

	if reason, ok := c.riskCheck(sig); !ok {
		return c.reject(sig, reason)
	}

	var (
		trade *models.Trade
		err   error
	)
	switch sig.Action {
	case models.ActionBuy:
		qty := c.buyQuantity(sig)
		trade, err = c.ledger.Execute(ledger.ExecRequest{
			Asset:       sig.Asset,
			Side:        models.SideBuy,
			Quantity:    qty,
			Price:       sig.EntryPrice,
			SignalID:    sig.ID,
			StopPrice:   sig.StopPrice,
			TargetPrice: sig.TargetPrice,
		})
	case models.ActionSell:
		price := sig.EntryPrice
		if last, ok := c.ledger.LastPrice(sig.Asset); ok {
			price = last
		}
		trade, err = c.ledger.Close(sig.Asset, price, sig.ID)
	default:
		return c.reject(sig, models.RejectLowConfidence)
	}

	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return c.reject(sig, models.RejectInsufficientFunds)
		case errors.Is(err, ledger.ErrNoOpenPosition):
			return c.reject(sig, models.RejectNoOpenPosition)
		default:
			c.log.Error("ledger execution failed", logger.Error(err),
				logger.Uint64("signal_id", sig.ID))
			return c.reject(sig, models.RejectRiskLimitExceeded)
		}
	}

	c.markExecuted(sig.Asset)
	c.setState(sig.Asset, "executed", "")
	c.metrics.RecordTrade(string(trade.Side))
	c.publishTrade(sig.Asset, trade)
	c.sink.Notify(models.AlertTradeExecuted, models.PriorityHigh, trade)
	c.log.Info("signal executed",
		logger.Uint64("signal_id", sig.ID),
		logger.String("asset", sig.Asset),
		logger.String("side", string(trade.Side)),
		logger.Float64("qty", trade.Quantity),
		logger.Float64("price", trade.Price))
	return models.CommandResult{Success: true, Trade: trade}
}

// riskCheck applies the eligibility gates in their fixed order.
func (c *Controller) riskCheck(sig *models.Signal) (models.RejectReason, bool) {
	if sig.Confidence < c.cfg.MinConfidence {
		return models.RejectLowConfidence, false
	}
	if sig.RiskScore > c.cfg.MaxRiskScore {
		return models.RejectRiskLimitExceeded, false
	}

	if sig.Action == models.ActionBuy {
		if _, exists := c.ledger.Position(sig.Asset); !exists &&
			c.ledger.OpenPositions() >= c.cfg.MaxOpenPositions {
			return models.RejectMaxPositionsReached, false
		}
		if c.buyQuantity(sig)*sig.EntryPrice > c.ledger.CashBalance() {
			return models.RejectInsufficientFunds, false
		}
	} else {
		if _, exists := c.ledger.Position(sig.Asset); !exists {
			return models.RejectNoOpenPosition, false
		}
	}

	c.mu.Lock()
	last, seen := c.lastExec[sig.Asset]
	c.mu.Unlock()
	if seen && c.now().Sub(last) < c.cfg.Cooldown {
		return models.RejectCooldownActive, false
	}
	return "", true
}

// buyQuantity sizes a buy as the configured fraction of total portfolio
// value at the signal's entry price.
func (c *Controller) buyQuantity(sig *models.Signal) float64 {
	notional := c.ledger.TotalValue() * c.cfg.PositionFraction
	return notional / sig.EntryPrice
}

func (c *Controller) reject(sig *models.Signal, reason models.RejectReason) models.CommandResult {
	c.setState(sig.Asset, "rejected", reason)
	c.metrics.RecordRejection(string(reason))
	c.sink.PublishEvent(models.EventRejection, sig.Asset, &models.Rejection{Signal: sig, Reason: reason})
	c.sink.Notify(models.AlertSignalRejected, models.PriorityLow, &models.Rejection{Signal: sig, Reason: reason})
	c.log.Debug("signal rejected",
		logger.Uint64("signal_id", sig.ID),
		logger.String("asset", sig.Asset),
		logger.String("reason", string(reason)))
	return models.CommandResult{Success: false, Reason: string(reason)}
}

func (c *Controller) publishTrade(asset string, trade *models.Trade) {
	c.sink.PublishEvent(models.EventTrade, asset, trade)
	snapshot := c.ledger.Snapshot()
	c.sink.PublishEvent(models.EventPortfolio, asset, &snapshot)
}

func (c *Controller) markExecuted(asset string) {
	c.mu.Lock()
	c.lastExec[asset] = c.now()
	c.mu.Unlock()
}

func (c *Controller) setState(asset, state string, reason models.RejectReason) {
	c.mu.Lock()
	c.states[asset] = assetState{State: state, Reason: reason, At: c.now()}
	c.mu.Unlock()
}

// track remembers a signal for manual execution, pruning oldest first.
func (c *Controller) track(sig *models.Signal) {
	c.signals[sig.ID] = sig
	c.order = append(c.order, sig.ID)
	for len(c.order) > trackedSignals {
		delete(c.signals, c.order[0])
		c.order = c.order[1:]
	}
}

func signalPriority(sig *models.Signal) models.AlertPriority {
	switch {
	case sig.Kind == models.KindFOMOWarning:
		return models.PriorityCritical
	case sig.Confidence >= 0.8:
		return models.PriorityHigh
	default:
		return models.PriorityMedium
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
