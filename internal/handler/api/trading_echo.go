package api

import (
	"encoding/json"
	"time"

	models "WhalePulse/internal/domain/models"
	domrepo "WhalePulse/internal/domain/repository"
	"WhalePulse/internal/ledger"
	"WhalePulse/internal/realtime"
	icache "WhalePulse/internal/service/cache"
	"WhalePulse/internal/trading"
	pkgcache "WhalePulse/pkg/cache"
	xhttp "WhalePulse/pkg/http"
	xlogger "WhalePulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

const signalsCacheTTL = 5 * time.Second

// TradingEchoHandler exposes the command and read API plus the websocket
// attach point.
type TradingEchoHandler struct {
	logger     *xlogger.Logger
	controller *trading.Controller
	ledger     *ledger.Ledger
	archive    domrepo.Archive
	hub        *realtime.Hub
	cache      icache.BytesCache
}

func NewTradingEchoHandler(
	logger *xlogger.Logger,
	controller *trading.Controller,
	lg *ledger.Ledger,
	archive domrepo.Archive,
	hub *realtime.Hub,
	cache icache.BytesCache,
) *TradingEchoHandler {
	return &TradingEchoHandler{
		logger:     logger,
		controller: controller,
		ledger:     lg,
		archive:    archive,
		hub:        hub,
		cache:      cache,
	}
}

func (h *TradingEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/trading/execute", h.Execute)
	g.POST("/trading/close", h.Close)
	g.POST("/trading/auto", h.AutoTrading)
	g.GET("/trading/status", h.Status)
	g.GET("/portfolio", h.Portfolio)
	g.GET("/signals", h.Signals)
	g.GET("/trades", h.Trades)
	g.GET("/health", h.Health)
	e.GET("/ws", h.WebSocket)
}

// Execute manually executes a tracked signal, bypassing the auto gate but
// not the risk checks.
func (h *TradingEchoHandler) Execute(c echo.Context) error {
	req := &models.ExecuteSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	// A rejection is a domain outcome, not an HTTP error.
	res := h.controller.ExecuteSignal(c.Request().Context(), req.SignalID)
	return xhttp.SuccessResponse(c, res)
}

// Close exits the open position for an asset at the last marked price.
func (h *TradingEchoHandler) Close(c echo.Context) error {
	req := &models.ClosePositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res := h.controller.ClosePosition(c.Request().Context(), req.Asset)
	return xhttp.SuccessResponse(c, res)
}

// AutoTrading flips the shared auto-execution gate.
func (h *TradingEchoHandler) AutoTrading(c echo.Context) error {
	req := &models.AutoTradingRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	h.controller.SetAutoTrading(*req.Enabled)
	return xhttp.SuccessResponse(c, map[string]bool{"auto_trading": h.controller.AutoTrading()})
}

// Status reports the controller's gate and per-asset execution states.
func (h *TradingEchoHandler) Status(c echo.Context) error {
	status := h.controller.Status()
	status["observers"] = h.hub.Observers()
	return xhttp.SuccessResponse(c, status)
}

// Portfolio returns a consistent snapshot of the paper account.
func (h *TradingEchoHandler) Portfolio(c echo.Context) error {
	snap := h.ledger.Snapshot()
	return xhttp.SuccessResponse(c, &snap)
}

// Signals lists recent signals from the archive, with a short-lived cache in
// front of ClickHouse.
func (h *TradingEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalsQueryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	key := pkgcache.GenerateKeyWithParams("signals", req.Asset, req.Limit)
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(key); err == nil && ok {
			var cached []*models.Signal
			if json.Unmarshal(b, &cached) == nil {
				return xhttp.SuccessResponse(c, cached)
			}
		}
	}

	signals, err := h.archive.RecentSignals(c.Request().Context(), req.Asset, req.Limit)
	if err != nil {
		h.logger.Error("signals query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if h.cache != nil {
		if b, err := json.Marshal(signals); err == nil {
			_ = h.cache.SetBytes(key, b, signalsCacheTTL)
		}
	}
	return xhttp.SuccessResponse(c, signals)
}

// Trades lists executed trades inside a time window, oldest first.
// from/to accept RFC3339 or unix seconds; the window defaults to the
// last 24 hours.
func (h *TradingEchoHandler) Trades(c echo.Context) error {
	now := time.Now().UTC()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	trades, err := h.archive.TradesBetween(c.Request().Context(), c.QueryParam("asset"), from, to, limit)
	if err != nil {
		h.logger.Error("trades query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, trades)
}

// Health checks archive connectivity.
func (h *TradingEchoHandler) Health(c echo.Context) error {
	if err := h.archive.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// WebSocket attaches the connection to the broadcast hub.
func (h *TradingEchoHandler) WebSocket(c echo.Context) error {
	h.hub.HandleWebSocket(c.Response(), c.Request())
	return nil
}
