package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"WhalePulse/internal/domain/models"
	domrepo "WhalePulse/internal/domain/repository"
	pkgch "WhalePulse/pkg/clickhouse"
	applogger "WhalePulse/pkg/logger"
)

// CHArchive implements Archive backed by ClickHouse. All tables are
// append-only; alert delivery state is versioned through a ReplacingMergeTree
// keyed by alert id, so "updates" are just newer inserts.
type CHArchive struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHArchive(ch *pkgch.Client) *CHArchive {
	return &CHArchive{ch: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (a *CHArchive) SetLogger(l *applogger.Logger) { a.l = l }

var schema = []string{
	`CREATE DATABASE IF NOT EXISTS whalepulse`,
	`CREATE TABLE IF NOT EXISTS whalepulse.signals (
		id UInt64,
		asset String,
		kind String,
		action String,
		confidence Float64,
		risk_score Float64,
		entry_price Float64,
		target_price Float64,
		stop_price Float64,
		reasoning String,
		created_at DateTime64(3)
	) ENGINE = MergeTree ORDER BY (asset, created_at)`,
	`CREATE TABLE IF NOT EXISTS whalepulse.trades (
		id UInt64,
		asset String,
		side String,
		quantity Float64,
		price Float64,
		ts DateTime64(3),
		realized_pnl Nullable(Float64),
		signal_id UInt64
	) ENGINE = MergeTree ORDER BY (asset, ts)`,
	`CREATE TABLE IF NOT EXISTS whalepulse.alerts (
		id UInt64,
		priority String,
		kind String,
		payload String,
		created_at DateTime64(3),
		delivery_attempts UInt32,
		delivered UInt8,
		last_error String
	) ENGINE = ReplacingMergeTree(delivery_attempts) ORDER BY id`,
	`CREATE TABLE IF NOT EXISTS whalepulse.portfolio_snapshots (
		at DateTime64(3),
		cash Float64,
		realized_pnl Float64,
		unrealized_pnl Float64,
		total_value Float64,
		open_positions UInt32
	) ENGINE = MergeTree ORDER BY at`,
}

// Init ensures the database and tables exist (idempotent).
func (a *CHArchive) Init(ctx context.Context) error {
	return a.ch.InitSchema(ctx, schema)
}

func (a *CHArchive) SaveSignal(ctx context.Context, s *models.Signal) error {
	const q = `INSERT INTO whalepulse.signals
		(id, asset, kind, action, confidence, risk_score, entry_price, target_price, stop_price, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := a.db.ExecContext(ctx, q,
		s.ID, s.Asset, string(s.Kind), string(s.Action), s.Confidence, s.RiskScore,
		s.EntryPrice, s.TargetPrice, s.StopPrice, s.Reasoning, s.CreatedAt)
	if err != nil {
		a.logErr("save_signal", err, applogger.Uint64("signal_id", s.ID))
		return fmt.Errorf("save signal: %w", err)
	}
	return nil
}

func (a *CHArchive) SaveTrade(ctx context.Context, t *models.Trade) error {
	const q = `INSERT INTO whalepulse.trades
		(id, asset, side, quantity, price, ts, realized_pnl, signal_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := a.db.ExecContext(ctx, q,
		t.ID, t.Asset, string(t.Side), t.Quantity, t.Price, t.Timestamp, t.RealizedPnL, t.SignalID)
	if err != nil {
		a.logErr("save_trade", err, applogger.Uint64("trade_id", t.ID))
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

func (a *CHArchive) SaveAlert(ctx context.Context, rec *models.AlertRecord) error {
	return a.insertAlert(ctx, rec)
}

// UpdateAlertDelivery inserts a newer version of the alert row; the
// ReplacingMergeTree keeps the highest delivery_attempts per id.
func (a *CHArchive) UpdateAlertDelivery(ctx context.Context, rec *models.AlertRecord) error {
	return a.insertAlert(ctx, rec)
}

func (a *CHArchive) insertAlert(ctx context.Context, rec *models.AlertRecord) error {
	const q = `INSERT INTO whalepulse.alerts
		(id, priority, kind, payload, created_at, delivery_attempts, delivered, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	delivered := uint8(0)
	if rec.Delivered {
		delivered = 1
	}
	_, err := a.db.ExecContext(ctx, q,
		rec.ID, string(rec.Priority), rec.Kind, rec.Payload, rec.CreatedAt,
		uint32(rec.DeliveryAttempts), delivered, rec.LastError)
	if err != nil {
		a.logErr("save_alert", err, applogger.Uint64("alert_id", rec.ID))
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

func (a *CHArchive) SaveSnapshot(ctx context.Context, p *models.Portfolio, at time.Time) error {
	const q = `INSERT INTO whalepulse.portfolio_snapshots
		(at, cash, realized_pnl, unrealized_pnl, total_value, open_positions)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := a.db.ExecContext(ctx, q,
		at, p.CashBalance, p.RealizedPnLTotal, p.UnrealizedPnL, p.TotalValue, uint32(len(p.Positions)))
	if err != nil {
		a.logErr("save_snapshot", err)
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// RecentSignals returns up to limit signals, newest last. An empty asset
// matches all assets.
func (a *CHArchive) RecentSignals(ctx context.Context, asset string, limit int) ([]*models.Signal, error) {
	start := time.Now()
	q := `SELECT id, asset, kind, action, confidence, risk_score, entry_price, target_price, stop_price, reasoning, created_at
		FROM whalepulse.signals`
	args := []any{}
	if asset != "" {
		q += ` WHERE asset = ?`
		args = append(args, asset)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		a.logErr("recent_signals", err, applogger.String("asset", asset))
		return nil, fmt.Errorf("recent signals: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Signal, 0, limit)
	for rows.Next() {
		var s models.Signal
		var kind, action string
		if err := rows.Scan(&s.ID, &s.Asset, &kind, &action, &s.Confidence, &s.RiskScore,
			&s.EntryPrice, &s.TargetPrice, &s.StopPrice, &s.Reasoning, &s.CreatedAt); err != nil {
			a.logErr("recent_signals_scan", err, applogger.String("asset", asset))
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Kind = models.SignalKind(kind)
		s.Action = models.SignalAction(action)
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if a.l != nil {
		a.l.Debug("clickhouse recent_signals ok",
			applogger.String("asset", asset),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return out, nil
}

// TradesBetween returns executed trades with ts in [from, to), oldest
// first. An empty asset matches all assets.
func (a *CHArchive) TradesBetween(ctx context.Context, asset string, from, to time.Time, limit int) ([]*models.Trade, error) {
	q := `SELECT id, asset, side, quantity, price, ts, realized_pnl, signal_id
		FROM whalepulse.trades
		WHERE ts >= ? AND ts < ?`
	args := []any{from, to}
	if asset != "" {
		q += ` AND asset = ?`
		args = append(args, asset)
	}
	q += ` ORDER BY ts ASC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		a.logErr("trades_between", err, applogger.String("asset", asset))
		return nil, fmt.Errorf("trades between: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Trade, 0, limit)
	for rows.Next() {
		var t models.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.Asset, &side, &t.Quantity, &t.Price,
			&t.Timestamp, &t.RealizedPnL, &t.SignalID); err != nil {
			a.logErr("trades_between_scan", err, applogger.String("asset", asset))
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = models.TradeSide(side)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// LastSignalID returns the highest persisted signal id, for seeding the
// in-process counter after a restart.
func (a *CHArchive) LastSignalID(ctx context.Context) (uint64, error) {
	var id uint64
	err := a.db.QueryRowContext(ctx, `SELECT max(id) FROM whalepulse.signals`).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("last signal id: %w", err)
	}
	return id, nil
}

func (a *CHArchive) Health(ctx context.Context) error {
	return a.ch.Health(ctx)
}

func (a *CHArchive) Close() error {
	return a.ch.Close()
}

func (a *CHArchive) logErr(op string, err error, fields ...applogger.Field) {
	if a.l == nil {
		return
	}
	fields = append(fields, applogger.Error(err))
	a.l.Error("clickhouse "+op+" error", fields...)
}

var _ domrepo.Archive = (*CHArchive)(nil)
