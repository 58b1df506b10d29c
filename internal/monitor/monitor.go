package monitor

import (
	"context"
	"time"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/position"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// PriceSource resolves the current underlying price.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// CloseGateway is the order surface the monitor needs to unwind
// positions.
type CloseGateway interface {
	CloseLeg(ctx context.Context, order contracts.LegOrder) (contracts.OrderResult, error)
	Connected(ctx context.Context) bool
}

// ExitStore persists exits and position snapshots.
type ExitStore interface {
	SaveExit(ctx context.Context, event contracts.ExitEvent) error
	SavePosition(ctx context.Context, p contracts.Position) error
	DeletePosition(ctx context.Context, symbol string) error
}

// Notifier delivers exit alerts.
type Notifier interface {
	NotifyExit(ctx context.Context, event contracts.ExitEvent) error
}

// ClosedHook runs after a position fully closes, e.g. to drop its feed
// subscription.
type ClosedHook func(symbol string)

// Monitor polls open positions and closes them on ATR stops, profit
// targets and trailing stops. It runs on its own goroutine beside the
// entry scheduler; the position book is the shared state between them.
type Monitor struct {
	cfg      *strategy.Config
	book     *position.Book
	prices   PriceSource
	gateway  CloseGateway
	store    ExitStore
	notifier Notifier
	logger   *logger.Logger
	onClosed ClosedHook

	interval time.Duration
}

// New creates the exit monitor.
func New(
	cfg *strategy.Config,
	book *position.Book,
	prices PriceSource,
	gateway CloseGateway,
	store ExitStore,
	notifier Notifier,
	log *logger.Logger,
) *Monitor {
	return &Monitor{
		cfg:      cfg,
		book:     book,
		prices:   prices,
		gateway:  gateway,
		store:    store,
		notifier: notifier,
		logger:   log,
		interval: cfg.MonitorInterval(),
	}
}

// SetClosedHook registers the post-close callback.
func (m *Monitor) SetClosedHook(hook ClosedHook) {
	m.onClosed = hook
}

// Run polls until the context is cancelled. Cancellation is observed
// between iterations only: an iteration that has started submitting
// close legs always finishes its bookkeeping.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.WithField("interval", m.interval).Info("Exit monitor started")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Exit monitor stopped")
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce evaluates every open position a single time. Exposed so
// the CLI can force an immediate sweep.
func (m *Monitor) CheckOnce(ctx context.Context) {
	positions := m.book.List()
	if len(positions) == 0 {
		return
	}

	if !m.gateway.Connected(ctx) {
		// pause: thresholds are re-evaluated against live prices on
		// resume, so nothing is missed permanently
		m.logger.Warn("Exit checks paused, gateway unreachable")
		return
	}

	for _, p := range positions {
		if p.State == contracts.PositionStateExiting {
			m.retryOpenLegs(ctx, p)
			continue
		}
		m.checkPosition(ctx, p)
	}
}

// checkPosition evaluates one OPEN position against the exit rules.
func (m *Monitor) checkPosition(ctx context.Context, p contracts.Position) {
	price, err := m.prices.CurrentPrice(ctx, p.Symbol)
	if err != nil {
		m.logger.WithField("symbol", p.Symbol).WithError(err).Warn("No price for exit check")
		return
	}

	reason, armed := m.evaluate(&p, price)
	if armed {
		// trailing stop just armed or ratcheted; persist the new level
		if err := m.book.SetTrailing(p.Symbol, p.TrailingStop, p.TrailingExtreme); err == nil {
			if err := m.store.SavePosition(ctx, p); err != nil {
				m.logger.WithError(err).Warn("Failed to persist trailing stop")
			}
		}
	}
	if reason == "" {
		return
	}

	m.logger.WithFields(map[string]interface{}{
		"symbol": p.Symbol,
		"reason": string(reason),
		"price":  price,
		"entry":  p.EntryPrice,
	}).Info("Exit triggered")

	m.closePosition(ctx, p, reason, price)
}

// evaluate returns the exit reason, if any, and whether the trailing
// state changed. It mutates the copy in place; the caller persists.
func (m *Monitor) evaluate(p *contracts.Position, price float64) (contracts.ExitReason, bool) {
	bullish := p.Direction.IsBullish()

	// hard ATR stop always fires first
	if p.StopBreached(price, m.cfg.Risk.StopLossATRMult) {
		return contracts.ExitReasonStopLoss, false
	}

	trailingActive := p.TrailingStop != 0

	if !trailingActive && p.TargetReached(price) {
		if m.cfg.Exits.TrailingStopEnabled {
			// arm the trailing stop instead of exiting
			p.TrailingExtreme = price
			p.TrailingStop = trailingStopAt(price, p.EntryATR, bullish, m.cfg.Exits.TrailingStopBuffer)
			return "", true
		}
		return contracts.ExitReasonProfitTarget, false
	}

	if trailingActive {
		if bullish && price <= p.TrailingStop {
			return contracts.ExitReasonTrailingStop, false
		}
		if !bullish && price >= p.TrailingStop {
			return contracts.ExitReasonTrailingStop, false
		}

		// ratchet on a new favorable extreme, never backwards
		if bullish && price > p.TrailingExtreme {
			p.TrailingExtreme = price
			p.TrailingStop = trailingStopAt(price, p.EntryATR, true, m.cfg.Exits.TrailingStopBuffer)
			return "", true
		}
		if !bullish && price < p.TrailingExtreme {
			p.TrailingExtreme = price
			p.TrailingStop = trailingStopAt(price, p.EntryATR, false, m.cfg.Exits.TrailingStopBuffer)
			return "", true
		}
	}

	return "", false
}

// closePosition submits both leg closes best-effort and records the
// outcome. The position leaves the book only when both legs confirm.
func (m *Monitor) closePosition(ctx context.Context, p contracts.Position, reason contracts.ExitReason, price float64) {
	if err := m.book.MarkExiting(p.Symbol); err != nil {
		m.logger.WithError(err).Warn("Position vanished before close")
		return
	}

	longClosed := m.closeLeg(ctx, p, p.Long, contracts.OrderSideSell)
	shortClosed := m.closeLeg(ctx, p, p.Short, contracts.OrderSideBuy)

	var final contracts.Position
	if longClosed {
		final, _ = m.book.MarkLegClosed(p.Symbol, true)
	}
	if shortClosed {
		final, _ = m.book.MarkLegClosed(p.Symbol, false)
	}
	if !longClosed && !shortClosed {
		final, _ = m.book.Get(p.Symbol)
	}

	event := contracts.ExitEvent{
		Symbol:       p.Symbol,
		Direction:    p.Direction,
		Reason:       reason,
		EntryPrice:   p.EntryPrice,
		CurrentPrice: price,
		Partial:      !final.BothLegsClosed(),
		TriggeredAt:  time.Now().UTC(),
	}

	if event.Partial {
		m.logger.WithFields(map[string]interface{}{
			"symbol":       p.Symbol,
			"long_closed":  longClosed,
			"short_closed": shortClosed,
		}).Warn("Partial close, retrying open leg next poll")
		if err := m.store.SavePosition(ctx, final); err != nil {
			m.logger.WithError(err).Warn("Failed to persist partial close")
		}
	} else {
		if err := m.store.DeletePosition(ctx, p.Symbol); err != nil {
			m.logger.WithError(err).Warn("Failed to delete closed position")
		}
		if m.onClosed != nil {
			m.onClosed(p.Symbol)
		}
	}

	if err := m.store.SaveExit(ctx, event); err != nil {
		m.logger.WithError(err).Warn("Failed to persist exit event")
	}
	if m.notifier != nil {
		if err := m.notifier.NotifyExit(ctx, event); err != nil {
			m.logger.WithError(err).Warn("Exit alert failed")
		}
	}
}

// retryOpenLegs re-submits closes for whatever legs of an EXITING
// position are still open.
func (m *Monitor) retryOpenLegs(ctx context.Context, p contracts.Position) {
	if !p.LongClosed {
		if m.closeLeg(ctx, p, p.Long, contracts.OrderSideSell) {
			p, _ = m.book.MarkLegClosed(p.Symbol, true)
		}
	}
	if !p.ShortClosed {
		if m.closeLeg(ctx, p, p.Short, contracts.OrderSideBuy) {
			p, _ = m.book.MarkLegClosed(p.Symbol, false)
		}
	}

	if p.BothLegsClosed() {
		m.logger.WithField("symbol", p.Symbol).Info("Remaining leg closed")
		if err := m.store.DeletePosition(ctx, p.Symbol); err != nil {
			m.logger.WithError(err).Warn("Failed to delete closed position")
		}
		if m.onClosed != nil {
			m.onClosed(p.Symbol)
		}
	}
}

// closeLeg submits one closing market order and reports whether the
// fill confirmed.
func (m *Monitor) closeLeg(ctx context.Context, p contracts.Position, leg contracts.OptionLeg, side contracts.OrderSide) bool {
	order := contracts.LegOrder{
		Symbol:    p.Symbol,
		Leg:       leg,
		Side:      side,
		Quantity:  p.Quantity,
		CreatedAt: time.Now().UTC(),
	}

	result, err := m.gateway.CloseLeg(ctx, order)
	if err != nil {
		m.logger.WithFields(map[string]interface{}{
			"symbol": p.Symbol,
			"strike": leg.Strike,
			"side":   string(side),
		}).WithError(err).Error("Leg close failed")
		return false
	}
	return result.IsFilled()
}
