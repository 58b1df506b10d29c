package contracts

import "time"

// PositionState tracks a position through its exit lifecycle.
type PositionState string

const (
	PositionStateOpen    PositionState = "OPEN"
	PositionStateExiting PositionState = "EXITING" // close orders submitted, fills pending
	PositionStateClosed  PositionState = "CLOSED"
)

// TargetType names how a profit target was derived.
type TargetType string

const (
	TargetFibonacci TargetType = "FIB_EXTENSION"
	TargetRMultiple TargetType = "R_MULTIPLE"
	TargetATR       TargetType = "ATR_MULTIPLE"
)

// Position is an open two-leg spread. Both legs always share the same
// underlying and expiration. A position is created when a spread order
// confirms filled and removed from the book only when both legs confirm
// closed.
type Position struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Long      OptionLeg `json:"long"`
	Short     OptionLeg `json:"short"`
	Quantity  int       `json:"quantity"`

	EntryPrice float64   `json:"entry_price"` // underlying close at entry
	EntryATR   float64   `json:"entry_atr"`
	EntryDebit float64   `json:"entry_debit"` // dollars paid per spread
	EntryDate  time.Time `json:"entry_date"`

	State       PositionState `json:"state"`
	LongClosed  bool          `json:"long_closed"`
	ShortClosed bool          `json:"short_closed"`

	// Optional profit target, set at entry from the configured target
	// strategy. Zero PriceTarget means no target.
	PriceTarget float64    `json:"price_target,omitempty"`
	TargetKind  TargetType `json:"target_kind,omitempty"`

	// Trailing stop, armed once the profit target is reached.
	TrailingStop    float64 `json:"trailing_stop,omitempty"`
	TrailingExtreme float64 `json:"trailing_extreme,omitempty"`
}

// StopPrice returns the underlying price at which the ATR stop triggers
// for the given multiplier.
func (p *Position) StopPrice(atrMultiplier float64) float64 {
	dist := atrMultiplier * p.EntryATR
	if p.Direction.IsBullish() {
		return p.EntryPrice - dist
	}
	return p.EntryPrice + dist
}

// StopBreached reports whether the current underlying price has crossed
// the ATR stop level.
func (p *Position) StopBreached(price, atrMultiplier float64) bool {
	stop := p.StopPrice(atrMultiplier)
	if p.Direction.IsBullish() {
		return price <= stop
	}
	return price >= stop
}

// TargetReached reports whether the current underlying price has
// reached the profit target, if one is set.
func (p *Position) TargetReached(price float64) bool {
	if p.PriceTarget == 0 {
		return false
	}
	if p.Direction.IsBullish() {
		return price >= p.PriceTarget
	}
	return price <= p.PriceTarget
}

// BothLegsClosed reports whether the position is fully closed.
func (p *Position) BothLegsClosed() bool {
	return p.LongClosed && p.ShortClosed
}

// ExitReason names why a position was closed.
type ExitReason string

const (
	ExitReasonStopLoss     ExitReason = "STOP_LOSS"
	ExitReasonProfitTarget ExitReason = "PROFIT_TARGET"
	ExitReasonTrailingStop ExitReason = "TRAILING_STOP"
	ExitReasonManual       ExitReason = "MANUAL"
)

// ExitEvent records a completed or partial exit for alerting and the
// trade log.
type ExitEvent struct {
	Symbol       string     `json:"symbol"`
	Direction    Direction  `json:"direction"`
	Reason       ExitReason `json:"reason"`
	EntryPrice   float64    `json:"entry_price"`
	CurrentPrice float64    `json:"current_price"`
	Partial      bool       `json:"partial"` // one leg closed, the other still working
	TriggeredAt  time.Time  `json:"triggered_at"`
}
