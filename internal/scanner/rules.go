package scanner

import (
	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/internal/technical"
)

// Rule pairs a setup pattern with its predicate over an indicator
// series. Rules are evaluated in a fixed priority order and the first
// match wins, so a bar can never produce two directions.
type Rule struct {
	Direction contracts.Direction
	Match     func(s *technical.Series, cfg strategy.Bases) bool
}

// DefaultRules returns the four setup patterns in priority order:
// trend continuations first, quiet bases second.
func DefaultRules() []Rule {
	return []Rule{
		{contracts.DirectionBullPullback, bullPullback},
		{contracts.DirectionBearRally, bearRally},
		{contracts.DirectionHighBase, highBase},
		{contracts.DirectionLowBase, lowBase},
	}
}

// bullPullback: the two most recent candles are bullish, the moving
// average is rising, and the lower of the two lows tags the average
// from above.
func bullPullback(s *technical.Series, _ strategy.Bases) bool {
	b0, b1 := s.Bar(0), s.Bar(1)
	if !b0.IsBullish() || !b1.IsBullish() {
		return false
	}
	low := b0.Low
	if b1.Low < low {
		low = b1.Low
	}
	return s.MARising() && low <= s.MA(0)
}

// bearRally: the two most recent candles are bearish, the moving
// average is falling, and the higher of the two highs tags the average
// from below.
func bearRally(s *technical.Series, _ strategy.Bases) bool {
	b0, b1 := s.Bar(0), s.Bar(1)
	if !b0.IsBearish() || !b1.IsBearish() {
		return false
	}
	high := b0.High
	if b1.High > high {
		high = b1.High
	}
	return s.MAFalling() && high >= s.MA(0)
}

// highBase: close within reach of the rolling high while volatility
// and daily range are both contracted.
func highBase(s *technical.Series, cfg strategy.Bases) bool {
	if s.Bar(0).Close < cfg.NearHighPct*s.HighestClose() {
		return false
	}
	return s.ATRRatio() < cfg.MaxATRRatio && s.TightRange(cfg.TightRangeFactor)
}

// lowBase: close within reach of the rolling low while volatility and
// daily range are both contracted.
func lowBase(s *technical.Series, cfg strategy.Bases) bool {
	if s.Bar(0).Close > cfg.NearLowPct*s.LowestClose() {
		return false
	}
	return s.ATRRatio() < cfg.MaxATRRatio && s.TightRange(cfg.TightRangeFactor)
}
