package monitor

import (
	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
)

// FindRecentSwing locates the most recent completed swing in the bar
// history. For bullish positions it returns the latest swing low and
// the high that followed it; for bearish positions the mirror. When no
// clear pivot exists the full recent range is used.
func FindRecentSwing(bars []contracts.Bar, bullish bool) (start, end float64) {
	n := len(bars)
	window := 20
	if n-2 < window {
		window = n - 2
	}

	if bullish {
		for i := 2; i <= window; i++ {
			idx := n - i
			if bars[idx].Low < bars[idx-1].Low && bars[idx].Low < bars[idx+1].Low {
				high := bars[idx+1].High
				for _, b := range bars[idx+1:] {
					if b.High > high {
						high = b.High
					}
				}
				return bars[idx].Low, high
			}
		}
		lo, hi := bars[0].Low, bars[0].High
		for _, b := range bars {
			if b.Low < lo {
				lo = b.Low
			}
			if b.High > hi {
				hi = b.High
			}
		}
		return lo, hi
	}

	for i := 2; i <= window; i++ {
		idx := n - i
		if bars[idx].High > bars[idx-1].High && bars[idx].High > bars[idx+1].High {
			low := bars[idx+1].Low
			for _, b := range bars[idx+1:] {
				if b.Low < low {
					low = b.Low
				}
			}
			return bars[idx].High, low
		}
	}
	lo, hi := bars[0].Low, bars[0].High
	for _, b := range bars {
		if b.Low < lo {
			lo = b.Low
		}
		if b.High > hi {
			hi = b.High
		}
	}
	return hi, lo
}

// TargetFor computes the profit target for a freshly opened position
// according to the configured target strategy. ok is false when
// targets are disabled or the inputs cannot support the chosen method.
func TargetFor(p contracts.Position, bars []contracts.Bar, cfg *strategy.Config) (target float64, kind contracts.TargetType, ok bool) {
	bullish := p.Direction.IsBullish()

	switch cfg.Exits.TargetStrategy {
	case "fibonacci":
		if len(bars) < 5 {
			return 0, "", false
		}
		start, end := FindRecentSwing(bars, bullish)
		swing := end - start
		if swing < 0 {
			swing = -swing
		}
		if bullish {
			return end + swing*cfg.Exits.FibonacciExtension, contracts.TargetFibonacci, true
		}
		return end - swing*cfg.Exits.FibonacciExtension, contracts.TargetFibonacci, true

	case "r_multiple":
		// one R is the distance to the ATR stop
		risk := cfg.Risk.StopLossATRMult * p.EntryATR
		if risk <= 0 {
			return 0, "", false
		}
		if bullish {
			return p.EntryPrice + risk*cfg.Exits.TargetRMultiple, contracts.TargetRMultiple, true
		}
		return p.EntryPrice - risk*cfg.Exits.TargetRMultiple, contracts.TargetRMultiple, true

	case "atr":
		if p.EntryATR <= 0 {
			return 0, "", false
		}
		if bullish {
			return p.EntryPrice + p.EntryATR*cfg.Exits.TargetATRMultiple, contracts.TargetATR, true
		}
		return p.EntryPrice - p.EntryATR*cfg.Exits.TargetATRMultiple, contracts.TargetATR, true
	}

	return 0, "", false
}

// trailingStopAt places the trailing stop one buffer behind the
// favorable extreme.
func trailingStopAt(extreme, atr float64, bullish bool, buffer float64) float64 {
	if bullish {
		return extreme - atr*buffer
	}
	return extreme + atr*buffer
}
