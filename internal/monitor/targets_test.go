package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
)

func flatBars(n int, low, high float64) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = contracts.Bar{
			Date:   day.AddDate(0, 0, i),
			Open:   (low + high) / 2,
			High:   high,
			Low:    low,
			Close:  (low + high) / 2,
			Volume: 2_000_000,
		}
	}
	return bars
}

func TestFindRecentSwingBullishPivot(t *testing.T) {
	bars := flatBars(10, 100, 102)
	bars[6].Low = 95
	bars[7].High, bars[7].Low = 104, 100
	bars[8].High, bars[8].Low = 107, 101
	bars[9].High, bars[9].Low = 110, 103

	start, end := FindRecentSwing(bars, true)
	assert.Equal(t, 95.0, start)
	assert.Equal(t, 110.0, end)
}

func TestFindRecentSwingBearishPivot(t *testing.T) {
	bars := flatBars(10, 98, 100)
	bars[6].High = 108
	bars[7].High, bars[7].Low = 99, 96
	bars[8].High, bars[8].Low = 98, 93
	bars[9].High, bars[9].Low = 97, 90

	start, end := FindRecentSwing(bars, false)
	assert.Equal(t, 108.0, start)
	assert.Equal(t, 90.0, end)
}

func TestFindRecentSwingFallbackOnMonotonicBars(t *testing.T) {
	bars := make([]contracts.Bar, 10)
	for i := range bars {
		bars[i] = contracts.Bar{Low: 100 + float64(i), High: 102 + float64(i)}
	}

	start, end := FindRecentSwing(bars, true)
	assert.Equal(t, 100.0, start)
	assert.Equal(t, 111.0, end)

	start, end = FindRecentSwing(bars, false)
	assert.Equal(t, 111.0, start)
	assert.Equal(t, 100.0, end)
}

func TestTargetForFibonacci(t *testing.T) {
	cfg := strategy.Default()
	require.Equal(t, "fibonacci", cfg.Exits.TargetStrategy)

	bars := flatBars(10, 100, 102)
	bars[6].Low = 95
	bars[7].High, bars[7].Low = 104, 100
	bars[8].High, bars[8].Low = 107, 101
	bars[9].High, bars[9].Low = 110, 103

	p := contracts.Position{Direction: contracts.DirectionBullPullback, EntryPrice: 103, EntryATR: 2}
	target, kind, ok := TargetFor(p, bars, cfg)
	require.True(t, ok)
	assert.Equal(t, contracts.TargetFibonacci, kind)
	assert.InDelta(t, 110+15*1.618, target, 1e-9)
}

func TestTargetForFibonacciNeedsHistory(t *testing.T) {
	cfg := strategy.Default()
	p := contracts.Position{Direction: contracts.DirectionBullPullback, EntryPrice: 100, EntryATR: 2}

	_, _, ok := TargetFor(p, flatBars(4, 100, 102), cfg)
	assert.False(t, ok)
}

func TestTargetForRMultiple(t *testing.T) {
	cfg := strategy.Default()
	cfg.Exits.TargetStrategy = "r_multiple"

	bull := contracts.Position{Direction: contracts.DirectionBullPullback, EntryPrice: 100, EntryATR: 2}
	target, kind, ok := TargetFor(bull, nil, cfg)
	require.True(t, ok)
	assert.Equal(t, contracts.TargetRMultiple, kind)
	assert.InDelta(t, 108, target, 1e-9) // risk = 2.0*2, times 2R

	bear := contracts.Position{Direction: contracts.DirectionBearRally, EntryPrice: 100, EntryATR: 2}
	target, _, ok = TargetFor(bear, nil, cfg)
	require.True(t, ok)
	assert.InDelta(t, 92, target, 1e-9)
}

func TestTargetForATR(t *testing.T) {
	cfg := strategy.Default()
	cfg.Exits.TargetStrategy = "atr"

	p := contracts.Position{Direction: contracts.DirectionBearRally, EntryPrice: 100, EntryATR: 2}
	target, kind, ok := TargetFor(p, nil, cfg)
	require.True(t, ok)
	assert.Equal(t, contracts.TargetATR, kind)
	assert.InDelta(t, 94, target, 1e-9)
}

func TestTargetForNone(t *testing.T) {
	cfg := strategy.Default()
	cfg.Exits.TargetStrategy = "none"

	p := contracts.Position{Direction: contracts.DirectionBullPullback, EntryPrice: 100, EntryATR: 2}
	_, _, ok := TargetFor(p, flatBars(10, 100, 102), cfg)
	assert.False(t, ok)
}

func TestTrailingStopPlacement(t *testing.T) {
	assert.InDelta(t, 107, trailingStopAt(108, 2, true, 0.5), 1e-9)
	assert.InDelta(t, 93, trailingStopAt(92, 2, false, 0.5), 1e-9)
}
