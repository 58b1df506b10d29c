package scanner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

type fakeBars struct {
	bars map[string][]contracts.Bar
}

func (f *fakeBars) DailyBars(_ context.Context, symbol string, _ int) ([]contracts.Bar, error) {
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("no history for %s: %w", symbol, contracts.ErrDataUnavailable)
	}
	return bars, nil
}

// dojiBars builds n bars with open == close so no candle is bullish or
// bearish, with the given closes and symmetric daily ranges.
func dojiBars(closes []float64, ranges []float64) []contracts.Bar {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := make([]contracts.Bar, len(closes))
	for i, c := range closes {
		r := ranges[i]
		bars[i] = contracts.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + r/2,
			Low:    c - r/2,
			Close:  c,
			Volume: 2_000_000,
		}
	}
	return bars
}

func repeat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// contractedRanges: wide daily ranges early, sharply narrower over the
// final stretch, which drives both the ATR ratio and the tight-range
// test below their thresholds.
func contractedRanges(n int) []float64 {
	ranges := repeat(n, 4)
	for i := n - 10; i < n; i++ {
		ranges[i] = 0.5
	}
	return ranges
}

func bullPullbackBars() []contracts.Bar {
	bars := dojiBars(ramp(60, 100, 0.5), repeat(60, 2))
	// two most recent candles bullish, yesterday's low dipping into
	// the rising average
	bars[58].Open = bars[58].Close - 1
	bars[58].Low = bars[58].Close - 20
	bars[59].Open = bars[59].Close - 1
	return bars
}

func bearRallyBars() []contracts.Bar {
	bars := dojiBars(ramp(60, 130, -0.5), repeat(60, 2))
	bars[58].Open = bars[58].Close + 1
	bars[58].High = bars[58].Close + 20
	bars[59].Open = bars[59].Close + 1
	return bars
}

func highBaseBars() []contracts.Bar {
	return dojiBars(repeat(60, 100), contractedRanges(60))
}

func lowBaseBars() []contracts.Bar {
	// an old shelf at 120 keeps the close out of reach of the rolling
	// high, so only the low-base rule can fire
	closes := repeat(60, 100)
	for i := 0; i < 10; i++ {
		closes[i] = 120
	}
	return dojiBars(closes, contractedRanges(60))
}

func newTestScanner(bars map[string][]contracts.Bar) *Scanner {
	return New(&fakeBars{bars: bars}, strategy.Default(), logger.NewNop())
}

func TestScanPatternDirections(t *testing.T) {
	tests := []struct {
		name      string
		bars      []contracts.Bar
		direction contracts.Direction
	}{
		{"bull pullback", bullPullbackBars(), contracts.DirectionBullPullback},
		{"bear rally", bearRallyBars(), contracts.DirectionBearRally},
		{"high base", highBaseBars(), contracts.DirectionHighBase},
		{"low base", lowBaseBars(), contracts.DirectionLowBase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScanner(map[string][]contracts.Bar{"SYM": tt.bars})
			signals, err := s.Scan(context.Background(), []contracts.Candidate{{Symbol: "SYM"}})
			require.NoError(t, err)
			require.Len(t, signals, 1)

			sig := signals[0]
			assert.Equal(t, "SYM", sig.Symbol)
			assert.Equal(t, tt.direction, sig.Direction)
			assert.Equal(t, tt.bars[59].Close, sig.Underlying)
			assert.Greater(t, sig.ATR, 0.0)
		})
	}
}

func TestScanOneDirectionPerSymbol(t *testing.T) {
	// a flat contracted tape is near both the rolling high and the
	// rolling low; priority order must resolve it to exactly one signal
	s := newTestScanner(map[string][]contracts.Bar{"FLAT": highBaseBars()})

	signals, err := s.Scan(context.Background(), []contracts.Candidate{{Symbol: "FLAT"}})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, contracts.DirectionHighBase, signals[0].Direction)
}

func TestScanVolumeFloor(t *testing.T) {
	bars := bullPullbackBars()
	bars[59].Volume = 999_999

	s := newTestScanner(map[string][]contracts.Bar{"THIN": bars})
	signals, err := s.Scan(context.Background(), []contracts.Candidate{{Symbol: "THIN"}})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestScanSkipsBrokenSymbols(t *testing.T) {
	short := dojiBars(repeat(10, 100), repeat(10, 2))
	s := newTestScanner(map[string][]contracts.Bar{
		"GOOD":  bullPullbackBars(),
		"SHORT": short,
	})

	signals, err := s.Scan(context.Background(), []contracts.Candidate{
		{Symbol: "MISSING"}, // provider has no data
		{Symbol: "SHORT"},   // not enough history
		{Symbol: "GOOD"},
	})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "GOOD", signals[0].Symbol)
}

func TestScanNoPatternNoSignal(t *testing.T) {
	// steady uptrend with plain candles and no pullback matches nothing
	bars := dojiBars(ramp(60, 100, 0.5), repeat(60, 2))

	s := newTestScanner(map[string][]contracts.Bar{"QUIET": bars})
	signals, err := s.Scan(context.Background(), []contracts.Candidate{{Symbol: "QUIET"}})
	require.NoError(t, err)
	assert.Empty(t, signals)
}
