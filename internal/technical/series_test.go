package technical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
)

func barsFromCloses(closes []float64, dailyRange float64) []contracts.Bar {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := make([]contracts.Bar, len(closes))
	for i, c := range closes {
		bars[i] = contracts.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + dailyRange/2,
			Low:    c - dailyRange/2,
			Close:  c,
			Volume: 2_000_000,
		}
	}
	return bars
}

func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

func trendCloses(n int, start, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return closes
}

func TestComputeRejectsShortHistory(t *testing.T) {
	cfg := strategy.Default().Technical
	bars := barsFromCloses(flatCloses(MinBars(cfg)-1, 100), 2)

	_, err := Compute(bars, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInsufficientHistory)
}

func TestMinBarsFloorsAtLookback(t *testing.T) {
	cfg := strategy.Default().Technical
	assert.Equal(t, cfg.LookbackDays, MinBars(cfg))

	// the indicators warm up in fewer bars, but a tape shorter than
	// the configured lookback is still rejected
	_, err := Compute(barsFromCloses(flatCloses(55, 100), 2), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInsufficientHistory)
}

func TestFlatSeriesIndicators(t *testing.T) {
	cfg := strategy.Default().Technical
	bars := barsFromCloses(flatCloses(60, 100), 2)

	s, err := Compute(bars, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 100, s.MA(0), 1e-9)
	assert.False(t, s.MARising())
	assert.False(t, s.MAFalling())

	// constant 2-point range, no gaps: true range == range, ATR == 2
	assert.InDelta(t, 2, s.ATR(), 1e-9)
	assert.InDelta(t, 1, s.ATRRatio(), 1e-9)

	assert.InDelta(t, 100, s.HighestClose(), 1e-9)
	assert.InDelta(t, 100, s.LowestClose(), 1e-9)

	// today's range equals the mean, so it is not tight at factor 0.8
	assert.False(t, s.TightRange(0.8))
	assert.True(t, s.TightRange(1.1))
}

func TestTrendSlope(t *testing.T) {
	cfg := strategy.Default().Technical

	up, err := Compute(barsFromCloses(trendCloses(60, 100, 0.5), 2), cfg)
	require.NoError(t, err)
	assert.True(t, up.MARising())
	assert.False(t, up.MAFalling())

	down, err := Compute(barsFromCloses(trendCloses(60, 130, -0.5), 2), cfg)
	require.NoError(t, err)
	assert.True(t, down.MAFalling())
	assert.False(t, down.MARising())
}

func TestRollingExtremesUseWindowOnly(t *testing.T) {
	cfg := strategy.Default().Technical
	closes := flatCloses(60, 100)
	closes[2] = 250 // outside the 52-bar window ending at the last bar
	closes[30] = 140
	closes[40] = 80

	s, err := Compute(barsFromCloses(closes, 2), cfg)
	require.NoError(t, err)

	assert.InDelta(t, 140, s.HighestClose(), 1e-9)
	assert.InDelta(t, 80, s.LowestClose(), 1e-9)
}

func TestATRContractionRatio(t *testing.T) {
	cfg := strategy.Default().Technical

	// wide ranges early, then a sharp contraction over the last days
	closes := flatCloses(60, 100)
	bars := barsFromCloses(closes, 4)
	for i := 50; i < len(bars); i++ {
		bars[i].High = bars[i].Close + 0.25
		bars[i].Low = bars[i].Close - 0.25
	}

	s, err := Compute(bars, cfg)
	require.NoError(t, err)

	ratio := s.ATRRatio()
	assert.Less(t, ratio, 1.0)
	assert.Greater(t, ratio, 0.0)
}

func TestBarOffsets(t *testing.T) {
	cfg := strategy.Default().Technical
	closes := trendCloses(60, 100, 1)

	s, err := Compute(barsFromCloses(closes, 2), cfg)
	require.NoError(t, err)

	assert.Equal(t, 159.0, s.Bar(0).Close)
	assert.Equal(t, 158.0, s.Bar(1).Close)
	assert.Equal(t, 157.0, s.Bar(2).Close)
	assert.Equal(t, 60, s.Len())
}
