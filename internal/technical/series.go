package technical

import (
	"fmt"
	"math"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
)

// Series holds a symbol's daily bars plus the derived indicator arrays,
// index-aligned with the bars. Values before an indicator's warm-up
// index are NaN.
type Series struct {
	cfg      strategy.Technical
	bars     []contracts.Bar
	ma       []float64
	atr      []float64
	rangePct []float64
}

// MinBars returns the shortest bar history the indicator set accepts.
// The indicators themselves warm up in fewer bars (the moving average
// plus its slope window, the rolling high/low window, the ATR plus its
// 20-day volatility baseline), but the floor never drops below the
// configured lookback so a symbol with a thin listing history is
// skipped rather than scanned on a short tape.
func MinBars(cfg strategy.Technical) int {
	n := cfg.MAPeriod + cfg.MASlopeWindow
	if cfg.RangePeriod > n {
		n = cfg.RangePeriod
	}
	if v := cfg.ATRPeriod + volBaselinePeriod; v > n {
		n = v
	}
	if cfg.LookbackDays > n {
		n = cfg.LookbackDays
	}
	return n
}

// volBaselinePeriod is the rolling window used to normalize ATR and
// daily range against their recent average.
const volBaselinePeriod = 20

// Compute derives the indicator series from daily bars, oldest first.
func Compute(bars []contracts.Bar, cfg strategy.Technical) (*Series, error) {
	if need := MinBars(cfg); len(bars) < need {
		return nil, fmt.Errorf("%s: have %d bars, need %d: %w",
			symbolOf(bars), len(bars), need, contracts.ErrInsufficientHistory)
	}

	s := &Series{
		cfg:      cfg,
		bars:     bars,
		ma:       movingAverage(bars, cfg.MAPeriod),
		atr:      averageTrueRange(bars, cfg.ATRPeriod),
		rangePct: make([]float64, len(bars)),
	}
	for i, b := range bars {
		if b.Close == 0 {
			s.rangePct[i] = math.NaN()
			continue
		}
		s.rangePct[i] = b.Range() / b.Close * 100
	}
	return s, nil
}

func symbolOf(bars []contracts.Bar) string {
	if len(bars) == 0 {
		return "empty series"
	}
	return bars[len(bars)-1].Date.Format("2006-01-02")
}

// Bar returns the bar at the given offset back from the latest:
// Bar(0) is today, Bar(1) is yesterday.
func (s *Series) Bar(offset int) contracts.Bar {
	return s.bars[len(s.bars)-1-offset]
}

// Len returns the number of bars.
func (s *Series) Len() int {
	return len(s.bars)
}

// MA returns the moving average at the given offset back from the
// latest bar.
func (s *Series) MA(offset int) float64 {
	return s.ma[len(s.ma)-1-offset]
}

// MARising reports whether the moving average is higher now than it
// was slopeWindow bars ago. The multi-bar comparison smooths out
// single-day wobble in the average.
func (s *Series) MARising() bool {
	return s.MA(0) > s.MA(s.cfg.MASlopeWindow)
}

// MAFalling is the mirror of MARising.
func (s *Series) MAFalling() bool {
	return s.MA(0) < s.MA(s.cfg.MASlopeWindow)
}

// ATR returns the latest average true range.
func (s *Series) ATR() float64 {
	return s.atr[len(s.atr)-1]
}

// ATRRatio returns today's ATR relative to its rolling 20-day mean.
// A value well below 1 marks a volatility contraction.
func (s *Series) ATRRatio() float64 {
	mean := tailMean(s.atr, volBaselinePeriod)
	if mean == 0 || math.IsNaN(mean) {
		return math.NaN()
	}
	return s.ATR() / mean
}

// HighestClose returns the highest close over the rolling high/low
// window ending at the latest bar.
func (s *Series) HighestClose() float64 {
	hi := math.Inf(-1)
	for _, b := range s.bars[len(s.bars)-s.cfg.RangePeriod:] {
		if b.Close > hi {
			hi = b.Close
		}
	}
	return hi
}

// LowestClose returns the lowest close over the rolling high/low
// window ending at the latest bar.
func (s *Series) LowestClose() float64 {
	lo := math.Inf(1)
	for _, b := range s.bars[len(s.bars)-s.cfg.RangePeriod:] {
		if b.Close < lo {
			lo = b.Close
		}
	}
	return lo
}

// TightRange reports whether today's daily range sits below the given
// fraction of its rolling 20-day mean.
func (s *Series) TightRange(factor float64) bool {
	mean := tailMean(s.rangePct, volBaselinePeriod)
	if math.IsNaN(mean) {
		return false
	}
	return s.rangePct[len(s.rangePct)-1] < mean*factor
}

// movingAverage computes a simple moving average; NaN until warm.
func movingAverage(bars []contracts.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	var sum float64
	for i, b := range bars {
		sum += b.Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// averageTrueRange computes Wilder's ATR: the first value is a simple
// mean of the true range, then the smoothed recurrence takes over.
// NaN until warm.
func averageTrueRange(bars []contracts.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	tr := make([]float64, len(bars))

	tr[0] = bars[0].Range()
	out[0] = math.NaN()
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		tr[i] = math.Max(bars[i].Range(),
			math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))

		switch {
		case i < period:
			out[i] = math.NaN()
		case i == period:
			var sum float64
			for j := 1; j <= period; j++ {
				sum += tr[j]
			}
			out[i] = sum / float64(period)
		default:
			out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
		}
	}
	return out
}

// tailMean averages the last n values of xs, skipping NaN warm-up
// entries.
func tailMean(xs []float64, n int) float64 {
	if n > len(xs) {
		n = len(xs)
	}
	var sum float64
	var count int
	for _, v := range xs[len(xs)-n:] {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}
