package spread

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// ChainProvider supplies option chain data for spread construction.
type ChainProvider interface {
	// Expirations returns the listed expirations for a symbol, sorted
	// ascending.
	Expirations(ctx context.Context, symbol string) ([]time.Time, error)
	// Strikes returns the listed strikes for one expiration, sorted
	// ascending.
	Strikes(ctx context.Context, symbol string, expiration time.Time) ([]float64, error)
	// Quote returns a live leg quote with greeks.
	Quote(ctx context.Context, symbol string, expiration time.Time, strike float64, right contracts.Right) (contracts.OptionLeg, error)
	// SpotPrice returns the live underlying price.
	SpotPrice(ctx context.Context, symbol string) (float64, error)
}

// Selector turns a directional signal into a defined-risk vertical
// debit spread, or reports that nothing on the chain qualifies.
type Selector struct {
	chain  ChainProvider
	cfg    strategy.Spread
	logger *logger.Logger
}

// NewSelector creates a spread selector.
func NewSelector(chain ChainProvider, cfg strategy.Spread, log *logger.Logger) *Selector {
	return &Selector{
		chain:  chain,
		cfg:    cfg,
		logger: log,
	}
}

// Select walks the out-of-the-money strikes nearest-first and returns
// the first adjacent pair that passes the delta, liquidity, cost and
// reward filters. The long leg sits closer to the money; the short leg
// is the next strike further out.
func (s *Selector) Select(ctx context.Context, sig contracts.Signal) (*contracts.SpreadCandidate, error) {
	expiration, err := s.targetExpiration(ctx, sig.Symbol)
	if err != nil {
		return nil, err
	}

	strikes, err := s.chain.Strikes(ctx, sig.Symbol, expiration)
	if err != nil {
		return nil, fmt.Errorf("strikes %s: %w", sig.Symbol, contracts.ErrDataUnavailable)
	}

	spot, err := s.chain.SpotPrice(ctx, sig.Symbol)
	if err != nil || spot <= 0 {
		return nil, fmt.Errorf("spot price %s: %w", sig.Symbol, contracts.ErrDataUnavailable)
	}

	right := contracts.RightFor(sig.Direction)
	otm := otmLadder(strikes, spot, sig.Direction.IsBullish())

	for i := 0; i+1 < len(otm); i++ {
		candidate, ok := s.tryPair(ctx, sig, expiration, right, otm[i], otm[i+1], spot)
		if ok {
			return candidate, nil
		}
	}

	return nil, fmt.Errorf("%s %s: %w", sig.Symbol, sig.Direction, contracts.ErrNoQualifyingCandidate)
}

// targetExpiration picks the configured expiration off the sorted
// listing. Index 1 skips the front cycle.
func (s *Selector) targetExpiration(ctx context.Context, symbol string) (time.Time, error) {
	exps, err := s.chain.Expirations(ctx, symbol)
	if err != nil {
		return time.Time{}, fmt.Errorf("expirations %s: %w", symbol, contracts.ErrDataUnavailable)
	}
	if len(exps) <= s.cfg.TargetExpiryIndex {
		return time.Time{}, fmt.Errorf("%s: only %d expirations listed: %w",
			symbol, len(exps), contracts.ErrNoQualifyingCandidate)
	}

	sorted := append([]time.Time(nil), exps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return sorted[s.cfg.TargetExpiryIndex], nil
}

// tryPair evaluates one long/short strike pair against every filter.
func (s *Selector) tryPair(ctx context.Context, sig contracts.Signal, expiration time.Time, right contracts.Right, longStrike, shortStrike, spot float64) (*contracts.SpreadCandidate, bool) {
	long, err := s.chain.Quote(ctx, sig.Symbol, expiration, longStrike, right)
	if err != nil {
		s.logger.WithField("symbol", sig.Symbol).WithError(err).Debug("Long leg quote unavailable")
		return nil, false
	}
	short, err := s.chain.Quote(ctx, sig.Symbol, expiration, shortStrike, right)
	if err != nil {
		s.logger.WithField("symbol", sig.Symbol).WithError(err).Debug("Short leg quote unavailable")
		return nil, false
	}

	if !long.HasQuote() || !short.HasQuote() {
		return nil, false
	}
	if long.SpreadPct() > s.cfg.MaxBidAskPct || short.SpreadPct() > s.cfg.MaxBidAskPct {
		return nil, false
	}

	delta := math.Abs(long.Delta)
	if delta < s.cfg.MinDelta {
		return nil, false
	}
	if s.cfg.MaxDelta > 0 && delta > s.cfg.MaxDelta {
		return nil, false
	}

	width := math.Abs(shortStrike-longStrike) * contracts.ContractMultiplier
	debit := math.Round((long.Mid()-short.Mid())*contracts.ContractMultiplier*100) / 100
	if debit <= 0 {
		// a non-positive debit means crossed or stale quotes
		return nil, false
	}
	if debit > s.cfg.MaxCostUSD {
		return nil, false
	}

	if (width-debit)/debit < s.cfg.MinRewardRisk {
		return nil, false
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol":    sig.Symbol,
		"direction": string(sig.Direction),
		"long":      longStrike,
		"short":     shortStrike,
		"debit":     debit,
		"width":     width,
		"delta":     delta,
		"spot":      spot,
	}).Info("Spread candidate selected")

	return &contracts.SpreadCandidate{
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		Long:       long,
		Short:      short,
		Debit:      debit,
		Width:      width,
		Underlying: sig.Underlying,
		ATR:        sig.ATR,
	}, true
}

// otmLadder returns the out-of-the-money strikes ordered nearest the
// money first: ascending above spot for calls, descending below spot
// for puts. Strikes exactly at the money are excluded.
func otmLadder(strikes []float64, spot float64, bullish bool) []float64 {
	sorted := append([]float64(nil), strikes...)
	sort.Float64s(sorted)

	ladder := make([]float64, 0, len(sorted))
	if bullish {
		for _, k := range sorted {
			if k > spot {
				ladder = append(ladder, k)
			}
		}
		return ladder
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] < spot {
			ladder = append(ladder, sorted[i])
		}
	}
	return ladder
}
