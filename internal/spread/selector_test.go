package spread

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

type fakeChain struct {
	exps    []time.Time
	strikes []float64
	spot    float64
	quotes  map[string]contracts.OptionLeg
}

func quoteKey(strike float64, right contracts.Right) string {
	return fmt.Sprintf("%.2f|%s", strike, right)
}

func (f *fakeChain) Expirations(context.Context, string) ([]time.Time, error) {
	return f.exps, nil
}

func (f *fakeChain) Strikes(context.Context, string, time.Time) ([]float64, error) {
	return f.strikes, nil
}

func (f *fakeChain) Quote(_ context.Context, symbol string, exp time.Time, strike float64, right contracts.Right) (contracts.OptionLeg, error) {
	leg, ok := f.quotes[quoteKey(strike, right)]
	if !ok {
		return contracts.OptionLeg{}, fmt.Errorf("no quote at %.2f", strike)
	}
	leg.Symbol = symbol
	leg.Expiration = exp
	leg.Strike = strike
	leg.Right = right
	return leg, nil
}

func (f *fakeChain) SpotPrice(context.Context, string) (float64, error) {
	return f.spot, nil
}

func leg(bid, ask, delta float64) contracts.OptionLeg {
	return contracts.OptionLeg{Bid: bid, Ask: ask, Delta: delta}
}

func expirations() []time.Time {
	base := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	return []time.Time{base, base.AddDate(0, 0, 7), base.AddDate(0, 0, 14)}
}

func bullSignal() contracts.Signal {
	return contracts.Signal{
		Symbol:     "AAPL",
		Direction:  contracts.DirectionBullPullback,
		Underlying: 100,
		ATR:        2.5,
	}
}

func bearSignal() contracts.Signal {
	sig := bullSignal()
	sig.Direction = contracts.DirectionBearRally
	return sig
}

func newSelector(chain *fakeChain) *Selector {
	return NewSelector(chain, strategy.Default().Spread, logger.NewNop())
}

func TestSelectBullCallSpread(t *testing.T) {
	chain := &fakeChain{
		exps:    expirations(),
		strikes: []float64{90, 95, 100, 105, 110, 115},
		spot:    100,
		quotes: map[string]contracts.OptionLeg{
			quoteKey(105, contracts.RightCall): leg(4.00, 4.20, 0.40),
			quoteKey(110, contracts.RightCall): leg(2.00, 2.10, 0.25),
		},
	}

	c, err := newSelector(chain).Select(context.Background(), bullSignal())
	require.NoError(t, err)

	assert.Equal(t, 105.0, c.Long.Strike)
	assert.Equal(t, 110.0, c.Short.Strike)
	assert.Equal(t, contracts.RightCall, c.Long.Right)
	// second-nearest expiration
	assert.Equal(t, expirations()[1], c.Long.Expiration)
	assert.InDelta(t, 205, c.Debit, 0.001) // (4.10-2.05)*100
	assert.InDelta(t, 500, c.Width, 0.001)
	assert.Greater(t, c.RewardRisk(), 1.0)
}

func TestSelectBearPutSpread(t *testing.T) {
	chain := &fakeChain{
		exps:    expirations(),
		strikes: []float64{85, 90, 95, 100, 105},
		spot:    100,
		quotes: map[string]contracts.OptionLeg{
			quoteKey(95, contracts.RightPut): leg(4.00, 4.20, -0.40),
			quoteKey(90, contracts.RightPut): leg(2.00, 2.10, -0.25),
		},
	}

	c, err := newSelector(chain).Select(context.Background(), bearSignal())
	require.NoError(t, err)

	// nearest OTM put long, next strike down short
	assert.Equal(t, 95.0, c.Long.Strike)
	assert.Equal(t, 90.0, c.Short.Strike)
	assert.Equal(t, contracts.RightPut, c.Long.Right)
}

func TestSelectSkipsHighDeltaStrike(t *testing.T) {
	chain := &fakeChain{
		exps:    expirations(),
		strikes: []float64{100, 105, 110, 115},
		spot:    100,
		quotes: map[string]contracts.OptionLeg{
			quoteKey(105, contracts.RightCall): leg(6.00, 6.20, 0.55), // above the ceiling
			quoteKey(110, contracts.RightCall): leg(4.00, 4.20, 0.40),
			quoteKey(115, contracts.RightCall): leg(2.00, 2.10, 0.25),
		},
	}

	c, err := newSelector(chain).Select(context.Background(), bullSignal())
	require.NoError(t, err)
	assert.Equal(t, 110.0, c.Long.Strike)
	assert.Equal(t, 115.0, c.Short.Strike)
}

func TestSelectRewardRiskBoundary(t *testing.T) {
	t.Run("reward 600 on risk 400 passes", func(t *testing.T) {
		chain := &fakeChain{
			exps:    expirations(),
			strikes: []float64{100, 110, 120},
			spot:    100,
			quotes: map[string]contracts.OptionLeg{
				quoteKey(110, contracts.RightCall): leg(4.90, 5.10, 0.40), // mid 5.00
				quoteKey(120, contracts.RightCall): leg(0.95, 1.05, 0.20), // mid 1.00
			},
		}

		c, err := newSelector(chain).Select(context.Background(), bullSignal())
		require.NoError(t, err)
		assert.InDelta(t, 400, c.Debit, 0.001)
		assert.InDelta(t, 1.5, c.RewardRisk(), 0.001)
	})

	t.Run("reward 400 on risk 500 fails", func(t *testing.T) {
		chain := &fakeChain{
			exps:    expirations(),
			strikes: []float64{100, 109, 118},
			spot:    100,
			quotes: map[string]contracts.OptionLeg{
				quoteKey(109, contracts.RightCall): leg(5.90, 6.10, 0.40), // mid 6.00
				quoteKey(118, contracts.RightCall): leg(0.95, 1.05, 0.20), // mid 1.00
			},
		}

		_, err := newSelector(chain).Select(context.Background(), bullSignal())
		assert.ErrorIs(t, err, contracts.ErrNoQualifyingCandidate)
	})
}

func TestSelectLiquidityFilter(t *testing.T) {
	t.Run("wide long leg rejected", func(t *testing.T) {
		chain := &fakeChain{
			exps:    expirations(),
			strikes: []float64{100, 105, 110},
			spot:    100,
			quotes: map[string]contracts.OptionLeg{
				// (1.20-1.00)/1.10 = 18.2%, over the 15% cap
				quoteKey(105, contracts.RightCall): leg(1.00, 1.20, 0.40),
				quoteKey(110, contracts.RightCall): leg(0.50, 0.55, 0.25),
			},
		}

		_, err := newSelector(chain).Select(context.Background(), bullSignal())
		assert.ErrorIs(t, err, contracts.ErrNoQualifyingCandidate)
	})

	t.Run("tolerable width accepted", func(t *testing.T) {
		chain := &fakeChain{
			exps:    expirations(),
			strikes: []float64{100, 105, 110},
			spot:    100,
			quotes: map[string]contracts.OptionLeg{
				// (1.10-1.00)/1.05 = 9.5%
				quoteKey(105, contracts.RightCall): leg(1.00, 1.10, 0.40),
				quoteKey(110, contracts.RightCall): leg(0.30, 0.32, 0.25),
			},
		}

		c, err := newSelector(chain).Select(context.Background(), bullSignal())
		require.NoError(t, err)
		assert.Equal(t, 105.0, c.Long.Strike)
	})
}

func TestSelectCostCap(t *testing.T) {
	chain := &fakeChain{
		exps:    expirations(),
		strikes: []float64{100, 110, 120},
		spot:    100,
		quotes: map[string]contracts.OptionLeg{
			quoteKey(110, contracts.RightCall): leg(7.90, 8.10, 0.40), // mid 8.00
			quoteKey(120, contracts.RightCall): leg(1.95, 2.05, 0.20), // mid 2.00, debit 600
		},
	}

	_, err := newSelector(chain).Select(context.Background(), bullSignal())
	assert.ErrorIs(t, err, contracts.ErrNoQualifyingCandidate)
}

func TestSelectTooFewExpirations(t *testing.T) {
	chain := &fakeChain{
		exps:    expirations()[:1],
		strikes: []float64{100, 105, 110},
		spot:    100,
	}

	_, err := newSelector(chain).Select(context.Background(), bullSignal())
	assert.ErrorIs(t, err, contracts.ErrNoQualifyingCandidate)
}

func TestSelectMissingQuotesSkipsPair(t *testing.T) {
	chain := &fakeChain{
		exps:    expirations(),
		strikes: []float64{100, 105, 110, 115},
		spot:    100,
		quotes: map[string]contracts.OptionLeg{
			// no quote at 105; the 110/115 pair still qualifies
			quoteKey(110, contracts.RightCall): leg(4.00, 4.20, 0.40),
			quoteKey(115, contracts.RightCall): leg(2.00, 2.10, 0.25),
		},
	}

	c, err := newSelector(chain).Select(context.Background(), bullSignal())
	require.NoError(t, err)
	assert.Equal(t, 110.0, c.Long.Strike)
}
