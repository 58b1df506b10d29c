package universe

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

type fakeFundamentals struct {
	snapshots  map[string]contracts.FundamentalSnapshot
	optionable map[string]bool
	failing    map[string]bool
}

func (f *fakeFundamentals) Fundamentals(_ context.Context, symbol string) (contracts.FundamentalSnapshot, error) {
	if f.failing[symbol] {
		return contracts.FundamentalSnapshot{}, fmt.Errorf("quote feed down for %s: %w", symbol, contracts.ErrDataUnavailable)
	}
	snap, ok := f.snapshots[symbol]
	if !ok {
		return contracts.FundamentalSnapshot{}, fmt.Errorf("unknown symbol %s: %w", symbol, contracts.ErrDataUnavailable)
	}
	return snap, nil
}

func (f *fakeFundamentals) IsOptionable(_ context.Context, symbol string) (bool, error) {
	return f.optionable[symbol], nil
}

func snap(symbol string, capUSD, price float64) contracts.FundamentalSnapshot {
	return contracts.FundamentalSnapshot{Symbol: symbol, MarketCap: capUSD, LastPrice: price}
}

func TestFilterBuild(t *testing.T) {
	provider := &fakeFundamentals{
		snapshots: map[string]contracts.FundamentalSnapshot{
			"AAPL": snap("AAPL", 3_000e9, 230),
			"TINY": snap("TINY", 4e9, 55),     // cap below floor
			"PENN": snap("PENN", 15e9, 12.50), // price below floor
			"NOPT": snap("NOPT", 40e9, 90),    // not optionable
			"EDGE": snap("EDGE", 10e9, 21),    // exactly at the cap floor
		},
		optionable: map[string]bool{"AAPL": true, "TINY": true, "PENN": true, "EDGE": true},
		failing:    map[string]bool{"DOWN": true},
	}

	f := NewFilter(provider, strategy.Default().Universe, logger.NewNop())
	result, err := f.Build(context.Background(), []string{"AAPL", "TINY", "PENN", "NOPT", "DOWN", "EDGE"})
	require.NoError(t, err)

	passed := make([]string, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		passed = append(passed, c.Symbol)
	}
	// cap floor is inclusive, price floor is strict
	assert.Equal(t, []string{"AAPL", "EDGE"}, passed)

	assert.Contains(t, result.Excluded["TINY"], "market cap")
	assert.Contains(t, result.Excluded["PENN"], "price")
	assert.Equal(t, "no listed options", result.Excluded["NOPT"])
	assert.Equal(t, "data unavailable", result.Excluded["DOWN"])
}

func TestFilterPriceFloorIsStrict(t *testing.T) {
	provider := &fakeFundamentals{
		snapshots: map[string]contracts.FundamentalSnapshot{
			"AT": snap("AT", 50e9, 20), // exactly $20 fails
		},
		optionable: map[string]bool{"AT": true},
	}

	f := NewFilter(provider, strategy.Default().Universe, logger.NewNop())
	result, err := f.Build(context.Background(), []string{"AT"})
	require.NoError(t, err)

	assert.Empty(t, result.Candidates)
	assert.Contains(t, result.Excluded["AT"], "price")
}

func TestFilterHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFilter(&fakeFundamentals{}, strategy.Default().Universe, logger.NewNop())
	_, err := f.Build(ctx, []string{"AAPL"})
	assert.ErrorIs(t, err, context.Canceled)
}
