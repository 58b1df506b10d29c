package marketdata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

type fakeStream struct {
	prices map[string]float64
}

func (f *fakeStream) LastPrice(symbol string, _ time.Duration) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

type fakeSpot struct {
	prices map[string]float64
	calls  int
}

func (f *fakeSpot) SpotPrice(_ context.Context, symbol string) (float64, error) {
	f.calls++
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no spot for %s: %w", symbol, contracts.ErrDataUnavailable)
	}
	return p, nil
}

func TestCurrentPricePrefersStream(t *testing.T) {
	stream := &fakeStream{prices: map[string]float64{"AAPL": 231.5}}
	rest := &fakeSpot{prices: map[string]float64{"AAPL": 231.0}}

	p := NewPrices(stream, rest, time.Minute, logger.NewNop())
	price, err := p.CurrentPrice(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 231.5, price)
	assert.Zero(t, rest.calls)
}

func TestCurrentPriceFallsBackToRest(t *testing.T) {
	stream := &fakeStream{prices: map[string]float64{}}
	rest := &fakeSpot{prices: map[string]float64{"AAPL": 230.2}}

	p := NewPrices(stream, rest, time.Minute, logger.NewNop())
	price, err := p.CurrentPrice(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 230.2, price)
	assert.Equal(t, 1, rest.calls)
}

func TestCurrentPriceNilStream(t *testing.T) {
	rest := &fakeSpot{prices: map[string]float64{"MSFT": 512.0}}

	p := NewPrices(nil, rest, time.Minute, logger.NewNop())
	price, err := p.CurrentPrice(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 512.0, price)
}

func TestCurrentPriceErrorPropagates(t *testing.T) {
	p := NewPrices(nil, &fakeSpot{}, time.Minute, logger.NewNop())
	_, err := p.CurrentPrice(context.Background(), "GONE")
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
}
