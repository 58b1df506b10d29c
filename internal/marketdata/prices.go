package marketdata

import (
	"context"
	"time"

	"github.com/tkrause/spreadpilot/pkg/logger"
)

// Streamer serves last prices from a live feed; a miss means no fresh
// tick is available.
type Streamer interface {
	LastPrice(symbol string, maxAge time.Duration) (float64, bool)
}

// SpotQuoter is the REST fallback for underlying prices.
type SpotQuoter interface {
	SpotPrice(ctx context.Context, symbol string) (float64, error)
}

// Prices resolves the current underlying price for the exit monitor:
// streaming tick first, REST snapshot when the tick is stale or the
// feed is down.
type Prices struct {
	stream Streamer
	rest   SpotQuoter
	maxAge time.Duration
	logger *logger.Logger
}

// NewPrices creates the price resolver. stream may be nil when the
// feed is disabled; everything then goes over REST.
func NewPrices(stream Streamer, rest SpotQuoter, maxAge time.Duration, log *logger.Logger) *Prices {
	return &Prices{
		stream: stream,
		rest:   rest,
		maxAge: maxAge,
		logger: log,
	}
}

// CurrentPrice returns the freshest known price for a symbol.
func (p *Prices) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if p.stream != nil {
		if price, ok := p.stream.LastPrice(symbol, p.maxAge); ok {
			return price, nil
		}
	}

	price, err := p.rest.SpotPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if p.stream != nil {
		p.logger.WithField("symbol", symbol).Debug("Streamed tick stale, used REST snapshot")
	}
	return price, nil
}
