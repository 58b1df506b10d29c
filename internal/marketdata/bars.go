package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/pkg/logger"
	"github.com/tkrause/spreadpilot/pkg/redis"
)

// barCacheTTL keeps one daily-bar fetch per symbol per day. The scan
// runs once a day, so anything fresher is wasted gateway quota.
const barCacheTTL = 24 * time.Hour

// BarSource is the upstream history fetcher, normally the gateway
// client.
type BarSource interface {
	DailyBars(ctx context.Context, symbol string, lookbackDays int) ([]contracts.Bar, error)
}

// CachedBars wraps a BarSource with a Redis cache.
type CachedBars struct {
	source BarSource
	cache  *redis.Cache
	logger *logger.Logger
}

// NewCachedBars creates the caching bar provider.
func NewCachedBars(source BarSource, cache *redis.Cache, log *logger.Logger) *CachedBars {
	return &CachedBars{
		source: source,
		cache:  cache,
		logger: log,
	}
}

// DailyBars serves history from cache when present, otherwise fetches
// and caches. Cache failures degrade to a plain fetch.
func (c *CachedBars) DailyBars(ctx context.Context, symbol string, lookbackDays int) ([]contracts.Bar, error) {
	key := fmt.Sprintf("bars:%s:%d", symbol, lookbackDays)

	var cached []contracts.Bar
	if found, err := c.cache.Get(ctx, key, &cached); err == nil && found && len(cached) > 0 {
		c.logger.WithField("symbol", symbol).Debug("Bars served from cache")
		return cached, nil
	}

	bars, err := c.source.DailyBars(ctx, symbol, lookbackDays)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, bars, barCacheTTL); err != nil {
		c.logger.WithField("symbol", symbol).WithError(err).Warn("Bar cache write failed")
	}
	return bars, nil
}
