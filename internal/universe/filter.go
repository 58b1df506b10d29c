package universe

import (
	"context"
	"errors"
	"fmt"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// FundamentalsProvider supplies per-symbol snapshot data for the
// universe filter.
type FundamentalsProvider interface {
	Fundamentals(ctx context.Context, symbol string) (contracts.FundamentalSnapshot, error)
	IsOptionable(ctx context.Context, symbol string) (bool, error)
}

// Result is one filtered universe build: the passing candidates plus a
// per-symbol exclusion reason map for the audit log.
type Result struct {
	Candidates []contracts.Candidate
	Excluded   map[string]string
}

// Filter narrows the raw membership list to optionable large caps.
type Filter struct {
	provider FundamentalsProvider
	config   strategy.Universe
	logger   *logger.Logger
}

// NewFilter creates a universe filter.
func NewFilter(provider FundamentalsProvider, cfg strategy.Universe, log *logger.Logger) *Filter {
	return &Filter{
		provider: provider,
		config:   cfg,
		logger:   log,
	}
}

// Build evaluates every symbol and returns the qualifying candidates.
// A data failure on one symbol excludes that symbol only; the batch
// keeps going.
func (f *Filter) Build(ctx context.Context, symbols []string) (*Result, error) {
	result := &Result{
		Candidates: make([]contracts.Candidate, 0, len(symbols)),
		Excluded:   make(map[string]string),
	}

	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		candidate, reason, err := f.evaluate(ctx, symbol)
		if err != nil {
			if errors.Is(err, contracts.ErrDataUnavailable) {
				f.logger.WithField("symbol", symbol).WithError(err).Debug("Symbol skipped, data unavailable")
				result.Excluded[symbol] = "data unavailable"
				continue
			}
			return result, err
		}
		if reason != "" {
			result.Excluded[symbol] = reason
			continue
		}
		result.Candidates = append(result.Candidates, candidate)
	}

	f.logger.WithFields(map[string]interface{}{
		"scanned":  len(symbols),
		"passed":   len(result.Candidates),
		"excluded": len(result.Excluded),
	}).Info("Universe filter complete")

	return result, nil
}

// evaluate checks one symbol against the filter chain, returning the
// candidate on pass or the first exclusion reason.
func (f *Filter) evaluate(ctx context.Context, symbol string) (contracts.Candidate, string, error) {
	snap, err := f.provider.Fundamentals(ctx, symbol)
	if err != nil {
		return contracts.Candidate{}, "", fmt.Errorf("fundamentals %s: %w", symbol, err)
	}

	if snap.MarketCap < f.config.MinMarketCapUSD {
		return contracts.Candidate{}, fmt.Sprintf("market cap below floor (%.1fB)", snap.MarketCap/1e9), nil
	}
	if snap.LastPrice <= f.config.MinPriceUSD {
		return contracts.Candidate{}, fmt.Sprintf("price below floor (%.2f)", snap.LastPrice), nil
	}

	optionable, err := f.provider.IsOptionable(ctx, symbol)
	if err != nil {
		return contracts.Candidate{}, "", fmt.Errorf("optionable check %s: %w", symbol, err)
	}
	if !optionable {
		return contracts.Candidate{}, "no listed options", nil
	}

	return contracts.Candidate{
		Symbol:     symbol,
		MarketCap:  snap.MarketCap,
		LastPrice:  snap.LastPrice,
		Optionable: true,
	}, "", nil
}
