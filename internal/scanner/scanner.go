package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/internal/technical"
	"github.com/tkrause/spreadpilot/pkg/logger"
)

// BarProvider supplies daily history for the scanner.
type BarProvider interface {
	DailyBars(ctx context.Context, symbol string, lookbackDays int) ([]contracts.Bar, error)
}

// Scanner evaluates the setup rules over each candidate's bar history
// and emits at most one directional signal per symbol.
type Scanner struct {
	bars   BarProvider
	rules  []Rule
	tech   strategy.Technical
	bases  strategy.Bases
	logger *logger.Logger
}

// New creates a scanner with the default rule set.
func New(bars BarProvider, cfg *strategy.Config, log *logger.Logger) *Scanner {
	return &Scanner{
		bars:   bars,
		rules:  DefaultRules(),
		tech:   cfg.Technical,
		bases:  cfg.Bases,
		logger: log,
	}
}

// Scan runs every candidate through the rule chain. Per-symbol data
// problems are logged and skipped; the scan only fails when the
// context is cancelled.
func (s *Scanner) Scan(ctx context.Context, candidates []contracts.Candidate) ([]contracts.Signal, error) {
	signals := make([]contracts.Signal, 0)

	for _, c := range candidates {
		select {
		case <-ctx.Done():
			return signals, ctx.Err()
		default:
		}

		sig, err := s.scanOne(ctx, c.Symbol)
		if err != nil {
			if errors.Is(err, contracts.ErrDataUnavailable) || errors.Is(err, contracts.ErrInsufficientHistory) {
				s.logger.WithField("symbol", c.Symbol).WithError(err).Debug("Scan skipped symbol")
				continue
			}
			return signals, err
		}
		if sig != nil {
			signals = append(signals, *sig)
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"candidates": len(candidates),
		"signals":    len(signals),
	}).Info("Scan complete")

	return signals, nil
}

// scanOne evaluates a single symbol. A nil signal with nil error means
// no pattern matched today.
func (s *Scanner) scanOne(ctx context.Context, symbol string) (*contracts.Signal, error) {
	bars, err := s.bars.DailyBars(ctx, symbol, s.tech.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("bars %s: %w", symbol, err)
	}

	series, err := technical.Compute(bars, s.tech)
	if err != nil {
		return nil, err
	}

	direction, ok := s.match(series)
	if !ok {
		return nil, nil
	}

	// The volume floor applies after pattern matching so a thin tape
	// never trades, whatever the chart looks like.
	last := series.Bar(0)
	if last.Volume < s.tech.MinVolume {
		s.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"volume": last.Volume,
		}).Debug("Signal dropped on volume floor")
		return nil, nil
	}

	sig := &contracts.Signal{
		Symbol:     symbol,
		Direction:  direction,
		AsOf:       last.Date,
		Underlying: last.Close,
		ATR:        series.ATR(),
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol":    symbol,
		"direction": string(direction),
		"close":     last.Close,
		"atr":       sig.ATR,
	}).Info("Signal found")

	return sig, nil
}

// match runs the rules in priority order and returns the first hit.
func (s *Scanner) match(series *technical.Series) (contracts.Direction, bool) {
	for _, rule := range s.rules {
		if rule.Match(series, s.bases) {
			return rule.Direction, true
		}
	}
	return "", false
}
