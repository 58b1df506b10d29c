package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/marketdata"
	"github.com/tkrause/spreadpilot/internal/marketdata/ibgateway"
	"github.com/tkrause/spreadpilot/internal/scanner"
	"github.com/tkrause/spreadpilot/internal/spread"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/internal/universe"
	"github.com/tkrause/spreadpilot/pkg/config"
	"github.com/tkrause/spreadpilot/pkg/httputil"
	"github.com/tkrause/spreadpilot/pkg/logger"
	"github.com/tkrause/spreadpilot/pkg/redis"
)

var scanPickSpreads bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the pattern scan once, without trading",
	Long: `Run the universe filter and pattern scan a single time and print
the signals. With --spreads each signal is also priced against the
option chain. No orders are placed.

Example:
  spreadpilot scan
  spreadpilot scan --spreads`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanPickSpreads, "spreads", false, "also select a vertical spread per signal")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	strat, err := strategy.LoadOrDefault(strategyFile)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}

	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, "spreadpilot")

	httpClient := httputil.New(log)
	gateway := ibgateway.New(cfg.Gateway, httpClient, log)

	loader := universe.NewLoader(httpClient, cache, log)
	filter := universe.NewFilter(gateway, strat.Universe, log)
	bars := marketdata.NewCachedBars(gateway, cache, log)
	scan := scanner.New(bars, strat, log)
	selector := spread.NewSelector(gateway, strat.Spread, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if !gateway.Connected(ctx) {
		return fmt.Errorf("broker gateway unreachable at %s", cfg.Gateway.BaseURL)
	}

	fmt.Println("=== SpreadPilot Scan ===")

	symbols, err := loader.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}
	fmt.Printf("Universe: %d symbols\n", len(symbols))

	result, err := filter.Build(ctx, symbols)
	if err != nil {
		return fmt.Errorf("filter universe: %w", err)
	}
	fmt.Printf("Candidates after filter: %d (excluded %d)\n", len(result.Candidates), len(result.Excluded))

	signals, err := scan.Scan(ctx, result.Candidates)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if len(signals) == 0 {
		fmt.Println("\nNo signals today")
		return nil
	}

	fmt.Printf("\n%-8s %-14s %10s %8s\n", "SYMBOL", "PATTERN", "CLOSE", "ATR")
	for _, sig := range signals {
		fmt.Printf("%-8s %-14s %10.2f %8.2f\n", sig.Symbol, sig.Direction, sig.Underlying, sig.ATR)
	}

	if !scanPickSpreads {
		return nil
	}

	fmt.Println("\nSpread selection:")
	for _, sig := range signals {
		candidate, err := selector.Select(ctx, sig)
		if err != nil {
			if errors.Is(err, contracts.ErrNoQualifyingCandidate) {
				fmt.Printf("  %-8s no qualifying spread\n", sig.Symbol)
				continue
			}
			fmt.Printf("  %-8s error: %v\n", sig.Symbol, err)
			continue
		}
		fmt.Printf("  %-8s %s long %.1f / short %.1f  debit $%.2f  width $%.0f  rr %.2f\n",
			candidate.Symbol, candidate.Direction,
			candidate.Long.Strike, candidate.Short.Strike,
			candidate.Debit, candidate.Width, candidate.RewardRisk())
	}
	return nil
}
