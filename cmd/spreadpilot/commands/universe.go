package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkrause/spreadpilot/internal/universe"
	"github.com/tkrause/spreadpilot/pkg/config"
	"github.com/tkrause/spreadpilot/pkg/httputil"
	"github.com/tkrause/spreadpilot/pkg/logger"
	"github.com/tkrause/spreadpilot/pkg/redis"
)

var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Inspect or refresh the trading universe",
	Long: `Manage the index constituent list.

Subcommands:
  list     - print the current universe
  refresh  - re-scrape the constituent list and update the cache

Example:
  spreadpilot universe list
  spreadpilot universe refresh`,
}

var universeListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the current universe",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, cleanup, err := initLoader()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		symbols, err := loader.Symbols(ctx)
		if err != nil {
			return fmt.Errorf("load universe: %w", err)
		}

		fmt.Printf("Universe (%d symbols):\n", len(symbols))
		for _, sym := range symbols {
			fmt.Printf("  %s\n", sym)
		}
		return nil
	},
}

var universeRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-scrape the constituent list",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, cleanup, err := initLoader()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		count, err := loader.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("refresh universe: %w", err)
		}

		fmt.Printf("Universe refreshed: %d symbols\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeListCmd)
	universeCmd.AddCommand(universeRefreshCmd)
}

func initLoader() (*universe.Loader, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	redisClient, err := redis.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	cache := redis.NewCache(redisClient, "spreadpilot")

	loader := universe.NewLoader(httputil.New(log), cache, log)
	cleanup := func() { redisClient.Close() }
	return loader, cleanup, nil
}
