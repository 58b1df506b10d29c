package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkrause/spreadpilot/internal/alert"
	"github.com/tkrause/spreadpilot/internal/api"
	"github.com/tkrause/spreadpilot/internal/api/handlers"
	"github.com/tkrause/spreadpilot/internal/contracts"
	"github.com/tkrause/spreadpilot/internal/executor"
	"github.com/tkrause/spreadpilot/internal/marketdata"
	"github.com/tkrause/spreadpilot/internal/marketdata/ibgateway"
	"github.com/tkrause/spreadpilot/internal/monitor"
	"github.com/tkrause/spreadpilot/internal/position"
	"github.com/tkrause/spreadpilot/internal/scanner"
	"github.com/tkrause/spreadpilot/internal/scheduler"
	"github.com/tkrause/spreadpilot/internal/scheduler/jobs"
	"github.com/tkrause/spreadpilot/internal/spread"
	"github.com/tkrause/spreadpilot/internal/strategy"
	"github.com/tkrause/spreadpilot/internal/universe"
	"github.com/tkrause/spreadpilot/pkg/config"
	"github.com/tkrause/spreadpilot/pkg/database"
	"github.com/tkrause/spreadpilot/pkg/httputil"
	"github.com/tkrause/spreadpilot/pkg/logger"
	"github.com/tkrause/spreadpilot/pkg/redis"
)

// priceFeedMaxAge bounds how stale a streamed tick may be before the
// monitor falls back to a REST snapshot.
const priceFeedMaxAge = 2 * time.Minute

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading daemon",
	Long: `Run the full trading daemon: the daily entry gate, the exit
monitor, the price feed, the cron jobs and the operations API.

The daemon recovers its position book and run state from the database
on startup, so a restart mid-day never double-enters.

Example:
  spreadpilot run
  spreadpilot run --strategy strategy.yaml`,
	RunE: runTrader,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runTrader(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	strat, err := strategy.LoadOrDefault(strategyFile)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"strategy": strat.Meta.StrategyID,
		"version":  strat.Meta.Version,
	}).Info("Strategy loaded")

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, "spreadpilot")

	// Broker gateway, REST and streaming
	httpClient := httputil.New(log)
	gateway := ibgateway.New(cfg.Gateway, httpClient, log)
	feed := ibgateway.NewPriceFeed(cfg.Gateway.WebSocketURL, gateway, log)

	// Entry pipeline
	loader := universe.NewLoader(httpClient, cache, log)
	filter := universe.NewFilter(gateway, strat.Universe, log)
	bars := marketdata.NewCachedBars(gateway, cache, log)
	scan := scanner.New(bars, strat, log)
	selector := spread.NewSelector(gateway, strat.Spread, log)

	repo := executor.NewRepository(db)
	book := position.NewBook()
	sched := executor.NewScheduler(strat, loader, filter, scan, selector,
		gateway, book, repo, executor.SystemClock{}, log)

	notifier := alert.FromConfig(cfg.Alerts, log)
	prices := marketdata.NewPrices(feed, gateway, priceFeedMaxAge, log)
	mon := monitor.New(strat, book, prices, gateway, repo, notifier, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Recover state before anything runs: the book drives both the
	// entry caps and the exit monitor.
	runState, err := repo.LoadRunState(ctx)
	if err != nil {
		return fmt.Errorf("load run state: %w", err)
	}
	sched.RestoreState(runState)

	open, err := repo.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	book.Restore(open)
	log.WithField("positions", len(open)).Info("Position book restored")

	if err := feed.Start(ctx); err != nil {
		log.WithError(err).Warn("Price feed unavailable, monitor will use REST snapshots")
	}
	for _, p := range open {
		if err := feed.Subscribe(ctx, p.Symbol); err != nil {
			log.WithField("symbol", p.Symbol).WithError(err).Warn("Feed subscribe failed")
		}
	}

	sched.SetEntryHook(entryHook(strat, bars, book, repo, feed, notifier, log))
	mon.SetClosedHook(func(symbol string) { feed.Unsubscribe(symbol) })

	go mon.Run(ctx)

	cron := scheduler.New(strat.Location(), log)
	if err := cron.AddJob(jobs.NewEntryGateJob(sched, log)); err != nil {
		return err
	}
	if err := cron.AddJob(jobs.NewUniverseRefreshJob(loader, log)); err != nil {
		return err
	}
	cron.Start()

	trading := handlers.NewTradingHandler(strat, book, repo, loader, log)
	status := handlers.NewStatusHandler(sched, cron, gateway, log)
	limiter := redis.NewRateLimiter(redisClient, "spreadpilot")
	server := api.New(cfg, log, api.NewRouter(trading, status, limiter, log))
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Error("API server stopped")
		}
	}()

	log.Info("Trading daemon started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// Shutdown order: stop scheduling new work, let the monitor finish
	// its iteration, then tear down transports and storage.
	log.Info("Shutting down")
	cron.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("API shutdown failed")
	}
	feed.Stop()

	log.Info("Trading daemon stopped")
	return nil
}

// entryHook runs after each confirmed fill: alert, subscribe the feed,
// and attach the configured profit target.
func entryHook(
	strat *strategy.Config,
	bars *marketdata.CachedBars,
	book *position.Book,
	repo *executor.Repository,
	feed *ibgateway.PriceFeed,
	notifier alert.Notifier,
	log *logger.Logger,
) executor.EntryHook {
	return func(ctx context.Context, p contracts.Position) {
		if err := notifier.NotifyEntry(ctx, p); err != nil {
			log.WithError(err).Warn("Entry alert failed")
		}
		if err := feed.Subscribe(ctx, p.Symbol); err != nil {
			log.WithField("symbol", p.Symbol).WithError(err).Warn("Feed subscribe failed")
		}

		history, err := bars.DailyBars(ctx, p.Symbol, strat.Technical.LookbackDays)
		if err != nil {
			log.WithField("symbol", p.Symbol).WithError(err).Warn("No history for profit target")
			return
		}
		target, kind, ok := monitor.TargetFor(p, history, strat)
		if !ok {
			return
		}
		if err := book.SetTarget(p.Symbol, target, kind); err != nil {
			return
		}
		if updated, found := book.Get(p.Symbol); found {
			if err := repo.SavePosition(ctx, updated); err != nil {
				log.WithError(err).Warn("Failed to persist profit target")
			}
		}
		log.WithFields(map[string]interface{}{
			"symbol": p.Symbol,
			"target": target,
			"kind":   string(kind),
		}).Info("Profit target set")
	}
}
