package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"tradesim/internal/bootstrap"
	"tradesim/internal/infrastructure/health"
	"tradesim/internal/infrastructure/metrics"
	"tradesim/internal/journal"
	"tradesim/internal/trading/backtest"
	"tradesim/pkg/concurrency"
	"tradesim/pkg/liveserver"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults when empty)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("simulator version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err := run(app); err != nil {
		app.Logger.Error("Simulator failed", "error", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
	}
	os.Exit(code)
}

func run(app *bootstrap.App) error {
	cfg := app.Cfg
	logger := app.Logger

	logger.Info("Starting simulator", "version", version, "instruments", len(cfg.Instruments))

	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if sq, ok := store.(*journal.SQLiteStore); ok {
		logger.Info("Journal opened", "path", cfg.Journal.Path, "run_id", sq.RunID())
	}

	engineOpts, err := engineOptions(cfg, logger)
	if err != nil {
		return err
	}
	insts := instruments(cfg)
	if err := checkSafety(insts, engineOpts, logger); err != nil {
		return fmt.Errorf("safety check: %w", err)
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "instruments",
		MaxWorkers:  cfg.Concurrency.MaxWorkers,
		MaxCapacity: cfg.Concurrency.MaxCapacity,
	}, logger)
	defer pool.Stop()

	healthMgr := health.NewHealthManager(logger)
	healthMgr.Register("journal", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := store.Symbols(ctx)
		return err
	})

	alerts := newAlertManager(cfg, logger)
	defer alerts.Wait()

	runnerOpts := backtest.RunnerOptions{
		Store:        store,
		PublishEvery: cfg.LiveServer.PublishEvery,
		Logger:       logger,
	}
	if len(alerts.Channels()) > 0 {
		runnerOpts.Alerts = alerts
	}

	var runners []bootstrap.Runner
	if cfg.LiveServer.Enabled {
		hub := liveserver.NewHub(logger)
		server := liveserver.NewServer(hub, logger, liveserver.Options{
			AllowedOrigins: cfg.LiveServer.AllowedOrigins,
			MaxConnections: cfg.LiveServer.MaxConnections,
			Production:     cfg.LiveServer.Production,
		})
		runnerOpts.Publisher = hub
		runnerOpts.Pace = cfg.LiveServer.Pace
		healthMgr.Register("live_server", func() error { return nil })

		runners = append(runners,
			bootstrap.RunnerFunc(func(ctx context.Context) error {
				hub.Run(ctx)
				return nil
			}),
			bootstrap.RunnerFunc(func(ctx context.Context) error {
				return server.Start(ctx, cfg.LiveServer.Addr)
			}),
		)
	}
	if cfg.Telemetry.EnableMetrics {
		ms := metrics.NewServer(cfg.Telemetry.MetricsPort, prometheus.DefaultGatherer, healthMgr, logger)
		runners = append(runners, ms)
	}

	multi := backtest.NewMultiRunner(pool, backtest.MultiConfig{
		Engine:    engineOpts,
		NewSignal: newSignalFactory(cfg),
		Runner:    runnerOpts,
	}, logger)

	lingering := len(runners) > 0
	runners = append(runners, bootstrap.RunnerFunc(func(ctx context.Context) error {
		results, err := multi.Run(ctx, insts)
		if err != nil {
			return err
		}
		report(logger, results)
		if lingering {
			logger.Info("Simulation complete; servers stay up until interrupted")
		}
		return nil
	}))

	return app.Run(context.Background(), runners...)
}
