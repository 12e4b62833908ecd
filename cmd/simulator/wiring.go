package main

import (
	"fmt"
	"time"

	"tradesim/internal/alert"
	"tradesim/internal/config"
	"tradesim/internal/core"
	"tradesim/internal/engine/tickengine"
	"tradesim/internal/journal"
	"tradesim/internal/safety"
	"tradesim/internal/trading/backtest"

	"github.com/shopspring/decimal"
)

func openJournal(cfg *config.Config) (journal.Store, error) {
	switch cfg.Journal.Driver {
	case "sqlite":
		store, err := journal.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return store, nil
	default:
		return journal.NewMemoryStore(), nil
	}
}

func newAlertManager(cfg *config.Config, logger core.ILogger) *alert.AlertManager {
	am := alert.NewAlertManager(logger)
	if cfg.Alerts.Log {
		am.AddChannel(alert.NewLogChannel(logger))
	}
	if cfg.Alerts.SlackWebhookURL != "" {
		am.AddChannel(alert.NewSlackChannel(cfg.Alerts.SlackWebhookURL.Reveal()))
	}
	if cfg.Alerts.TelegramBotToken != "" {
		am.AddChannel(alert.NewTelegramChannel(cfg.Alerts.TelegramBotToken.Reveal(), cfg.Alerts.TelegramChatID))
	}
	return am
}

func engineOptions(cfg *config.Config, logger core.ILogger) (tickengine.Options, error) {
	rc, err := cfg.RiskConfig()
	if err != nil {
		return tickengine.Options{}, err
	}
	fees, err := cfg.FeeSchedule()
	if err != nil {
		return tickengine.Options{}, err
	}
	return tickengine.Options{
		Currency:      cfg.Account.Currency,
		InitialEquity: cfg.InitialEquity(),
		Risk:          rc,
		Fees:          fees,
		Logger:        logger,
	}, nil
}

// checkSafety runs the account safety check for every instrument at its
// starting price.
func checkSafety(insts []backtest.Instrument, opts tickengine.Options, logger core.ILogger) error {
	checker := safety.NewSafetyChecker(logger)
	for _, inst := range insts {
		if err := checker.CheckAccountSafety(inst.Symbol, opts.Risk, opts.Fees, opts.InitialEquity, inst.Walk.Start); err != nil {
			return fmt.Errorf("%s: %w", inst.Symbol, err)
		}
	}
	return nil
}

func instruments(cfg *config.Config) []backtest.Instrument {
	out := make([]backtest.Instrument, 0, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		interval := ic.Interval
		if interval <= 0 {
			interval = time.Minute
		}
		out = append(out, backtest.Instrument{
			Symbol: ic.Symbol,
			Bars:   ic.Bars,
			Walk: backtest.RandomWalk{
				Start:      decimal.NewFromFloat(ic.StartPrice),
				Volatility: ic.Volatility,
				Seed:       ic.Seed,
				Interval:   interval,
			},
		})
	}
	return out
}

func newSignalFactory(cfg *config.Config) func(string) backtest.Signal {
	every := cfg.Signal.Every
	if every <= 0 {
		return nil
	}
	size := decimal.NewFromFloat(cfg.Signal.Size)
	return func(string) backtest.Signal {
		return backtest.NewIntervalSignal(every, size)
	}
}

func report(logger core.ILogger, results []backtest.Result) {
	for _, res := range results {
		logger.Info("Instrument summary",
			"symbol", res.Symbol,
			"ticks", res.Ticks,
			"equity", res.Ledger.Equity,
			"balance", res.Ledger.Balance,
			"open_profit", res.Ledger.OpenProfit,
			"trades", res.Tracker.TotalTrades,
			"win_rate", res.Tracker.PercentProfitable,
			"net_profit", res.Tracker.NetProfit,
			"commission", res.Tracker.CommissionPaid,
			"max_drawdown", res.Tracker.MaxDrawdown,
			"profit_factor", res.Tracker.ProfitFactor,
		)
	}
}
