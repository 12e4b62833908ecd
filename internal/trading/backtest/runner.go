// Package backtest replays price ticks through tick engines.
package backtest

import (
	"context"
	"fmt"
	"time"

	"tradesim/internal/core"
	"tradesim/internal/engine/tickengine"
	"tradesim/internal/journal"
	"tradesim/internal/risk"
	"tradesim/internal/trading/account"
	"tradesim/internal/trading/position"
	"tradesim/pkg/logging"
	"tradesim/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Publisher receives progress while a run is in flight.
type Publisher interface {
	PublishSnapshot(symbol string, ledger account.Snapshot, tracker account.TrackerSnapshot)
	PublishRecord(rec position.Record)
}

// TripNotifier is told when an instrument's circuit breaker opens.
type TripNotifier interface {
	CircuitTripped(ctx context.Context, symbol string, status risk.CircuitStatus)
}

// Result is the final state of one instrument.
type Result struct {
	Symbol  string                  `json:"symbol"`
	Ticks   int                     `json:"ticks"`
	Ledger  account.Snapshot        `json:"ledger"`
	Tracker account.TrackerSnapshot `json:"tracker"`
	Records []position.Record       `json:"records"`
}

// RunnerOptions wires the optional collaborators of a Runner.
type RunnerOptions struct {
	Store        journal.Store // closed records are appended when set
	Publisher    Publisher
	Alerts       TripNotifier
	PublishEvery int           // ticks between snapshot publications, default 100
	Pace         time.Duration // wall-clock delay between ticks
	Logger       core.ILogger
}

// Runner feeds ticks into one engine and lets a signal act after each.
type Runner struct {
	engine *tickengine.Engine
	signal Signal
	opts   RunnerOptions
	logger core.ILogger
	tracer trace.Tracer
}

func NewRunner(engine *tickengine.Engine, signal Signal, opts RunnerOptions) *Runner {
	if opts.PublishEvery <= 0 {
		opts.PublishEvery = 100
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetGlobalLogger()
	}
	r := &Runner{
		engine: engine,
		signal: signal,
		opts:   opts,
		logger: opts.Logger.WithField("component", "backtest_runner").WithField("symbol", engine.Symbol()),
		tracer: telemetry.GetTracer("backtest"),
	}
	if opts.Publisher != nil {
		engine.OnClose(opts.Publisher.PublishRecord)
	}
	if opts.Alerts != nil {
		symbol := engine.Symbol()
		engine.OnCircuitTrip(func(status risk.CircuitStatus) {
			opts.Alerts.CircuitTripped(context.Background(), symbol, status)
		})
	}
	return r
}

// Run replays ticks in order and returns the final state.
func (r *Runner) Run(ctx context.Context, ticks []core.Tick) (Result, error) {
	symbol := r.engine.Symbol()
	ctx, span := r.tracer.Start(ctx, "backtest.Run",
		trace.WithAttributes(attribute.String("symbol", symbol), attribute.Int("ticks", len(ticks))))
	defer span.End()

	for i, tick := range ticks {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return Result{}, err
		}
		if err := r.engine.Update(ctx, tick); err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("bar %d: %w", tick.BarIndex, err)
		}
		if r.signal != nil {
			if err := r.signal.OnTick(ctx, r.engine, tick); err != nil {
				span.RecordError(err)
				return Result{}, fmt.Errorf("signal at bar %d: %w", tick.BarIndex, err)
			}
		}
		if r.opts.Publisher != nil && (i+1)%r.opts.PublishEvery == 0 {
			r.opts.Publisher.PublishSnapshot(symbol, r.engine.LedgerSnapshot(), r.engine.TrackerSnapshot())
		}
		if r.opts.Pace > 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(r.opts.Pace):
			}
		}
	}

	res := Result{
		Symbol:  symbol,
		Ticks:   len(ticks),
		Ledger:  r.engine.LedgerSnapshot(),
		Tracker: r.engine.TrackerSnapshot(),
		Records: r.engine.ClosedRecords(),
	}
	if r.opts.Publisher != nil {
		r.opts.Publisher.PublishSnapshot(symbol, res.Ledger, res.Tracker)
	}

	if r.opts.Store != nil {
		for _, rec := range res.Records {
			if err := r.opts.Store.Append(ctx, rec); err != nil {
				span.RecordError(err)
				return res, fmt.Errorf("journal position %s: %w", rec.ID, err)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("closed_positions", len(res.Records)),
		attribute.String("net_profit", res.Tracker.NetProfit.String()),
	)
	r.logger.Info("Backtest finished",
		"ticks", res.Ticks,
		"closed", len(res.Records),
		"net_profit", res.Tracker.NetProfit,
		"equity", res.Ledger.Equity)
	return res, nil
}
