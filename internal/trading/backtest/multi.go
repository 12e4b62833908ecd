package backtest

import (
	"context"
	"fmt"

	"tradesim/internal/core"
	"tradesim/internal/engine/tickengine"
	"tradesim/pkg/concurrency"
)

// Instrument is one independent simulation.
type Instrument struct {
	Symbol string
	Walk   RandomWalk
	Bars   int
}

// MultiConfig describes how each instrument's engine and signal are built.
type MultiConfig struct {
	Engine    tickengine.Options // template; Symbol is set per instrument
	NewSignal func(symbol string) Signal
	Runner    RunnerOptions
}

// MultiRunner runs many instruments concurrently on a worker pool. Each
// instrument gets its own engine; nothing is shared between them apart
// from the journal and publisher.
type MultiRunner struct {
	pool   *concurrency.WorkerPool
	cfg    MultiConfig
	logger core.ILogger
}

func NewMultiRunner(pool *concurrency.WorkerPool, cfg MultiConfig, logger core.ILogger) *MultiRunner {
	return &MultiRunner{
		pool:   pool,
		cfg:    cfg,
		logger: logger.WithField("component", "multi_runner"),
	}
}

// Run simulates every instrument and returns results in input order.
func (m *MultiRunner) Run(ctx context.Context, instruments []Instrument) ([]Result, error) {
	results := make([]Result, len(instruments))
	jobs := make([]func(context.Context) error, len(instruments))

	for i, inst := range instruments {
		i, inst := i, inst
		jobs[i] = func(ctx context.Context) error {
			opts := m.cfg.Engine
			opts.Symbol = inst.Symbol
			engine, err := tickengine.New(opts)
			if err != nil {
				return fmt.Errorf("%s: %w", inst.Symbol, err)
			}

			var signal Signal
			if m.cfg.NewSignal != nil {
				signal = m.cfg.NewSignal(inst.Symbol)
			}
			res, err := NewRunner(engine, signal, m.cfg.Runner).Run(ctx, inst.Walk.Ticks(inst.Bars))
			if err != nil {
				return fmt.Errorf("%s: %w", inst.Symbol, err)
			}
			results[i] = res
			return nil
		}
	}

	m.logger.Info("Starting backtests", "instruments", len(instruments))
	if err := m.pool.RunAll(ctx, jobs...); err != nil {
		return nil, err
	}
	return results, nil
}
