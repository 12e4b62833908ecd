package backtest

import (
	"math/rand"
	"time"

	"tradesim/internal/core"

	"github.com/shopspring/decimal"
)

var defaultFloor = decimal.RequireFromString("0.01")

// RandomWalk generates a reproducible geometric random walk. Each bar the
// price moves by a normally distributed fraction with standard deviation
// Volatility and never drops below Floor.
type RandomWalk struct {
	Start      decimal.Decimal
	Volatility float64
	Seed       int64
	Interval   time.Duration   // bar spacing, default one minute
	StartTime  time.Time       // time of bar 0, default 2024-01-01 UTC
	Floor      decimal.Decimal // default 0.01
	Precision  int32           // price decimals, default 2
}

// Ticks returns n ticks starting at bar 0.
func (w RandomWalk) Ticks(n int) []core.Tick {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	startTime := w.StartTime
	if startTime.IsZero() {
		startTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	floor := w.Floor
	if !floor.IsPositive() {
		floor = defaultFloor
	}
	precision := w.Precision
	if precision <= 0 {
		precision = 2
	}

	rng := rand.New(rand.NewSource(w.Seed))
	price := decimal.Max(w.Start.Round(precision), floor)
	ticks := make([]core.Tick, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			move := decimal.NewFromFloat(1 + rng.NormFloat64()*w.Volatility)
			price = decimal.Max(price.Mul(move).Round(precision), floor)
		}
		ticks = append(ticks, core.Tick{
			Time:     startTime.Add(time.Duration(i) * interval),
			BarIndex: int64(i),
			Price:    price,
		})
	}
	return ticks
}
