package tickengine

import (
	"tradesim/internal/core"
	"tradesim/internal/risk"
	"tradesim/internal/trading/fee"
	"tradesim/internal/trading/position"
	"tradesim/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Options configures an Engine for one instrument.
type Options struct {
	Symbol        string
	Currency      string
	InitialEquity decimal.Decimal
	Risk          risk.Config
	Fees          fee.Schedule
	Logger        core.ILogger
	Metrics       *telemetry.MetricsHolder // defaults to the global holder
}

// EntryRequest is a new-entry intent. Zero Size selects the default size,
// zero Price the last tick price and zero Leverage the configured leverage.
type EntryRequest struct {
	Direction core.Direction
	Size      decimal.Decimal
	Price     decimal.Decimal
	Leverage  decimal.Decimal
	Comment   string
}

// PositionInfo is a read-only view of an open position.
type PositionInfo struct {
	ID             string
	Symbol         string
	Direction      core.Direction
	Size           decimal.Decimal
	EntryPrice     decimal.Decimal
	Leverage       decimal.Decimal
	Margin         decimal.Decimal
	OpenProfit     decimal.Decimal
	Targets        []decimal.Decimal
	TrailingActive bool
	TrailingPeak   decimal.Decimal
	Status         core.PositionStatus
}

func infoOf(p *position.Position, price decimal.Decimal) PositionInfo {
	active, peak := p.TrailingStop()
	return PositionInfo{
		ID:             p.ID(),
		Symbol:         p.Symbol(),
		Direction:      p.Direction(),
		Size:           p.Size(),
		EntryPrice:     p.EntryPrice(),
		Leverage:       p.Leverage(),
		Margin:         p.Margin(),
		OpenProfit:     p.OpenProfit(price),
		Targets:        p.Targets(),
		TrailingActive: active,
		TrailingPeak:   peak,
		Status:         p.Status(),
	}
}
