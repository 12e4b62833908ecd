// Package safety provides safety checks run before a simulation starts
package safety

import (
	"fmt"

	"tradesim/internal/core"
	"tradesim/internal/risk"
	"tradesim/internal/trading/fee"

	"github.com/shopspring/decimal"
)

// MaxLeverage is the highest leverage the checker accepts.
const MaxLeverage = 10

// SafetyChecker implements safety validation checks
type SafetyChecker struct {
	logger core.ILogger
}

// NewSafetyChecker creates a new safety checker
func NewSafetyChecker(logger core.ILogger) *SafetyChecker {
	return &SafetyChecker{
		logger: logger.WithField("component", "safety_checker"),
	}
}

// CheckAccountSafety verifies that the configured account can trade symbol
// at currentPrice: the balance is positive, leverage is bounded, at least
// one default-size entry fits, and the first take-profit rung clears the
// round-trip fees.
func (s *SafetyChecker) CheckAccountSafety(
	symbol string,
	cfg risk.Config,
	fees fee.Schedule,
	equity decimal.Decimal,
	currentPrice decimal.Decimal,
) error {
	s.logger.Info("Starting account safety check", "symbol", symbol, "price", currentPrice, "equity", equity)

	if !currentPrice.IsPositive() {
		return fmt.Errorf("invalid price: %s", currentPrice)
	}
	if !equity.IsPositive() {
		return fmt.Errorf("insufficient account balance: %s", equity)
	}
	if cfg.Leverage.GreaterThan(decimal.NewFromInt(MaxLeverage)) {
		return fmt.Errorf("account leverage too high: %s (max allowed: %d)", cfg.Leverage, MaxLeverage)
	}

	caps := cfg.Resolve(currentPrice, equity)
	entryUSD := decimal.Min(caps.DefaultSize.USD, caps.Order.USD)
	if entryUSD.LessThan(cfg.MinOrderUSD) {
		return fmt.Errorf("default entry %s USD is below the minimum order of %s USD", entryUSD, cfg.MinOrderUSD)
	}

	maxPositions := calculateMaxPositions(equity, cfg.Leverage, entryUSD)
	if maxPositions < 1 {
		return fmt.Errorf("account cannot fund a single %s USD entry at leverage %s", entryUSD, cfg.Leverage)
	}

	if cfg.TakeProfit.Enabled {
		netProfit, totalFees := roundTrip(cfg.TakeProfit.Start, fees, entryUSD.Div(currentPrice), currentPrice)
		if !netProfit.IsPositive() {
			return fmt.Errorf("negative or zero net profit at the first take-profit: %s (fees: %s). Widen take_profit.start or reduce fees",
				netProfit, totalFees)
		}
		s.logger.Info("Profitability check passed", "net_profit", netProfit, "fees", totalFees)
	}

	s.logger.Info("Account safety check completed successfully",
		"symbol", symbol,
		"max_allowed_positions", maxPositions)
	return nil
}

// roundTrip is the profit of a taker entry at price closed by a maker exit
// distance away.
func roundTrip(distance decimal.Decimal, fees fee.Schedule, size, price decimal.Decimal) (net, totalFees decimal.Decimal) {
	exit := price.Mul(decimal.NewFromInt(1).Add(distance))
	totalFees = fees.Taker.Calculate(size, price).Add(fees.Maker.Calculate(size, exit))
	return exit.Sub(price).Mul(size).Sub(totalFees), totalFees
}

// calculateMaxPositions is how many entries of entryUSD the leveraged
// balance covers.
func calculateMaxPositions(equity, leverage, entryUSD decimal.Decimal) int {
	if !entryUSD.IsPositive() {
		return 0
	}
	return int(equity.Mul(leverage).Div(entryUSD).IntPart())
}
