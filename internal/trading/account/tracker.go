package account

import (
	"sync"

	"tradesim/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// TradeResult is the realized outcome of one fully closed position.
type TradeResult struct {
	NetProfit   decimal.Decimal
	GrossProfit decimal.Decimal // positive magnitude
	GrossLoss   decimal.Decimal // positive magnitude
	Commission  decimal.Decimal
}

// TrackerSnapshot is a value copy of the performance statistics.
type TrackerSnapshot struct {
	TotalTrades          int             `json:"total_trades"`
	WinningTrades        int             `json:"winning_trades"`
	LosingTrades         int             `json:"losing_trades"`
	OpenTrades           int             `json:"open_trades"`
	ConsecutiveWins      int             `json:"consecutive_wins"`
	ConsecutiveLosses    int             `json:"consecutive_losses"`
	MaxConsecutiveWins   int             `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
	GrossProfit          decimal.Decimal `json:"gross_profit"`
	GrossLoss            decimal.Decimal `json:"gross_loss"`
	NetProfit            decimal.Decimal `json:"net_profit"`
	CommissionPaid       decimal.Decimal `json:"commission_paid"`
	PercentProfitable    decimal.Decimal `json:"percent_profitable"`
	AvgWin               decimal.Decimal `json:"avg_win"`
	AvgLoss              decimal.Decimal `json:"avg_loss"`
	AvgProfitPerTrade    decimal.Decimal `json:"avg_profit_per_trade"`
	WinLossRatio         decimal.Decimal `json:"win_loss_ratio"`
	ProfitFactor         decimal.Decimal `json:"profit_factor"`
	StartingBalance      decimal.Decimal `json:"starting_balance"`
	CurrentBalance       decimal.Decimal `json:"current_balance"`
	PeakBalance          decimal.Decimal `json:"peak_balance"`
	LowBalance           decimal.Decimal `json:"low_balance"`
	NetReturns           decimal.Decimal `json:"net_returns"`
	MaxDrawdown          decimal.Decimal `json:"max_drawdown"`
	MaxRunUp             decimal.Decimal `json:"max_run_up"`
}

// Map returns the statistics keyed by name.
func (s TrackerSnapshot) Map() map[string]decimal.Decimal {
	n := func(v int) decimal.Decimal { return decimal.NewFromInt(int64(v)) }
	return map[string]decimal.Decimal{
		"total_trades":           n(s.TotalTrades),
		"winning_trades":         n(s.WinningTrades),
		"losing_trades":          n(s.LosingTrades),
		"open_trades":            n(s.OpenTrades),
		"consecutive_wins":       n(s.ConsecutiveWins),
		"consecutive_losses":     n(s.ConsecutiveLosses),
		"max_consecutive_wins":   n(s.MaxConsecutiveWins),
		"max_consecutive_losses": n(s.MaxConsecutiveLosses),
		"gross_profit":           s.GrossProfit,
		"gross_loss":             s.GrossLoss,
		"net_profit":             s.NetProfit,
		"commission_paid":        s.CommissionPaid,
		"percent_profitable":     s.PercentProfitable,
		"avg_win":                s.AvgWin,
		"avg_loss":               s.AvgLoss,
		"avg_profit_per_trade":   s.AvgProfitPerTrade,
		"win_loss_ratio":         s.WinLossRatio,
		"profit_factor":          s.ProfitFactor,
		"starting_balance":       s.StartingBalance,
		"current_balance":        s.CurrentBalance,
		"peak_balance":           s.PeakBalance,
		"low_balance":            s.LowBalance,
		"net_returns":            s.NetReturns,
		"max_drawdown":           s.MaxDrawdown,
		"max_run_up":             s.MaxRunUp,
	}
}

// Tracker derives performance statistics from the closed-trade history.
// Aggregates are rebuilt from the full history on every close rather than
// accumulated, so they never drift.
type Tracker struct {
	mu   sync.RWMutex
	snap TrackerSnapshot
}

func NewTracker(startingBalance decimal.Decimal) *Tracker {
	return &Tracker{snap: TrackerSnapshot{
		StartingBalance: startingBalance,
		CurrentBalance:  startingBalance,
		PeakBalance:     startingBalance,
		LowBalance:      startingBalance,
	}}
}

// Recompute rebuilds every closed-trade aggregate from results, which must
// be in close order.
func (t *Tracker) Recompute(results []TradeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.snap
	s.TotalTrades = len(results)
	s.WinningTrades, s.LosingTrades = 0, 0
	s.ConsecutiveWins, s.ConsecutiveLosses = 0, 0
	s.MaxConsecutiveWins, s.MaxConsecutiveLosses = 0, 0
	s.GrossProfit, s.GrossLoss = decimal.Zero, decimal.Zero
	s.NetProfit, s.CommissionPaid = decimal.Zero, decimal.Zero

	winSum, lossSum := decimal.Zero, decimal.Zero
	balance := s.StartingBalance
	peak, low := s.StartingBalance, s.StartingBalance

	for _, r := range results {
		s.GrossProfit = s.GrossProfit.Add(r.GrossProfit)
		s.GrossLoss = s.GrossLoss.Add(r.GrossLoss)
		s.NetProfit = s.NetProfit.Add(r.NetProfit)
		s.CommissionPaid = s.CommissionPaid.Add(r.Commission)

		if r.NetProfit.IsPositive() {
			s.WinningTrades++
			s.ConsecutiveWins++
			s.ConsecutiveLosses = 0
			winSum = winSum.Add(r.NetProfit)
		} else {
			s.LosingTrades++
			s.ConsecutiveLosses++
			s.ConsecutiveWins = 0
			lossSum = lossSum.Add(r.NetProfit)
		}
		s.MaxConsecutiveWins = max(s.MaxConsecutiveWins, s.ConsecutiveWins)
		s.MaxConsecutiveLosses = max(s.MaxConsecutiveLosses, s.ConsecutiveLosses)

		balance = balance.Add(r.NetProfit)
		peak = decimal.Max(peak, balance)
		low = decimal.Min(low, balance)
	}

	total := decimal.NewFromInt(int64(s.TotalTrades))
	s.PercentProfitable = tradingutils.SafeDiv(decimal.NewFromInt(int64(s.WinningTrades)), total)
	s.AvgWin = tradingutils.SafeDiv(winSum, decimal.NewFromInt(int64(s.WinningTrades)))
	s.AvgLoss = tradingutils.SafeDiv(lossSum, decimal.NewFromInt(int64(s.LosingTrades))).Abs()
	s.AvgProfitPerTrade = tradingutils.SafeDiv(s.NetProfit, total)
	s.WinLossRatio = tradingutils.SafeDiv(s.AvgWin, s.AvgLoss)
	s.ProfitFactor = tradingutils.SafeDiv(s.GrossProfit, s.GrossLoss)

	s.CurrentBalance = balance
	s.PeakBalance = peak
	s.LowBalance = low
	s.NetReturns = balance.Sub(s.StartingBalance)
}

// Observe records the aggregate open profit at one tick and the number of
// open positions.
func (t *Tracker) Observe(openProfit decimal.Decimal, openTrades int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.OpenTrades = openTrades
	t.snap.MaxDrawdown = decimal.Min(t.snap.MaxDrawdown, openProfit)
	t.snap.MaxRunUp = decimal.Max(t.snap.MaxRunUp, openProfit)
}

func (t *Tracker) Snapshot() TrackerSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
