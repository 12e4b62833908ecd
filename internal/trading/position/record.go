package position

import (
	"time"

	"tradesim/internal/core"
	"tradesim/internal/trading/account"

	"github.com/shopspring/decimal"
)

// Record is the audit trail of one position. Entry fields are set once at
// open, accumulators grow with every close, and exit fields are stamped on
// the final close.
type Record struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Direction     core.Direction  `json:"direction"`
	Size          decimal.Decimal `json:"size"`
	Leverage      decimal.Decimal `json:"leverage"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	EntryTime     time.Time       `json:"entry_time"`
	EntryBarIndex int64           `json:"entry_bar_index"`
	EntryComment  string          `json:"entry_comment"`

	GrossProfit decimal.Decimal `json:"gross_profit"`
	GrossLoss   decimal.Decimal `json:"gross_loss"`
	NetProfit   decimal.Decimal `json:"net_profit"`
	Commission  decimal.Decimal `json:"commission"`
	OpenFees    decimal.Decimal `json:"open_fees"`
	Drawdown    decimal.Decimal `json:"drawdown"`
	RunUp       decimal.Decimal `json:"run_up"`

	Closed       bool            `json:"closed"`
	ExitPrice    decimal.Decimal `json:"exit_price"`
	ExitTime     time.Time       `json:"exit_time"`
	ExitBarIndex int64           `json:"exit_bar_index"`
	ExitKind     core.CloseKind  `json:"exit_kind"`
	ExitComment  string          `json:"exit_comment"`
}

// Result summarizes the record for performance statistics.
func (r Record) Result() account.TradeResult {
	return account.TradeResult{
		NetProfit:   r.NetProfit,
		GrossProfit: r.GrossProfit,
		GrossLoss:   r.GrossLoss,
		Commission:  r.Commission,
	}
}

func (r *Record) accumulate(profit, commission decimal.Decimal) {
	if profit.IsPositive() {
		r.GrossProfit = r.GrossProfit.Add(profit)
	} else {
		r.GrossLoss = r.GrossLoss.Add(profit.Abs())
	}
	r.Commission = r.Commission.Add(commission)
	r.NetProfit = r.NetProfit.Add(profit.Sub(commission))
}

func (r *Record) chargeOpenFee(fee decimal.Decimal) {
	r.OpenFees = r.OpenFees.Add(fee)
	r.Commission = r.Commission.Add(fee)
	r.NetProfit = r.NetProfit.Sub(fee)
}

func (r *Record) observe(openProfit decimal.Decimal) {
	r.Drawdown = decimal.Min(r.Drawdown, openProfit)
	r.RunUp = decimal.Max(r.RunUp, openProfit)
}

func (r *Record) finalize(price decimal.Decimal, tick core.Tick, kind core.CloseKind, comment string) {
	r.Closed = true
	r.ExitPrice = price
	r.ExitTime = tick.Time
	r.ExitBarIndex = tick.BarIndex
	r.ExitKind = kind
	r.ExitComment = comment
	if comment == "" {
		r.ExitComment = r.EntryComment
	}
}
