// Package account keeps the account-wide ledger and closed-trade statistics
// for one instrument.
package account

import (
	"sync"

	"tradesim/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// Exposure is an open position's contribution to the ledger at the
// current price.
type Exposure struct {
	OpenProfit decimal.Decimal
	Margin     decimal.Decimal
	PendingFee decimal.Decimal // cost of closing at market now
	Size       decimal.Decimal
}

// Reservation is what a resting order holds back until it executes or is
// cancelled.
type Reservation struct {
	Margin decimal.Decimal
	Fee    decimal.Decimal
}

// Snapshot is a value copy of the ledger fields.
type Snapshot struct {
	Currency       string          `json:"currency"`
	Balance        decimal.Decimal `json:"balance"`
	Equity         decimal.Decimal `json:"equity"`
	OpenProfit     decimal.Decimal `json:"open_profit"`
	PendingFees    decimal.Decimal `json:"pending_fees"`
	Margin         decimal.Decimal `json:"margin"`
	PendingMargin  decimal.Decimal `json:"pending_margin"`
	MarginLevel    decimal.Decimal `json:"margin_level"`
	CommissionPaid decimal.Decimal `json:"commission_paid"`
	PositionSize   decimal.Decimal `json:"position_size"`
}

// Map returns the numeric ledger fields keyed by name.
func (s Snapshot) Map() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"balance":         s.Balance,
		"equity":          s.Equity,
		"open_profit":     s.OpenProfit,
		"pending_fees":    s.PendingFees,
		"margin":          s.Margin,
		"pending_margin":  s.PendingMargin,
		"margin_level":    s.MarginLevel,
		"commission_paid": s.CommissionPaid,
		"position_size":   s.PositionSize,
	}
}

// Ledger tracks balance, equity and margin. Balance is always derived:
//
//	balance = open_profit + equity - (pending_fees + margin + pending_margin)
//
// Realized events (closes, entry fees) move equity; everything else is
// rebuilt from the live position and order sets by Recompute.
type Ledger struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewLedger opens an account holding equity in currency.
func NewLedger(currency string, equity decimal.Decimal) *Ledger {
	l := &Ledger{snap: Snapshot{Currency: currency, Equity: equity}}
	l.recompute(nil, nil)
	return l
}

// Recompute rebuilds every derived field from the open exposures and
// resting-order reservations. Calling it twice with the same inputs yields
// the same result.
func (l *Ledger) Recompute(exposures []Exposure, reservations []Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recompute(exposures, reservations)
}

func (l *Ledger) recompute(exposures []Exposure, reservations []Reservation) {
	s := &l.snap
	s.OpenProfit = decimal.Zero
	s.Margin = decimal.Zero
	s.PendingFees = decimal.Zero
	s.PendingMargin = decimal.Zero
	s.PositionSize = decimal.Zero

	for _, e := range exposures {
		s.OpenProfit = s.OpenProfit.Add(e.OpenProfit)
		s.Margin = s.Margin.Add(e.Margin)
		s.PendingFees = s.PendingFees.Add(e.PendingFee)
		s.PositionSize = s.PositionSize.Add(e.Size)
	}
	for _, r := range reservations {
		s.PendingMargin = s.PendingMargin.Add(r.Margin)
		s.PendingFees = s.PendingFees.Add(r.Fee)
	}

	l.rebalance()
}

func (l *Ledger) rebalance() {
	s := &l.snap
	held := s.PendingFees.Add(s.Margin).Add(s.PendingMargin)
	s.Balance = s.OpenProfit.Add(s.Equity).Sub(held)
	if s.Equity.IsPositive() {
		s.MarginLevel = tradingutils.SafeDiv(s.Margin, s.Equity)
	} else {
		s.MarginLevel = decimal.Zero
	}
}

// ApplyClose books a realized close: net profit moves equity and the
// released margin leaves the margin total.
func (l *Ledger) ApplyClose(net, releasedMargin, commission decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := &l.snap
	s.Equity = s.Equity.Add(net)
	s.CommissionPaid = s.CommissionPaid.Add(commission)
	s.Margin = decimal.Max(decimal.Zero, s.Margin.Sub(releasedMargin))
	l.rebalance()
}

// ApplyOpenFee books the fee charged when exposure is opened.
func (l *Ledger) ApplyOpenFee(fee decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap.Equity = l.snap.Equity.Sub(fee)
	l.snap.CommissionPaid = l.snap.CommissionPaid.Add(fee)
	l.rebalance()
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

func (l *Ledger) Balance() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Balance
}

func (l *Ledger) Equity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Equity
}

// UsedMargin is the margin held by positions plus the margin reserved by
// resting orders.
func (l *Ledger) UsedMargin() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Margin.Add(l.snap.PendingMargin)
}
