package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func asStrings(m map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

func TestNewLedger(t *testing.T) {
	l := NewLedger("USDT", dec("1000"))
	s := l.Snapshot()
	assert.Equal(t, "USDT", s.Currency)
	assert.Equal(t, "1000", s.Balance.String())
	assert.True(t, s.MarginLevel.IsZero())
}

func TestLedgerRecompute_BalanceIdentity(t *testing.T) {
	l := NewLedger("USDT", dec("1000"))
	exposures := []Exposure{
		{OpenProfit: dec("10"), Margin: dec("100"), PendingFee: dec("0.044"), Size: dec("1")},
		{OpenProfit: dec("-3"), Margin: dec("50"), PendingFee: dec("0.02"), Size: dec("-0.5")},
	}
	reservations := []Reservation{{Margin: dec("200"), Fee: dec("0.04")}}

	l.Recompute(exposures, reservations)
	s := l.Snapshot()

	assert.Equal(t, "7", s.OpenProfit.String())
	assert.Equal(t, "150", s.Margin.String())
	assert.Equal(t, "200", s.PendingMargin.String())
	assert.Equal(t, "0.104", s.PendingFees.String())
	assert.Equal(t, "0.5", s.PositionSize.String())
	assert.Equal(t, "0.15", s.MarginLevel.String())

	want := s.OpenProfit.Add(s.Equity).Sub(s.PendingFees.Add(s.Margin).Add(s.PendingMargin))
	assert.True(t, want.Equal(s.Balance))
	assert.Equal(t, "656.896", s.Balance.String())
}

func TestLedgerRecompute_Idempotent(t *testing.T) {
	l := NewLedger("USDT", dec("1000"))
	exposures := []Exposure{{OpenProfit: dec("2.5"), Margin: dec("100"), PendingFee: dec("0.04")}}
	reservations := []Reservation{{Margin: dec("10"), Fee: dec("0.002")}}

	l.Recompute(exposures, reservations)
	first := asStrings(l.Snapshot().Map())
	l.Recompute(exposures, reservations)
	assert.Equal(t, first, asStrings(l.Snapshot().Map()))
	assert.Equal(t, "892.458", l.Balance().String())
}

func TestLedger_CancelReleasesReservation(t *testing.T) {
	l := NewLedger("USDT", dec("1000"))
	reservations := []Reservation{{Margin: dec("100"), Fee: dec("0.02")}}

	l.Recompute(nil, reservations)
	assert.Equal(t, "899.98", l.Balance().String())

	l.Recompute(nil, nil)
	assert.Equal(t, "1000", l.Balance().String())
	assert.True(t, l.UsedMargin().IsZero())
}

func TestLedger_ApplyCloseAndFees(t *testing.T) {
	l := NewLedger("USDT", dec("1000"))
	l.ApplyOpenFee(dec("0.04"))
	assert.Equal(t, "999.96", l.Equity().String())

	l.Recompute([]Exposure{{OpenProfit: dec("10"), Margin: dec("100"), PendingFee: dec("0.044")}}, nil)
	l.ApplyClose(dec("4.978"), dec("50"), dec("0.022"))

	s := l.Snapshot()
	assert.Equal(t, "1004.938", s.Equity.String())
	assert.Equal(t, "50", s.Margin.String())
	assert.Equal(t, "0.062", s.CommissionPaid.String())

	l.Recompute([]Exposure{{OpenProfit: dec("5"), Margin: dec("50"), PendingFee: dec("0.022")}}, nil)
	s = l.Snapshot()
	assert.Equal(t, "959.916", s.Balance.String())
}

func TestLedger_MarginLevelGuard(t *testing.T) {
	l := NewLedger("USDT", decimal.Zero)
	l.Recompute([]Exposure{{Margin: dec("10")}}, nil)
	assert.True(t, l.Snapshot().MarginLevel.IsZero())
}

func TestSnapshotMap(t *testing.T) {
	m := NewLedger("USDT", dec("1000")).Snapshot().Map()
	assert.Contains(t, m, "balance")
	assert.Contains(t, m, "margin_level")
	assert.Equal(t, "1000", m["equity"].String())
}
