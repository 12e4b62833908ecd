package order

import (
	"testing"
	"time"

	"tradesim/internal/core"
	"tradesim/internal/trading/fee"
	apperrors "tradesim/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var at = core.Tick{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), BarIndex: 3, Price: dec("100")}

func newOrder(t *testing.T, req Request) *Order {
	t.Helper()
	if req.Leverage.IsZero() {
		req.Leverage = dec("1")
	}
	if req.Symbol == "" {
		req.Symbol = "BTCUSDT"
	}
	model, err := fee.Proportional(dec("0.0002"))
	require.NoError(t, err)
	o, err := New("ord-1", req, model, at)
	require.NoError(t, err)
	return o
}

func TestNew_InitialStatus(t *testing.T) {
	market := newOrder(t, Request{Direction: core.DirectionLong, Kind: core.OrderKindMarket, Size: dec("1"), Price: dec("100")})
	assert.Equal(t, core.OrderStatusImmediate, market.Status)
	assert.Equal(t, core.SideBuy, market.Side)
	assert.Equal(t, int64(3), market.CreatedBar)

	defaulted := newOrder(t, Request{Direction: core.DirectionShort, Size: dec("1"), Price: dec("100")})
	assert.Equal(t, core.OrderKindMarket, defaulted.Kind)
	assert.Equal(t, core.SideSell, defaulted.Side)

	limit := newOrder(t, Request{Direction: core.DirectionLong, Kind: core.OrderKindLimit, Size: dec("1"), Price: dec("95")})
	assert.Equal(t, core.OrderStatusPending, limit.Status)
}

func TestNew_Validation(t *testing.T) {
	model, _ := fee.Proportional(dec("0.0002"))
	base := Request{Direction: core.DirectionLong, Kind: core.OrderKindLimit, Size: dec("1"), Price: dec("100"), Leverage: dec("1")}

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr error
	}{
		{"direction", func(r *Request) { r.Direction = "" }, apperrors.ErrInvalidDirection},
		{"size", func(r *Request) { r.Size = decimal.Zero }, apperrors.ErrInvalidSize},
		{"price", func(r *Request) { r.Price = dec("-1") }, apperrors.ErrInvalidPrice},
		{"leverage", func(r *Request) { r.Leverage = decimal.Zero }, apperrors.ErrInvalidLeverage},
		{"kind", func(r *Request) { r.Kind = "stop_limit" }, apperrors.ErrInvalidParameter},
		{"trailing callback", func(r *Request) { r.Kind = core.OrderKindTrailingStop }, apperrors.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := New("x", req, model, at)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLimitOrder(t *testing.T) {
	buy := newOrder(t, Request{Direction: core.DirectionLong, Kind: core.OrderKindLimit, Size: dec("1"), Price: dec("95")})
	assert.False(t, buy.Update(dec("96")))
	assert.True(t, buy.Update(dec("95")))
	assert.Equal(t, "95", buy.ExecutionPrice(dec("94")).String(), "fills at the limit")

	sell := newOrder(t, Request{Direction: core.DirectionShort, Kind: core.OrderKindLimit, Size: dec("1"), Price: dec("105")})
	assert.False(t, sell.Update(dec("104.99")))
	assert.True(t, sell.Update(dec("106")))
	assert.False(t, sell.Update(dec("90")), "no transition once immediate")
}

func TestTrailingEntry_Buy(t *testing.T) {
	o := newOrder(t, Request{
		Direction: core.DirectionLong, Kind: core.OrderKindTrailingStop,
		Size: dec("1"), Price: dec("100"),
		TrailTrigger: dec("0.02"), TrailCallback: dec("0.01"),
	})

	assert.False(t, o.Update(dec("98.5")))
	assert.False(t, o.TrailActive, "arms only past the trigger")

	assert.False(t, o.Update(dec("97.9")))
	assert.True(t, o.TrailActive)
	assert.False(t, o.Update(dec("95")))
	assert.False(t, o.Update(dec("95.9")))
	assert.Equal(t, "95", o.TrailPeak.String())

	assert.True(t, o.Update(dec("95.95")))
	assert.Equal(t, core.OrderStatusImmediate, o.Status)
	assert.Equal(t, "95.95", o.ExecutionPrice(dec("95.95")).String())
}

func TestTrailingEntry_Sell(t *testing.T) {
	o := newOrder(t, Request{
		Direction: core.DirectionShort, Kind: core.OrderKindTrailingStop,
		Size: dec("1"), Price: dec("100"),
		TrailTrigger: dec("0.02"), TrailCallback: dec("0.01"),
	})

	assert.False(t, o.Update(dec("102")))
	assert.False(t, o.Update(dec("102.5")))
	assert.True(t, o.TrailActive)
	assert.False(t, o.Update(dec("110")))
	assert.True(t, o.Update(dec("108.9")))
}

func TestReservation(t *testing.T) {
	o := newOrder(t, Request{Direction: core.DirectionLong, Kind: core.OrderKindLimit, Size: dec("2"), Price: dec("100"), Leverage: dec("4")})
	r := o.Reservation()
	assert.Equal(t, "50", r.Margin.String())
	assert.Equal(t, "0.04", r.Fee.String())
}

func TestFailAndTerminal(t *testing.T) {
	o := newOrder(t, Request{Direction: core.DirectionLong, Kind: core.OrderKindLimit, Size: dec("1"), Price: dec("95")})
	o.Fail("no funds")
	assert.Equal(t, core.OrderStatusFailed, o.Status)
	assert.Equal(t, "no funds", o.Reason)
	assert.False(t, o.Update(dec("90")))

	o.MarkCancelled()
	o.Fail("again")
	assert.Equal(t, core.OrderStatusCancelled, o.Status)
}
