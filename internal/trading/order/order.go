// Package order models resting entry orders and their trigger state machine.
package order

import (
	"fmt"
	"time"

	"tradesim/internal/core"
	"tradesim/internal/trading/account"
	"tradesim/internal/trading/fee"
	apperrors "tradesim/pkg/errors"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Request is an intent to open or add to exposure.
type Request struct {
	Symbol     string
	Direction  core.Direction
	Kind       core.OrderKind
	Size       decimal.Decimal // unsigned; zero selects the default size
	Price      decimal.Decimal // limit price or trailing reference; zero means the current price
	Leverage   decimal.Decimal // zero selects the configured leverage
	PositionID string          // position to add to, if any
	Comment    string

	TrailTrigger  decimal.Decimal // trailing entry: distance from reference that arms the order
	TrailCallback decimal.Decimal // trailing entry: retracement from peak that fires it
}

// Order is a resting instruction awaiting its trigger.
//
// Lifecycle: market orders start immediate, limit and trailing orders start
// pending. Immediate orders are matched into a position; failed orders are
// cancelled. Matched and cancelled are terminal.
type Order struct {
	ID         string
	Symbol     string
	PositionID string
	Comment    string
	Side       core.Side
	Direction  core.Direction
	Kind       core.OrderKind
	Status     core.OrderStatus
	Size       decimal.Decimal
	Price      decimal.Decimal
	Leverage   decimal.Decimal
	Fee        fee.Model
	CreatedAt  time.Time
	CreatedBar int64
	Reason     string

	TrailActive   bool
	TrailTrigger  decimal.Decimal
	TrailCallback decimal.Decimal
	TrailPeak     decimal.Decimal
}

// New builds an order from a request whose size, price and leverage have
// already been resolved.
func New(id string, req Request, model fee.Model, at core.Tick) (*Order, error) {
	if !req.Direction.Valid() {
		return nil, fmt.Errorf("direction %q: %w", req.Direction, apperrors.ErrInvalidDirection)
	}
	if !req.Size.IsPositive() {
		return nil, fmt.Errorf("order size %s: %w", req.Size, apperrors.ErrInvalidSize)
	}
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("order price %s: %w", req.Price, apperrors.ErrInvalidPrice)
	}
	if !req.Leverage.IsPositive() {
		return nil, fmt.Errorf("order leverage %s: %w", req.Leverage, apperrors.ErrInvalidLeverage)
	}

	kind := req.Kind
	if kind == "" {
		kind = core.OrderKindMarket
	}
	o := &Order{
		ID:         id,
		Symbol:     req.Symbol,
		PositionID: req.PositionID,
		Comment:    req.Comment,
		Side:       req.Direction.EntrySide(),
		Direction:  req.Direction,
		Kind:       kind,
		Status:     core.OrderStatusPending,
		Size:       req.Size,
		Price:      req.Price,
		Leverage:   req.Leverage,
		Fee:        model,
		CreatedAt:  at.Time,
		CreatedBar: at.BarIndex,
	}

	switch kind {
	case core.OrderKindMarket:
		o.Status = core.OrderStatusImmediate
	case core.OrderKindLimit:
	case core.OrderKindTrailingStop:
		if req.TrailTrigger.IsNegative() || !req.TrailCallback.IsPositive() {
			return nil, fmt.Errorf("trailing entry trigger %s callback %s: %w",
				req.TrailTrigger, req.TrailCallback, apperrors.ErrInvalidParameter)
		}
		o.TrailTrigger = req.TrailTrigger
		o.TrailCallback = req.TrailCallback
	default:
		return nil, fmt.Errorf("order kind %q: %w", kind, apperrors.ErrInvalidParameter)
	}
	return o, nil
}

// Update re-evaluates a pending order against price and reports whether it
// became immediate.
func (o *Order) Update(price decimal.Decimal) bool {
	if o.Status != core.OrderStatusPending {
		return false
	}
	switch o.Kind {
	case core.OrderKindLimit:
		if o.limitCrossed(price) {
			o.Status = core.OrderStatusImmediate
		}
	case core.OrderKindTrailingStop:
		if o.trailFired(price) {
			o.Status = core.OrderStatusImmediate
		}
	}
	return o.Status == core.OrderStatusImmediate
}

func (o *Order) limitCrossed(price decimal.Decimal) bool {
	if o.Side == core.SideBuy {
		return price.LessThanOrEqual(o.Price)
	}
	return price.GreaterThanOrEqual(o.Price)
}

// trailFired arms a buy once price falls trigger below the reference, then
// follows the low and fires on a callback bounce. Sells mirror it.
func (o *Order) trailFired(price decimal.Decimal) bool {
	buy := o.Side == core.SideBuy
	if !o.TrailActive {
		var armed bool
		if buy {
			armed = price.LessThan(o.Price.Mul(one.Sub(o.TrailTrigger)))
		} else {
			armed = price.GreaterThan(o.Price.Mul(one.Add(o.TrailTrigger)))
		}
		if !armed {
			return false
		}
		o.TrailActive = true
		o.TrailPeak = price
	}

	if buy {
		o.TrailPeak = decimal.Min(o.TrailPeak, price)
		return price.GreaterThanOrEqual(o.TrailPeak.Mul(one.Add(o.TrailCallback)))
	}
	o.TrailPeak = decimal.Max(o.TrailPeak, price)
	return price.LessThanOrEqual(o.TrailPeak.Mul(one.Sub(o.TrailCallback)))
}

// ExecutionPrice is the fill price when the order executes on a tick at
// price. Limit orders fill at their limit.
func (o *Order) ExecutionPrice(price decimal.Decimal) decimal.Decimal {
	if o.Kind == core.OrderKindLimit {
		return o.Price
	}
	return price
}

// Margin is the margin the order will need once filled.
func (o *Order) Margin() decimal.Decimal {
	return o.Size.Mul(o.Price).Div(o.Leverage)
}

// Reservation is what the order holds back from the ledger while resting.
func (o *Order) Reservation() account.Reservation {
	return account.Reservation{
		Margin: o.Margin(),
		Fee:    o.Fee.Calculate(o.Size, o.Price),
	}
}

// Fail marks the order failed; the engine cancels it.
func (o *Order) Fail(reason string) {
	if o.Status.Terminal() {
		return
	}
	o.Status = core.OrderStatusFailed
	o.Reason = reason
}

func (o *Order) MarkMatched() {
	o.Status = core.OrderStatusMatched
}

func (o *Order) MarkCancelled() {
	o.Status = core.OrderStatusCancelled
}
