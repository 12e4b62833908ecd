package core

import (
	"fmt"
	"strings"
	"time"

	apperrors "tradesim/pkg/errors"

	"github.com/shopspring/decimal"
)

// Direction is the declared exposure of a position or order.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// ParseDirection accepts long/short (and buy/sell) in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return DirectionLong, nil
	case "short", "sell":
		return DirectionShort, nil
	}
	return "", fmt.Errorf("%q: %w", s, apperrors.ErrInvalidDirection)
}

// DirectionOf derives the direction from a signed size. Positive is long.
func DirectionOf(size decimal.Decimal) Direction {
	if size.IsPositive() {
		return DirectionLong
	}
	return DirectionShort
}

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() decimal.Decimal {
	if d == DirectionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

func (d Direction) Opposite() Direction {
	if d == DirectionShort {
		return DirectionLong
	}
	return DirectionShort
}

// EntrySide is the order side that opens exposure in this direction.
func (d Direction) EntrySide() Side {
	if d == DirectionShort {
		return SideSell
	}
	return SideBuy
}

// Side is the order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderKind selects how a resting order triggers.
type OrderKind string

const (
	OrderKindMarket       OrderKind = "market"
	OrderKindLimit        OrderKind = "limit"
	OrderKindTrailingStop OrderKind = "trailing_stop"
)

// ParseOrderKind maps a config/intent string to an OrderKind.
func ParseOrderKind(s string) (OrderKind, error) {
	switch k := OrderKind(strings.ToLower(strings.TrimSpace(s))); k {
	case OrderKindMarket, OrderKindLimit, OrderKindTrailingStop:
		return k, nil
	case "":
		return OrderKindMarket, nil
	}
	return "", fmt.Errorf("order kind %q: %w", s, apperrors.ErrInvalidParameter)
}

// OrderStatus is the lifecycle state of a resting order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusImmediate OrderStatus = "immediate"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusMatched || s == OrderStatusCancelled
}

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// CloseKind records what caused a (partial) close.
type CloseKind string

const (
	CloseKindMarket       CloseKind = "market"
	CloseKindLimit        CloseKind = "limit"
	CloseKindTakeProfit   CloseKind = "take_profit"
	CloseKindStopLoss     CloseKind = "stop_loss"
	CloseKindTrailingStop CloseKind = "trailing_stop"
	CloseKindReversal     CloseKind = "reversal"
)

// Maker reports whether the close rests on the book and pays the maker rate.
func (k CloseKind) Maker() bool {
	return k == CloseKindLimit || k == CloseKindTakeProfit
}

// Tick is one price observation.
type Tick struct {
	Time     time.Time
	BarIndex int64
	Price    decimal.Decimal
}
