// Package fee prices trade execution costs.
package fee

import (
	"fmt"
	"strings"

	"tradesim/internal/core"
	apperrors "tradesim/pkg/errors"

	"github.com/shopspring/decimal"
)

// Kind selects how a fee is computed.
type Kind string

const (
	KindProportional Kind = "proportional"
	KindFlat         Kind = "flat"
)

// ParseKind maps a config string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindProportional, KindFlat:
		return k, nil
	}
	return "", fmt.Errorf("fee kind %q: %w", s, apperrors.ErrUnknownFeeKind)
}

// Model is either a rate applied to notional or a fixed amount per trade.
type Model struct {
	kind   Kind
	amount decimal.Decimal
}

// New validates kind and amount.
func New(kind Kind, amount decimal.Decimal) (Model, error) {
	if kind != KindProportional && kind != KindFlat {
		return Model{}, fmt.Errorf("fee kind %q: %w", kind, apperrors.ErrUnknownFeeKind)
	}
	if amount.IsNegative() {
		return Model{}, fmt.Errorf("fee amount %s: %w", amount, apperrors.ErrInvalidParameter)
	}
	return Model{kind: kind, amount: amount}, nil
}

// Proportional is shorthand for a rate-based model.
func Proportional(rate decimal.Decimal) (Model, error) {
	return New(KindProportional, rate)
}

func (m Model) Kind() Kind { return m.kind }

func (m Model) Amount() decimal.Decimal { return m.amount }

// Rate is the proportional rate, or zero for a flat fee.
func (m Model) Rate() decimal.Decimal {
	if m.kind == KindProportional {
		return m.amount
	}
	return decimal.Zero
}

// Calculate returns the non-negative cost of trading size at price.
func (m Model) Calculate(size, price decimal.Decimal) decimal.Decimal {
	if m.kind == KindFlat {
		return m.amount
	}
	return size.Mul(price).Mul(m.amount).Abs()
}

// Schedule pairs the resting (maker) and aggressive (taker) fee models.
type Schedule struct {
	Maker Model
	Taker Model
}

// NewSchedule builds a proportional maker/taker schedule.
func NewSchedule(makerRate, takerRate decimal.Decimal) (Schedule, error) {
	maker, err := Proportional(makerRate)
	if err != nil {
		return Schedule{}, fmt.Errorf("maker: %w", err)
	}
	taker, err := Proportional(takerRate)
	if err != nil {
		return Schedule{}, fmt.Errorf("taker: %w", err)
	}
	return Schedule{Maker: maker, Taker: taker}, nil
}

// ForOrder returns the model charged when an order of kind executes.
func (s Schedule) ForOrder(kind core.OrderKind) Model {
	if kind == core.OrderKindLimit {
		return s.Maker
	}
	return s.Taker
}

// ForClose returns the model charged for a close of kind.
func (s Schedule) ForClose(kind core.CloseKind) Model {
	if kind.Maker() {
		return s.Maker
	}
	return s.Taker
}
