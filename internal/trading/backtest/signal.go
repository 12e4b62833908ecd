package backtest

import (
	"context"
	"errors"
	"fmt"

	"tradesim/internal/core"
	"tradesim/internal/engine/tickengine"
	apperrors "tradesim/pkg/errors"

	"github.com/shopspring/decimal"
)

// Trader is the part of the engine a Signal acts on.
type Trader interface {
	Symbol() string
	NewEntry(ctx context.Context, req tickengine.EntryRequest) (tickengine.PositionInfo, error)
	OpenPositions() []tickengine.PositionInfo
}

// Signal decides entries after each tick has been applied.
type Signal interface {
	OnTick(ctx context.Context, t Trader, tick core.Tick) error
}

// IntervalSignal enters every Every bars, alternating long and short.
// Entries that are refused for lack of funds or an open circuit breaker
// are skipped.
type IntervalSignal struct {
	Every int64
	Size  decimal.Decimal // zero selects the default size

	next core.Direction
}

func NewIntervalSignal(every int64, size decimal.Decimal) *IntervalSignal {
	return &IntervalSignal{Every: every, Size: size, next: core.DirectionLong}
}

func (s *IntervalSignal) OnTick(ctx context.Context, t Trader, tick core.Tick) error {
	if s.Every <= 0 || tick.BarIndex == 0 || tick.BarIndex%s.Every != 0 {
		return nil
	}
	dir := s.next
	if dir == "" {
		dir = core.DirectionLong
	}
	s.next = dir.Opposite()

	_, err := t.NewEntry(ctx, tickengine.EntryRequest{
		Direction: dir,
		Size:      s.Size,
		Comment:   fmt.Sprintf("interval %s #%d", dir, tick.BarIndex/s.Every),
	})
	if errors.Is(err, apperrors.ErrInsufficientFunds) || errors.Is(err, apperrors.ErrCircuitOpen) {
		return nil
	}
	return err
}
