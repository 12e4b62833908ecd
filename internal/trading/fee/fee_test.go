package fee

import (
	"testing"

	"tradesim/internal/core"
	apperrors "tradesim/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		amount  string
		wantErr error
	}{
		{"proportional", KindProportional, "0.0004", nil},
		{"flat", KindFlat, "1.5", nil},
		{"unknown kind", Kind("tiered"), "0.1", apperrors.ErrUnknownFeeKind},
		{"negative amount", KindFlat, "-1", apperrors.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, decimal.RequireFromString(tt.amount))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Flat ")
	require.NoError(t, err)
	assert.Equal(t, KindFlat, k)

	_, err = ParseKind("percent")
	assert.ErrorIs(t, err, apperrors.ErrUnknownFeeKind)
}

func TestCalculate(t *testing.T) {
	taker, err := Proportional(decimal.RequireFromString("0.0004"))
	require.NoError(t, err)

	// 0.5 units at 110 with 0.04%
	assert.Equal(t, "0.022", taker.Calculate(decimal.RequireFromString("0.5"), decimal.NewFromInt(110)).String())
	// sign of size does not change the cost
	assert.Equal(t, "0.022", taker.Calculate(decimal.RequireFromString("-0.5"), decimal.NewFromInt(110)).String())
	assert.Equal(t, "0.0004", taker.Rate().String())

	flat, err := New(KindFlat, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, "2", flat.Calculate(decimal.NewFromInt(1000), decimal.NewFromInt(50000)).String())
	assert.True(t, flat.Rate().IsZero())
}

func TestSchedule(t *testing.T) {
	s, err := NewSchedule(decimal.RequireFromString("0.0002"), decimal.RequireFromString("0.0004"))
	require.NoError(t, err)

	assert.Equal(t, "0.0002", s.ForOrder(core.OrderKindLimit).Rate().String())
	assert.Equal(t, "0.0004", s.ForOrder(core.OrderKindMarket).Rate().String())
	assert.Equal(t, "0.0004", s.ForOrder(core.OrderKindTrailingStop).Rate().String())
	assert.Equal(t, "0.0002", s.ForClose(core.CloseKindTakeProfit).Rate().String())
	assert.Equal(t, "0.0004", s.ForClose(core.CloseKindStopLoss).Rate().String())

	_, err = NewSchedule(decimal.NewFromInt(-1), decimal.Zero)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
}
