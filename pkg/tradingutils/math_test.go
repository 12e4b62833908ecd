package tradingutils

import (
	"testing"

	apperrors "tradesim/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func floats(values []decimal.Decimal) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.InexactFloat64()
	}
	return out
}

func TestGap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{"both positive", "0.01", "0.005", "0.005"},
		{"reversed args", "0.005", "0.01", "0.005"},
		{"both negative", "-3", "-1", "2"},
		{"straddle zero", "-2", "3", "5"},
		{"zero bound", "0", "4", "4"},
		{"equal", "7", "7", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, d(tt.want).Equal(Gap(d(tt.a), d(tt.b))), "got %s", Gap(d(tt.a), d(tt.b)))
		})
	}
}

func TestScaledSizes_Example(t *testing.T) {
	sizes, err := ScaledSizes(d("100"), 4, d("0.5"), decimal.Zero, false)
	require.NoError(t, err)
	require.Len(t, sizes, 4)

	want := []float64{53.333333, 26.666667, 13.333333, 6.666667}
	for i, got := range floats(sizes) {
		assert.InDelta(t, want[i], got, 1e-4)
	}
}

func TestScaledSizes_SumsToTotal(t *testing.T) {
	weights := []string{"0.25", "0.5", "1", "1.5", "3"}
	for _, w := range weights {
		for count := 1; count <= 8; count++ {
			sizes, err := ScaledSizes(d("37.5"), count, d(w), d("0.1"), false)
			require.NoError(t, err)
			assert.Len(t, sizes, count)
			assert.InDelta(t, 37.5, Sum(sizes).InexactFloat64(), 1e-9, "weight %s count %d", w, count)
		}
	}
}

func TestScaledSizes_AsPercent(t *testing.T) {
	sizes, err := ScaledSizes(d("250"), 3, d("2"), decimal.Zero, true)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Sum(sizes).InexactFloat64(), 1e-9)
	// weight > 1 favours later buckets
	assert.True(t, sizes[2].GreaterThan(sizes[0]))
}

func TestScaledSizes_UniformAndFloor(t *testing.T) {
	sizes, err := ScaledSizes(d("9"), 3, d("1"), decimal.Zero, false)
	require.NoError(t, err)
	for _, s := range sizes {
		assert.InDelta(t, 3.0, s.InexactFloat64(), 1e-9)
	}

	// A floor above every raw bucket flattens the split.
	sizes, err = ScaledSizes(d("9"), 3, d("0.1"), d("5"), false)
	require.NoError(t, err)
	for _, s := range sizes {
		assert.InDelta(t, 3.0, s.InexactFloat64(), 1e-9)
	}
}

func TestScaledSizes_SingleBucket(t *testing.T) {
	sizes, err := ScaledSizes(d("42"), 1, d("0.5"), decimal.Zero, false)
	require.NoError(t, err)
	require.Len(t, sizes, 1)
	assert.InDelta(t, 42.0, sizes[0].InexactFloat64(), 1e-9)
}

func TestScaledSizes_ZeroTotal(t *testing.T) {
	sizes, err := ScaledSizes(decimal.Zero, 3, d("0.5"), decimal.Zero, false)
	require.NoError(t, err)
	for _, s := range sizes {
		assert.True(t, s.IsZero())
	}
}

func TestScaledSizes_InvalidInput(t *testing.T) {
	_, err := ScaledSizes(d("1"), 0, d("0.5"), decimal.Zero, false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)

	_, err = ScaledSizes(d("1"), 2, decimal.Zero, decimal.Zero, false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParameter)
}

func TestScaledTargets(t *testing.T) {
	targets, err := ScaledTargets(3, d("0.5"), d("0.005"), d("0.01"))
	require.NoError(t, err)
	require.Len(t, targets, 3)

	assert.True(t, targets[0].Equal(d("0.005")))
	assert.InDelta(t, 0.0083333, targets[1].InexactFloat64(), 1e-6)
	assert.InDelta(t, 0.01, targets[2].InexactFloat64(), 1e-9)
}

func TestScaledTargets_Monotonic(t *testing.T) {
	for count := 1; count <= 10; count++ {
		up, err := ScaledTargets(count, d("0.7"), d("100"), d("120"))
		require.NoError(t, err)
		assert.True(t, up[0].Equal(d("100")))
		for i := 1; i < len(up); i++ {
			assert.True(t, up[i].GreaterThan(up[i-1]), "ascending ladder broke at %d", i)
		}

		down, err := ScaledTargets(count, d("1.3"), d("100"), d("80"))
		require.NoError(t, err)
		assert.True(t, down[0].Equal(d("100")))
		for i := 1; i < len(down); i++ {
			assert.True(t, down[i].LessThan(down[i-1]), "descending ladder broke at %d", i)
		}
		if count > 1 {
			assert.InDelta(t, 80.0, down[len(down)-1].InexactFloat64(), 1e-9)
			assert.InDelta(t, 120.0, up[len(up)-1].InexactFloat64(), 1e-9)
		}
	}
}

func TestScaledTargets_SingleLevel(t *testing.T) {
	targets, err := ScaledTargets(1, d("0.5"), d("0.005"), d("0.01"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.005}, floats(targets))
}

func TestSafeDiv(t *testing.T) {
	assert.True(t, SafeDiv(d("10"), decimal.Zero).IsZero())
	assert.True(t, SafeDiv(d("10"), d("4")).Equal(d("2.5")))
}
