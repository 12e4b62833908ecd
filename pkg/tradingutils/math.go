package tradingutils

import (
	"fmt"

	apperrors "tradesim/pkg/errors"

	"github.com/shopspring/decimal"
)

// Gap returns the distance between two values, measuring across zero when
// they have opposite signs.
func Gap(a, b decimal.Decimal) decimal.Decimal {
	hi := decimal.Max(a, b)
	lo := decimal.Min(a, b)
	if lo.IsPositive() || hi.IsNegative() {
		return hi.Sub(lo)
	}
	return lo.Abs().Add(hi)
}

// ScaledSizes splits total into count buckets whose raw weights are
// weight^(i+1), each floored at minSize, renormalized to sum to total
// (or to 1 when asPercent is set).
func ScaledSizes(total decimal.Decimal, count int, weight, minSize decimal.Decimal, asPercent bool) ([]decimal.Decimal, error) {
	if count < 1 {
		return nil, fmt.Errorf("scaled sizes count %d: %w", count, apperrors.ErrInvalidParameter)
	}
	if !weight.IsPositive() {
		return nil, fmt.Errorf("scaled sizes weight %s: %w", weight, apperrors.ErrInvalidParameter)
	}

	even := total.Div(decimal.NewFromInt(int64(count)))
	sizes := make([]decimal.Decimal, count)
	sum := decimal.Zero
	for i := range sizes {
		scaled := even.Mul(weight.Pow(decimal.NewFromInt(int64(i + 1))))
		sizes[i] = decimal.Max(minSize, scaled)
		sum = sum.Add(sizes[i])
	}

	if sum.IsZero() {
		return sizes, nil
	}

	target := total
	if asPercent {
		target = decimal.NewFromInt(1)
	}
	for i := range sizes {
		sizes[i] = sizes[i].Mul(target).Div(sum)
	}
	return sizes, nil
}

// ScaledTargets builds a ladder of count levels that starts at minimum and
// moves toward maximum in geometrically weighted steps.
func ScaledTargets(count int, weight, minimum, maximum decimal.Decimal) ([]decimal.Decimal, error) {
	if count < 1 {
		return nil, fmt.Errorf("scaled targets count %d: %w", count, apperrors.ErrInvalidParameter)
	}
	if !weight.IsPositive() {
		return nil, fmt.Errorf("scaled targets weight %s: %w", weight, apperrors.ErrInvalidParameter)
	}

	targets := make([]decimal.Decimal, count)
	targets[0] = minimum
	if count == 1 {
		return targets, nil
	}

	steps, err := ScaledSizes(Gap(maximum, minimum), count-1, weight, decimal.Zero, false)
	if err != nil {
		return nil, err
	}
	if maximum.LessThan(minimum) {
		for i := range steps {
			steps[i] = steps[i].Neg()
		}
	}

	level := minimum
	for i := 1; i < count; i++ {
		level = level.Add(steps[i-1])
		targets[i] = level
	}
	return targets, nil
}

// Sum adds up a slice of decimals.
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// SafeDiv divides a by b and yields zero when b is zero.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}
