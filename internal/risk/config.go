package risk

import (
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "tradesim/pkg/errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CapKind names which representation of a cap is authoritative.
type CapKind string

const (
	CapUSD     CapKind = "usd"
	CapPercent CapKind = "percent"
	CapUnits   CapKind = "units"
)

// ParseCapKind maps a config string to a CapKind.
func ParseCapKind(s string) (CapKind, error) {
	switch k := CapKind(strings.ToLower(strings.TrimSpace(s))); k {
	case CapUSD, CapPercent, CapUnits:
		return k, nil
	}
	return "", fmt.Errorf("cap kind %q: %w", s, apperrors.ErrInvalidCapKind)
}

// Cap is a size ceiling expressed in USD, percent of equity (0-100) or
// instrument units. Only the field selected by Kind is read.
type Cap struct {
	Kind    CapKind
	USD     decimal.Decimal
	Percent decimal.Decimal
	Units   decimal.Decimal
}

// ResolvedCap carries all three representations for one price and equity.
type ResolvedCap struct {
	USD     decimal.Decimal
	Percent decimal.Decimal
	Units   decimal.Decimal
}

// Resolve derives the other two representations from the authoritative one.
// A non-positive price yields a zero cap.
func (c Cap) Resolve(price, equity decimal.Decimal) ResolvedCap {
	if !price.IsPositive() {
		return ResolvedCap{}
	}

	var usd decimal.Decimal
	switch c.Kind {
	case CapUSD:
		usd = c.USD
	case CapPercent:
		usd = decimal.Max(decimal.Zero, c.Percent.Div(hundred).Mul(equity))
	case CapUnits:
		usd = c.Units.Mul(price)
	default:
		return ResolvedCap{}
	}

	r := ResolvedCap{USD: usd, Units: usd.Div(price)}
	if c.Kind == CapUnits {
		r.Units = c.Units
	}
	if c.Kind == CapPercent {
		r.Percent = c.Percent
	} else if equity.IsPositive() {
		r.Percent = usd.Div(equity).Mul(hundred)
	}
	return r
}

func (c Cap) validate(field string) error {
	var v decimal.Decimal
	switch c.Kind {
	case CapUSD:
		v = c.USD
	case CapPercent:
		v = c.Percent
	case CapUnits:
		v = c.Units
	default:
		return fmt.Errorf("%s kind %q: %w", field, c.Kind, apperrors.ErrInvalidCapKind)
	}
	if v.IsNegative() {
		return fmt.Errorf("%s value %s: %w", field, v, apperrors.ErrInvalidParameter)
	}
	return nil
}

// Caps are the three caps resolved together before a sizing decision.
type Caps struct {
	Order       ResolvedCap
	Position    ResolvedCap
	DefaultSize ResolvedCap
}

// TakeProfit shapes the take-profit ladder. Start and End are fractional
// distances from entry.
type TakeProfit struct {
	Enabled    bool
	Targets    int
	Start      decimal.Decimal
	End        decimal.Decimal
	DistWeight decimal.Decimal
	SizeWeight decimal.Decimal
	SizeTotal  decimal.Decimal // fraction of the position covered by the ladder
	MinSize    decimal.Decimal
}

// StopLoss is a fixed stop at Distance from entry.
type StopLoss struct {
	Enabled  bool
	Distance decimal.Decimal
}

// TrailingStop arms once price moves Trigger from entry and fires on a
// Distance retracement from the peak.
type TrailingStop struct {
	Enabled  bool
	Trigger  decimal.Decimal
	Distance decimal.Decimal
}

// Config is the strategy-wide risk and sizing parameter set.
type Config struct {
	Leverage     decimal.Decimal
	HedgeMode    bool
	MinOrderUSD  decimal.Decimal
	TakeProfit   TakeProfit
	StopLoss     StopLoss
	TrailingStop TrailingStop
	OrderCap     Cap
	PositionCap  Cap
	DefaultSize  Cap

	CircuitBreaker CircuitConfig
}

// DefaultConfig returns the stock parameter set.
func DefaultConfig() Config {
	usd := func(v int64) Cap {
		return Cap{Kind: CapUSD, USD: decimal.NewFromInt(v), Percent: hundred, Units: decimal.NewFromInt(1)}
	}
	return Config{
		Leverage:    decimal.NewFromInt(1),
		MinOrderUSD: decimal.NewFromInt(10),
		TakeProfit: TakeProfit{
			Enabled:    true,
			Targets:    3,
			Start:      decimal.RequireFromString("0.005"),
			End:        decimal.RequireFromString("0.01"),
			DistWeight: decimal.RequireFromString("0.5"),
			SizeWeight: decimal.RequireFromString("0.5"),
			SizeTotal:  decimal.NewFromInt(1),
		},
		StopLoss: StopLoss{Enabled: true, Distance: decimal.RequireFromString("0.02")},
		TrailingStop: TrailingStop{
			Enabled:  true,
			Trigger:  decimal.RequireFromString("0.005"),
			Distance: decimal.RequireFromString("0.005"),
		},
		OrderCap:    usd(1000),
		PositionCap: usd(1000),
		DefaultSize: usd(1000),
		CircuitBreaker: CircuitConfig{
			MaxConsecutiveLosses: 5,
			CooldownPeriod:       time.Hour,
		},
	}
}

// Resolve resolves every cap against price and equity.
func (c Config) Resolve(price, equity decimal.Decimal) Caps {
	return Caps{
		Order:       c.OrderCap.Resolve(price, equity),
		Position:    c.PositionCap.Resolve(price, equity),
		DefaultSize: c.DefaultSize.Resolve(price, equity),
	}
}

// Validate checks the parameter set and reports every problem found.
func (c Config) Validate() error {
	var errs []error
	if !c.Leverage.IsPositive() {
		errs = append(errs, fmt.Errorf("leverage %s: %w", c.Leverage, apperrors.ErrInvalidLeverage))
	}
	if c.MinOrderUSD.IsNegative() {
		errs = append(errs, fmt.Errorf("min order usd %s: %w", c.MinOrderUSD, apperrors.ErrInvalidParameter))
	}

	if tp := c.TakeProfit; tp.Enabled {
		if tp.Targets < 1 {
			errs = append(errs, fmt.Errorf("take profit targets %d: %w", tp.Targets, apperrors.ErrInvalidParameter))
		}
		if !tp.DistWeight.IsPositive() || !tp.SizeWeight.IsPositive() {
			errs = append(errs, fmt.Errorf("take profit weights must be positive: %w", apperrors.ErrInvalidParameter))
		}
		if tp.Start.IsNegative() || tp.End.IsNegative() || tp.MinSize.IsNegative() {
			errs = append(errs, fmt.Errorf("take profit distances must not be negative: %w", apperrors.ErrInvalidParameter))
		}
		if !tp.SizeTotal.IsPositive() || tp.SizeTotal.GreaterThan(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Errorf("take profit size total %s not in (0,1]: %w", tp.SizeTotal, apperrors.ErrInvalidParameter))
		}
	}
	if c.StopLoss.Enabled && !c.StopLoss.Distance.IsPositive() {
		errs = append(errs, fmt.Errorf("stop loss distance %s: %w", c.StopLoss.Distance, apperrors.ErrInvalidParameter))
	}
	if ts := c.TrailingStop; ts.Enabled && (ts.Trigger.IsNegative() || !ts.Distance.IsPositive()) {
		errs = append(errs, fmt.Errorf("trailing stop trigger %s distance %s: %w", ts.Trigger, ts.Distance, apperrors.ErrInvalidParameter))
	}

	caps := []struct {
		field string
		cap   Cap
	}{
		{"order cap", c.OrderCap},
		{"position cap", c.PositionCap},
		{"default size", c.DefaultSize},
	}
	for _, cp := range caps {
		if err := cp.cap.validate(cp.field); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
