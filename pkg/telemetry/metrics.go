package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricBalance            = "tradesim_ledger_balance"
	MetricEquity             = "tradesim_ledger_equity"
	MetricMargin             = "tradesim_ledger_margin"
	MetricMarginLevel        = "tradesim_ledger_margin_level"
	MetricPnLUnrealized      = "tradesim_pnl_unrealized"
	MetricPositionSize       = "tradesim_position_size"
	MetricPositionsOpen      = "tradesim_positions_open"
	MetricOrdersActive       = "tradesim_orders_active"
	MetricCircuitBreakerOpen = "tradesim_circuit_breaker_open"

	MetricPnLRealizedTotal     = "tradesim_pnl_realized_total"
	MetricCommissionTotal      = "tradesim_commission_total"
	MetricOrdersPlacedTotal    = "tradesim_orders_placed_total"
	MetricOrdersFilledTotal    = "tradesim_orders_filled_total"
	MetricOrdersCancelledTotal = "tradesim_orders_cancelled_total"
	MetricPositionsClosedTotal = "tradesim_positions_closed_total"
	MetricTickDuration         = "tradesim_tick_duration_ms"
)

// MetricsHolder holds initialized instruments and the per-symbol state read
// by observable gauges.
type MetricsHolder struct {
	PnLRealizedTotal     metric.Float64Counter
	CommissionTotal      metric.Float64Counter
	OrdersPlacedTotal    metric.Int64Counter
	OrdersFilledTotal    metric.Int64Counter
	OrdersCancelledTotal metric.Int64Counter
	PositionsClosedTotal metric.Int64Counter
	TickDuration         metric.Float64Histogram

	mu     sync.RWMutex
	gauges map[string]map[string]float64 // metric name -> symbol -> value
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

var gaugeDescriptions = map[string]string{
	MetricBalance:            "Available balance",
	MetricEquity:             "Account equity",
	MetricMargin:             "Margin held by open positions",
	MetricMarginLevel:        "Margin divided by equity",
	MetricPnLUnrealized:      "Open profit of all positions",
	MetricPositionSize:       "Net signed position size",
	MetricPositionsOpen:      "Number of open positions",
	MetricOrdersActive:       "Number of resting orders",
	MetricCircuitBreakerOpen: "Circuit breaker state (1=open, 0=closed)",
}

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = NewMetricsHolder()
	})
	return globalMetrics
}

// NewMetricsHolder returns a holder with empty gauges. Its instruments stay
// nil until InitMetrics runs.
func NewMetricsHolder() *MetricsHolder {
	m := &MetricsHolder{gauges: make(map[string]map[string]float64)}
	for name := range gaugeDescriptions {
		m.gauges[name] = make(map[string]float64)
	}
	return m
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized net profit/loss"))
	if err != nil {
		return err
	}
	m.CommissionTotal, err = meter.Float64Counter(MetricCommissionTotal, metric.WithDescription("Cumulative commission paid"))
	if err != nil {
		return err
	}
	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed"))
	if err != nil {
		return err
	}
	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders matched into positions"))
	if err != nil {
		return err
	}
	m.OrdersCancelledTotal, err = meter.Int64Counter(MetricOrdersCancelledTotal, metric.WithDescription("Total orders cancelled"))
	if err != nil {
		return err
	}
	m.PositionsClosedTotal, err = meter.Int64Counter(MetricPositionsClosedTotal, metric.WithDescription("Total positions fully closed"))
	if err != nil {
		return err
	}
	m.TickDuration, err = meter.Float64Histogram(MetricTickDuration, metric.WithDescription("Engine update duration per tick"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	for name, desc := range gaugeDescriptions {
		name := name
		_, err = meter.Float64ObservableGauge(name, metric.WithDescription(desc),
			metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
				m.mu.RLock()
				defer m.mu.RUnlock()
				for sym, val := range m.gauges[name] {
					obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
				}
				return nil
			}))
		if err != nil {
			return err
		}
	}

	return nil
}

// SetGauge records the latest value of an observable gauge for a symbol.
func (m *MetricsHolder) SetGauge(name, symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	series, ok := m.gauges[name]
	if !ok {
		return
	}
	series[symbol] = value
}

// Gauge returns a copy of one gauge's per-symbol values.
func (m *MetricsHolder) Gauge(name string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64, len(m.gauges[name]))
	for k, v := range m.gauges[name] {
		res[k] = v
	}
	return res
}

// LedgerValues groups the gauges refreshed after every tick.
type LedgerValues struct {
	Balance       float64
	Equity        float64
	Margin        float64
	MarginLevel   float64
	OpenProfit    float64
	PositionSize  float64
	OpenPositions int
	OpenOrders    int
}

// SetLedger refreshes all ledger gauges for a symbol at once.
func (m *MetricsHolder) SetLedger(symbol string, v LedgerValues) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[MetricBalance][symbol] = v.Balance
	m.gauges[MetricEquity][symbol] = v.Equity
	m.gauges[MetricMargin][symbol] = v.Margin
	m.gauges[MetricMarginLevel][symbol] = v.MarginLevel
	m.gauges[MetricPnLUnrealized][symbol] = v.OpenProfit
	m.gauges[MetricPositionSize][symbol] = v.PositionSize
	m.gauges[MetricPositionsOpen][symbol] = float64(v.OpenPositions)
	m.gauges[MetricOrdersActive][symbol] = float64(v.OpenOrders)
}

func (m *MetricsHolder) SetCircuitBreakerOpen(symbol string, open bool) {
	val := 0.0
	if open {
		val = 1
	}
	m.SetGauge(MetricCircuitBreakerOpen, symbol, val)
}

func symbolAttr(symbol string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("symbol", symbol))
}

// RecordClose adds a fully closed position's realized figures.
func (m *MetricsHolder) RecordClose(ctx context.Context, symbol string, netProfit, commission float64) {
	if m.PnLRealizedTotal != nil {
		m.PnLRealizedTotal.Add(ctx, netProfit, symbolAttr(symbol))
	}
	if m.CommissionTotal != nil && commission > 0 {
		m.CommissionTotal.Add(ctx, commission, symbolAttr(symbol))
	}
	if m.PositionsClosedTotal != nil {
		m.PositionsClosedTotal.Add(ctx, 1, symbolAttr(symbol))
	}
}

func (m *MetricsHolder) IncOrdersPlaced(ctx context.Context, symbol, kind string) {
	if m.OrdersPlacedTotal != nil {
		m.OrdersPlacedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol), attribute.String("kind", kind)))
	}
}

func (m *MetricsHolder) IncOrdersFilled(ctx context.Context, symbol string) {
	if m.OrdersFilledTotal != nil {
		m.OrdersFilledTotal.Add(ctx, 1, symbolAttr(symbol))
	}
}

func (m *MetricsHolder) IncOrdersCancelled(ctx context.Context, symbol string) {
	if m.OrdersCancelledTotal != nil {
		m.OrdersCancelledTotal.Add(ctx, 1, symbolAttr(symbol))
	}
}

func (m *MetricsHolder) ObserveTick(ctx context.Context, symbol string, ms float64) {
	if m.TickDuration != nil {
		m.TickDuration.Record(ctx, ms, symbolAttr(symbol))
	}
}
