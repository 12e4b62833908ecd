// Package tickengine drives positions, resting orders and the account
// ledger of one instrument from a stream of price ticks.
package tickengine

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"tradesim/internal/core"
	"tradesim/internal/risk"
	"tradesim/internal/trading/account"
	"tradesim/internal/trading/fee"
	"tradesim/internal/trading/order"
	"tradesim/internal/trading/position"
	apperrors "tradesim/pkg/errors"
	"tradesim/pkg/logging"
	"tradesim/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var one = decimal.NewFromInt(1)

// Engine owns the open and closed positions, the resting orders, and the
// ledger/tracker pair of one instrument. Every public method holds the
// engine mutex, so a single engine never runs two operations at once and
// readers never observe a half-applied change. Close callbacks run after
// the mutex is released.
type Engine struct {
	mu sync.Mutex

	symbol  string
	cfg     risk.Config
	fees    fee.Schedule
	ledger  *account.Ledger
	tracker *account.Tracker
	breaker *risk.CircuitBreaker

	open    []*position.Position // in open order
	closed  []position.Record
	results []account.TradeResult
	orders  []*order.Order

	tick    core.Tick
	nextID  int64
	onClose []func(position.Record)
	onTrip  []func(risk.CircuitStatus)
	tripped *risk.CircuitStatus // set by finalize, drained by notify

	logger  core.ILogger
	tracer  trace.Tracer
	metrics *telemetry.MetricsHolder
}

// New validates opts and creates an engine with a fresh ledger.
func New(opts Options) (*Engine, error) {
	if opts.Symbol == "" {
		return nil, fmt.Errorf("symbol is required: %w", apperrors.ErrInvalidParameter)
	}
	if opts.InitialEquity.IsNegative() {
		return nil, fmt.Errorf("initial equity %s: %w", opts.InitialEquity, apperrors.ErrInvalidParameter)
	}
	if err := opts.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}
	if opts.Currency == "" {
		opts.Currency = "USDT"
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetGlobalLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.GetGlobalMetrics()
	}

	return &Engine{
		symbol:  opts.Symbol,
		cfg:     opts.Risk,
		fees:    opts.Fees,
		ledger:  account.NewLedger(opts.Currency, opts.InitialEquity),
		tracker: account.NewTracker(opts.InitialEquity),
		breaker: risk.NewCircuitBreaker(opts.Symbol, opts.Risk.CircuitBreaker, opts.Metrics),
		logger:  opts.Logger.WithField("component", "tick_engine").WithField("symbol", opts.Symbol),
		tracer:  telemetry.GetTracer("tick-engine"),
		metrics: opts.Metrics,
	}, nil
}

// OnClose registers a callback invoked with every finalized record.
func (e *Engine) OnClose(fn func(position.Record)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClose = append(e.onClose, fn)
}

// OnCircuitTrip registers a callback invoked when a close trips the
// circuit breaker.
func (e *Engine) OnCircuitTrip(fn func(risk.CircuitStatus)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrip = append(e.onTrip, fn)
}

func (e *Engine) notify(records []position.Record) {
	if len(records) == 0 {
		return
	}
	e.mu.Lock()
	callbacks := slices.Clone(e.onClose)
	tripCallbacks := slices.Clone(e.onTrip)
	tripped := e.tripped
	e.tripped = nil
	e.mu.Unlock()
	for _, rec := range records {
		for _, fn := range callbacks {
			fn(rec)
		}
	}
	if tripped != nil {
		for _, fn := range tripCallbacks {
			fn(*tripped)
		}
	}
}

// Update runs one tick: positions first, then resting orders, then the
// ledger and statistics.
func (e *Engine) Update(ctx context.Context, tick core.Tick) error {
	if !tick.Price.IsPositive() {
		return fmt.Errorf("tick price %s: %w", tick.Price, apperrors.ErrInvalidPrice)
	}
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "Engine.Update",
		trace.WithAttributes(
			attribute.String("symbol", e.symbol),
			attribute.Int64("bar_index", tick.BarIndex),
			attribute.Float64("price", tick.Price.InexactFloat64()),
		),
	)
	defer span.End()

	e.mu.Lock()
	e.tick = tick
	var finalized []position.Record

	// 1. positions
	for _, p := range append([]*position.Position(nil), e.open...) {
		for _, r := range p.Update(tick) {
			e.applyClose(ctx, p, r)
		}
		if !p.IsOpen() {
			finalized = append(finalized, e.finalize(ctx, p))
		}
	}
	e.recompute()

	// 2. resting orders
	finalized = append(finalized, e.processOrders(ctx)...)

	// 3. ledger, 4. statistics
	e.recompute()
	snap := e.ledger.Snapshot()
	e.tracker.Observe(snap.OpenProfit, len(e.open))
	e.publishLedger(snap)
	e.mu.Unlock()

	e.metrics.ObserveTick(ctx, e.symbol, float64(time.Since(start).Microseconds())/1000)
	e.notify(finalized)
	return nil
}

func (e *Engine) processOrders(ctx context.Context) []position.Record {
	var finalized []position.Record
	price := e.tick.Price

	for _, o := range append([]*order.Order(nil), e.orders...) {
		if o.Status == core.OrderStatusPending && o.Update(price) {
			e.logger.Debug("Order triggered", "order_id", o.ID, "kind", o.Kind, "price", price)
		}
		if o.Status == core.OrderStatusImmediate {
			finalized = append(finalized, e.executeOrder(ctx, o)...)
		}
		if o.Status == core.OrderStatusFailed {
			e.cancelOrder(ctx, o)
		}
	}
	return finalized
}

// executeOrder converts an immediate order into exposure. The order's own
// reservation is released before the size is re-restricted. An open
// circuit fails the order without touching existing positions. Opposing
// exposure is closed before sizing, so the freed margin counts; if the
// entry is then rejected the reversal stands.
func (e *Engine) executeOrder(ctx context.Context, o *order.Order) []position.Record {
	e.removeOrder(o.ID)
	e.recompute()

	if e.breaker.IsTripped(e.tick.Time) {
		o.Fail(apperrors.ErrCircuitOpen.Error())
		e.logger.Warn("Order failed at execution", "order_id", o.ID, "error", apperrors.ErrCircuitOpen)
		return nil
	}

	execPrice := o.ExecutionPrice(e.tick.Price)
	if err := checkSizeArgs(o.Size, execPrice, o.Leverage); err != nil {
		o.Fail(err.Error())
		e.logger.Warn("Order failed at execution", "order_id", o.ID, "error", err)
		return nil
	}
	finalized := e.reverse(ctx, o.Direction, execPrice)

	size, err := e.restrictSize(o.Size, execPrice, o.Leverage)
	if err == nil && size.IsZero() {
		err = apperrors.ErrInsufficientFunds
	}
	if err != nil {
		o.Fail(err.Error())
		if len(finalized) > 0 {
			e.logger.Warn("Reversal kept after rejected order", "order_id", o.ID, "closed", len(finalized), "error", err)
		} else {
			e.logger.Warn("Order failed at execution", "order_id", o.ID, "error", err)
		}
		return finalized
	}

	target := e.matchPosition(o)
	openFee := o.Fee.Calculate(size, execPrice)
	if target != nil {
		if err := target.Add(size, execPrice); err != nil {
			o.Fail(err.Error())
			e.logger.Warn("Order failed to extend position", "order_id", o.ID, "position_id", target.ID(), "error", err)
			return finalized
		}
		target.ChargeOpenFee(openFee)
		e.logger.Info("Position increased", "position_id", target.ID(), "order_id", o.ID, "size", size, "price", execPrice)
	} else {
		p, err := e.openPosition(o.Direction, size, execPrice, o.Leverage, o.Comment)
		if err != nil {
			o.Fail(err.Error())
			e.logger.Warn("Order failed to open position", "order_id", o.ID, "error", err)
			return finalized
		}
		p.ChargeOpenFee(openFee)
	}
	e.ledger.ApplyOpenFee(openFee)

	o.MarkMatched()
	e.metrics.IncOrdersFilled(ctx, e.symbol)
	e.recompute()
	return finalized
}

// matchPosition finds the open position an order adds to: the one named by
// the order if it is open in the same direction, otherwise the single open
// position in that direction.
func (e *Engine) matchPosition(o *order.Order) *position.Position {
	if o.PositionID != "" {
		for _, p := range e.open {
			if p.ID() == o.PositionID && p.Direction() == o.Direction {
				return p
			}
		}
		e.logger.Warn("Order position not open, matching by direction", "order_id", o.ID, "position_id", o.PositionID)
	}
	return e.positionFor(o.Direction)
}

func (e *Engine) positionFor(dir core.Direction) *position.Position {
	for _, p := range e.open {
		if p.Direction() == dir {
			return p
		}
	}
	return nil
}

// reverse closes opposing exposure at market before a new entry when hedge
// mode is off.
func (e *Engine) reverse(ctx context.Context, dir core.Direction, price decimal.Decimal) []position.Record {
	if e.cfg.HedgeMode {
		return nil
	}
	var finalized []position.Record
	for _, p := range append([]*position.Position(nil), e.open...) {
		if p.Direction() == dir {
			continue
		}
		r, err := p.Close(p.Size().Abs(), price, core.CloseKindReversal, "reversal", e.tick)
		if err != nil {
			e.logger.Error("Reversal close failed", "position_id", p.ID(), "error", err)
			continue
		}
		e.applyClose(ctx, p, r)
		finalized = append(finalized, e.finalize(ctx, p))
	}
	if len(finalized) > 0 {
		e.recompute()
	}
	return finalized
}

func (e *Engine) openPosition(dir core.Direction, size, price, leverage decimal.Decimal, comment string) (*position.Position, error) {
	e.nextID++
	p, err := position.New(position.Params{
		ID:         strconv.FormatInt(e.nextID, 10),
		Symbol:     e.symbol,
		Direction:  dir,
		Size:       size,
		EntryPrice: price,
		Leverage:   leverage,
		Comment:    comment,
		Time:       e.tick.Time,
		BarIndex:   e.tick.BarIndex,
		Risk:       e.cfg,
		Fees:       e.fees,
	})
	if err != nil {
		e.nextID--
		return nil, err
	}
	e.open = append(e.open, p)
	e.logger.Info("Position opened", "position_id", p.ID(), "direction", dir, "size", size, "price", price, "leverage", leverage)
	return p, nil
}

func (e *Engine) applyClose(ctx context.Context, p *position.Position, r position.CloseResult) {
	e.ledger.ApplyClose(r.Net, r.ReleasedMargin, r.Commission)
	e.logger.Info("Position reduced",
		"position_id", p.ID(), "kind", r.Kind, "amount", r.Amount, "price", r.Price,
		"net", r.Net, "final", r.Final)
}

// finalize moves a closed position to the history and rebuilds statistics.
func (e *Engine) finalize(ctx context.Context, p *position.Position) position.Record {
	for i, q := range e.open {
		if q == p {
			e.open = append(e.open[:i], e.open[i+1:]...)
			break
		}
	}
	rec := p.Record()
	e.closed = append(e.closed, rec)
	e.results = append(e.results, rec.Result())
	e.tracker.Recompute(e.results)
	if e.breaker.RecordTrade(rec.NetProfit, e.tick.Time) {
		status := e.breaker.Status()
		e.tripped = &status
		e.logger.Warn("Circuit breaker tripped", "reason", status.Reason, "consecutive_losses", status.ConsecutiveLosses)
	}
	e.metrics.RecordClose(ctx, e.symbol, rec.NetProfit.InexactFloat64(), rec.Commission.InexactFloat64())
	e.logger.Info("Position closed", "position_id", rec.ID, "exit_kind", rec.ExitKind, "net_profit", rec.NetProfit)
	return rec
}

func (e *Engine) recompute() {
	exposures := make([]account.Exposure, 0, len(e.open))
	for _, p := range e.open {
		exposures = append(exposures, p.Exposure(e.markPrice(p)))
	}
	reservations := make([]account.Reservation, 0, len(e.orders))
	for _, o := range e.orders {
		reservations = append(reservations, o.Reservation())
	}
	e.ledger.Recompute(exposures, reservations)
}

// markPrice values p at the last tick, or at its own entry price before
// the first tick arrives.
func (e *Engine) markPrice(p *position.Position) decimal.Decimal {
	if e.tick.Price.IsPositive() {
		return e.tick.Price
	}
	return p.EntryPrice()
}

func (e *Engine) publishLedger(s account.Snapshot) {
	e.metrics.SetLedger(e.symbol, telemetry.LedgerValues{
		Balance:       s.Balance.InexactFloat64(),
		Equity:        s.Equity.InexactFloat64(),
		Margin:        s.Margin.InexactFloat64(),
		MarginLevel:   s.MarginLevel.InexactFloat64(),
		OpenProfit:    s.OpenProfit.InexactFloat64(),
		PositionSize:  s.PositionSize.InexactFloat64(),
		OpenPositions: len(e.open),
		OpenOrders:    len(e.orders),
	})
}

// RestrictSize clamps an unsigned size so that the resulting margin stays
// within the order cap, the position-cap headroom and the available
// balance, net of the taker fee. Zero size selects the default size.
func (e *Engine) RestrictSize(size, price, leverage decimal.Decimal) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restrictSize(size, price, leverage)
}

func checkSizeArgs(size, price, leverage decimal.Decimal) error {
	if !leverage.IsPositive() {
		return fmt.Errorf("leverage %s: %w", leverage, apperrors.ErrInvalidLeverage)
	}
	if size.IsNegative() {
		return fmt.Errorf("size %s: %w", size, apperrors.ErrInvalidSize)
	}
	if !price.IsPositive() {
		return fmt.Errorf("price %s: %w", price, apperrors.ErrInvalidPrice)
	}
	return nil
}

func (e *Engine) restrictSize(size, price, leverage decimal.Decimal) (decimal.Decimal, error) {
	if err := checkSizeArgs(size, price, leverage); err != nil {
		return decimal.Zero, err
	}

	snap := e.ledger.Snapshot()
	caps := e.cfg.Resolve(price, snap.Equity)
	if size.IsZero() {
		size = caps.DefaultSize.Units
	}

	usable := decimal.Min(
		caps.Order.USD.Div(leverage),
		caps.Position.USD.Div(leverage).Sub(snap.Margin.Add(snap.PendingMargin)),
		snap.Balance,
		size.Mul(price).Div(leverage),
	)
	usable = decimal.Max(decimal.Zero, usable)

	notional := usable.Mul(leverage).Mul(one.Sub(e.fees.Taker.Rate()))
	if notional.LessThan(e.cfg.MinOrderUSD) {
		return decimal.Zero, nil
	}
	return notional.Div(price), nil
}

func (e *Engine) resolvePrice(price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsZero() {
		price = e.tick.Price
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %s: %w", price, apperrors.ErrInvalidPrice)
	}
	return price, nil
}

func (e *Engine) resolveLeverage(leverage decimal.Decimal) decimal.Decimal {
	if leverage.IsZero() {
		return e.cfg.Leverage
	}
	return leverage
}

// NewEntry opens exposure immediately at the requested price. An existing
// position in the same direction is increased instead of opening a second
// one; in one-way mode opposing exposure is closed first. The size is
// restricted after that close, so a rejected entry still leaves the
// reversal in place and the closed records are delivered to OnClose.
func (e *Engine) NewEntry(ctx context.Context, req EntryRequest) (PositionInfo, error) {
	e.mu.Lock()
	info, finalized, err := e.newEntry(ctx, req)
	e.mu.Unlock()
	e.notify(finalized)
	return info, err
}

func (e *Engine) newEntry(ctx context.Context, req EntryRequest) (PositionInfo, []position.Record, error) {
	if !req.Direction.Valid() {
		return PositionInfo{}, nil, fmt.Errorf("direction %q: %w", req.Direction, apperrors.ErrInvalidDirection)
	}
	if e.breaker.IsTripped(e.tick.Time) {
		return PositionInfo{}, nil, apperrors.ErrCircuitOpen
	}
	price, err := e.resolvePrice(req.Price)
	if err != nil {
		return PositionInfo{}, nil, err
	}
	leverage := e.resolveLeverage(req.Leverage)
	if err := checkSizeArgs(req.Size, price, leverage); err != nil {
		return PositionInfo{}, nil, err
	}

	finalized := e.reverse(ctx, req.Direction, price)

	size, err := e.restrictSize(req.Size, price, leverage)
	if err != nil {
		return PositionInfo{}, finalized, err
	}
	if size.IsZero() {
		e.logger.Warn("Entry rejected", "direction", req.Direction, "requested", req.Size,
			"reason", "no size available", "reversed", len(finalized))
		return PositionInfo{}, finalized, apperrors.ErrInsufficientFunds
	}

	openFee := e.fees.Taker.Calculate(size, price)
	p := e.positionFor(req.Direction)
	if p != nil {
		if err := p.Add(size, price); err != nil {
			return PositionInfo{}, finalized, err
		}
		e.logger.Info("Position increased", "position_id", p.ID(), "size", size, "price", price)
	} else {
		p, err = e.openPosition(req.Direction, size, price, leverage, req.Comment)
		if err != nil {
			return PositionInfo{}, finalized, err
		}
	}
	p.ChargeOpenFee(openFee)
	e.ledger.ApplyOpenFee(openFee)
	e.recompute()
	return infoOf(p, e.markPrice(p)), finalized, nil
}

// PlaceOrder rests an order for later execution and returns its id. The
// size is restricted now and again when the order executes.
func (e *Engine) PlaceOrder(ctx context.Context, req order.Request) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.breaker.IsTripped(e.tick.Time) {
		return "", apperrors.ErrCircuitOpen
	}
	price, err := e.resolvePrice(req.Price)
	if err != nil {
		return "", err
	}
	req.Price = price
	req.Leverage = e.resolveLeverage(req.Leverage)
	if req.Kind == "" {
		req.Kind = core.OrderKindMarket
	}
	req.Symbol = e.symbol

	size, err := e.restrictSize(req.Size, price, req.Leverage)
	if err != nil {
		return "", err
	}
	if size.IsZero() {
		return "", apperrors.ErrInsufficientFunds
	}
	req.Size = size

	o, err := order.New(uuid.NewString(), req, e.fees.ForOrder(req.Kind), e.tick)
	if err != nil {
		return "", err
	}
	e.orders = append(e.orders, o)
	e.recompute()

	e.metrics.IncOrdersPlaced(ctx, e.symbol, string(o.Kind))
	e.logger.Debug("Order placed", "order_id", o.ID, "kind", o.Kind, "direction", o.Direction, "size", o.Size, "price", o.Price)
	return o.ID, nil
}

// Close closes up to size of a position at the last tick price. Zero size
// closes everything.
func (e *Engine) Close(ctx context.Context, positionID string, size decimal.Decimal, kind core.CloseKind, comment string) (position.CloseResult, error) {
	e.mu.Lock()
	r, finalized, err := e.close(ctx, positionID, size, kind, comment)
	e.mu.Unlock()
	e.notify(finalized)
	return r, err
}

func (e *Engine) close(ctx context.Context, positionID string, size decimal.Decimal, kind core.CloseKind, comment string) (position.CloseResult, []position.Record, error) {
	var p *position.Position
	for _, q := range e.open {
		if q.ID() == positionID {
			p = q
			break
		}
	}
	if p == nil {
		return position.CloseResult{}, nil, fmt.Errorf("position %s: %w", positionID, apperrors.ErrPositionNotFound)
	}
	if size.IsNegative() {
		return position.CloseResult{}, nil, fmt.Errorf("close size %s: %w", size, apperrors.ErrInvalidSize)
	}
	if size.IsZero() {
		size = p.Size().Abs()
	}
	if kind == "" {
		kind = core.CloseKindMarket
	}

	r, err := p.Close(size, e.tick.Price, kind, comment, e.tick)
	if err != nil {
		return position.CloseResult{}, nil, err
	}
	e.applyClose(ctx, p, r)

	var finalized []position.Record
	if r.Final {
		finalized = append(finalized, e.finalize(ctx, p))
	}
	e.recompute()
	return r, finalized, nil
}

// Cancel removes a resting order and releases its margin and fee
// reservation in one step.
func (e *Engine) Cancel(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, o := range e.orders {
		if o.ID == orderID {
			e.cancelOrder(ctx, o)
			return nil
		}
	}
	return fmt.Errorf("order %s: %w", orderID, apperrors.ErrOrderNotFound)
}

// CancelAll cancels every resting order and returns how many were removed.
func (e *Engine) CancelAll(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.orders)
	for _, o := range append([]*order.Order(nil), e.orders...) {
		e.cancelOrder(ctx, o)
	}
	return n
}

func (e *Engine) cancelOrder(ctx context.Context, o *order.Order) {
	e.removeOrder(o.ID)
	o.MarkCancelled()
	e.recompute()
	e.metrics.IncOrdersCancelled(ctx, e.symbol)
	e.logger.Debug("Order cancelled", "order_id", o.ID, "reason", o.Reason)
}

func (e *Engine) removeOrder(id string) {
	for i, o := range e.orders {
		if o.ID == id {
			e.orders = append(e.orders[:i], e.orders[i+1:]...)
			return
		}
	}
}

func (e *Engine) Symbol() string { return e.symbol }

// Price is the last tick price.
func (e *Engine) Price() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick.Price
}

// BarIndex is the last tick's bar index.
func (e *Engine) BarIndex() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick.BarIndex
}

func (e *Engine) OpenPositions() []PositionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PositionInfo, 0, len(e.open))
	for _, p := range e.open {
		out = append(out, infoOf(p, e.markPrice(p)))
	}
	return out
}

func (e *Engine) OpenOrders() []order.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]order.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out
}

// ClosedRecords returns the finalized records in close order.
func (e *Engine) ClosedRecords() []position.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]position.Record(nil), e.closed...)
}

func (e *Engine) LedgerSnapshot() account.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Snapshot()
}

func (e *Engine) TrackerSnapshot() account.TrackerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Snapshot()
}

func (e *Engine) CircuitStatus() risk.CircuitStatus {
	return e.breaker.Status()
}
