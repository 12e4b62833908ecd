// Package position implements the open/closed lifecycle of a single
// leveraged position: take-profit ladder, fixed and trailing stops, and
// fee-aware partial closes.
package position

import (
	"fmt"
	"time"

	"tradesim/internal/core"
	"tradesim/internal/risk"
	"tradesim/internal/trading/account"
	"tradesim/internal/trading/fee"
	apperrors "tradesim/pkg/errors"
	"tradesim/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Params describes a new position. Size is an unsigned quantity; the sign
// comes from Direction.
type Params struct {
	ID         string
	Symbol     string
	Direction  core.Direction
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	Leverage   decimal.Decimal
	Comment    string
	Time       time.Time
	BarIndex   int64
	Risk       risk.Config
	Fees       fee.Schedule
}

// CloseResult is the accounting of one (partial) close.
type CloseResult struct {
	PositionID     string
	Kind           core.CloseKind
	Price          decimal.Decimal
	Amount         decimal.Decimal // unsigned quantity closed
	Profit         decimal.Decimal
	Commission     decimal.Decimal
	Net            decimal.Decimal
	ReleasedMargin decimal.Decimal
	Unfilled       decimal.Decimal // part of the request beyond the open size
	Final          bool
}

// Position is an open or closed exposure. Size is signed: positive is
// long, otherwise short. The direction passed at construction is kept only
// as declared intent; every trigger keys off the sign of size.
type Position struct {
	id         string
	symbol     string
	declared   core.Direction
	size       decimal.Decimal
	entryPrice decimal.Decimal
	leverage   decimal.Decimal
	margin     decimal.Decimal
	value      decimal.Decimal
	status     core.PositionStatus
	openProfit decimal.Decimal

	cfg  risk.Config
	fees fee.Schedule

	tpTargets []decimal.Decimal // prices, nearest first
	tpSizes   []decimal.Decimal // unsigned quantities, parallel to tpTargets

	trailActive bool
	trailPeak   decimal.Decimal

	record Record
}

// New validates p and opens a position.
func New(p Params) (*Position, error) {
	if !p.Direction.Valid() {
		return nil, fmt.Errorf("direction %q: %w", p.Direction, apperrors.ErrInvalidDirection)
	}
	if !p.Size.IsPositive() {
		return nil, fmt.Errorf("size %s: %w", p.Size, apperrors.ErrInvalidSize)
	}
	if !p.EntryPrice.IsPositive() {
		return nil, fmt.Errorf("entry price %s: %w", p.EntryPrice, apperrors.ErrInvalidPrice)
	}
	if !p.Leverage.IsPositive() {
		return nil, fmt.Errorf("leverage %s: %w", p.Leverage, apperrors.ErrInvalidLeverage)
	}

	pos := &Position{
		id:         p.ID,
		symbol:     p.Symbol,
		declared:   p.Direction,
		size:       p.Size.Mul(p.Direction.Sign()),
		entryPrice: p.EntryPrice,
		leverage:   p.Leverage,
		status:     core.PositionStatusOpen,
		cfg:        p.Risk,
		fees:       p.Fees,
		record: Record{
			ID:            p.ID,
			Symbol:        p.Symbol,
			Direction:     p.Direction,
			Size:          p.Size,
			Leverage:      p.Leverage,
			EntryPrice:    p.EntryPrice,
			EntryTime:     p.Time,
			EntryBarIndex: p.BarIndex,
			EntryComment:  p.Comment,
		},
	}
	pos.revalue()
	if err := pos.buildLadder(); err != nil {
		return nil, err
	}
	return pos, nil
}

func (p *Position) revalue() {
	p.value = p.size.Mul(p.entryPrice)
	p.margin = p.size.Abs().Mul(p.entryPrice).Div(p.leverage)
}

// buildLadder lays the take-profit targets out from the current entry.
func (p *Position) buildLadder() error {
	p.tpTargets, p.tpSizes = nil, nil
	tp := p.cfg.TakeProfit
	if !tp.Enabled || tp.Targets < 1 {
		return nil
	}

	dists, err := tradingutils.ScaledTargets(tp.Targets, tp.DistWeight, tp.Start, tp.End)
	if err != nil {
		return fmt.Errorf("take profit targets: %w", err)
	}
	sizes, err := tradingutils.ScaledSizes(p.size.Abs().Mul(tp.SizeTotal), tp.Targets, tp.SizeWeight, tp.MinSize, false)
	if err != nil {
		return fmt.Errorf("take profit sizes: %w", err)
	}

	sign := p.Direction().Sign()
	p.tpTargets = make([]decimal.Decimal, len(dists))
	for i, d := range dists {
		p.tpTargets[i] = p.entryPrice.Mul(one.Add(d.Mul(sign)))
	}
	p.tpSizes = sizes
	return nil
}

func (p *Position) ID() string { return p.id }

func (p *Position) Symbol() string { return p.symbol }

// Direction is derived from the sign of the current size.
func (p *Position) Direction() core.Direction {
	if p.size.IsZero() {
		return p.declared
	}
	return core.DirectionOf(p.size)
}

// DeclaredDirection is the direction requested at open.
func (p *Position) DeclaredDirection() core.Direction { return p.declared }

func (p *Position) Size() decimal.Decimal { return p.size }

func (p *Position) EntryPrice() decimal.Decimal { return p.entryPrice }

func (p *Position) Leverage() decimal.Decimal { return p.leverage }

func (p *Position) Margin() decimal.Decimal { return p.margin }

func (p *Position) Value() decimal.Decimal { return p.value }

func (p *Position) Status() core.PositionStatus { return p.status }

func (p *Position) IsOpen() bool { return p.status == core.PositionStatusOpen }

func (p *Position) LastOpenProfit() decimal.Decimal { return p.openProfit }

// Record returns a copy of the audit trail.
func (p *Position) Record() Record { return p.record }

// Targets returns the remaining take-profit prices, nearest first.
func (p *Position) Targets() []decimal.Decimal {
	return append([]decimal.Decimal(nil), p.tpTargets...)
}

// TargetSizes returns the quantities paired with Targets.
func (p *Position) TargetSizes() []decimal.Decimal {
	return append([]decimal.Decimal(nil), p.tpSizes...)
}

// TrailingStop reports whether the trailing stop is armed and its peak.
func (p *Position) TrailingStop() (bool, decimal.Decimal) {
	return p.trailActive, p.trailPeak
}

// OpenProfit is the unrealized profit at price.
func (p *Position) OpenProfit(price decimal.Decimal) decimal.Decimal {
	return p.size.Mul(price.Sub(p.entryPrice))
}

// PendingFee is the taker fee to close everything at price.
func (p *Position) PendingFee(price decimal.Decimal) decimal.Decimal {
	if p.size.IsZero() {
		return decimal.Zero
	}
	return p.fees.Taker.Calculate(p.size, price)
}

// Exposure is the position's ledger contribution at price.
func (p *Position) Exposure(price decimal.Decimal) account.Exposure {
	return account.Exposure{
		OpenProfit: p.OpenProfit(price),
		Margin:     p.margin,
		PendingFee: p.PendingFee(price),
		Size:       p.size,
	}
}

// ChargeOpenFee books the fee paid to open or increase the position.
func (p *Position) ChargeOpenFee(amount decimal.Decimal) {
	p.record.chargeOpenFee(amount)
}

// Add increases the position by an unsigned size filled at price. The entry
// becomes the size-weighted average and the ladder is rebuilt from it.
func (p *Position) Add(size, price decimal.Decimal) error {
	if !p.IsOpen() {
		return fmt.Errorf("position %s: %w", p.id, apperrors.ErrPositionClosed)
	}
	if !size.IsPositive() {
		return fmt.Errorf("size %s: %w", size, apperrors.ErrInvalidSize)
	}
	if !price.IsPositive() {
		return fmt.Errorf("price %s: %w", price, apperrors.ErrInvalidPrice)
	}

	added := size.Mul(p.Direction().Sign())
	total := p.size.Add(added)
	p.entryPrice = p.size.Mul(p.entryPrice).Add(added.Mul(price)).Div(total)
	p.size = total
	p.record.Size = p.record.Size.Add(size)
	p.revalue()
	return p.buildLadder()
}

// Update runs the per-tick checks in order: refresh open profit, trailing
// stop, take-profit ladder, fixed stop. Checks stop once the position is
// closed. It returns the closes that fired.
func (p *Position) Update(tick core.Tick) []CloseResult {
	if !p.IsOpen() {
		return nil
	}
	price := tick.Price
	var fired []CloseResult

	p.openProfit = p.OpenProfit(price)
	p.record.observe(p.openProfit)

	if r, ok := p.checkTrailingStop(tick); ok {
		fired = append(fired, r)
		if r.Final {
			return fired
		}
	}
	if r, ok := p.checkTakeProfit(tick); ok {
		fired = append(fired, r)
		if r.Final {
			return fired
		}
	}
	if r, ok := p.checkStopLoss(tick); ok {
		fired = append(fired, r)
	}
	return fired
}

func (p *Position) checkTrailingStop(tick core.Tick) (CloseResult, bool) {
	ts := p.cfg.TrailingStop
	if !ts.Enabled {
		return CloseResult{}, false
	}
	price := tick.Price
	long := p.size.IsPositive()

	if !p.trailActive {
		var armed bool
		if long {
			armed = price.GreaterThan(p.entryPrice.Mul(one.Add(ts.Trigger)))
		} else {
			armed = price.LessThan(p.entryPrice.Mul(one.Sub(ts.Trigger)))
		}
		if !armed {
			return CloseResult{}, false
		}
		p.trailActive = true
		p.trailPeak = price
	}

	var hit bool
	if long {
		p.trailPeak = decimal.Max(p.trailPeak, price)
		hit = price.LessThanOrEqual(p.trailPeak.Mul(one.Sub(ts.Distance)))
	} else {
		p.trailPeak = decimal.Min(p.trailPeak, price)
		hit = price.GreaterThanOrEqual(p.trailPeak.Mul(one.Add(ts.Distance)))
	}
	if !hit {
		return CloseResult{}, false
	}
	return p.closeAll(price, core.CloseKindTrailingStop, tick), true
}

func (p *Position) checkTakeProfit(tick core.Tick) (CloseResult, bool) {
	if !p.cfg.TakeProfit.Enabled || len(p.tpTargets) == 0 {
		return CloseResult{}, false
	}
	target := p.tpTargets[0]
	var reached bool
	if p.size.IsPositive() {
		reached = tick.Price.GreaterThanOrEqual(target)
	} else {
		reached = tick.Price.LessThanOrEqual(target)
	}
	if !reached {
		return CloseResult{}, false
	}

	amount := p.tpSizes[0]
	if len(p.tpTargets) == 1 && p.cfg.TakeProfit.SizeTotal.GreaterThanOrEqual(one) {
		amount = p.size.Abs()
	}
	p.tpTargets = p.tpTargets[1:]
	p.tpSizes = p.tpSizes[1:]

	if !amount.IsPositive() {
		return CloseResult{}, false
	}
	r, _ := p.close(amount, target, core.CloseKindTakeProfit, "", tick)
	return r, true
}

func (p *Position) checkStopLoss(tick core.Tick) (CloseResult, bool) {
	sl := p.cfg.StopLoss
	if !sl.Enabled {
		return CloseResult{}, false
	}
	var hit bool
	if p.size.IsPositive() {
		hit = tick.Price.LessThan(p.entryPrice.Mul(one.Sub(sl.Distance)))
	} else {
		hit = tick.Price.GreaterThan(p.entryPrice.Mul(one.Add(sl.Distance)))
	}
	if !hit {
		return CloseResult{}, false
	}
	return p.closeAll(tick.Price, core.CloseKindStopLoss, tick), true
}

func (p *Position) closeAll(price decimal.Decimal, kind core.CloseKind, tick core.Tick) CloseResult {
	r, _ := p.close(p.size.Abs(), price, kind, "", tick)
	return r
}

// Close closes up to size (unsigned) at price. A request larger than the
// open size is clamped and the excess reported in Unfilled.
func (p *Position) Close(size, price decimal.Decimal, kind core.CloseKind, comment string, tick core.Tick) (CloseResult, error) {
	if !p.IsOpen() {
		return CloseResult{}, fmt.Errorf("position %s: %w", p.id, apperrors.ErrPositionClosed)
	}
	if !size.IsPositive() {
		return CloseResult{}, fmt.Errorf("close size %s: %w", size, apperrors.ErrInvalidSize)
	}
	if !price.IsPositive() {
		return CloseResult{}, fmt.Errorf("close price %s: %w", price, apperrors.ErrInvalidPrice)
	}
	return p.close(size, price, kind, comment, tick)
}

func (p *Position) close(size, price decimal.Decimal, kind core.CloseKind, comment string, tick core.Tick) (CloseResult, error) {
	open := p.size.Abs()
	amount := decimal.Min(size.Abs(), open)
	exposure := amount.Mul(p.Direction().Sign())

	profit := price.Sub(p.entryPrice).Mul(exposure)
	commission := p.fees.ForClose(kind).Calculate(amount, price)
	net := profit.Sub(commission)

	p.record.accumulate(profit, commission)

	before := p.margin
	p.size = p.size.Sub(exposure)
	p.revalue()

	r := CloseResult{
		PositionID:     p.id,
		Kind:           kind,
		Price:          price,
		Amount:         amount,
		Profit:         profit,
		Commission:     commission,
		Net:            net,
		ReleasedMargin: before.Sub(p.margin),
		Unfilled:       size.Abs().Sub(amount),
		Final:          amount.GreaterThanOrEqual(open),
	}
	if r.Final {
		p.status = core.PositionStatusClosed
		p.tpTargets, p.tpSizes = nil, nil
		p.record.finalize(price, tick, kind, comment)
	}
	return r, nil
}
