// Package ledger implements the order-execution and portfolio-accounting
// state machine at the heart of the backtester. An Engine owns one account's
// cash balance, position book, and trade log, and exposes a single mutating
// operation, ExecuteOrder, plus read-only accessors.
//
// All monetary arithmetic is fixed-point decimal, rounded to a configurable
// scale at every intermediate step so that repeated execution of many small
// orders never accumulates representational drift.
//
// The Engine is single-threaded by contract: callers must serialize access.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the direction of an order or trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// DefaultScale is the number of fractional digits kept by every intermediate
// monetary computation.
const DefaultScale int32 = 8

// ErrInvalidOrder reports a structurally malformed order (non-positive
// quantity or price, or an unknown side). It indicates a caller bug, not a
// market condition, and the engine performs no mutation before raising it.
var ErrInvalidOrder = errors.New("invalid order")

// Order is an execution request. Orders are consumed exactly once and never
// stored; the caller owns sequencing.
type Order struct {
	Symbol    string
	Timestamp time.Time
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Side      Side
}

// Trade is the immutable record of a fill. Trades are appended to the
// engine's ordered log and never mutated or removed.
type Trade struct {
	Timestamp  time.Time
	Symbol     string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Commission decimal.Decimal
	Side       Side
}

// Position is the current holding for one symbol. Quantity is always
// non-negative; AveragePrice is the volume-weighted average entry cost and
// carries no meaning once Quantity reaches zero.
type Position struct {
	Symbol       string
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
}

// Status distinguishes the two normal outcomes of ExecuteOrder.
type Status int

const (
	// StatusFilled means the order executed and a Trade was recorded.
	StatusFilled Status = iota
	// StatusRejected means the order was economically infeasible given the
	// current account state. State is guaranteed unchanged.
	StatusRejected
)

// RejectReason explains a StatusRejected outcome.
type RejectReason string

const (
	ReasonInsufficientCash     RejectReason = "insufficient cash"
	ReasonInsufficientQuantity RejectReason = "insufficient quantity"
)

// Result is the outcome of a valid order: either a fill carrying the
// recorded Trade, or a rejection carrying its reason. Rejections are normal
// outcomes, not errors; callers should treat them as no-ops and continue.
type Result struct {
	Status Status
	Trade  *Trade
	Reason RejectReason
}

// Filled reports whether the order executed.
func (r Result) Filled() bool { return r.Status == StatusFilled }

// Engine owns one account's state and applies orders to it atomically:
// each ExecuteOrder call either fully settles or leaves state untouched.
type Engine struct {
	initialCapital decimal.Decimal
	commissionRate decimal.Decimal
	scale          int32
	epsilon        decimal.Decimal

	cash      decimal.Decimal
	positions map[string]*Position
	trades    []Trade
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithScale overrides the rounding scale (fractional digits) applied at
// every arithmetic step. Positions whose quantity falls below 10^-scale are
// treated as dust and removed.
func WithScale(scale int32) Option {
	return func(e *Engine) { e.scale = scale }
}

// NewEngine creates an Engine holding initialCapital in cash, charging
// commissionRate on the notional value of every fill. The position book and
// trade log start empty.
func NewEngine(initialCapital, commissionRate decimal.Decimal, opts ...Option) *Engine {
	e := &Engine{
		initialCapital: initialCapital,
		commissionRate: commissionRate,
		scale:          DefaultScale,
		cash:           initialCapital,
		positions:      make(map[string]*Position),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.epsilon = decimal.New(1, -e.scale)
	return e
}

// ExecuteOrder applies one order to the account. It terminates in exactly
// one of three outcomes:
//
//   - a hard error wrapping ErrInvalidOrder for a malformed order;
//   - a rejection (Result.Status == StatusRejected) when a buy exceeds
//     available cash or a sell exceeds the held quantity, with state
//     guaranteed unchanged;
//   - a fill (Result.Status == StatusFilled) with cash, the position book,
//     and the trade log updated consistently.
//
// Commission and total cost are rounded to the engine scale at each step,
// using banker's rounding. A position whose quantity ends within 10^-scale
// of zero is removed from the book rather than kept as dust.
func (e *Engine) ExecuteOrder(order Order) (Result, error) {
	if order.Quantity.Sign() <= 0 || order.Price.Sign() <= 0 {
		return Result{}, fmt.Errorf("%w: quantity=%s price=%s", ErrInvalidOrder, order.Quantity, order.Price)
	}
	if order.Side != SideBuy && order.Side != SideSell {
		return Result{}, fmt.Errorf("%w: side=%q", ErrInvalidOrder, order.Side)
	}

	notional := order.Price.Mul(order.Quantity)
	commission := notional.Mul(e.commissionRate).RoundBank(e.scale)
	totalCost := notional.Add(commission).RoundBank(e.scale)

	switch order.Side {
	case SideBuy:
		if totalCost.GreaterThan(e.cash) {
			return Result{Status: StatusRejected, Reason: ReasonInsufficientCash}, nil
		}
		pos, ok := e.positions[order.Symbol]
		if !ok {
			pos = &Position{Symbol: order.Symbol}
			e.positions[order.Symbol] = pos
		}
		numerator := pos.Quantity.Mul(pos.AveragePrice).
			Add(order.Quantity.Mul(order.Price)).
			RoundBank(e.scale)
		pos.Quantity = pos.Quantity.Add(order.Quantity)
		if pos.Quantity.Sign() > 0 {
			pos.AveragePrice = numerator.Div(pos.Quantity).RoundBank(e.scale)
		}
		e.cash = e.cash.Sub(totalCost).RoundBank(e.scale)

	case SideSell:
		pos, ok := e.positions[order.Symbol]
		if !ok || pos.Quantity.LessThan(order.Quantity) {
			return Result{Status: StatusRejected, Reason: ReasonInsufficientQuantity}, nil
		}
		pos.Quantity = pos.Quantity.Sub(order.Quantity).RoundBank(e.scale)
		e.cash = e.cash.Add(notional).Sub(commission).RoundBank(e.scale)
	}

	if pos, ok := e.positions[order.Symbol]; ok && pos.Quantity.Abs().LessThan(e.epsilon) {
		delete(e.positions, order.Symbol)
	}

	trade := Trade{
		Timestamp:  order.Timestamp,
		Symbol:     order.Symbol,
		Price:      order.Price,
		Quantity:   order.Quantity,
		Commission: commission,
		Side:       order.Side,
	}
	e.trades = append(e.trades, trade)

	return Result{Status: StatusFilled, Trade: &trade}, nil
}

// Position returns a copy of the current position for symbol. The second
// return value is false when no position is held.
func (e *Engine) Position(symbol string) (Position, bool) {
	pos, ok := e.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all held positions, sorted by symbol.
func (e *Engine) Positions() []Position {
	out := make([]Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Cash returns the current cash balance.
func (e *Engine) Cash() decimal.Decimal { return e.cash }

// InitialCapital returns the capital the engine was constructed with.
func (e *Engine) InitialCapital() decimal.Decimal { return e.initialCapital }

// CommissionRate returns the configured commission rate.
func (e *Engine) CommissionRate() decimal.Decimal { return e.commissionRate }

// Scale returns the rounding scale in fractional digits.
func (e *Engine) Scale() int32 { return e.scale }

// Trades returns a copy of the full trade log in execution order.
func (e *Engine) Trades() []Trade {
	out := make([]Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Equity returns cash plus the value of all held positions at the given
// mark prices, rounded to the engine scale. Symbols without a mark price
// are valued at their average entry cost.
func (e *Engine) Equity(marks map[string]decimal.Decimal) decimal.Decimal {
	equity := e.cash
	for symbol, pos := range e.positions {
		mark, ok := marks[symbol]
		if !ok {
			mark = pos.AveragePrice
		}
		equity = equity.Add(pos.Quantity.Mul(mark))
	}
	return equity.RoundBank(e.scale)
}
