// Package domain holds the market-data types shared across the platform:
// OHLCV klines, trade ticks, and strategy signals. Accounting types live in
// the ledger package.
package domain

import "time"

// Kline is one OHLCV candle for a symbol.
type Kline struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Tick is a single market trade observed on an exchange feed.
type Tick struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	Size      float64
	Side      string // "buy" or "sell" (taker side)
	ID        string
}

// SignalAction is the advice a strategy attaches to a signal.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
	ActionHold SignalAction = "hold"
)

// Signal is a strategy's trading recommendation for one symbol at one point
// in time. Sizing is left to the consumer.
type Signal struct {
	Strategy  string
	Symbol    string
	Timestamp time.Time
	Action    SignalAction
	Price     float64
}
