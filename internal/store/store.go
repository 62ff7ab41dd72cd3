// Package store defines storage interfaces for historical market data and
// provides in-memory, Parquet, and SQLite implementations.
package store

import (
	"context"
	"time"

	"github.com/chick26/QizFirst/internal/domain"
)

// KlineStore persists and retrieves OHLCV kline data.
type KlineStore interface {
	// SaveKlines persists a batch of klines for a symbol.
	SaveKlines(ctx context.Context, symbol string, klines []domain.Kline) error

	// QueryKlines returns klines for the symbol within [start, end],
	// inclusive on both ends, ordered by timestamp.
	QueryKlines(ctx context.Context, symbol string, start, end time.Time) ([]domain.Kline, error)

	// ListSymbols returns all distinct symbols with stored klines.
	ListSymbols(ctx context.Context) ([]string, error)
}

// TickStore persists and retrieves individual trade (tick) data.
type TickStore interface {
	// SaveTicks persists a batch of ticks for a symbol.
	SaveTicks(ctx context.Context, symbol string, ticks []domain.Tick) error

	// QueryTicks returns ticks for the symbol within [start, end],
	// inclusive on both ends, ordered by timestamp.
	QueryTicks(ctx context.Context, symbol string, start, end time.Time) ([]domain.Tick, error)
}
