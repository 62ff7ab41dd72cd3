// Package marketdata provides access to historical and live market data:
// a Provider interface for fetching klines and ticks, an Alpaca-backed
// implementation, and a websocket worker for live trade streams.
package marketdata

import (
	"context"

	"github.com/chick26/QizFirst/internal/domain"
)

// Provider fetches market data for a symbol. Implementations own their
// transport, authentication, and rate limiting.
type Provider interface {
	// GetKlines returns up to limit most recent klines for the symbol at
	// the given interval (e.g. "1m", "1h", "1d"), oldest first.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)

	// GetTicks returns up to limit most recent trade ticks for the symbol,
	// oldest first.
	GetTicks(ctx context.Context, symbol string, limit int) ([]domain.Tick, error)
}
