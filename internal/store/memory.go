package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chick26/QizFirst/internal/domain"
)

// Compile-time interface checks.
var _ KlineStore = (*MemoryStore)(nil)
var _ TickStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory KlineStore and TickStore guarded by a single
// RWMutex. Concurrent readers are allowed; writers are exclusive. It backs
// tests and ad-hoc backtests that don't need durable data.
type MemoryStore struct {
	mu     sync.RWMutex
	klines map[string][]domain.Kline
	ticks  map[string][]domain.Tick
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		klines: make(map[string][]domain.Kline),
		ticks:  make(map[string][]domain.Tick),
	}
}

// SaveKlines appends klines for the symbol, keeping the series sorted by
// timestamp.
func (s *MemoryStore) SaveKlines(_ context.Context, symbol string, klines []domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	series := append(s.klines[symbol], klines...)
	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	s.klines[symbol] = series
	return nil
}

// QueryKlines returns klines within [start, end], inclusive.
func (s *MemoryStore) QueryKlines(_ context.Context, symbol string, start, end time.Time) ([]domain.Kline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Kline
	for _, k := range s.klines[symbol] {
		if inRange(k.Timestamp, start, end) {
			out = append(out, k)
		}
	}
	return out, nil
}

// ListSymbols returns all symbols with stored klines, sorted.
func (s *MemoryStore) ListSymbols(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.klines))
	for symbol := range s.klines {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// SaveTicks appends ticks for the symbol, keeping the series sorted by
// timestamp.
func (s *MemoryStore) SaveTicks(_ context.Context, symbol string, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	series := append(s.ticks[symbol], ticks...)
	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	s.ticks[symbol] = series
	return nil
}

// QueryTicks returns ticks within [start, end], inclusive.
func (s *MemoryStore) QueryTicks(_ context.Context, symbol string, start, end time.Time) ([]domain.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Tick
	for _, t := range s.ticks[symbol] {
		if inRange(t.Timestamp, start, end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}
