package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/chick26/QizFirst/internal/domain"
)

// Compile-time interface checks.
var _ KlineStore = (*ParquetStore)(nil)
var _ TickStore = (*ParquetStore)(nil)

// ParquetStore implements KlineStore and TickStore using Parquet files on
// disk. Klines are partitioned by symbol and year, ticks by symbol and date.
// Writes merge with existing files, deduplicating by timestamp (klines) or
// tick ID, so re-gathering a range is idempotent.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// KlineRecord is the Parquet schema for kline data.
type KlineRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// TickRecord is the Parquet schema for trade tick data.
type TickRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Price     float64 `parquet:"price"`
	Size      float64 `parquet:"size"`
	Side      string  `parquet:"side"`
	ID        string  `parquet:"id"`
}

// ---------------------------------------------------------------------------
// KlineStore implementation
// ---------------------------------------------------------------------------

// SaveKlines writes klines to Parquet files grouped by year. Each year
// produces a separate file at <DataDir>/klines/<SYMBOL>/<YYYY>.parquet.
func (s *ParquetStore) SaveKlines(_ context.Context, symbol string, klines []domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}

	groups := make(map[int][]KlineRecord)
	for _, k := range klines {
		year := k.Timestamp.Year()
		groups[year] = append(groups[year], KlineRecord{
			Symbol:    symbol,
			Timestamp: k.Timestamp.UnixMilli(),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		})
	}

	for year, records := range groups {
		path := s.klinePath(symbol, year)

		existing, _ := readParquetFile[KlineRecord](path)
		merged := mergeKlineRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing klines for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// QueryKlines reads klines for the symbol within [start, end], inclusive.
func (s *ParquetStore) QueryKlines(_ context.Context, symbol string, start, end time.Time) ([]domain.Kline, error) {
	var klines []domain.Kline
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[KlineRecord](s.klinePath(symbol, year))
		if err != nil {
			// No file for this year, skip.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if !ts.Before(start) && !ts.After(end) {
				klines = append(klines, domain.Kline{
					Symbol:    r.Symbol,
					Timestamp: ts,
					Open:      r.Open,
					High:      r.High,
					Low:       r.Low,
					Close:     r.Close,
					Volume:    r.Volume,
				})
			}
		}
	}
	return klines, nil
}

// ListSymbols lists all symbols that have kline data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "klines")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, decodeSymbol(e.Name()))
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// TickStore implementation
// ---------------------------------------------------------------------------

// SaveTicks writes ticks to Parquet files grouped by date at
// <DataDir>/ticks/<SYMBOL>/<YYYY-MM-DD>.parquet.
func (s *ParquetStore) SaveTicks(_ context.Context, symbol string, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	groups := make(map[string][]TickRecord)
	for _, t := range ticks {
		date := t.Timestamp.UTC().Format("2006-01-02")
		groups[date] = append(groups[date], TickRecord{
			Symbol:    symbol,
			Timestamp: t.Timestamp.UnixMilli(),
			Price:     t.Price,
			Size:      t.Size,
			Side:      t.Side,
			ID:        t.ID,
		})
	}

	for date, records := range groups {
		path := s.tickPath(symbol, date)

		existing, _ := readParquetFile[TickRecord](path)
		merged := mergeTickRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing ticks for %s/%s: %w", symbol, date, err)
		}
	}
	return nil
}

// QueryTicks reads ticks for the symbol within [start, end], inclusive.
func (s *ParquetStore) QueryTicks(_ context.Context, symbol string, start, end time.Time) ([]domain.Tick, error) {
	var ticks []domain.Tick
	for d := start.UTC().Truncate(24 * time.Hour); !d.After(end); d = d.AddDate(0, 0, 1) {
		records, err := readParquetFile[TickRecord](s.tickPath(symbol, d.Format("2006-01-02")))
		if err != nil {
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if !ts.Before(start) && !ts.After(end) {
				ticks = append(ticks, domain.Tick{
					Symbol:    r.Symbol,
					Timestamp: ts,
					Price:     r.Price,
					Size:      r.Size,
					Side:      r.Side,
					ID:        r.ID,
				})
			}
		}
	}
	return ticks, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// encodeSymbol makes a symbol filesystem-safe ("BTC/USD" → "BTC-USD").
func encodeSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), "/", "-")
}

func decodeSymbol(name string) string {
	return strings.ReplaceAll(name, "-", "/")
}

// klinePath returns the filesystem path for a kline Parquet file.
// Layout: <dataDir>/klines/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) klinePath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "klines", encodeSymbol(symbol), fmt.Sprintf("%d.parquet", year))
}

// tickPath returns the filesystem path for a tick Parquet file.
// Layout: <dataDir>/ticks/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) tickPath(symbol, date string) string {
	return filepath.Join(s.DataDir, "ticks", encodeSymbol(symbol), date+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeKlineRecords deduplicates kline records by timestamp, preferring new
// records over existing ones. Results are sorted by timestamp.
func mergeKlineRecords(existing, incoming []KlineRecord) []KlineRecord {
	seen := make(map[int64]KlineRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]KlineRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// mergeTickRecords deduplicates tick records by ID (falling back to
// timestamp when IDs are empty), preferring new records over existing ones.
// Results are sorted by timestamp.
func mergeTickRecords(existing, incoming []TickRecord) []TickRecord {
	type key struct {
		id string
		ts int64
	}
	keyOf := func(r TickRecord) key {
		if r.ID != "" {
			return key{id: r.ID}
		}
		return key{ts: r.Timestamp}
	}

	seen := make(map[key]TickRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[keyOf(r)] = r
	}
	for _, r := range incoming {
		seen[keyOf(r)] = r
	}

	merged := make([]TickRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
