package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chick26/QizFirst/internal/domain"
)

func TestParquetStorePaths(t *testing.T) {
	ps := NewParquetStore("/data")

	kp := ps.klinePath("BTC/USD", 2024)
	wantKlinePath := filepath.Join("/data", "klines", "BTC-USD", "2024.parquet")
	if kp != wantKlinePath {
		t.Errorf("klinePath mismatch:\n  got  %s\n  want %s", kp, wantKlinePath)
	}

	tp := ps.tickPath("eth/usd", "2024-06-15")
	wantTickPath := filepath.Join("/data", "ticks", "ETH-USD", "2024-06-15.parquet")
	if tp != wantTickPath {
		t.Errorf("tickPath mismatch:\n  got  %s\n  want %s", tp, wantTickPath)
	}
}

func TestParquetStoreWriteReadKlines(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	klines := []domain.Kline{
		{
			Symbol:    "BTC/USD",
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:      42000, High: 42500, Low: 41800, Close: 42300, Volume: 1200,
		},
		{
			Symbol:    "BTC/USD",
			Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:      42300, High: 43000, Low: 42100, Close: 42900, Volume: 1500,
		},
	}
	if err := ps.SaveKlines(ctx, "BTC/USD", klines); err != nil {
		t.Fatalf("SaveKlines: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.QueryKlines(ctx, "BTC/USD", start, end)
	if err != nil {
		t.Fatalf("QueryKlines: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("QueryKlines returned %d klines, want 2", len(got))
	}
	if got[0].Close != 42300 {
		t.Errorf("first kline Close = %v, want 42300", got[0].Close)
	}
	if got[1].Close != 42900 {
		t.Errorf("second kline Close = %v, want 42900", got[1].Close)
	}

	symbols, err := ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "BTC/USD" {
		t.Errorf("ListSymbols = %v, want [BTC/USD]", symbols)
	}
}

func TestParquetStoreMergeKlines(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	first := []domain.Kline{{Symbol: "ETH/USD", Timestamp: ts, Close: 3000}}
	if err := ps.SaveKlines(ctx, "ETH/USD", first); err != nil {
		t.Fatalf("SaveKlines (first): %v", err)
	}

	// Re-writing the same timestamp must replace, not duplicate.
	second := []domain.Kline{
		{Symbol: "ETH/USD", Timestamp: ts, Close: 3050},
		{Symbol: "ETH/USD", Timestamp: ts.AddDate(0, 0, 1), Close: 3100},
	}
	if err := ps.SaveKlines(ctx, "ETH/USD", second); err != nil {
		t.Fatalf("SaveKlines (second): %v", err)
	}

	got, err := ps.QueryKlines(ctx, "ETH/USD", ts, ts.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("QueryKlines: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("QueryKlines returned %d klines after merge, want 2", len(got))
	}
	if got[0].Close != 3050 {
		t.Errorf("merged kline Close = %v, want 3050 (new record wins)", got[0].Close)
	}
}

func TestParquetStoreWriteReadTicks(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	ticks := []domain.Tick{
		{Symbol: "BTC/USD", Timestamp: base, Price: 65000, Size: 0.1, Side: "buy", ID: "a"},
		{Symbol: "BTC/USD", Timestamp: base.Add(time.Minute), Price: 65010, Size: 0.2, Side: "sell", ID: "b"},
	}
	if err := ps.SaveTicks(ctx, "BTC/USD", ticks); err != nil {
		t.Fatalf("SaveTicks: %v", err)
	}

	got, err := ps.QueryTicks(ctx, "BTC/USD", base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("QueryTicks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("QueryTicks returned %d ticks, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("ticks out of order: %v", got)
	}

	// Duplicate IDs are merged away on rewrite.
	if err := ps.SaveTicks(ctx, "BTC/USD", ticks[:1]); err != nil {
		t.Fatalf("SaveTicks (rewrite): %v", err)
	}
	got, _ = ps.QueryTicks(ctx, "BTC/USD", base.Add(-time.Hour), base.Add(time.Hour))
	if len(got) != 2 {
		t.Errorf("rewrite duplicated ticks: got %d, want 2", len(got))
	}
}
