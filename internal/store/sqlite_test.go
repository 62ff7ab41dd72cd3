package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chick26/QizFirst/internal/ledger"
)

func newTestJournal(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "qiz.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreSaveAndGetRun(t *testing.T) {
	s := newTestJournal(t)
	ctx := context.Background()

	run := &RunRecord{
		Strategy:       "sma-cross",
		Symbol:         "BTC/USD",
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: decimal.RequireFromString("10000"),
		FinalEquity:    decimal.RequireFromString("10097.9"),
		TotalReturn:    0.00979,
		MaxDrawdown:    0.01,
		TotalTrades:    2,
		WinRate:        1.0,
		ProfitFactor:   3.5,
	}
	trades := []ledger.Trade{
		{
			Timestamp:  time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			Symbol:     "BTC/USD",
			Price:      decimal.RequireFromString("100"),
			Quantity:   decimal.RequireFromString("10"),
			Commission: decimal.RequireFromString("1"),
			Side:       ledger.SideBuy,
		},
		{
			Timestamp:  time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC),
			Symbol:     "BTC/USD",
			Price:      decimal.RequireFromString("110"),
			Quantity:   decimal.RequireFromString("10"),
			Commission: decimal.RequireFromString("1.1"),
			Side:       ledger.SideSell,
		},
	}

	id, err := s.SaveRun(ctx, run, trades)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if id == 0 {
		t.Fatal("SaveRun returned zero ID")
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Strategy != "sma-cross" || got.Symbol != "BTC/USD" {
		t.Errorf("run identity = %s/%s", got.Strategy, got.Symbol)
	}
	if !got.FinalEquity.Equal(decimal.RequireFromString("10097.9")) {
		t.Errorf("final equity = %s, want 10097.9", got.FinalEquity)
	}
	if got.TotalTrades != 2 {
		t.Errorf("total trades = %d, want 2", got.TotalTrades)
	}
	if !got.Start.Equal(run.Start) || !got.End.Equal(run.End) {
		t.Errorf("time range = %v..%v", got.Start, got.End)
	}
}

func TestSQLiteStoreGetRunTrades(t *testing.T) {
	s := newTestJournal(t)
	ctx := context.Background()

	run := &RunRecord{
		Strategy:       "sma-cross",
		Symbol:         "ETH/USD",
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: decimal.RequireFromString("5000"),
		FinalEquity:    decimal.RequireFromString("5100"),
		TotalTrades:    1,
	}
	trades := []ledger.Trade{
		{
			Timestamp:  time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			Symbol:     "ETH/USD",
			Price:      decimal.RequireFromString("0.12345678"),
			Quantity:   decimal.RequireFromString("3.00000001"),
			Commission: decimal.RequireFromString("0.00012346"),
			Side:       ledger.SideBuy,
		},
	}

	id, err := s.SaveRun(ctx, run, trades)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRunTrades(ctx, id)
	if err != nil {
		t.Fatalf("GetRunTrades: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetRunTrades returned %d trades, want 1", len(got))
	}
	// Decimal columns must round-trip exactly.
	if !got[0].Price.Equal(trades[0].Price) {
		t.Errorf("price = %s, want %s", got[0].Price, trades[0].Price)
	}
	if !got[0].Quantity.Equal(trades[0].Quantity) {
		t.Errorf("quantity = %s, want %s", got[0].Quantity, trades[0].Quantity)
	}
	if !got[0].Commission.Equal(trades[0].Commission) {
		t.Errorf("commission = %s, want %s", got[0].Commission, trades[0].Commission)
	}
	if got[0].Side != ledger.SideBuy {
		t.Errorf("side = %q, want buy", got[0].Side)
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	s := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := &RunRecord{
			Strategy:       "sma-cross",
			Symbol:         "BTC/USD",
			Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:            time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			InitialCapital: decimal.RequireFromString("1000"),
			FinalEquity:    decimal.NewFromInt(int64(1000 + i)),
		}
		if _, err := s.SaveRun(ctx, run, nil); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns returned %d runs, want 2", len(runs))
	}
	// Newest first.
	if !runs[0].FinalEquity.Equal(decimal.NewFromInt(1002)) {
		t.Errorf("first listed run equity = %s, want 1002", runs[0].FinalEquity)
	}
}
