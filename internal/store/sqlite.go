package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/chick26/QizFirst/internal/ledger"
)

// RunRecord is one completed backtest run as stored in the journal.
type RunRecord struct {
	ID             int64
	Strategy       string
	Symbol         string
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal
	TotalReturn    float64
	MaxDrawdown    float64
	TotalTrades    int
	WinRate        float64
	ProfitFactor   float64
	CreatedAt      time.Time
}

// SQLiteStore is a journal of backtest runs and their executed trades,
// backed by a SQLite database. Monetary columns are stored as TEXT so the
// decimal values round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy        TEXT    NOT NULL,
	symbol          TEXT    NOT NULL,
	start_time      INTEGER NOT NULL,
	end_time        INTEGER NOT NULL,
	initial_capital TEXT    NOT NULL,
	final_equity    TEXT    NOT NULL,
	total_return    REAL    NOT NULL,
	max_drawdown    REAL    NOT NULL,
	total_trades    INTEGER NOT NULL,
	win_rate        REAL    NOT NULL,
	profit_factor   REAL    NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_trades (
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	seq        INTEGER NOT NULL,
	timestamp  INTEGER NOT NULL,
	symbol     TEXT    NOT NULL,
	side       TEXT    NOT NULL,
	price      TEXT    NOT NULL,
	quantity   TEXT    NOT NULL,
	commission TEXT    NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts a run and its trade log in one transaction and returns the
// assigned run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord, trades []ledger.Trade) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (strategy, symbol, start_time, end_time, initial_capital,
			final_equity, total_return, max_drawdown, total_trades, win_rate,
			profit_factor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Strategy, run.Symbol,
		run.Start.UnixMilli(), run.End.UnixMilli(),
		run.InitialCapital.String(), run.FinalEquity.String(),
		run.TotalReturn, run.MaxDrawdown, run.TotalTrades,
		run.WinRate, run.ProfitFactor,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades (run_id, seq, timestamp, symbol, side, price, quantity, commission)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, t := range trades {
		if _, err := stmt.ExecContext(ctx, runID, i, t.Timestamp.UnixMilli(),
			t.Symbol, string(t.Side), t.Price.String(), t.Quantity.String(),
			t.Commission.String()); err != nil {
			return 0, fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// GetRun retrieves a single run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbol, start_time, end_time, initial_capital,
			final_equity, total_return, max_drawdown, total_trades, win_rate,
			profit_factor, created_at
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, start_time, end_time, initial_capital,
			final_equity, total_return, max_drawdown, total_trades, win_rate,
			profit_factor, created_at
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRunTrades returns the trade log for a run in execution order.
func (s *SQLiteStore) GetRunTrades(ctx context.Context, runID int64) ([]ledger.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, symbol, side, price, quantity, commission
		FROM run_trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []ledger.Trade
	for rows.Next() {
		var (
			ts                    int64
			symbol, side          string
			price, qty, commission string
		)
		if err := rows.Scan(&ts, &symbol, &side, &price, &qty, &commission); err != nil {
			return nil, err
		}
		t := ledger.Trade{
			Timestamp: time.UnixMilli(ts).UTC(),
			Symbol:    symbol,
			Side:      ledger.Side(side),
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parsing price %q: %w", price, err)
		}
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parsing quantity %q: %w", qty, err)
		}
		if t.Commission, err = decimal.NewFromString(commission); err != nil {
			return nil, fmt.Errorf("parsing commission %q: %w", commission, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run                  RunRecord
		startMs, endMs       int64
		createdMs            int64
		capital, finalEquity string
	)
	err := row.Scan(&run.ID, &run.Strategy, &run.Symbol, &startMs, &endMs,
		&capital, &finalEquity, &run.TotalReturn, &run.MaxDrawdown,
		&run.TotalTrades, &run.WinRate, &run.ProfitFactor, &createdMs)
	if err != nil {
		return nil, err
	}

	run.Start = time.UnixMilli(startMs).UTC()
	run.End = time.UnixMilli(endMs).UTC()
	run.CreatedAt = time.UnixMilli(createdMs).UTC()
	if run.InitialCapital, err = decimal.NewFromString(capital); err != nil {
		return nil, fmt.Errorf("parsing initial capital %q: %w", capital, err)
	}
	if run.FinalEquity, err = decimal.NewFromString(finalEquity); err != nil {
		return nil, fmt.Errorf("parsing final equity %q: %w", finalEquity, err)
	}
	return &run, nil
}
