package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/chick26/QizFirst/internal/backtest"
	"github.com/chick26/QizFirst/internal/config"
	"github.com/chick26/QizFirst/internal/store"
	"github.com/chick26/QizFirst/internal/strategy"
	"github.com/chick26/QizFirst/internal/util"
)

func main() {
	var (
		cfgPath   = flag.String("config", defaultConfigPath(), "path to YAML config")
		stratName = flag.String("strategy", "sma-cross", "strategy to run")
		symbol    = flag.String("symbol", "BTC/USD", "symbol to backtest")
		startStr  = flag.String("start", "", "start date (YYYY-MM-DD)")
		endStr    = flag.String("end", "", "end date (YYYY-MM-DD), defaults to today")
		short     = flag.Int("short", 5, "short SMA period")
		long      = flag.Int("long", 20, "long SMA period")
		noJournal = flag.Bool("no-journal", false, "skip writing the run to the SQLite journal")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	if *startStr == "" {
		log.Fatal("-start is required")
	}
	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("parsing -start: %v", err)
	}
	end := time.Now().UTC()
	if *endStr != "" {
		if end, err = time.Parse("2006-01-02", *endStr); err != nil {
			log.Fatalf("parsing -end: %v", err)
		}
		// Include the whole end day.
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	capital, err := cfg.Backtest.InitialCapitalDecimal()
	if err != nil {
		log.Fatalf("%v", err)
	}
	rate, err := cfg.Backtest.CommissionRateDecimal()
	if err != nil {
		log.Fatalf("%v", err)
	}

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewSMACross(*short, *long))

	klines := store.NewParquetStore(cfg.Storage.DataDir)
	bt := backtest.NewBacktester(klines, registry)

	ctx := context.Background()
	res, err := bt.Run(ctx, backtest.Params{
		Strategy:       *stratName,
		Symbol:         *symbol,
		Start:          start,
		End:            end,
		InitialCapital: capital,
		CommissionRate: rate,
		Scale:          cfg.Backtest.Scale,
	})
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	printReport(res)

	if !*noJournal {
		if err := journalRun(ctx, cfg.Storage.SQLitePath, res); err != nil {
			log.Fatalf("journalling run: %v", err)
		}
	}
}

func printReport(res *backtest.Result) {
	fmt.Printf("Backtest %s on %s (%s .. %s)\n",
		res.Strategy, res.Symbol,
		res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"))
	fmt.Printf("  initial capital: %s\n", res.InitialCapital)
	fmt.Printf("  final equity:    %s\n", res.FinalEquity)
	fmt.Printf("  total return:    %.4f%%\n", res.TotalReturn*100)
	fmt.Printf("  max drawdown:    %.4f%%\n", res.MaxDrawdown*100)
	fmt.Printf("  sharpe ratio:    %.4f\n", res.SharpeRatio)
	fmt.Printf("  trades:          %d\n", res.TotalTrades)
	fmt.Printf("  win rate:        %.2f%%\n", res.WinRate*100)
	fmt.Printf("  profit factor:   %.4f\n", res.ProfitFactor)
}

func journalRun(ctx context.Context, dbPath string, res *backtest.Result) error {
	journal, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	id, err := journal.SaveRun(ctx, &store.RunRecord{
		Strategy:       res.Strategy,
		Symbol:         res.Symbol,
		Start:          res.Start,
		End:            res.End,
		InitialCapital: res.InitialCapital,
		FinalEquity:    res.FinalEquity,
		TotalReturn:    res.TotalReturn,
		MaxDrawdown:    res.MaxDrawdown,
		TotalTrades:    res.TotalTrades,
		WinRate:        res.WinRate,
		ProfitFactor:   res.ProfitFactor,
	}, res.Trades)
	if err != nil {
		return err
	}
	fmt.Printf("  journalled as run #%d\n", id)
	return nil
}

func defaultConfigPath() string {
	if p := os.Getenv("QIZ_CONFIG"); p != "" {
		return p
	}
	return "config/qiz.yaml"
}
