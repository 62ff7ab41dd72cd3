package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chick26/QizFirst/internal/config"
	"github.com/chick26/QizFirst/internal/marketdata"
	"github.com/chick26/QizFirst/internal/store"
	"github.com/chick26/QizFirst/internal/util"
)

func main() {
	var (
		cfgPath  = flag.String("config", defaultConfigPath(), "path to YAML config")
		symbols  = flag.String("symbols", "", "comma-separated symbols (overrides config)")
		startStr = flag.String("start", "", "start date (YYYY-MM-DD, overrides config)")
		interval = flag.String("interval", "1d", "kline interval (1m, 1h, 1d, ...)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	targets := cfg.Gather.Symbols
	if *symbols != "" {
		targets = strings.Split(*symbols, ",")
	}
	if len(targets) == 0 {
		log.Fatal("no symbols to gather (set -symbols or gather.symbols in config)")
	}

	startDate := cfg.Gather.StartDate
	if *startStr != "" {
		startDate = *startStr
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		log.Fatalf("parsing start date %q: %v", startDate, err)
	}
	end := time.Now().UTC()

	provider := marketdata.NewAlpacaProvider(
		cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
		cfg.Gather.RateLimitPerMin, cfg.Gather.RateLimitBurst,
	)
	klines := store.NewParquetStore(cfg.Storage.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default().With("gatherer", "klines")
	logger.Info("starting gather",
		"symbols", len(targets), "interval", *interval,
		"start", start.Format("2006-01-02"))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Gather.MaxWorkers, 1))

	for _, symbol := range targets {
		symbol := strings.TrimSpace(symbol)
		g.Go(func() error {
			fetched, err := provider.FetchKlinesRange(gctx, symbol, *interval, start, end)
			if err != nil {
				logger.Error("fetching klines", "symbol", symbol, "error", err)
				return err
			}
			if err := klines.SaveKlines(gctx, symbol, fetched); err != nil {
				logger.Error("saving klines", "symbol", symbol, "error", err)
				return err
			}
			logger.Info("gathered", "symbol", symbol, "klines", len(fetched))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("gather failed: %v", err)
	}
	logger.Info("gather complete")
}

func defaultConfigPath() string {
	if p := os.Getenv("QIZ_CONFIG"); p != "" {
		return p
	}
	return "config/qiz.yaml"
}
