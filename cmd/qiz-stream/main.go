package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chick26/QizFirst/internal/config"
	"github.com/chick26/QizFirst/internal/marketdata"
	"github.com/chick26/QizFirst/internal/store"
	"github.com/chick26/QizFirst/internal/util"
)

func main() {
	var (
		cfgPath = flag.String("config", defaultConfigPath(), "path to YAML config")
		symbols = flag.String("symbols", "", "comma-separated symbols (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	targets := cfg.Stream.Symbols
	if *symbols != "" {
		targets = strings.Split(*symbols, ",")
	}
	if cfg.Stream.URL == "" || len(targets) == 0 {
		log.Fatal("stream.url and at least one symbol are required")
	}

	ticks := store.NewParquetStore(cfg.Storage.DataDir)
	worker := marketdata.NewStreamWorker(cfg.Stream.URL, targets, ticks)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("streaming ticks", "url", cfg.Stream.URL, "symbols", targets)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("stream worker: %v", err)
	}
	slog.Info("stream stopped")
}

func defaultConfigPath() string {
	if p := os.Getenv("QIZ_CONFIG"); p != "" {
		return p
	}
	return "config/qiz.yaml"
}
