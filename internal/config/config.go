// Package config loads the platform configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the QizFirst platform.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Stream   Stream         `yaml:"stream"`
	Logging  Logging        `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
	Gather   GatherConfig   `yaml:"gather"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Stream configures the live trade stream.
type Stream struct {
	URL     string   `yaml:"url"`
	Symbols []string `yaml:"symbols"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig defines simulation accounting parameters. Capital and
// commission are kept as strings so they parse losslessly into decimals.
type BacktestConfig struct {
	InitialCapital string `yaml:"initial_capital"`
	CommissionRate string `yaml:"commission_rate"`
	Scale          int32  `yaml:"scale"`
	Interval       string `yaml:"interval"`
}

// GatherConfig holds parameters for historical data gathering.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
}

// InitialCapitalDecimal parses the configured initial capital.
func (b BacktestConfig) InitialCapitalDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(b.InitialCapital)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing initial_capital %q: %w", b.InitialCapital, err)
	}
	return d, nil
}

// CommissionRateDecimal parses the configured commission rate.
func (b BacktestConfig) CommissionRateDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(b.CommissionRate)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing commission_rate %q: %w", b.CommissionRate, err)
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config with usable defaults for local runs.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/qiz.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Backtest: BacktestConfig{
			InitialCapital: "1000000",
			CommissionRate: "0.0003",
			Scale:          8,
			Interval:       "1d",
		},
		Gather: GatherConfig{
			MaxWorkers:      4,
			RateLimitPerMin: 200,
			RateLimitBurst:  4,
		},
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("QIZ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
