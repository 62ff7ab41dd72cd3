package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/chick26/QizFirst/internal/domain"
	"github.com/chick26/QizFirst/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches crypto market data from the Alpaca data API.
// Requests pass through a token-bucket rate limiter and are retried with
// exponential backoff on transient failures.
type AlpacaProvider struct {
	client  *marketdata.Client
	limiter *util.RateLimiter
	log     *slog.Logger

	maxAttempts int
	retryDelay  time.Duration
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
// dataURL overrides the default API endpoint when non-empty. burst is how
// many requests may fire back to back before the per-minute rate applies.
func NewAlpacaProvider(apiKey, apiSecret, dataURL string, rateLimitPerMin, burst int) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &AlpacaProvider{
		client:      marketdata.NewClient(opts),
		limiter:     util.NewBurstRateLimiter(rateLimitPerMin, burst),
		log:         slog.Default().With("provider", "alpaca"),
		maxAttempts: 3,
		retryDelay:  time.Second,
	}
}

// fetch runs fn with retry on transient failures. Every attempt acquires its
// own rate-limit token, so retries stay within the API budget too. A context
// error while throttled ends the sequence.
func (p *AlpacaProvider) fetch(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, p.maxAttempts, p.retryDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		return fn()
	})
}

// GetKlines returns up to limit most recent klines for the symbol.
func (p *AlpacaProvider) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	dur, err := util.ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	end := time.Now().UTC()
	start := end.Add(-dur * time.Duration(limit))

	return p.FetchKlinesRange(ctx, symbol, interval, start, end)
}

// FetchKlinesRange returns klines for the symbol within [start, end] at the
// given interval, oldest first.
func (p *AlpacaProvider) FetchKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Kline, error) {
	timeframe, err := parseTimeFrame(interval)
	if err != nil {
		return nil, err
	}
	var bars []marketdata.CryptoBar
	err = p.fetch(ctx, func() error {
		var ferr error
		bars, ferr = p.client.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: timeframe,
			Start:     start,
			End:       end,
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetCryptoBars %s: %w", symbol, err)
	}

	klines := make([]domain.Kline, 0, len(bars))
	for _, b := range bars {
		klines = append(klines, domain.Kline{
			Symbol:    symbol,
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	p.log.Debug("fetched klines", "symbol", symbol, "interval", interval, "count", len(klines))
	return klines, nil
}

// GetTicks returns up to limit most recent trade ticks for the symbol.
func (p *AlpacaProvider) GetTicks(ctx context.Context, symbol string, limit int) ([]domain.Tick, error) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	var trades []marketdata.CryptoTrade
	err := p.fetch(ctx, func() error {
		var ferr error
		trades, ferr = p.client.GetCryptoTrades(symbol, marketdata.GetCryptoTradesRequest{
			Start:      start,
			End:        end,
			TotalLimit: limit,
		})
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("GetCryptoTrades %s: %w", symbol, err)
	}

	ticks := make([]domain.Tick, 0, len(trades))
	for _, tr := range trades {
		ticks = append(ticks, domain.Tick{
			Symbol:    symbol,
			Timestamp: tr.Timestamp.UTC(),
			Price:     tr.Price,
			Size:      tr.Size,
			Side:      takerSide(tr.TakerSide),
			ID:        strconv.FormatInt(tr.ID, 10),
		})
	}
	p.log.Debug("fetched ticks", "symbol", symbol, "count", len(ticks))
	return ticks, nil
}

// parseTimeFrame maps an interval string onto an Alpaca TimeFrame.
func parseTimeFrame(interval string) (marketdata.TimeFrame, error) {
	if len(interval) < 2 {
		return marketdata.TimeFrame{}, fmt.Errorf("invalid interval format: %q", interval)
	}
	amount, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || amount <= 0 {
		return marketdata.TimeFrame{}, fmt.Errorf("invalid interval amount in %q", interval)
	}

	switch interval[len(interval)-1] {
	case 'm':
		return marketdata.NewTimeFrame(amount, marketdata.Min), nil
	case 'h':
		return marketdata.NewTimeFrame(amount, marketdata.Hour), nil
	case 'd':
		return marketdata.NewTimeFrame(amount, marketdata.Day), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("invalid interval unit in %q (want m, h, or d)", interval)
	}
}

// takerSide normalizes Alpaca's taker-side codes to "buy"/"sell".
func takerSide(code string) string {
	switch code {
	case "B", "b":
		return "buy"
	case "S", "s":
		return "sell"
	default:
		return code
	}
}
