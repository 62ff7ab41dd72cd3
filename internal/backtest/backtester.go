// Package backtest replays historical kline data through a strategy,
// executes the resulting signals against the ledger engine, and computes
// performance metrics.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chick26/QizFirst/internal/domain"
	"github.com/chick26/QizFirst/internal/ledger"
	"github.com/chick26/QizFirst/internal/store"
	"github.com/chick26/QizFirst/internal/strategy"
)

// EquityPoint is one sample of the account's mark-to-market value.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
}

// Result holds the outcome of a backtest run.
type Result struct {
	Strategy       string
	Symbol         string
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal
	TotalReturn    float64 // (final - initial) / initial
	MaxDrawdown    float64 // worst peak-to-trough equity decline, as a fraction
	SharpeRatio    float64 // mean / stddev of per-bar returns
	TotalTrades    int
	WinRate        float64 // fraction of sells closed at a realized profit
	ProfitFactor   float64 // gross realized profit / gross realized loss
	EquityCurve    []EquityPoint
	Trades         []ledger.Trade
}

// Params configures one backtest run.
type Params struct {
	Strategy       string
	Symbol         string
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	CommissionRate decimal.Decimal
	Scale          int32 // 0 means the engine default
}

// Backtester replays historical kline data through a strategy and executes
// signals against a fresh ledger engine per run.
type Backtester struct {
	store    store.KlineStore
	registry *strategy.Registry
	log      *slog.Logger
}

// NewBacktester creates a Backtester that reads klines from the given store
// and looks up strategies in the provided registry.
func NewBacktester(klineStore store.KlineStore, registry *strategy.Registry) *Backtester {
	return &Backtester{
		store:    klineStore,
		registry: registry,
		log:      slog.Default().With("component", "backtest"),
	}
}

// Run executes a backtest with the given parameters. Signals are sized
// all-in: a buy spends all available cash at the signal price net of
// commission, a sell liquidates the entire position. Rejected orders are
// normal outcomes and are skipped.
func (bt *Backtester) Run(ctx context.Context, params Params) (*Result, error) {
	strat, ok := bt.registry.Get(params.Strategy)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", params.Strategy)
	}
	if err := strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing strategy %q: %w", params.Strategy, err)
	}

	klines, err := bt.store.QueryKlines(ctx, params.Symbol, params.Start, params.End)
	if err != nil {
		return nil, fmt.Errorf("querying klines for %s: %w", params.Symbol, err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("no kline data for %s in %s..%s",
			params.Symbol, params.Start.Format("2006-01-02"), params.End.Format("2006-01-02"))
	}

	opts := []ledger.Option{}
	if params.Scale > 0 {
		opts = append(opts, ledger.WithScale(params.Scale))
	}
	engine := ledger.NewEngine(params.InitialCapital, params.CommissionRate, opts...)

	var (
		curve       = make([]EquityPoint, 0, len(klines))
		grossProfit = decimal.Zero
		grossLoss   = decimal.Zero
		wins, sells int
	)

	for _, k := range klines {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		signals, err := strat.OnKline(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("strategy %q on kline %s: %w", params.Strategy, k.Timestamp, err)
		}

		for _, sig := range signals {
			order, ok := bt.sizeOrder(engine, sig)
			if !ok {
				continue
			}

			// Capture the entry cost before a sell mutates the position.
			var avgEntry decimal.Decimal
			if order.Side == ledger.SideSell {
				if pos, ok := engine.Position(order.Symbol); ok {
					avgEntry = pos.AveragePrice
				}
			}

			res, err := engine.ExecuteOrder(order)
			if err != nil {
				return nil, fmt.Errorf("executing order at %s: %w", order.Timestamp, err)
			}
			if !res.Filled() {
				bt.log.Debug("order rejected",
					"symbol", order.Symbol, "side", order.Side,
					"quantity", order.Quantity, "reason", res.Reason)
				continue
			}

			if order.Side == ledger.SideSell {
				sells++
				pnl := order.Price.Sub(avgEntry).Mul(order.Quantity).Sub(res.Trade.Commission)
				if pnl.Sign() > 0 {
					wins++
					grossProfit = grossProfit.Add(pnl)
				} else {
					grossLoss = grossLoss.Add(pnl.Abs())
				}
			}
		}

		marks := map[string]decimal.Decimal{
			k.Symbol: decimal.NewFromFloat(k.Close),
		}
		curve = append(curve, EquityPoint{Timestamp: k.Timestamp, Equity: engine.Equity(marks)})
	}

	result := bt.summarize(params, engine, curve, grossProfit, grossLoss, wins, sells)
	result.Start = klines[0].Timestamp
	result.End = klines[len(klines)-1].Timestamp

	bt.log.Info("backtest complete",
		"strategy", params.Strategy,
		"symbol", params.Symbol,
		"klines", len(klines),
		"trades", result.TotalTrades,
		"totalReturn", result.TotalReturn,
		"maxDrawdown", result.MaxDrawdown,
	)
	return result, nil
}

// sizeOrder converts a signal into an executable order. Returns false when
// the signal cannot be acted on (nothing to sell, no cash to buy, hold).
func (bt *Backtester) sizeOrder(engine *ledger.Engine, sig domain.Signal) (ledger.Order, bool) {
	price := decimal.NewFromFloat(sig.Price).RoundBank(engine.Scale())
	if price.Sign() <= 0 {
		return ledger.Order{}, false
	}

	order := ledger.Order{
		Symbol:    sig.Symbol,
		Timestamp: sig.Timestamp,
		Price:     price,
	}

	switch sig.Action {
	case domain.ActionBuy:
		// Max quantity affordable including commission, truncated to scale.
		unit := price.Mul(decimal.NewFromInt(1).Add(engine.CommissionRate()))
		qty := engine.Cash().Div(unit).RoundDown(engine.Scale())
		if qty.Sign() <= 0 {
			return ledger.Order{}, false
		}
		order.Side = ledger.SideBuy
		order.Quantity = qty

	case domain.ActionSell:
		pos, ok := engine.Position(sig.Symbol)
		if !ok {
			return ledger.Order{}, false
		}
		order.Side = ledger.SideSell
		order.Quantity = pos.Quantity

	default:
		return ledger.Order{}, false
	}

	return order, true
}

func (bt *Backtester) summarize(
	params Params,
	engine *ledger.Engine,
	curve []EquityPoint,
	grossProfit, grossLoss decimal.Decimal,
	wins, sells int,
) *Result {
	trades := engine.Trades()
	finalEquity := curve[len(curve)-1].Equity

	result := &Result{
		Strategy:       params.Strategy,
		Symbol:         params.Symbol,
		InitialCapital: params.InitialCapital,
		FinalEquity:    finalEquity,
		TotalTrades:    len(trades),
		EquityCurve:    curve,
		Trades:         trades,
	}

	if params.InitialCapital.Sign() > 0 {
		result.TotalReturn = finalEquity.Sub(params.InitialCapital).
			Div(params.InitialCapital).InexactFloat64()
	}
	result.MaxDrawdown = maxDrawdown(curve)
	result.SharpeRatio = sharpe(curve)

	if sells > 0 {
		result.WinRate = float64(wins) / float64(sells)
	}
	switch {
	case grossLoss.Sign() > 0:
		result.ProfitFactor = grossProfit.Div(grossLoss).InexactFloat64()
	case grossProfit.Sign() > 0:
		result.ProfitFactor = math.Inf(1)
	}

	return result
}

// maxDrawdown returns the worst peak-to-trough equity decline as a fraction
// of the peak.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	peak := curve[0].Equity
	worst := 0.0
	for _, p := range curve[1:] {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
			continue
		}
		if peak.Sign() > 0 {
			dd := peak.Sub(p.Equity).Div(peak).InexactFloat64()
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe computes the ratio of mean to standard deviation of per-bar simple
// returns. Returns 0 when there are fewer than two samples or no variance.
func sharpe(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity.InexactFloat64()
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity.InexactFloat64()/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}

	return mean / math.Sqrt(variance)
}
