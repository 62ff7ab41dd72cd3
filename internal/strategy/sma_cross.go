package strategy

import (
	"context"
	"fmt"

	"github.com/chick26/QizFirst/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It emits a
// buy signal when the short-period SMA crosses above the long-period SMA,
// and a sell signal when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int

	closes   []float64
	prevDiff float64
	hasPrev  bool
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods. short must be smaller than long.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init validates the periods and resets all rolling state.
func (s *SMACross) Init(_ context.Context) error {
	if s.shortPeriod <= 0 || s.longPeriod <= s.shortPeriod {
		return fmt.Errorf("sma-cross: invalid periods short=%d long=%d", s.shortPeriod, s.longPeriod)
	}
	s.closes = s.closes[:0]
	s.prevDiff = 0
	s.hasPrev = false
	return nil
}

// OnKline appends the close price and emits a signal when the short SMA
// crosses the long SMA. No signal is produced until longPeriod closes have
// been seen, or on the first complete window (no previous diff to compare).
func (s *SMACross) OnKline(_ context.Context, kline domain.Kline) ([]domain.Signal, error) {
	s.closes = append(s.closes, kline.Close)
	if len(s.closes) > s.longPeriod {
		s.closes = s.closes[len(s.closes)-s.longPeriod:]
	}
	if len(s.closes) < s.longPeriod {
		return nil, nil
	}

	diff := sma(s.closes, s.shortPeriod) - sma(s.closes, s.longPeriod)
	defer func() {
		s.prevDiff = diff
		s.hasPrev = true
	}()

	if !s.hasPrev {
		return nil, nil
	}

	var action domain.SignalAction
	switch {
	case s.prevDiff <= 0 && diff > 0:
		action = domain.ActionBuy
	case s.prevDiff >= 0 && diff < 0:
		action = domain.ActionSell
	default:
		return nil, nil
	}

	return []domain.Signal{{
		Strategy:  s.Name(),
		Symbol:    kline.Symbol,
		Timestamp: kline.Timestamp,
		Action:    action,
		Price:     kline.Close,
	}}, nil
}

// sma averages the last period entries of closes. closes must hold at least
// period entries.
func sma(closes []float64, period int) float64 {
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period)
}
