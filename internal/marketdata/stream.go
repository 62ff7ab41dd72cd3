package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chick26/QizFirst/internal/domain"
	"github.com/chick26/QizFirst/internal/store"
)

// StreamWorker maintains a websocket connection to a combined trade stream
// and persists decoded ticks. It reconnects with exponential backoff on
// transient errors and flushes buffered ticks in batches.
type StreamWorker struct {
	baseURL string
	symbols []string
	store   store.TickStore
	log     *slog.Logger

	ReadTimeout   time.Duration
	FlushInterval time.Duration
	BatchSize     int
}

// NewStreamWorker creates a StreamWorker that subscribes to trade events for
// the given symbols and writes them to the tick store.
func NewStreamWorker(baseURL string, symbols []string, tickStore store.TickStore) *StreamWorker {
	return &StreamWorker{
		baseURL:       baseURL,
		symbols:       symbols,
		store:         tickStore,
		log:           slog.Default().With("component", "stream"),
		ReadTimeout:   60 * time.Second,
		FlushInterval: 5 * time.Second,
		BatchSize:     200,
	}
}

// streamURL builds the combined-stream URL, e.g.
// wss://host/stream?streams=btcusdt@trade/ethusdt@trade.
func (w *StreamWorker) streamURL() string {
	names := make([]string, 0, len(w.symbols))
	for _, s := range w.symbols {
		names = append(names, streamName(s))
	}
	return w.baseURL + "/stream?streams=" + strings.Join(names, "/")
}

// streamName converts "BTC/USD" into the exchange's stream key "btcusd@trade".
func streamName(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "/", "")) + "@trade"
}

// Run connects and processes the stream until ctx is cancelled. Connection
// failures are retried with exponential backoff capped at one minute.
func (w *StreamWorker) Run(ctx context.Context) error {
	retry := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := w.connectAndProcess(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := backoff(retry)
			retry++
			w.log.Warn("stream disconnected", "error", err, "retry", retry, "delay", delay)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		retry = 0
	}
}

func (w *StreamWorker) connectAndProcess(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", w.baseURL, err)
	}
	defer conn.Close()

	w.log.Info("stream connected", "symbols", w.symbols)

	msgs := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			if err := conn.SetReadDeadline(time.Now().Add(w.ReadTimeout)); err != nil {
				readErr <- err
				return
			}
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	buffer := make([]domain.Tick, 0, w.BatchSize)
	ticker := time.NewTicker(w.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			w.flush(context.WithoutCancel(ctx), buffer)
			return ctx.Err()
		case err := <-readErr:
			// Flush what we have before surfacing the error.
			w.flush(ctx, buffer)
			return err
		case msg := <-msgs:
			tick, err := decodeTradeEvent(msg)
			if err != nil {
				w.log.Debug("skipping message", "error", err)
				continue
			}
			buffer = append(buffer, tick)
			if len(buffer) >= w.BatchSize {
				w.flush(ctx, buffer)
				buffer = buffer[:0]
			}
		case <-ticker.C:
			// Bounds how long a quiet stream can hold ticks unpersisted.
			w.flush(ctx, buffer)
			buffer = buffer[:0]
		}
	}
}

func (w *StreamWorker) flush(ctx context.Context, ticks []domain.Tick) {
	if len(ticks) == 0 {
		return
	}
	bySymbol := make(map[string][]domain.Tick)
	for _, t := range ticks {
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}
	for symbol, group := range bySymbol {
		if err := w.store.SaveTicks(ctx, symbol, group); err != nil {
			w.log.Error("saving ticks", "symbol", symbol, "count", len(group), "error", err)
		}
	}
}

// tradeEvent is the wire format of one trade on the combined stream.
type tradeEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		TradeID   int64  `json:"t"`
		Price     string `json:"p"`
		Quantity  string `json:"q"`
		TradeTime int64  `json:"T"` // Unix ms
		IsMaker   bool   `json:"m"` // buyer is maker, so the taker sold
	} `json:"data"`
}

// decodeTradeEvent parses a combined-stream message into a Tick.
func decodeTradeEvent(msg []byte) (domain.Tick, error) {
	var ev tradeEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return domain.Tick{}, fmt.Errorf("unmarshalling trade event: %w", err)
	}
	if ev.Data.EventType != "trade" {
		return domain.Tick{}, fmt.Errorf("unexpected event type %q", ev.Data.EventType)
	}

	price, err := strconv.ParseFloat(ev.Data.Price, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parsing price %q: %w", ev.Data.Price, err)
	}
	size, err := strconv.ParseFloat(ev.Data.Quantity, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parsing quantity %q: %w", ev.Data.Quantity, err)
	}

	side := "buy"
	if ev.Data.IsMaker {
		side = "sell"
	}

	return domain.Tick{
		Symbol:    ev.Data.Symbol,
		Timestamp: time.UnixMilli(ev.Data.TradeTime).UTC(),
		Price:     price,
		Size:      size,
		Side:      side,
		ID:        strconv.FormatInt(ev.Data.TradeID, 10),
	}, nil
}

// backoff returns an exponential delay for the given retry count, capped at
// one minute.
func backoff(retry int) time.Duration {
	delay := time.Second << uint(retry)
	if delay > time.Minute || delay <= 0 {
		return time.Minute
	}
	return delay
}
