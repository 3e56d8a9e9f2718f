// Package feed streams live ticker updates from venue websockets into the
// aggregator's quote store, complementing the REST polling path with lower
// latency quotes.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfall/crossarb/internal/domain"
)

const (
	reconnectDelay = 2 * time.Second
	pingInterval   = 15 * time.Second
	readTimeout    = 60 * time.Second
)

// TickerFeed subscribes to one venue's ticker stream and pushes every update
// into a quote sink. It reconnects on disconnect until its context ends.
type TickerFeed struct {
	venueName string
	wsURL     string
	assets    []string
	sink      domain.QuoteSink
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerFeed creates a feed for the given venue stream.
func NewTickerFeed(venueName, wsURL string, assets []string, sink domain.QuoteSink, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		venueName: venueName,
		wsURL:     wsURL,
		assets:    assets,
		sink:      sink,
		logger:    logger.With(slog.String("component", "ticker_feed"), slog.String("venue", venueName)),
		done:      make(chan struct{}),
	}
}

// Run connects, subscribes, and consumes ticker messages until ctx is
// cancelled or Close is called. Disconnects trigger a reconnect after a fixed
// delay.
func (f *TickerFeed) Run(ctx context.Context) error {
	if len(f.assets) == 0 {
		f.logger.Info("no assets to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("ticker stream disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// subscribeMsg is the stream subscription request.
type subscribeMsg struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// tickerMsg is one streamed top-of-book update.
type tickerMsg struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	TS     int64  `json:"ts"`
}

func (f *TickerFeed) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	args := make([]string, len(f.assets))
	for i, a := range f.assets {
		args[i] = "ticker:" + a
	}
	if err := conn.WriteJSON(subscribeMsg{Op: "subscribe", Args: args}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("ticker stream subscribed", slog.Int("assets", len(f.assets)))

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Close the connection when ctx ends so the blocked read returns, and keep
	// the connection alive with periodic pings.
	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				conn.Close()
				return
			case <-f.done:
				conn.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w: %v", domain.ErrWSDisconnect, err)
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var t tickerMsg
		if err := json.Unmarshal(msg, &t); err != nil {
			f.logger.Debug("skipping unparseable stream message", slog.String("error", err.Error()))
			continue
		}
		if t.Symbol == "" {
			continue // subscription ack or heartbeat
		}
		bid, err1 := strconv.ParseFloat(t.Bid, 64)
		ask, err2 := strconv.ParseFloat(t.Ask, 64)
		if err1 != nil || err2 != nil {
			f.logger.Debug("skipping malformed ticker", slog.String("symbol", t.Symbol))
			continue
		}
		observed := time.Now()
		if t.TS > 0 {
			observed = time.UnixMilli(t.TS)
		}
		f.sink.Put(domain.PriceQuote{
			Venue:      f.venueName,
			Asset:      t.Symbol,
			Bid:        bid,
			Ask:        ask,
			ObservedAt: observed,
		})
	}
}

// Close stops the feed and its connection.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
