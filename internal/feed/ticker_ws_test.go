package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/crossarb/internal/domain"
)

type captureSink struct {
	mu     sync.Mutex
	quotes []domain.PriceQuote
}

func (s *captureSink) Put(q domain.PriceQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q)
}

func (s *captureSink) snapshot() []domain.PriceQuote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PriceQuote, len(s.quotes))
	copy(out, s.quotes)
	return out
}

func TestTickerFeedDeliversQuotes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Consume the subscription request, ack it, then stream tickers.
		var sub subscribeMsg
		require.NoError(t, conn.ReadJSON(&sub))
		assert.Equal(t, "subscribe", sub.Op)
		assert.Contains(t, sub.Args, "ticker:BTC")

		conn.WriteJSON(map[string]string{"op": "subscribed"})
		conn.WriteJSON(tickerMsg{Symbol: "BTC", Bid: "29990", Ask: "30010", TS: 1700000000000})
		conn.WriteJSON(tickerMsg{Symbol: "ETH", Bid: "bad", Ask: "2001"})
		conn.WriteJSON(tickerMsg{Symbol: "BTC", Bid: "29995", Ask: "30005", TS: 1700000001000})

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	sink := &captureSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewTickerFeed("alpha", wsURL, []string{"BTC"}, sink, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	f.Close()

	quotes := sink.snapshot()
	assert.Equal(t, "alpha", quotes[0].Venue)
	assert.Equal(t, "BTC", quotes[0].Asset)
	assert.InDelta(t, 29990.0, quotes[0].Bid, 1e-9)
	assert.InDelta(t, 30010.0, quotes[0].Ask, 1e-9)
	// The malformed ETH ticker was skipped.
	assert.InDelta(t, 29995.0, quotes[1].Bid, 1e-9)
}

func TestTickerFeedNoAssetsReturnsImmediately(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewTickerFeed("alpha", "ws://unused", nil, &captureSink{}, logger)
	require.NoError(t, f.Run(context.Background()))
}
