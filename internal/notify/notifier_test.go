package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/crossarb/internal/domain"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, message)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{EventStranded}, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventTradeCompleted, "t", "m"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), EventStranded, "t", "m"))
	assert.Len(t, s.titles, 1)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventTradeCompleted, "t", "m"))
	assert.Len(t, s.titles, 1)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), EventStranded, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.titles, 1)
}

func TestStrandedPositionMessage(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	res := domain.ExecutionResult{
		TradeID:       "t1",
		Asset:         "BTC",
		BuyVenue:      "alpha",
		SellVenue:     "beta",
		StrandedAsset: true,
		BuyOrder:      &domain.OrderFill{FilledQty: 0.25},
		Err:           errors.New("matching engine down"),
	}
	require.NoError(t, n.StrandedPosition(context.Background(), res))
	require.Len(t, s.bodies, 1)
	assert.Equal(t, "STRANDED POSITION", s.titles[0])
	assert.Contains(t, s.bodies[0], "0.250000 BTC")
	assert.Contains(t, s.bodies[0], "manual intervention")
}

func TestTelegramSenderPostsSendMessage(t *testing.T) {
	var (
		gotPath string
		gotMsg  telegramMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotMsg))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("tok-123", "chat-9")
	s.apiBase = srv.URL

	require.NoError(t, s.Send(context.Background(), "Trade completed", "BTC +$1.20"))
	assert.Equal(t, "/bottok-123/sendMessage", gotPath)
	assert.Equal(t, "chat-9", gotMsg.ChatID)
	assert.Equal(t, "Markdown", gotMsg.ParseMode)
	assert.Equal(t, "*Trade completed*\nBTC +$1.20", gotMsg.Text)
}

func TestDiscordSenderClassifiesResponses(t *testing.T) {
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)

	require.NoError(t, s.Send(context.Background(), "t", "m"))

	status = http.StatusTooManyRequests
	err := s.Send(context.Background(), "t", "m")
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	status = http.StatusBadRequest
	err = s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
