package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/feed"
	"go.uber.org/zap"
)

const frame = `{"topic":"bars.ES","data":[
	{"time":"2024-03-11T14:00:00Z","open":"5000.25","high":"5001","low":"4999.75","close":"5000.50"},
	{"time":"2024-03-11T14:01:00Z","open":"5000.50","high":"5002","low":"5000","close":"0"},
	{"time":"2024-03-11T14:01:00Z","open":"5000.50","high":"5002","low":"5000","close":"5001.75"}
]}`

func barServer(t *testing.T, connections *int32) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		atomic.AddInt32(connections, 1)

		var sub map[string]interface{}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub["op"] != "subscribe" {
			t.Errorf("unexpected request %v", sub)
		}

		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"bars.NQ","data":[{"time":"2024-03-11T14:00:00Z","close":"18000"}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(frame))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
}

func TestWSFeed_StreamsAndReconnects(t *testing.T) {
	var connections int32
	srv := barServer(t, &connections)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	f := feed.NewWSFeed(url, "ES", zap.NewNop()).WithReconnectDelay(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan domain.Bar)
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, out) }()

	var bars []domain.Bar
	for len(bars) < 4 {
		select {
		case b := <-out:
			bars = append(bars, b)
		case <-ctx.Done():
			t.Fatalf("timed out with %d bars", len(bars))
		}
	}
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&connections), int32(2))

	require.Len(t, bars, 4)
	assert.Equal(t, "5000.5", bars[0].Close.String())
	assert.Equal(t, "5001.75", bars[1].Close.String(), "zero close is dropped")
	assert.Equal(t, time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC), bars[2].Time.UTC())
}

func TestWSFeed_DialFailureRetries(t *testing.T) {
	f := feed.NewWSFeed("ws://127.0.0.1:1/bars", "ES", zap.NewNop()).WithReconnectDelay(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := f.Run(ctx, make(chan domain.Bar))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
