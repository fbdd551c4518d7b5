// Package feed streams price bars from a WebSocket endpoint.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/level_cross_trader/internal/domain"
	"go.uber.org/zap"
)

// Message is one frame from the bar endpoint.
//
//	{"topic":"bars.ES","data":[{"time":"...","open":"5000.25",...}]}
type Message struct {
	Topic string       `json:"topic"`
	Data  []domain.Bar `json:"data"`
}

type subscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// WSFeed connects to url, subscribes to bars for symbol and forwards every
// decoded bar. It reconnects until the context is cancelled.
type WSFeed struct {
	url            string
	symbol         string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	logger         *zap.Logger
}

func NewWSFeed(url, symbol string, logger *zap.Logger) *WSFeed {
	return &WSFeed{
		url:            url,
		symbol:         symbol,
		reconnectDelay: 5 * time.Second,
		dialer:         websocket.DefaultDialer,
		logger:         logger,
	}
}

// WithReconnectDelay overrides the pause between connection attempts.
func (f *WSFeed) WithReconnectDelay(d time.Duration) *WSFeed {
	f.reconnectDelay = d
	return f
}

func (f *WSFeed) topic() string {
	return "bars." + f.symbol
}

// Run blocks, sending bars to out, until ctx is done.
func (f *WSFeed) Run(ctx context.Context, out chan<- domain.Bar) error {
	for {
		err := f.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("Feed disconnected, reconnecting",
			zap.String("url", f.url),
			zap.Duration("delay", f.reconnectDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *WSFeed) session(ctx context.Context, out chan<- domain.Bar) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Args: []string{f.topic()}}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info("Feed connected", zap.String("url", f.url), zap.String("topic", f.topic()))

	// Unblock ReadMessage when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	return f.readLoop(ctx, conn, out)
}

func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- domain.Bar) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("server closed the feed")
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			f.logger.Warn("Feed unmarshal error", zap.Error(err))
			continue
		}
		if !strings.EqualFold(msg.Topic, f.topic()) {
			continue
		}

		for _, bar := range msg.Data {
			if !bar.Close.IsPositive() || bar.Time.IsZero() {
				f.logger.Warn("Dropping malformed bar", zap.Time("time", bar.Time))
				continue
			}
			select {
			case out <- bar:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
