// Package realtime maintains the client side of the realtime event channel:
// one websocket to the backend that delivers tool output and connection
// lifecycle events, reconnecting after the connection is lost.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"aider-web/internal/logging"
	"aider-web/internal/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	readDeadline     = 60 * time.Second
	writeDeadline    = 10 * time.Second
	handshakeTimeout = 10 * time.Second

	defaultReconnectInterval = 2 * time.Second
)

// Sink receives realtime events. HandleEvent must not block.
type Sink interface {
	HandleEvent(protocol.RealtimeEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(protocol.RealtimeEvent)

func (f SinkFunc) HandleEvent(ev protocol.RealtimeEvent) { f(ev) }

// Channel is a reconnecting websocket subscription to server-pushed events.
type Channel struct {
	url     string
	sink    Sink
	dialer  *websocket.Dialer
	header  http.Header
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Channel.
type Option func(*Channel)

func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithReconnectInterval sets the minimum time between connection attempts.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Channel) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// WithHeader sets headers sent with the websocket handshake.
func WithHeader(h http.Header) Option {
	return func(c *Channel) { c.header = h }
}

// New creates a channel for the websocket at url delivering to sink.
func New(url string, sink Sink, opts ...Option) *Channel {
	c := &Channel{
		url:     url,
		sink:    sink,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		limiter: rate.NewLimiter(rate.Every(defaultReconnectInterval), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// Run connects and delivers events until ctx is cancelled. Each successful
// connection produces one connected event; each lost connection one
// disconnected event. Shutdown through ctx produces none.
func (c *Channel) Run(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Debug("realtime dial failed", zap.String("url", c.url), zap.Error(err))
			continue
		}

		c.logger.Info("realtime connected", zap.String("url", c.url))
		c.sink.HandleEvent(protocol.RealtimeEvent{Kind: protocol.EventConnected})

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}

		c.logger.Warn("realtime connection lost", zap.String("url", c.url), zap.Error(err))
		c.sink.HandleEvent(protocol.RealtimeEvent{Kind: protocol.EventDisconnected})
	}
}

// serve reads frames from conn until it fails or ctx is cancelled.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeDeadline))
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeDeadline))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		c.handleFrame(data)
	}
}

func (c *Channel) handleFrame(data []byte) {
	msg, err := protocol.ValidateServerMessage(data)
	if err != nil {
		c.logger.Warn("invalid realtime frame", zap.Error(err))
		return
	}

	switch msg.Type {
	case protocol.TypeToolOutput:
		ev, err := protocol.ToolOutputEvent(msg)
		if err != nil {
			c.logger.Warn("invalid tool output", zap.Error(err))
			return
		}
		c.sink.HandleEvent(ev)
	case protocol.TypeError:
		var p protocol.ErrorPayload
		json.Unmarshal(msg.Payload, &p)
		c.logger.Warn("realtime error from server", zap.String("code", p.Code), zap.String("message", p.Message))
	}
}
