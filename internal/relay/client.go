// Package relay maintains the single logical connection to the relay server:
// a websocket carrying JSON frames, reconnected with capped exponential
// backoff. Decoded events and connectivity changes are published on the bus;
// the sync engine and coordinator subscribe independently.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/lcrispim/hush/internal/bus"
	"github.com/lcrispim/hush/internal/protocol"
	"go.uber.org/zap"
)

// Bus event kinds published by the relay client.
const (
	KindConnected    = "relay.connected"
	KindDisconnected = "relay.disconnected"
	KindEvent        = "relay.event"
)

// ErrDisconnected is returned by Send while the relay is unreachable.
var ErrDisconnected = errors.New("relay disconnected")

// Client is the websocket client for the relay connection.
type Client struct {
	url         string
	maxInterval time.Duration
	bus         *bus.Bus
	logger      *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// NewClient creates a relay client. maxInterval caps the reconnect backoff.
func NewClient(url string, maxInterval time.Duration, b *bus.Bus, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	return &Client{
		url:         url,
		maxInterval: maxInterval,
		bus:         b,
		logger:      logger,
	}
}

// Start launches the connect/read loop. It returns immediately; connectivity
// is reported through bus events.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Stop tears the connection down and stops reconnecting.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "shutting down")
		c.conn = nil
	}
	c.mu.Unlock()
}

// Connected reports whether a live connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send encodes an intent and writes it to the relay. Returns ErrDisconnected
// while the connection is down; callers decide whether to queue or drop.
func (c *Client) Send(ctx context.Context, intent protocol.OutboundIntent) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}

	data, err := protocol.EncodeIntent(intent)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return ErrDisconnected
	}
	return nil
}

func (c *Client) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = c.maxInterval
	bo.MaxElapsedTime = 0 // retry forever

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			wait := bo.NextBackOff()
			c.logger.Warn("relay dial failed",
				zap.Error(err),
				zap.Duration("retry_in", wait))
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			}
		}

		bo.Reset()
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.logger.Info("relay connected", zap.String("url", c.url))
		c.bus.Emit(KindConnected, nil)

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.logger.Warn("relay disconnected")
		c.bus.Emit(KindDisconnected, nil)
	}
}

// readLoop pumps frames off the connection until it breaks.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		evt, err := protocol.DecodeEvent(data)
		if err != nil {
			// Protocol violation: log and ignore, never disconnect over it.
			c.logger.Warn("dropping malformed relay frame", zap.Error(err))
			continue
		}
		c.bus.Emit(KindEvent, evt)
	}
}
