package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/greysana/kitchen-display-system/internal/metrics"
	"github.com/greysana/kitchen-display-system/internal/protocol"
)

const handshakeTimeout = 10 * time.Second

// Client is one relay connection. Connect dials and joins the configured
// channel; Messages then carries every well-formed JSON payload the relay
// pushes, stamped with its receive time.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	// Send writes a text frame. It returns ErrNotConnected unless the
	// connection is open.
	Send(data []byte) error

	// SendFrame encodes and sends a join or leave frame.
	SendFrame(f protocol.ClientFrame) error

	Messages() <-chan RawMessage
	Errors() <-chan error
	IsConnected() bool
}

type client struct {
	cfg    ClientConfig
	clock  clockwork.Clock
	logger *slog.Logger

	conn *websocket.Conn

	messages chan RawMessage
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	closed     bool
	lastSeenAt time.Time // Last ping or pong from the relay
}

// NewClient creates a relay client. Nothing is dialed until Connect.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultClientConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &client{
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   logger,
		messages: make(chan RawMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the relay and, when a channel is configured, sends the
// join frame before any message is read. A failed join closes the socket.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	for k, v := range c.cfg.Header {
		header[k] = append([]string(nil), v...)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastSeenAt = c.clock.Now()
	c.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		c.touch()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	if c.cfg.Channel != "" {
		if err := c.SendFrame(protocol.JoinFrame(c.cfg.Channel)); err != nil {
			c.Close()
			return fmt.Errorf("join %s: %w", c.cfg.Channel, err)
		}
		c.logger.Debug("joined channel", "channel", c.cfg.Channel)
	}

	go c.readLoop()
	go c.heartbeatLoop()
	return nil
}

// Close sends a normal close frame and releases the socket. Safe to call
// more than once.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *client) Send(data []byte) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) SendFrame(f protocol.ClientFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", f.Type, err)
	}
	return c.Send(data)
}

func (c *client) Messages() <-chan RawMessage { return c.messages }
func (c *client) Errors() <-chan error        { return c.errors }

func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastSeenAt = c.clock.Now()
	c.mu.Unlock()
}

func (c *client) fail(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.errors <- err:
	default:
	}
}

// readLoop forwards well-formed payloads in arrival order. A full buffer
// blocks the reader rather than losing a delta.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		receivedAt := c.clock.Now()

		if !json.Valid(data) {
			metrics.ConnectionDroppedTotal.Inc()
			c.logger.Warn("dropping unparsable message", "bytes", len(data))
			if c.cfg.OnDrop != nil {
				c.cfg.OnDrop(data)
			}
			continue
		}

		select {
		case c.messages <- RawMessage{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		}
	}
}

// heartbeatLoop pings the relay and reports ErrStaleConnection once nothing
// has been heard for PingTimeout.
func (c *client) heartbeatLoop() {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
		}

		c.writeMu.Lock()
		err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Debug("ping failed", "error", err)
		}

		c.mu.RLock()
		lastSeen := c.lastSeenAt
		c.mu.RUnlock()

		if c.clock.Since(lastSeen) > c.cfg.PingTimeout {
			c.logger.Warn("relay silent, connection stale",
				"last_seen", lastSeen,
				"timeout", c.cfg.PingTimeout,
			)
			c.fail(ErrStaleConnection)
			return
		}
	}
}
