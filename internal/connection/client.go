package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrConnectInProgress = errors.New("connect already in progress")
)

// Config configures a WebSocket connection.
type Config struct {
	URL               string        // e.g. wss://api.example.com/ws/2
	HandshakeTimeout  time.Duration // dial deadline
	WriteTimeout      time.Duration // write deadline per send
	MessageBufferSize int           // inbound message channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		MessageBufferSize: 4096,
	}
}

// Client is a single WebSocket connection. Both channels close when the
// connection dies; Errors carries the terminal read error first.
type Client interface {
	// Connect establishes the WebSocket connection and starts the reader.
	Connect(ctx context.Context) error

	// Close sends a close frame and tears the connection down.
	Close() error

	// Send writes one text frame.
	Send(data []byte) error

	// Messages returns the channel of raw inbound frames.
	Messages() <-chan []byte

	// Errors returns the channel carrying the terminal connection error.
	Errors() <-chan error
}

// Dialer creates a Client for one connection attempt. Swapped for a fake in
// tests.
type Dialer func(cfg Config, logger *zap.Logger) Client

// client implements Client on gorilla/websocket.
type client struct {
	cfg    Config
	logger *zap.Logger

	conn *websocket.Conn

	messages chan []byte
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu        sync.Mutex
	connected bool
	closed    bool
}

// NewClient creates an unconnected client. It satisfies Dialer.
func NewClient(cfg Config, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &client{
		cfg:      cfg,
		logger:   logger.Named("ws"),
		messages: make(chan []byte, cfg.MessageBufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()

	c.logger.Debug("websocket connected", zap.String("url", c.cfg.URL))
	return nil
}

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

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}

func (c *client) Send(data []byte) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) Messages() <-chan []byte {
	return c.messages
}

func (c *client) Errors() <-chan error {
	return c.errors
}

// readLoop reads inbound frames until the connection dies, then reports the
// terminal error and closes both output channels.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		close(c.errors)
		close(c.messages)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Close() was called; the error is just the dying socket.
			default:
				c.errors <- err
			}
			return
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping frame")
		}
	}
}

// IsNormalClose reports whether the error is a clean WebSocket close (code
// 1000). Every other close code, including 1001 going-away, signals an
// abnormal end that warrants a reconnect.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure)
}
