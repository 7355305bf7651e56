package connection

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosing
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Lifecycle runs successive connection attempts behind stable channels. Each
// successful Connect swaps in a fresh Client and pumps its frames into the
// same Messages and Errors channels, so a reader selecting on them survives
// any number of reconnects. At most one error is forwarded per attempt; it
// marks the death of that connection.
type Lifecycle struct {
	cfg    Config
	logger *zap.Logger
	dial   Dialer

	messages chan []byte
	errors   chan error
	done     chan struct{}

	mu      sync.Mutex
	state   State
	client  Client
	attempt string
}

// NewLifecycle creates a lifecycle in the disconnected state. dial defaults
// to NewClient.
func NewLifecycle(cfg Config, dial Dialer, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dial == nil {
		dial = NewClient
	}
	return &Lifecycle{
		cfg:      cfg,
		logger:   logger.Named("lifecycle"),
		dial:     dial,
		messages: make(chan []byte, cfg.MessageBufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Messages returns the stable inbound frame channel.
func (l *Lifecycle) Messages() <-chan []byte { return l.messages }

// Errors returns the stable channel of per-attempt terminal errors.
func (l *Lifecycle) Errors() <-chan error { return l.errors }

// State returns the current connection state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connect runs one connection attempt. On success the new client replaces
// any previous one and its frames start flowing through the stable channels.
// On failure the state falls back to disconnected and the error is returned
// to the caller, not the Errors channel. While an attempt is running, or the
// lifecycle is already connected, ErrConnectInProgress is returned and
// nothing changes.
func (l *Lifecycle) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateClosing {
		l.mu.Unlock()
		return ErrAlreadyClosed
	}
	if l.state == StateConnected || l.state == StateConnecting {
		l.mu.Unlock()
		return ErrConnectInProgress
	}
	l.state = StateConnecting
	attempt := uuid.NewString()
	l.attempt = attempt
	l.mu.Unlock()

	client := l.dial(l.cfg, l.logger)
	if err := client.Connect(ctx); err != nil {
		l.mu.Lock()
		if l.attempt == attempt {
			l.state = StateDisconnected
		}
		l.mu.Unlock()
		l.logger.Warn("connect attempt failed", zap.String("attempt", attempt), zap.Error(err))
		return err
	}

	l.mu.Lock()
	old := l.client
	l.client = client
	l.state = StateConnected
	l.mu.Unlock()

	if old != nil {
		old.Close()
	}

	go l.pumpMessages(client)
	go l.pumpErrors(client, attempt)

	l.logger.Info("connected", zap.String("attempt", attempt), zap.String("url", l.cfg.URL))
	return nil
}

// Send writes one frame on the current connection. Reports delivery; a false
// return means the frame was not sent and the caller should queue it.
func (l *Lifecycle) Send(data []byte) bool {
	l.mu.Lock()
	client, state := l.client, l.state
	l.mu.Unlock()

	if state != StateConnected || client == nil {
		return false
	}
	if err := client.Send(data); err != nil {
		l.logger.Warn("send failed", zap.Error(err))
		return false
	}
	return true
}

// MarkReconnecting flags the lifecycle as between attempts, after a
// connection died and before the next Connect.
func (l *Lifecycle) MarkReconnecting() {
	l.mu.Lock()
	if l.state != StateClosing {
		l.state = StateReconnecting
	}
	l.mu.Unlock()
}

// Drop closes the current connection, if any, without stopping the
// lifecycle. The dropped attempt is forgotten, so its death never reaches
// the Errors channel; the caller decides when to reconnect.
func (l *Lifecycle) Drop() {
	l.mu.Lock()
	client := l.client
	l.client = nil
	l.attempt = ""
	if l.state != StateClosing {
		l.state = StateDisconnected
	}
	l.mu.Unlock()

	if client != nil {
		client.Close()
	}
}

// Close tears down the current connection and stops the lifecycle for good.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	if l.state == StateClosing {
		l.mu.Unlock()
		return nil
	}
	l.state = StateClosing
	client := l.client
	l.client = nil
	l.mu.Unlock()

	close(l.done)

	if client != nil {
		return client.Close()
	}
	return nil
}

// pumpMessages copies one client's frames into the stable channel until the
// client dies.
func (l *Lifecycle) pumpMessages(client Client) {
	for data := range client.Messages() {
		select {
		case l.messages <- data:
		case <-l.done:
			return
		}
	}
}

// pumpErrors forwards the client's terminal error, provided the attempt is
// still the current one. A stale attempt's death is not an event.
func (l *Lifecycle) pumpErrors(client Client, attempt string) {
	for err := range client.Errors() {
		l.mu.Lock()
		current := l.attempt == attempt && l.state != StateClosing
		if current {
			l.state = StateDisconnected
		}
		l.mu.Unlock()

		if !current {
			return
		}
		select {
		case l.errors <- err:
		case <-l.done:
		}
		return
	}

	// Channel closed with no error: clean local shutdown.
	l.mu.Lock()
	if l.attempt == attempt && l.state == StateConnected {
		l.state = StateDisconnected
	}
	l.mu.Unlock()
}
