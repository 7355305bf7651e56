package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeClient simulates one connection attempt.
type fakeClient struct {
	connectErr error
	sendErr    error
	sent       [][]byte
	messages   chan []byte
	errors     chan error
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan []byte, 16),
		errors:   make(chan error, 1),
	}
}

func (c *fakeClient) Connect(ctx context.Context) error { return c.connectErr }

func (c *fakeClient) Close() error {
	if !c.closed {
		c.closed = true
		close(c.errors)
		close(c.messages)
	}
	return nil
}

func (c *fakeClient) Send(data []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeClient) Messages() <-chan []byte { return c.messages }
func (c *fakeClient) Errors() <-chan error    { return c.errors }

// die simulates the remote end killing the connection.
func (c *fakeClient) die(err error) {
	c.errors <- err
	close(c.errors)
	close(c.messages)
	c.closed = true
}

// fakeDialer hands out scripted clients in order.
type fakeDialer struct {
	clients []*fakeClient
	next    int
}

func (d *fakeDialer) dial(cfg Config, logger *zap.Logger) Client {
	c := d.clients[d.next]
	d.next++
	return c
}

func recvFrame(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func recvError(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an error")
		return nil
	}
}

func TestLifecycle_ConnectAndSend(t *testing.T) {
	fc := newFakeClient()
	d := &fakeDialer{clients: []*fakeClient{fc}}
	l := NewLifecycle(DefaultConfig(), d.dial, nil)

	if got := l.State(); got != StateDisconnected {
		t.Fatalf("State() = %v, want disconnected", got)
	}
	if l.Send([]byte("early")) {
		t.Error("Send succeeded while disconnected")
	}

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := l.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}

	if !l.Send([]byte("hello")) {
		t.Error("Send failed while connected")
	}
	if len(fc.sent) != 1 || string(fc.sent[0]) != "hello" {
		t.Errorf("client sent = %q, want [hello]", fc.sent)
	}

	fc.messages <- []byte("frame")
	if got := recvFrame(t, l.Messages()); string(got) != "frame" {
		t.Errorf("Messages() = %q, want frame", got)
	}
}

func TestLifecycle_ConnectFailureStaysDisconnected(t *testing.T) {
	fc := newFakeClient()
	fc.connectErr = errors.New("refused")
	d := &fakeDialer{clients: []*fakeClient{fc}}
	l := NewLifecycle(DefaultConfig(), d.dial, nil)

	if err := l.Connect(context.Background()); err == nil {
		t.Fatal("Connect() error = nil, want refused")
	}
	if got := l.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}

	// The failure surfaced on the return value, not the channel.
	select {
	case err := <-l.Errors():
		t.Errorf("Errors() delivered %v, want nothing", err)
	default:
	}
}

func TestLifecycle_SurvivesReconnect(t *testing.T) {
	first, second := newFakeClient(), newFakeClient()
	d := &fakeDialer{clients: []*fakeClient{first, second}}
	l := NewLifecycle(DefaultConfig(), d.dial, nil)

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Capture the channels once; they must stay valid across reconnects.
	messages, errs := l.Messages(), l.Errors()

	first.die(errors.New("peer reset"))
	if err := recvError(t, errs); err == nil {
		t.Fatal("no error after connection death")
	}
	if got := l.State(); got != StateDisconnected {
		t.Errorf("State() = %v after death, want disconnected", got)
	}

	l.MarkReconnecting()
	if got := l.State(); got != StateReconnecting {
		t.Errorf("State() = %v, want reconnecting", got)
	}

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	second.messages <- []byte("fresh")
	if got := recvFrame(t, messages); string(got) != "fresh" {
		t.Errorf("frame after reconnect = %q, want fresh", got)
	}
	if !l.Send([]byte("resub")) {
		t.Error("Send failed after reconnect")
	}
	if len(second.sent) != 1 {
		t.Errorf("second client sent %d frames, want 1", len(second.sent))
	}
}

func TestLifecycle_StaleAttemptDeathIgnored(t *testing.T) {
	first, second := newFakeClient(), newFakeClient()
	d := &fakeDialer{clients: []*fakeClient{first, second}}
	l := NewLifecycle(DefaultConfig(), d.dial, nil)

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first.die(errors.New("peer reset"))
	recvError(t, l.Errors())

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}

	// The first client dying again (already dead) must not disturb the
	// fresh connection.
	if got := l.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}
	select {
	case err := <-l.Errors():
		t.Errorf("Errors() delivered stale %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLifecycle_ConnectRefusedWhileConnected(t *testing.T) {
	fc := newFakeClient()
	d := &fakeDialer{clients: []*fakeClient{fc}}
	l := NewLifecycle(DefaultConfig(), d.dial, nil)

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := l.Connect(context.Background()); !errors.Is(err, ErrConnectInProgress) {
		t.Fatalf("repeat Connect() error = %v, want ErrConnectInProgress", err)
	}
	if d.next != 1 {
		t.Errorf("dialer used %d times, want 1", d.next)
	}
	if got := l.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}
}

func TestLifecycle_Close(t *testing.T) {
	fc := newFakeClient()
	d := &fakeDialer{clients: []*fakeClient{fc}}
	l := NewLifecycle(DefaultConfig(), d.dial, nil)

	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fc.closed {
		t.Error("underlying client not closed")
	}
	if got := l.State(); got != StateClosing {
		t.Errorf("State() = %v, want closing", got)
	}
	if l.Send([]byte("late")) {
		t.Error("Send succeeded after Close")
	}
	if err := l.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Connect() after Close = %v, want ErrAlreadyClosed", err)
	}
}
