package subscription

import (
	"github.com/tidefeed/bfxstream/internal/store"
	"github.com/tidefeed/bfxstream/internal/wire"
)

// fakeConsumer records everything delivered to it.
type fakeConsumer struct {
	name     string
	updates  []Update
	statuses []Status
}

func (c *fakeConsumer) Update(u Update) { c.updates = append(c.updates, u) }
func (c *fakeConsumer) Info(s Status)   { c.statuses = append(c.statuses, s) }

// fakeTransport records frames handed to the registry's send function and
// simulates connected/disconnected state.
type fakeTransport struct {
	connected bool
	frames    [][]byte
}

func (t *fakeTransport) send(data []byte) bool {
	if !t.connected {
		return false
	}
	t.frames = append(t.frames, data)
	return true
}

// newHarness builds a wired store/registry/fanout trio on a fake transport.
func newHarness(connected bool) (*fakeTransport, *store.Store, *Registry, *Fanout) {
	transport := &fakeTransport{connected: connected}
	st := store.New()
	reg := NewRegistry(st, transport.send, nil)
	fo := NewFanout(reg, st, nil)
	return transport, st, reg, fo
}

// ackFor fabricates the server's subscribe ack for a request: every request
// field echoed, plus the assigned channel id.
func ackFor(req wire.Request, chanID int) wire.Subscribed {
	fields := make(map[string]any, len(req)+2)
	for k, v := range req {
		fields[k] = v
	}
	fields["event"] = "subscribed"
	fields["chanId"] = float64(chanID)
	return wire.Subscribed{ChanID: chanID, Channel: req["channel"], Fields: fields}
}

func bookRequest(pair string, side BookSide) OrderBookRequest {
	return OrderBookRequest{
		CurrencyPair: pair,
		Precision:    "P0",
		Depth:        25,
		Side:         side,
		UpdateRate:   RateThrottled,
	}
}
