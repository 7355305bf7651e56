package subscription

import (
	"testing"

	"github.com/tidefeed/bfxstream/internal/wire"
)

func desc(c Consumer, req wire.Request) *Descriptor {
	return &Descriptor{Consumer: c, Wire: req, NeedInitial: true}
}

func TestDescriptorQueue_FIFO(t *testing.T) {
	q := newDescriptorQueue()
	a, b := &fakeConsumer{name: "a"}, &fakeConsumer{name: "b"}

	q.add(desc(a, wire.Request{"symbol": "tBTCUSD"}))
	q.add(desc(b, wire.Request{"symbol": "tETHUSD"}))

	drained := q.drain()
	if len(drained) != 2 {
		t.Fatalf("drained %d, want 2", len(drained))
	}
	if drained[0].Consumer != a || drained[1].Consumer != b {
		t.Error("drain order does not match insertion order")
	}
	if q.len() != 0 {
		t.Errorf("len = %d after drain, want 0", q.len())
	}
}

func TestDescriptorQueue_UpsertByConsumer(t *testing.T) {
	q := newDescriptorQueue()
	a, b := &fakeConsumer{name: "a"}, &fakeConsumer{name: "b"}

	q.add(desc(a, wire.Request{"symbol": "tBTCUSD"}))
	q.add(desc(b, wire.Request{"symbol": "tETHUSD"}))
	// a changes its mind while still queued: same slot, new request.
	q.add(desc(a, wire.Request{"symbol": "tLTCUSD"}))

	if q.len() != 2 {
		t.Fatalf("len = %d, want 2", q.len())
	}
	drained := q.drain()
	if drained[0].Consumer != a || drained[0].Wire["symbol"] != "tLTCUSD" {
		t.Errorf("first entry = %v for %v, want a's replacement request", drained[0].Wire, drained[0].Consumer)
	}
}

func TestDescriptorQueue_Remove(t *testing.T) {
	q := newDescriptorQueue()
	a, b, c := &fakeConsumer{name: "a"}, &fakeConsumer{name: "b"}, &fakeConsumer{name: "c"}

	q.add(desc(a, wire.Request{"symbol": "tBTCUSD"}))
	q.add(desc(b, wire.Request{"symbol": "tETHUSD"}))
	q.add(desc(c, wire.Request{"symbol": "tLTCUSD"}))

	if !q.remove(b) {
		t.Fatal("remove(b) = false, want true")
	}
	if q.remove(b) {
		t.Error("second remove(b) = true, want false")
	}

	// Positions must stay consistent after the middle removal.
	q.add(desc(c, wire.Request{"symbol": "tXRPUSD"}))
	drained := q.drain()
	if len(drained) != 2 {
		t.Fatalf("drained %d, want 2", len(drained))
	}
	if drained[1].Wire["symbol"] != "tXRPUSD" {
		t.Errorf("c's upsert landed at %v", drained[1].Wire)
	}
}

func TestDescriptorQueue_PopMatching(t *testing.T) {
	q := newDescriptorQueue()
	a, b, c := &fakeConsumer{name: "a"}, &fakeConsumer{name: "b"}, &fakeConsumer{name: "c"}

	btc := wire.Request{"event": "subscribe", "channel": "ticker", "symbol": "tBTCUSD"}
	eth := wire.Request{"event": "subscribe", "channel": "ticker", "symbol": "tETHUSD"}

	q.add(desc(a, btc))
	q.add(desc(b, eth))
	q.add(desc(c, btc))

	matched := q.popMatching(ackFor(btc, 7).Fields)
	if len(matched) != 2 {
		t.Fatalf("matched %d, want 2", len(matched))
	}
	if matched[0].Consumer != a || matched[1].Consumer != c {
		t.Error("popMatching did not preserve FIFO order")
	}
	if q.len() != 1 {
		t.Errorf("len = %d after pop, want 1", q.len())
	}
	if q.contains(btc) {
		t.Error("queue still contains the popped request")
	}
	if !q.contains(eth) {
		t.Error("queue lost the unmatched request")
	}
}
