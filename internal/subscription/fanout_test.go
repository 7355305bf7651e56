package subscription

import (
	"testing"

	"github.com/tidefeed/bfxstream/internal/store"
)

// bookSnapshot is a minimal two-level book: bids 100/99, asks 101/102.
var bookSnapshot = [][]float64{
	{100, 1, 1},
	{99, 1, 2},
	{101, 1, -1},
	{102, 1, -2},
}

func liveBook(t *testing.T, connected bool) (*fakeTransport, *store.Store, *Registry, *Fanout, *fakeConsumer) {
	t.Helper()
	transport, st, reg, fo := newHarness(connected)
	a := &fakeConsumer{name: "a"}

	fo.RequestData(a, bookRequest("BTCUSD", SideAsk))
	reg.OnSubscribed(ackFor(bookRequest("BTCUSD", SideAsk).apiRequest(), 10))
	st.Create(10, store.KindBook, bookSnapshot)
	fo.NotifyAll(10)
	return transport, st, reg, fo, a
}

func TestFanout_RequestReplacesPriorSubscription(t *testing.T) {
	transport, _, reg, fo, a := liveBook(t, true)

	// Re-requesting moves the consumer: the old binding is dropped before
	// the new subscribe goes out.
	fo.RequestData(a, TickerRequest{CurrencyPair: "ETHUSD", Depth: 5, InitialDepth: 5})

	if got := len(fo.bindings[10]); got != 0 {
		t.Errorf("old channel bindings = %d, want 0", got)
	}
	if got := countSubscribes(t, transport.frames, "tETHUSD"); got != 1 {
		t.Errorf("new subscribe sends = %d, want 1", got)
	}
	if reg.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", reg.PendingCount())
	}
}

func TestFanout_BindsImmediatelyToLiveChannel(t *testing.T) {
	transport, _, _, fo, _ := liveBook(t, true)
	sent := len(transport.frames)

	// A second consumer asking for data the channel already carries is
	// served locally, with no wire traffic.
	b := &fakeConsumer{name: "b"}
	fo.RequestData(b, bookRequest("BTCUSD", SideBid))

	if len(transport.frames) != sent {
		t.Errorf("sent %d extra frames, want 0", len(transport.frames)-sent)
	}
	if len(b.updates) != 1 {
		t.Fatalf("b received %d updates, want 1 immediate delivery", len(b.updates))
	}
	if got := b.updates[0].Book; len(got) != 2 || got[0].Price != 100 {
		t.Errorf("b's bid view = %v, want best bid 100 first", got)
	}
	var ok bool
	for _, s := range b.statuses {
		if s.Level == LevelSuccess {
			ok = true
		}
	}
	if !ok {
		t.Error("b never received a success status")
	}
}

func TestFanout_SideFiltering(t *testing.T) {
	_, st, _, fo, ask := liveBook(t, true)
	bid := &fakeConsumer{name: "bid"}
	fo.RequestData(bid, bookRequest("BTCUSD", SideBid))

	askBefore, bidBefore := len(ask.updates), len(bid.updates)

	// Bid-only update: only the bid watcher hears about it.
	st.Apply(10, "", []float64{98, 1, 3})
	fo.NotifyAll(10)

	if got := len(ask.updates) - askBefore; got != 0 {
		t.Errorf("ask consumer got %d deliveries for a bid update, want 0", got)
	}
	if got := len(bid.updates) - bidBefore; got != 1 {
		t.Fatalf("bid consumer got %d deliveries, want 1", got)
	}
	last := bid.updates[len(bid.updates)-1]
	if len(last.NewLevels) != 1 || last.NewLevels[0] != 98 {
		t.Errorf("NewLevels = %v, want [98]", last.NewLevels)
	}

	// Ask-only update: mirror image.
	st.Apply(10, "", []float64{103, 1, -5})
	fo.NotifyAll(10)

	if got := len(ask.updates) - askBefore; got != 1 {
		t.Errorf("ask consumer got %d deliveries for an ask update, want 1", got)
	}
	if got := len(bid.updates) - bidBefore; got != 1 {
		t.Errorf("bid consumer got %d deliveries after ask update, want still 1", got)
	}
}

func TestFanout_FirstDeliveryIgnoresSideFilter(t *testing.T) {
	_, st, _, fo, _ := liveBook(t, true)

	// Leave the book with AskUpdated false.
	st.Apply(10, "", []float64{98, 1, 3})

	// A fresh ask watcher still gets an immediate first delivery.
	c := &fakeConsumer{name: "c"}
	fo.RequestData(c, bookRequest("BTCUSD", SideAsk))

	if len(c.updates) != 1 {
		t.Fatalf("c received %d updates, want 1 initial delivery", len(c.updates))
	}
	if got := c.updates[0].Book; len(got) != 2 || got[0].Price != 101 {
		t.Errorf("c's ask view = %v, want best ask 101 first", got)
	}

	// But the override is one-shot: the next bid-only update skips it.
	st.Apply(10, "", []float64{97, 1, 4})
	fo.NotifyAll(10)
	if len(c.updates) != 1 {
		t.Errorf("c received %d updates after bid-only change, want still 1", len(c.updates))
	}
}

func TestFanout_BookDepthTruncation(t *testing.T) {
	_, _, _, fo, _ := liveBook(t, true)

	c := &fakeConsumer{name: "c"}
	req := bookRequest("BTCUSD", SideBid)
	req.Depth = 1
	fo.RequestData(c, req)

	if len(c.updates) != 1 {
		t.Fatalf("c received %d updates, want 1", len(c.updates))
	}
	if got := c.updates[0].Book; len(got) != 1 || got[0].Price != 100 {
		t.Errorf("truncated view = %v, want only the best bid", got)
	}
}

func TestFanout_TickerInitialDepth(t *testing.T) {
	_, st, reg, fo := newHarness(true)
	c := &fakeConsumer{name: "c"}

	req := TickerRequest{CurrencyPair: "BTCUSD", Depth: 2, InitialDepth: 4}
	fo.RequestData(c, req)
	reg.OnSubscribed(ackFor(req.apiRequest(), 5))

	st.Create(5, store.KindTicker, [][]float64{{1}})
	for _, v := range []float64{2, 3, 4, 5} {
		st.Apply(5, "", []float64{v})
	}
	fo.NotifyAll(5)

	if len(c.updates) != 1 {
		t.Fatalf("c received %d updates, want 1", len(c.updates))
	}
	if got := len(c.updates[0].Records); got != 4 {
		t.Errorf("first delivery = %d records, want InitialDepth 4", got)
	}

	st.Apply(5, "", []float64{6})
	fo.NotifyAll(5)
	if got := len(c.updates[1].Records); got != 2 {
		t.Errorf("second delivery = %d records, want Depth 2", got)
	}
}

func TestFanout_TradesRingFiltering(t *testing.T) {
	_, st, reg, fo := newHarness(true)
	sold := &fakeConsumer{name: "sold"}

	req := TradesRequest{CurrencyPair: "BTCUSD", Depth: 10, InitialDepth: 10, Side: TradesSold}
	fo.RequestData(sold, req)
	reg.OnSubscribed(ackFor(req.apiRequest(), 6))

	// Snapshot rows: [id, ts, amount, price]; one sale, one purchase.
	st.Create(6, store.KindTrades, [][]float64{
		{1, 1000, -0.5, 101},
		{2, 1001, 0.7, 102},
	})
	fo.NotifyAll(6)
	if len(sold.updates) != 1 {
		t.Fatalf("sold consumer received %d updates, want 1", len(sold.updates))
	}

	// A buy touches only the bought and both rings.
	st.Apply(6, "te", []float64{3, 1002, 0.3, 103})
	fo.NotifyAll(6)
	if len(sold.updates) != 1 {
		t.Errorf("sold consumer received %d updates after a buy, want still 1", len(sold.updates))
	}

	// A sale reaches it.
	st.Apply(6, "te", []float64{4, 1003, -0.2, 100})
	fo.NotifyAll(6)
	if len(sold.updates) != 2 {
		t.Fatalf("sold consumer received %d updates after a sale, want 2", len(sold.updates))
	}
	if got := len(sold.updates[1].Records); got != 2 {
		t.Errorf("sold ring = %d records, want 2", got)
	}
}

func TestFanout_InformAllReachesQueuedConsumers(t *testing.T) {
	_, _, reg, fo, bound := liveBook(t, true)

	pending := &fakeConsumer{name: "pending"}
	fo.RequestData(pending, bookRequest("ETHUSD", SideAsk))

	// Queue a third consumer offline by failing its send.
	offline := &fakeConsumer{name: "offline"}
	reg.offline.add(&Descriptor{
		Consumer: offline,
		Client:   bookRequest("LTCUSD", SideAsk),
		Wire:     bookRequest("LTCUSD", SideAsk).apiRequest(),
	})

	s := Status{Level: LevelWarn, Title: "maintenance", Msg: "server entering maintenance"}
	fo.InformAll(s)

	for _, c := range []*fakeConsumer{bound, pending, offline} {
		var ok bool
		for _, got := range c.statuses {
			if got == s {
				ok = true
			}
		}
		if !ok {
			t.Errorf("consumer %s missed the broadcast status", c.name)
		}
	}
}

func TestFanout_IdleChannels(t *testing.T) {
	_, _, _, fo, a := liveBook(t, true)

	if got := fo.IdleChannels(); len(got) != 0 {
		t.Fatalf("IdleChannels = %v with a bound consumer, want none", got)
	}

	fo.StopData(a)

	if got := fo.IdleChannels(); len(got) != 1 || got[0] != 10 {
		t.Errorf("IdleChannels = %v after StopData, want [10]", got)
	}
}

func TestFanout_DeliversCopies(t *testing.T) {
	_, st, _, _, a := liveBook(t, true)

	a.updates[0].Book[0].Price = -1

	raw, _ := st.Get(10)
	book := raw.(*store.Book)
	if book.Asks[0].Price != 101 {
		t.Error("mutating a delivered view changed the stored book")
	}
}
