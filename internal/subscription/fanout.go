package subscription

import (
	"go.uber.org/zap"

	"github.com/tidefeed/bfxstream/internal/store"
)

// binding is one consumer attached to a live channel.
type binding struct {
	consumer    Consumer
	client      ClientRequest
	needInitial bool
}

// Fanout maps channel ids to their registered consumers and delivers
// materialized views and statuses. Consumers are notified synchronously, in
// registration order, once per inbound server message.
type Fanout struct {
	logger   *zap.Logger
	store    *store.Store
	registry *Registry

	bindings  map[int][]*binding
	channelOf map[Consumer]int
}

// NewFanout creates the fanout and wires it to the registry.
func NewFanout(registry *Registry, st *store.Store, logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fanout{
		logger:    logger.Named("fanout"),
		store:     st,
		registry:  registry,
		bindings:  make(map[int][]*binding),
		channelOf: make(map[Consumer]int),
	}
	registry.fanout = f
	return f
}

// RequestData subscribes a consumer to the data its request describes. The
// consumer is first detached from anything it was observing — a consumer
// observes exactly one channel at a time, so re-requesting replaces the
// prior subscription. If the channel already exists locally the consumer is
// bound and served immediately; otherwise the request goes through the
// registry.
func (f *Fanout) RequestData(c Consumer, req ClientRequest) {
	f.StopData(c)

	apiReq := req.apiRequest()
	if id, ok := f.registry.IDForRequest(apiReq); ok {
		b := f.bind(id, c, req)
		c.Info(Status{Level: LevelSuccess, Title: "data available", Msg: "requested data is available"})
		if st, ok := f.store.Get(id); ok {
			f.deliver(b, st)
		}
		return
	}

	f.registry.RequestSubscription(apiReq, &Descriptor{
		Consumer:    c,
		Client:      req,
		Wire:        apiReq,
		NeedInitial: true,
	})
}

// StopData detaches the consumer from its channel, if bound, and drops any
// descriptor it still has queued in the registry.
func (f *Fanout) StopData(c Consumer) {
	if id, ok := f.channelOf[c]; ok {
		list := f.bindings[id]
		for i, b := range list {
			if b.consumer == c {
				f.bindings[id] = append(list[:i], list[i+1:]...)
				break
			}
		}
		delete(f.channelOf, c)
	}
	f.registry.removeConsumer(c)
}

// activate binds an acked descriptor's consumer to its new channel id.
func (f *Fanout) activate(chanID int, d *Descriptor) {
	b := f.bind(chanID, d.Consumer, d.Client)
	b.needInitial = d.NeedInitial
	d.Consumer.Info(Status{Level: LevelSuccess, Title: "data available", Msg: "requested data is available"})
	if st, ok := f.store.Get(chanID); ok {
		f.deliver(b, st)
	}
}

func (f *Fanout) bind(chanID int, c Consumer, req ClientRequest) *binding {
	b := &binding{consumer: c, client: req, needInitial: true}
	f.bindings[chanID] = append(f.bindings[chanID], b)
	f.channelOf[c] = chanID
	return b
}

// detachChannel unbinds every consumer of a channel, returning them in
// registration order.
func (f *Fanout) detachChannel(chanID int) []*binding {
	list := f.bindings[chanID]
	delete(f.bindings, chanID)
	for _, b := range list {
		delete(f.channelOf, b.consumer)
	}
	return list
}

// NotifyAll delivers the channel's current view to every bound consumer, in
// registration order. Per-request filtering applies: a consumer watching
// the untouched side of the book is skipped, except for its first delivery
// after binding, which always fires.
func (f *Fanout) NotifyAll(chanID int) {
	st, ok := f.store.Get(chanID)
	if !ok {
		return
	}
	for _, b := range f.bindings[chanID] {
		f.deliver(b, st)
	}
}

// InformAll pushes a status to every bound and queued consumer.
func (f *Fanout) InformAll(s Status) {
	for _, list := range f.bindings {
		for _, b := range list {
			b.consumer.Info(s)
		}
	}
	for _, d := range f.registry.pending.queue {
		d.Consumer.Info(s)
	}
	for _, d := range f.registry.offline.queue {
		d.Consumer.Info(s)
	}
}

// InformChannel pushes a status to the consumers bound to one channel.
func (f *Fanout) InformChannel(chanID int, s Status) {
	for _, b := range f.bindings[chanID] {
		b.consumer.Info(s)
	}
}

// IdleChannels returns live channel ids with zero bound consumers, in
// ascending order. The stale-subscription sweep unsubscribes them.
func (f *Fanout) IdleChannels() []int {
	var idle []int
	for _, id := range f.registry.LiveChannels() {
		if len(f.bindings[id]) == 0 {
			idle = append(idle, id)
		}
	}
	return idle
}

// ConsumerCount returns the number of bound consumers.
func (f *Fanout) ConsumerCount() int {
	return len(f.channelOf)
}

// deliver sends the consumer its view of the state, honoring per-request
// filtering and the first-delivery override.
func (f *Fanout) deliver(b *binding, st store.State) {
	switch req := b.client.(type) {
	case OrderBookRequest:
		book, ok := st.(*store.Book)
		if !ok {
			return
		}
		switch req.Side {
		case SideAsk:
			if book.AskUpdated || b.needInitial {
				b.needInitial = false
				b.consumer.Update(Update{
					Kind:      store.KindBook,
					Book:      copyBookRows(book.Asks, req.Depth),
					NewLevels: copyLevels(book.AskNewLevels),
				})
			}
		case SideBid:
			if book.BidUpdated || b.needInitial {
				b.needInitial = false
				b.consumer.Update(Update{
					Kind:      store.KindBook,
					Book:      copyBookRows(book.Bids, req.Depth),
					NewLevels: copyLevels(book.BidNewLevels),
				})
			}
		}

	case TickerRequest:
		ticker, ok := st.(*store.Ticker)
		if !ok {
			return
		}
		count := req.Depth
		if b.needInitial {
			count = req.InitialDepth
		}
		b.needInitial = false
		b.consumer.Update(Update{
			Kind:    store.KindTicker,
			Records: copyRecords(ticker.Rows, count),
		})

	case TradesRequest:
		trades, ok := st.(*store.Trades)
		if !ok {
			return
		}
		count := req.Depth
		if b.needInitial {
			count = req.InitialDepth
		}

		var ring [][]float64
		var updated bool
		switch req.Side {
		case TradesSold:
			ring, updated = trades.Sold, trades.SoldUpdated
		case TradesBought:
			ring, updated = trades.Bought, trades.BoughtUpdated
		default:
			ring, updated = trades.Both, trades.BothUpdated
		}

		if updated || b.needInitial {
			b.needInitial = false
			b.consumer.Update(Update{
				Kind:    store.KindTrades,
				Records: copyRecords(ring, count),
			})
		}

	case CandlesRequest:
		candles, ok := st.(*store.Candles)
		if !ok {
			return
		}
		count := req.Depth
		if b.needInitial {
			count = req.InitialDepth
		}
		b.needInitial = false
		b.consumer.Update(Update{
			Kind:    store.KindCandles,
			Records: copyRecords(candles.Rows, count),
		})
	}
}

func copyBookRows(side []store.BookRow, depth int) []store.BookRow {
	if depth <= 0 || depth > len(side) {
		depth = len(side)
	}
	out := make([]store.BookRow, depth)
	copy(out, side[:depth])
	return out
}

func copyRecords(rows [][]float64, count int) [][]float64 {
	if count <= 0 || count > len(rows) {
		count = len(rows)
	}
	out := make([][]float64, count)
	copy(out, rows[:count])
	return out
}

func copyLevels(levels []float64) []float64 {
	if len(levels) == 0 {
		return nil
	}
	out := make([]float64, len(levels))
	copy(out, levels)
	return out
}
