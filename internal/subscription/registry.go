package subscription

import (
	"sort"

	"go.uber.org/zap"

	"github.com/tidefeed/bfxstream/internal/store"
	"github.com/tidefeed/bfxstream/internal/wire"
)

// Registry maps live channel ids to the wire request that created them and
// tracks requests that are pending (sent, awaiting ack) or queued (not yet
// sent because the connection is down).
type Registry struct {
	logger *zap.Logger
	send   func([]byte) bool
	store  *store.Store
	fanout *Fanout

	channels map[int]wire.Request
	pending  *descriptorQueue
	offline  *descriptorQueue
	resub    map[int]struct{}
}

// NewRegistry creates a registry. send delivers a frame to the transport and
// reports success; a false return means the request was not delivered and
// stays queued here.
func NewRegistry(st *store.Store, send func([]byte) bool, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:   logger.Named("registry"),
		send:     send,
		store:    st,
		channels: make(map[int]wire.Request),
		pending:  newDescriptorQueue(),
		offline:  newDescriptorQueue(),
		resub:    make(map[int]struct{}),
	}
}

// RequestSubscription asks the server for the descriptor's channel. If an
// equal request is already pending the descriptor joins that pending entry
// without a new send, keeping at most one subscribe in flight per distinct
// wire request. While disconnected the descriptor waits in the offline
// queue. Reports whether the request is in flight on the wire.
func (r *Registry) RequestSubscription(req wire.Request, d *Descriptor) bool {
	if r.pending.contains(req) {
		r.pending.add(d)
		return true
	}

	frame, err := req.Encode()
	if err != nil {
		r.logger.Error("encode subscribe request", zap.String("request", req.String()), zap.Error(err))
		return false
	}

	if r.send(frame) {
		r.pending.add(d)
		r.logger.Debug("subscribe sent", zap.String("request", req.String()))
		return true
	}

	r.offline.add(d)
	r.logger.Debug("subscribe queued offline", zap.String("request", req.String()))
	return false
}

// RequestUnsubscription asks the server to drop a channel. Reports whether
// the request was delivered.
func (r *Registry) RequestUnsubscription(chanID int) bool {
	return r.send(wire.EncodeUnsubscribe(chanID))
}

// OnSubscribed handles a subscribe ack: every pending descriptor the ack
// answers is bound to the assigned channel id and handed to the fanout for
// activation. An ack matching no pending request is ignored; the registry
// never creates state from an unmatched ack.
func (r *Registry) OnSubscribed(ack wire.Subscribed) {
	matched := r.pending.popMatching(ack.Fields)
	if len(matched) == 0 {
		r.logger.Debug("ignoring unmatched subscribe ack",
			zap.Int("chan_id", ack.ChanID),
			zap.String("channel", ack.Channel),
		)
		return
	}

	r.channels[ack.ChanID] = matched[0].Wire
	r.logger.Info("channel subscribed",
		zap.Int("chan_id", ack.ChanID),
		zap.String("request", matched[0].Wire.String()),
		zap.Int("consumers", len(matched)),
	)

	for _, d := range matched {
		r.fanout.activate(ack.ChanID, d)
	}
}

// OnUnsubscribed handles an unsubscribe ack. A non-OK status changes
// nothing. Otherwise the channel and its reconstruction state are dropped;
// consumers that were bound to it are either replayed onto a fresh
// subscription (when the id was marked for resubscription) or told their
// stream is closed.
func (r *Registry) OnUnsubscribed(ack wire.Unsubscribed) {
	if ack.Status != "OK" {
		return
	}
	if _, ok := r.channels[ack.ChanID]; !ok {
		r.logger.Debug("ignoring unmatched unsubscribe ack", zap.Int("chan_id", ack.ChanID))
		return
	}

	delete(r.channels, ack.ChanID)
	r.store.Delete(ack.ChanID)
	bound := r.fanout.detachChannel(ack.ChanID)

	if _, marked := r.resub[ack.ChanID]; marked {
		delete(r.resub, ack.ChanID)
		r.logger.Info("resubscribing channel", zap.Int("chan_id", ack.ChanID), zap.Int("consumers", len(bound)))
		for _, b := range bound {
			r.fanout.RequestData(b.consumer, b.client)
		}
		return
	}

	for _, b := range bound {
		b.consumer.Info(Status{
			Level: LevelWarn,
			Title: "stream closed",
			Msg:   "the subscribed data stream was closed",
		})
	}
}

// ResubscribeAll marks every live channel for resubscription. With
// unsubscribeFirst a real unsubscribe is sent so the server drops the stale
// channel (used after a maintenance window); without it a local
// "unsubscribed OK" is synthesized to trigger the same replay path with no
// round trip (used right after a reconnect, when the old ids are already
// invalid).
func (r *Registry) ResubscribeAll(unsubscribeFirst bool) {
	ids := make([]int, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		r.resub[id] = struct{}{}
		if unsubscribeFirst {
			r.RequestUnsubscription(id)
		} else {
			r.OnUnsubscribed(wire.Unsubscribed{ChanID: id, Status: "OK"})
		}
	}
}

// OnReconnect replays all subscription work after a fresh connection: every
// still-pending descriptor is presumed lost and moved back into the offline
// queue, every previously live channel is replayed locally (the old ids died
// with the old connection), and finally the offline queue is flushed in FIFO
// order.
func (r *Registry) OnReconnect() {
	for _, d := range r.pending.drain() {
		r.offline.add(d)
	}

	r.ResubscribeAll(false)

	for _, d := range r.offline.drain() {
		r.RequestSubscription(d.Wire, d)
	}
}

// DropMatchingPending removes and returns every pending descriptor the
// server's error event fields identify. Used when the server rejects a
// subscribe request: the request is dropped, never retried.
func (r *Registry) DropMatchingPending(fields map[string]any) []*Descriptor {
	return r.pending.popMatching(fields)
}

// IDForRequest returns the live channel id carrying an equal wire request.
// A linear scan is fine here: channel counts are tens, not thousands.
func (r *Registry) IDForRequest(req wire.Request) (int, bool) {
	for id, existing := range r.channels {
		if existing.Equal(req) {
			return id, true
		}
	}
	return 0, false
}

// ChannelOfID returns the wire request bound to a live channel id.
func (r *Registry) ChannelOfID(chanID int) (wire.Request, bool) {
	req, ok := r.channels[chanID]
	return req, ok
}

// LiveChannels returns all live channel ids in ascending order.
func (r *Registry) LiveChannels() []int {
	ids := make([]int, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// PendingCount returns the number of descriptors awaiting a subscribe ack.
func (r *Registry) PendingCount() int { return r.pending.len() }

// QueuedCount returns the number of descriptors waiting for a connection.
func (r *Registry) QueuedCount() int { return r.offline.len() }

// removeConsumer drops any queued descriptor owned by the consumer.
func (r *Registry) removeConsumer(c Consumer) {
	r.pending.remove(c)
	r.offline.remove(c)
}
