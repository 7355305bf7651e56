package subscription

import "github.com/tidefeed/bfxstream/internal/wire"

// Descriptor ties a consumer's declarative request to its normalized wire
// request. A descriptor is owned by exactly one queue at a time (pending,
// offline, or none once its channel is live); it moves between queues and is
// never duplicated.
type Descriptor struct {
	Consumer    Consumer
	Client      ClientRequest
	Wire        wire.Request
	NeedInitial bool
}

// descriptorQueue is a FIFO of descriptors with per-consumer upsert: adding
// a descriptor for a consumer that is already queued replaces its entry in
// place, so a consumer can change its mind while waiting without holding two
// slots.
type descriptorQueue struct {
	queue []*Descriptor
	pos   map[Consumer]int
}

func newDescriptorQueue() *descriptorQueue {
	return &descriptorQueue{pos: make(map[Consumer]int)}
}

func (q *descriptorQueue) len() int {
	return len(q.queue)
}

// add upserts the descriptor, keyed by its consumer.
func (q *descriptorQueue) add(d *Descriptor) {
	if i, ok := q.pos[d.Consumer]; ok {
		q.queue[i] = d
		return
	}
	q.pos[d.Consumer] = len(q.queue)
	q.queue = append(q.queue, d)
}

// remove drops the consumer's queued descriptor, reporting whether one was
// queued.
func (q *descriptorQueue) remove(c Consumer) bool {
	i, ok := q.pos[c]
	if !ok {
		return false
	}
	q.queue = append(q.queue[:i], q.queue[i+1:]...)
	delete(q.pos, c)
	q.reindex(i)
	return true
}

// contains reports whether any queued descriptor carries an equal wire
// request.
func (q *descriptorQueue) contains(req wire.Request) bool {
	for _, d := range q.queue {
		if d.Wire.Equal(req) {
			return true
		}
	}
	return false
}

// popMatching removes and returns, in FIFO order, every descriptor whose
// wire request the ack answers.
func (q *descriptorQueue) popMatching(ack map[string]any) []*Descriptor {
	var matched []*Descriptor
	kept := q.queue[:0]
	for _, d := range q.queue {
		if d.Wire.MatchesAck(ack) {
			matched = append(matched, d)
			delete(q.pos, d.Consumer)
		} else {
			kept = append(kept, d)
		}
	}
	q.queue = kept
	q.reindex(0)
	return matched
}

// drain removes and returns every descriptor in FIFO order.
func (q *descriptorQueue) drain() []*Descriptor {
	out := q.queue
	q.queue = nil
	q.pos = make(map[Consumer]int)
	return out
}

func (q *descriptorQueue) reindex(from int) {
	for i := from; i < len(q.queue); i++ {
		q.pos[q.queue[i].Consumer] = i
	}
}
