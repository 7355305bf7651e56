// Package subscription multiplexes consumer data requests onto server
// channels.
//
// The Registry owns the subscribe/unsubscribe request/response protocol:
// it deduplicates identical wire requests so at most one subscribe is in
// flight per distinct request, queues requests while disconnected, replays
// queued and presumed-lost work after a reconnect, and drives the
// unsubscribe-then-resubscribe cycle. The Fanout binds consumers to live
// channel ids, converts their declarative requests into wire requests, and
// delivers materialized views and out-of-band statuses.
//
// Both types are mutable shared state owned by the single stream event-loop
// goroutine; neither is safe for concurrent use.
package subscription
