// Package stream runs the market data engine: one event-loop goroutine that
// owns the subscription registry, the consumer fanout and the per-channel
// reconstruction store, fed by the connection lifecycle and the action
// scheduler.
//
// All mutable state is confined to the loop. External calls post closures
// onto a command channel and the loop executes them between frames, so no
// lock covers the registry, fanout or store.
package stream
