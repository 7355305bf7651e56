// Package store reconstructs per-channel application state from the
// snapshot+incremental update stream.
//
// Each subscribed channel owns one State (order book, ticker, trades or
// candles) keyed by its server-assigned channel id. States are mutated only
// through ApplySnapshot/ApplyUpdate and additionally record a "what changed"
// signal for the most recent apply, which the fanout layer uses to skip
// consumers that are not interested in the touched side.
//
// The store is owned by the single stream event loop and is not safe for
// concurrent use.
package store
