// Package connection manages the single multiplexed WebSocket connection to
// the market data server.
//
// Client is one physical connection attempt; Lifecycle wraps successive
// attempts behind stable message and error channels so the stream layer can
// select on the same channels across reconnects.
package connection
