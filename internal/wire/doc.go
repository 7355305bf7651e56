// Package wire encodes and decodes Bitfinex v2 WebSocket frames.
//
// The server speaks two message shapes over text frames: JSON objects with an
// "event" field (control traffic: subscribed, unsubscribed, error, info, pong)
// and JSON arrays [chanId, payload] (data traffic: snapshots, incremental
// updates, heartbeats). Decode classifies a raw frame into one of the Message
// variants; Request builds and matches outbound subscribe actions.
package wire
