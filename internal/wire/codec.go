package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Decode errors.
var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrUnknownShape = errors.New("unrecognized message shape")
)

// Message is a decoded server frame. Exactly one of the concrete types in
// this package is returned by Decode.
type Message interface {
	isMessage()
}

// Heartbeat is [chanId, "hb"]. It carries no data.
type Heartbeat struct {
	ChanID int
}

// Snapshot is [chanId, [[...],[...]]] — the initial full state for a channel.
type Snapshot struct {
	ChanID int
	Rows   [][]float64
}

// Update is an incremental delta: [chanId, [...]] or [chanId, "te"|"tu", [...]].
type Update struct {
	ChanID int
	Tag    string // "" for plain updates, "te"/"tu" for trade executions
	Row    []float64
}

// Subscribed acknowledges a subscribe request. Fields holds every key the
// server echoed, which is a superset of the request's identifying fields.
type Subscribed struct {
	ChanID  int
	Channel string
	Fields  map[string]any
}

// Unsubscribed acknowledges an unsubscribe request.
type Unsubscribed struct {
	ChanID int
	Status string
}

// ErrorEvent reports a rejected request. Fields echoes the offending
// request's identifying fields.
type ErrorEvent struct {
	Code   int
	Msg    string
	Fields map[string]any
}

// InfoEvent is an out-of-band server notice identified by a closed code set.
type InfoEvent struct {
	Code int
	Msg  string
}

// ConnInfo is the handshake info message sent once after connecting.
type ConnInfo struct {
	Version        int
	PlatformStatus int
}

// Pong answers a client ping.
type Pong struct{}

func (Heartbeat) isMessage()    {}
func (Snapshot) isMessage()     {}
func (Update) isMessage()       {}
func (Subscribed) isMessage()   {}
func (Unsubscribed) isMessage() {}
func (ErrorEvent) isMessage()   {}
func (InfoEvent) isMessage()    {}
func (ConnInfo) isMessage()     {}
func (Pong) isMessage()         {}

// SupportedVersion is the protocol version this codec understands.
const SupportedVersion = 2

// Decode classifies and decodes a raw text frame.
func Decode(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyFrame
	}

	switch trimmed[0] {
	case '[':
		return decodeArray(trimmed)
	case '{':
		return decodeEvent(trimmed)
	}
	return nil, fmt.Errorf("%w: leading byte %q", ErrUnknownShape, trimmed[0])
}

// decodeArray handles data frames: heartbeats, snapshots and updates.
func decodeArray(data []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("decode data frame: %w", err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: data frame with %d elements", ErrUnknownShape, len(parts))
	}

	var chanID int
	if err := json.Unmarshal(parts[0], &chanID); err != nil {
		return nil, fmt.Errorf("decode channel id: %w", err)
	}

	// [chanId, "hb"] or [chanId, "te"|"tu", row]
	if parts[1][0] == '"' {
		var tag string
		if err := json.Unmarshal(parts[1], &tag); err != nil {
			return nil, fmt.Errorf("decode payload tag: %w", err)
		}
		if tag == "hb" {
			return Heartbeat{ChanID: chanID}, nil
		}
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: tagged frame %q without payload", ErrUnknownShape, tag)
		}
		var row []float64
		if err := json.Unmarshal(parts[2], &row); err != nil {
			return nil, fmt.Errorf("decode tagged update: %w", err)
		}
		return Update{ChanID: chanID, Tag: tag, Row: row}, nil
	}

	// Nested array of arrays is a snapshot, a flat array is an update.
	var probe []json.RawMessage
	if err := json.Unmarshal(parts[1], &probe); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(probe) > 0 && probe[0][0] == '[' {
		var rows [][]float64
		if err := json.Unmarshal(parts[1], &rows); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		return Snapshot{ChanID: chanID, Rows: rows}, nil
	}

	var row []float64
	if err := json.Unmarshal(parts[1], &row); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	return Update{ChanID: chanID, Row: row}, nil
}

// eventEnvelope covers every control event the server sends.
type eventEnvelope struct {
	Event    string `json:"event"`
	ChanID   int    `json:"chanId"`
	Channel  string `json:"channel"`
	Status   string `json:"status"`
	Code     int    `json:"code"`
	Msg      string `json:"msg"`
	Version  int    `json:"version"`
	Platform *struct {
		Status int `json:"status"`
	} `json:"platform"`
}

// decodeEvent handles control frames (JSON objects with an "event" field).
func decodeEvent(data []byte) (Message, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event frame: %w", err)
	}

	switch env.Event {
	case "subscribed":
		fields := make(map[string]any)
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("decode subscribed fields: %w", err)
		}
		return Subscribed{ChanID: env.ChanID, Channel: env.Channel, Fields: fields}, nil

	case "unsubscribed":
		return Unsubscribed{ChanID: env.ChanID, Status: env.Status}, nil

	case "error":
		fields := make(map[string]any)
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("decode error fields: %w", err)
		}
		return ErrorEvent{Code: env.Code, Msg: env.Msg, Fields: fields}, nil

	case "info":
		if env.Platform != nil {
			return ConnInfo{Version: env.Version, PlatformStatus: env.Platform.Status}, nil
		}
		return InfoEvent{Code: env.Code, Msg: env.Msg}, nil

	case "pong":
		return Pong{}, nil
	}

	return nil, fmt.Errorf("%w: event %q", ErrUnknownShape, env.Event)
}
