package wire

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Request is a normalized subscribe action: the exact field set sent to the
// server. Values are strings because the protocol echoes them back verbatim
// in acks and error events.
type Request map[string]string

// Encode serializes the request to a wire frame.
func (r Request) Encode() ([]byte, error) {
	data, err := json.Marshal(map[string]string(r))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// Equal reports whether both requests carry exactly the same fields with the
// same values. Used for request deduplication, where two consumers asking
// for the same data must map onto one subscription.
func (r Request) Equal(other Request) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// MatchesAck reports whether the server's ack fields answer this request.
// Every request field except "event" must appear in the ack with the same
// value; the ack may carry extra fields such as the assigned channel id.
func (r Request) MatchesAck(ack map[string]any) bool {
	for k, v := range r {
		if k == "event" {
			continue
		}
		av, ok := ack[k]
		if !ok {
			return false
		}
		s, ok := av.(string)
		if !ok || s != v {
			return false
		}
	}
	return true
}

// String renders the request with sorted keys, for logs and errors.
func (r Request) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += k + "=" + r[k]
	}
	return out + "}"
}

// EncodeUnsubscribe builds an unsubscribe frame for a channel id.
func EncodeUnsubscribe(chanID int) []byte {
	data, _ := json.Marshal(map[string]any{
		"event":  "unsubscribe",
		"chanId": chanID,
	})
	return data
}

// EncodePing builds a liveness probe frame.
func EncodePing() []byte {
	return []byte(`{"event":"ping"}`)
}
