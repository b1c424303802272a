// Package transport is the websocket boundary of the relay. It owns the
// upgrade handshake, one read loop and one buffered write pump per
// connection, and the JSON event envelope exchanged with clients. The
// routing core only sees "connection opened/closed" and "named event
// received/sent".
package transport

import "encoding/json"

// Envelope is the wire frame for every named event, in both directions.
// AckID is present only on requests that expect an acknowledgment; the
// reply carries the same AckID under the reserved "ack" event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID *uint64         `json:"ackId,omitempty"`
}

const EventAck = "ack"

func encodeEnvelope(event string, payload any, ackID *uint64) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data, AckID: ackID})
}
