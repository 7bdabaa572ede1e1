/*
Package event defines the wire protocol frames and the typed domain events of the
realtime sync core.

This file defines the Frame struct, the single unit exchanged with the pub/sub
broker, and the operation constants for both directions of the protocol.
*/
package event

import "encoding/json"

// Op identifies the purpose of a wire frame.
type Op string

const (
	// OpAuth carries the bearer credential right after the socket opens.
	OpAuth Op = "AUTH"

	// OpSubscribe asks the broker to start delivering a topic.
	OpSubscribe Op = "SUBSCRIBE"

	// OpUnsubscribe asks the broker to stop delivering a topic.
	OpUnsubscribe Op = "UNSUBSCRIBE"

	// OpPublish pushes a client payload onto a topic.
	OpPublish Op = "PUBLISH"

	// OpEvent is a broker-to-client delivery of a topic payload.
	OpEvent Op = "EVENT"

	// OpOK is the broker's acknowledgment of a control frame.
	OpOK Op = "OK"

	// OpError is the broker's rejection of a control frame.
	OpError Op = "ERROR"
)

// Frame is the wire unit exchanged with the broker. Payload stays raw until the
// topic's decoder turns it into a domain event.
type Frame struct {
	// Op is the frame operation.
	Op Op `json:"op"`

	// Topic names the pub/sub channel the frame belongs to. Empty for
	// connection-level control frames.
	Topic string `json:"topic,omitempty"`

	// Payload is the JSON body. Its shape depends on Op and Topic.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthPayload is the body of an OpAuth frame.
type AuthPayload struct {
	Token string `json:"token"`
}

// ErrorPayload is the body of an OpError frame.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
