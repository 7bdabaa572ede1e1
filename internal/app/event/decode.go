/*
Package event defines the wire protocol frames and the typed domain events of the
realtime sync core.

This file defines the topic decoders. A decoder is a pure function from a raw
frame payload to a domain event; a malformed payload returns an error, and the
caller logs and drops the frame so one bad frame never takes down the dispatcher.
*/
package event

import (
	"encoding/json"
	"fmt"
)

// Decoder turns a raw frame payload into a typed domain event.
// The topic the frame arrived on is recorded on the event.
type Decoder func(topic string, payload json.RawMessage) (Event, error)

// DecodeChatMessage decodes a chat message payload.
func DecodeChatMessage(topic string, payload json.RawMessage) (Event, error) {
	var m ChatMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("chat message payload: %w", err)
	}
	if m.ID == "" || m.SenderID == "" {
		return nil, fmt.Errorf("chat message payload missing id or sender")
	}
	m.Topic = topic
	return m, nil
}

// DecodeMessageAck decodes a publish acknowledgment payload.
func DecodeMessageAck(topic string, payload json.RawMessage) (Event, error) {
	var a MessageAck
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("message ack payload: %w", err)
	}
	if a.MessageID == "" {
		return nil, fmt.Errorf("message ack payload missing message id")
	}
	a.Topic = topic
	return a, nil
}

// DecodeNotification decodes a notification payload.
func DecodeNotification(topic string, payload json.RawMessage) (Event, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("notification payload: %w", err)
	}
	if n.ID == "" {
		return nil, fmt.Errorf("notification payload missing id")
	}
	if n.Status == "" {
		n.Status = NotificationUnread
	}
	n.Topic = topic
	return n, nil
}

// DecodeReadStatus decodes a read-status broadcast payload.
func DecodeReadStatus(topic string, payload json.RawMessage) (Event, error) {
	var u ReadStatusUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil, fmt.Errorf("read status payload: %w", err)
	}
	if u.CounterpartyID == "" || u.UnreadCount < 0 {
		return nil, fmt.Errorf("read status payload invalid")
	}
	u.Topic = topic
	return u, nil
}

// DecodePresence decodes a presence broadcast payload.
func DecodePresence(topic string, payload json.RawMessage) (Event, error) {
	var p PresenceUpdate
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("presence payload: %w", err)
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("presence payload missing user id")
	}
	p.Topic = topic
	return p, nil
}
