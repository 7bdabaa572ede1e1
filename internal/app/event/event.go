/*
Package event defines the wire protocol frames and the typed domain events of the
realtime sync core.

This file defines the Event interface and the concrete event types produced by
the topic decoders: chat messages, message acknowledgments, notifications,
read-status updates, and presence updates.
*/
package event

import (
	"time"

	"storesync/internal/app/identity"
)

// Kind identifies the concrete type of a domain event.
type Kind string

const (
	KindChatMessage  Kind = "CHAT_MESSAGE"
	KindMessageAck   Kind = "MESSAGE_ACK"
	KindNotification Kind = "NOTIFICATION"
	KindReadStatus   Kind = "READ_STATUS"
	KindPresence     Kind = "PRESENCE"
)

// Event is a decoded domain event flowing from the transport to the dispatcher.
type Event interface {
	// EventKind returns the concrete kind of the event.
	EventKind() Kind

	// EventTopic returns the topic the event arrived on.
	EventTopic() string
}

// ChatMessage is a single chat message. Immutable once created; a temporary
// client-assigned id is replaced by the server-assigned one when the echo
// arrives, and consumers deduplicate by id, never by sender.
type ChatMessage struct {
	// ID is the server-assigned message id. On the optimistic local copy this
	// still holds the temporary client id until the ack arrives.
	ID string `json:"id"`

	// TempID is the client-assigned id carried through so the echo can replace
	// the optimistic copy without a visible flicker.
	TempID string `json:"tempId,omitempty"`

	// SenderID identifies the author.
	SenderID string `json:"senderId"`

	// ReceiverID identifies the addressee. Empty means the message is directed
	// at the operator pool rather than a specific user.
	ReceiverID string `json:"receiverId,omitempty"`

	// Body is the message text.
	Body string `json:"body"`

	// SenderRole is the author's role at send time.
	SenderRole identity.Role `json:"senderRole"`

	// CreatedAt is the server-side creation timestamp.
	CreatedAt time.Time `json:"createdAt"`

	// ConversationKey is the id of the non-operator participant. Operator to
	// customer conversations are keyed by the customer regardless of which
	// operator answers.
	ConversationKey string `json:"conversationKey,omitempty"`

	// Topic records the channel the message arrived on. Not serialized.
	Topic string `json:"-"`
}

// EventKind implements Event.
func (m ChatMessage) EventKind() Kind { return KindChatMessage }

// EventTopic implements Event.
func (m ChatMessage) EventTopic() string { return m.Topic }

// Key returns the conversation key, deriving it from the participants when the
// server did not fill it in: the non-operator side identifies the conversation.
func (m ChatMessage) Key() string {
	if m.ConversationKey != "" {
		return m.ConversationKey
	}
	if m.SenderRole.Privileged() {
		return m.ReceiverID
	}
	return m.SenderID
}

// MessageAck correlates a client temporary message id with the authoritative
// server-assigned id once the publish has been accepted.
type MessageAck struct {
	TempID    string `json:"tempId"`
	MessageID string `json:"id"`
	Timestamp int64  `json:"timestamp"`

	Topic string `json:"-"`
}

// EventKind implements Event.
func (a MessageAck) EventKind() Kind { return KindMessageAck }

// EventTopic implements Event.
func (a MessageAck) EventTopic() string { return a.Topic }

// NotificationStatus is the read state of a notification.
type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "UNREAD"
	NotificationRead   NotificationStatus = "READ"
)

// Notification is a personal or global notification. Global notifications have
// no owning user and are visible only to privileged identities.
type Notification struct {
	// ID is the notification id.
	ID string `json:"id"`

	// UserID is the owning user. Empty means global scope.
	UserID string `json:"userId,omitempty"`

	// Type classifies the notification (e.g. "ORDER", "CHAT", "SYSTEM").
	Type string `json:"type"`

	// Message is the notification text.
	Message string `json:"message"`

	// Anchor is an optional navigation target for the notification.
	Anchor string `json:"anchor,omitempty"`

	// ActorID identifies the user whose action produced the notification.
	ActorID string `json:"actorId,omitempty"`

	// ActorName is the resolved display name of the actor. Enriched locally,
	// best effort; empty means unresolved.
	ActorName string `json:"actorName,omitempty"`

	// Status is the read state.
	Status NotificationStatus `json:"status"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"createdAt"`

	Topic string `json:"-"`
}

// EventKind implements Event.
func (n Notification) EventKind() Kind { return KindNotification }

// EventTopic implements Event.
func (n Notification) EventTopic() string { return n.Topic }

// Global reports whether the notification is global scope.
func (n Notification) Global() bool { return n.UserID == "" }

// ReadStatusUpdate is an authoritative unread-count push for one conversation
// and perspective, emitted when the counterparty marks messages read.
type ReadStatusUpdate struct {
	CounterpartyID string    `json:"counterpartyId"`
	Perspective    string    `json:"perspective"`
	UnreadCount    int       `json:"unreadCount"`
	At             time.Time `json:"at"`

	Topic string `json:"-"`
}

// EventKind implements Event.
func (u ReadStatusUpdate) EventKind() Kind { return KindReadStatus }

// EventTopic implements Event.
func (u ReadStatusUpdate) EventTopic() string { return u.Topic }

// PresenceUpdate announces a user's online state change.
type PresenceUpdate struct {
	UserID string    `json:"userId"`
	Online bool      `json:"online"`
	At     time.Time `json:"at"`

	Topic string `json:"-"`
}

// EventKind implements Event.
func (p PresenceUpdate) EventKind() Kind { return KindPresence }

// EventTopic implements Event.
func (p PresenceUpdate) EventTopic() string { return p.Topic }
