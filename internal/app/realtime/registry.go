/*
Package realtime contains the core logic of the realtime synchronization service:
the connection lifecycle, the channel subscription registry, and the event
dispatcher that fans inbound events out to the in-process consumers.

This file defines the subscription registry: the declarative map from logical
topic to decoder, and the computation of the topic set for a given identity.
*/
package realtime

import (
	"strings"

	"storesync/internal/app/event"
	"storesync/internal/app/identity"
)

// Subscription pairs a topic with the decoder for its payloads.
type Subscription struct {
	Topic  string
	Decode event.Decoder
}

// Registry computes topic sets and resolves decoders.
//
// Role gating is evaluated once per connect; a role change mid-session takes
// effect only after a reconnect. This is a deliberate simplification.
type Registry struct{}

// NewRegistry constructs a Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// TopicsFor returns the subscriptions appropriate for the identity's role.
// Every identity gets the broadcast chat topic, its private message, history
// reply, and ack queues, its personal notification queue, and the read-status
// and presence broadcasts. Privileged identities additionally get the operator
// pool, operator notifications, and global notifications.
func (r *Registry) TopicsFor(id identity.Identity) []Subscription {
	subs := []Subscription{
		{Topic: event.TopicBroadcast, Decode: event.DecodeChatMessage},
		{Topic: event.TopicUserQueue(id.ID), Decode: event.DecodeChatMessage},
		{Topic: event.TopicHistoryQueue(id.ID), Decode: event.DecodeChatMessage},
		{Topic: event.TopicAckQueue(id.ID), Decode: event.DecodeMessageAck},
		{Topic: event.TopicUserNotifications(id.ID), Decode: event.DecodeNotification},
		{Topic: event.TopicReadStatus, Decode: event.DecodeReadStatus},
		{Topic: event.TopicPresence, Decode: event.DecodePresence},
	}

	if id.Role.Privileged() {
		subs = append(subs,
			Subscription{Topic: event.TopicOperatorPool, Decode: event.DecodeChatMessage},
			Subscription{Topic: event.TopicOperatorNotifications, Decode: event.DecodeNotification},
			Subscription{Topic: event.TopicGlobalNotifications, Decode: event.DecodeNotification},
		)
	}

	return subs
}

// DecoderFor resolves the decoder for a topic, including dynamically opened
// conversation topics. Unknown topics return nil and the frame is dropped.
func (r *Registry) DecoderFor(topic string) event.Decoder {
	switch topic {
	case event.TopicBroadcast, event.TopicOperatorPool:
		return event.DecodeChatMessage
	case event.TopicReadStatus:
		return event.DecodeReadStatus
	case event.TopicPresence:
		return event.DecodePresence
	case event.TopicOperatorNotifications, event.TopicGlobalNotifications:
		return event.DecodeNotification
	}

	switch {
	case strings.HasPrefix(topic, "chat.conversation."),
		strings.HasPrefix(topic, "chat.user."),
		strings.HasPrefix(topic, "chat.history."):
		return event.DecodeChatMessage
	case strings.HasPrefix(topic, "chat.ack."):
		return event.DecodeMessageAck
	case strings.HasPrefix(topic, "notify.user."):
		return event.DecodeNotification
	}

	return nil
}
