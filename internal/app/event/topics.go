/*
Package event defines the wire protocol frames and the typed domain events of the
realtime sync core.

This file defines the topic namespace of the pub/sub broker. Topic names are
part of the wire protocol and are built here so every component agrees on them.
*/
package event

const (
	// TopicBroadcast carries chat messages addressed to everyone.
	TopicBroadcast = "chat.broadcast"

	// TopicOperatorPool carries messages addressed to the operator pool
	// rather than a specific user. Privileged identities only.
	TopicOperatorPool = "chat.operators"

	// TopicReadStatus carries read-status broadcasts.
	TopicReadStatus = "chat.read-status"

	// TopicPresence carries presence broadcasts.
	TopicPresence = "presence"

	// TopicOperatorNotifications carries notifications addressed to the
	// operator team. Privileged identities only.
	TopicOperatorNotifications = "notify.operators"

	// TopicGlobalNotifications carries global notifications. Privileged
	// identities only.
	TopicGlobalNotifications = "notify.global"
)

// TopicUserQueue is the private message queue of one user.
func TopicUserQueue(userID string) string { return "chat.user." + userID }

// TopicHistoryQueue is the chat-history reply queue of one user.
func TopicHistoryQueue(userID string) string { return "chat.history." + userID }

// TopicAckQueue is the publish acknowledgment queue of one user, correlating
// temporary client message ids with authoritative server ids.
func TopicAckQueue(userID string) string { return "chat.ack." + userID }

// TopicUserNotifications is the personal notification queue of one user.
func TopicUserNotifications(userID string) string { return "notify.user." + userID }

// TopicConversation is the per-conversation channel, keyed by the non-operator
// participant. Opened and closed dynamically as conversation views come and go.
func TopicConversation(conversationKey string) string {
	return "chat.conversation." + conversationKey
}
