/*
Package convsub manages dynamic per-conversation topic subscriptions.

Conversation views open and close constantly as users navigate; subscribing
every conversation up front would leave hundreds of idle subscriptions on the
broker. This file defines the Manager that opens a conversation topic when the
first view needs it, shares it across views by reference count, and closes it
when the last view goes away.
*/
package convsub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storesync/internal/app/event"
	"storesync/internal/pkg/logx"
)

// historyLimit bounds the seed fetch when a conversation view opens.
const historyLimit = 50

// State is the lifecycle state of one conversation subscription.
type State string

const (
	StateClosed      State = "closed"
	StateSubscribing State = "subscribing"
	StateActive      State = "active"
)

// Connection is the slice of the connection manager the Manager depends on.
type Connection interface {
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	OnStatusChange(fn func(connected bool)) func()
}

// EventSource is the slice of the dispatcher the Manager depends on.
type EventSource interface {
	RegisterCallback(matches func(event.Event) bool, handle func(event.Event)) func()
}

// History is the collaborator contract used to seed a freshly opened view.
type History interface {
	GetRecentConversationMessages(ctx context.Context, counterpartyID string, limit int) ([]event.ChatMessage, error)
}

// subscription is one live conversation topic, shared by refs views.
type subscription struct {
	key      string
	state    State
	refs     int
	handlers map[int]func(event.ChatMessage)

	// dispose releases the router callback backing this subscription.
	dispose func()
}

// Handle represents one view's claim on a conversation subscription.
// Every Open must be paired with exactly one Close on view teardown; the
// manager shares the underlying subscription but does not police leaks.
type Handle struct {
	key  string
	id   int
	mgr  *Manager
	once sync.Once
}

// Key returns the conversation key the handle is attached to.
func (h *Handle) Key() string { return h.key }

// Close releases the view's claim. Idempotent per handle, and safe while the
// underlying connection is down: an unsubscribe against a dead connection is
// a no-op.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.mgr.closeHandle(h)
	})
}

// Manager tracks the open conversation subscriptions for one identity.
type Manager struct {
	conn    Connection
	events  EventSource
	history History

	mu         sync.Mutex
	subs       map[string]*subscription
	nextHandle int

	// removeStatus releases the reconnect observer.
	removeStatus func()

	logger zerolog.Logger
}

// NewManager constructs a conversation subscription Manager. It observes the
// connection so open conversations are re-subscribed after a reconnect.
func NewManager(conn Connection, events EventSource, history History) *Manager {
	m := &Manager{
		conn:    conn,
		events:  events,
		history: history,
		subs:    make(map[string]*subscription),
		logger:  logx.Component("convsub"),
	}

	m.removeStatus = conn.OnStatusChange(m.onStatusChange)

	return m
}

// Open subscribes the conversation topic for conversationKey and registers
// onMessage for its chat messages. Opening an already-open conversation joins
// the existing subscription. The view is seeded with recent history, best
// effort, in the background.
func (m *Manager) Open(ctx context.Context, conversationKey string, onMessage func(event.ChatMessage)) (*Handle, error) {
	m.mu.Lock()

	sub, ok := m.subs[conversationKey]
	if !ok {
		sub = &subscription{
			key:      conversationKey,
			state:    StateSubscribing,
			handlers: make(map[int]func(event.ChatMessage)),
		}
		sub.dispose = m.events.RegisterCallback(
			func(ev event.Event) bool {
				msg, isMsg := ev.(event.ChatMessage)
				return isMsg && msg.Key() == conversationKey
			},
			func(ev event.Event) {
				m.fanOut(conversationKey, ev.(event.ChatMessage))
			},
		)
		m.subs[conversationKey] = sub

		if err := m.conn.Subscribe(event.TopicConversation(conversationKey)); err != nil {
			sub.dispose()
			delete(m.subs, conversationKey)
			m.mu.Unlock()
			return nil, err
		}
		sub.state = StateActive
	}

	id := m.nextHandle
	m.nextHandle++
	sub.handlers[id] = onMessage
	sub.refs++

	m.mu.Unlock()

	go m.seed(ctx, conversationKey, onMessage)

	m.logger.Debug().Str("conversation_key", conversationKey).Msg("Conversation view opened.")

	return &Handle{key: conversationKey, id: id, mgr: m}, nil
}

// fanOut delivers one message to every handler of a conversation.
func (m *Manager) fanOut(conversationKey string, msg event.ChatMessage) {
	m.mu.Lock()
	sub, ok := m.subs[conversationKey]
	if !ok {
		m.mu.Unlock()
		return
	}
	handlers := make([]func(event.ChatMessage), 0, len(sub.handlers))
	for _, h := range sub.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// seed replays recent conversation history into a freshly opened view,
// oldest first. Failures are logged, never surfaced: the view still works on
// live traffic alone.
func (m *Manager) seed(ctx context.Context, conversationKey string, onMessage func(event.ChatMessage)) {
	if m.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	messages, err := m.history.GetRecentConversationMessages(ctx, conversationKey, historyLimit)
	if err != nil {
		m.logger.Warn().Err(err).Str("conversation_key", conversationKey).Msg("History seed failed.")
		return
	}

	for i := len(messages) - 1; i >= 0; i-- {
		onMessage(messages[i])
	}
}

// closeHandle releases one view's claim and tears the subscription down when
// the last claim goes.
func (m *Manager) closeHandle(h *Handle) {
	m.mu.Lock()

	sub, ok := m.subs[h.key]
	if !ok {
		m.mu.Unlock()
		return
	}

	delete(sub.handlers, h.id)
	sub.refs--

	if sub.refs > 0 {
		m.mu.Unlock()
		return
	}

	sub.dispose()
	sub.state = StateClosed
	delete(m.subs, h.key)
	m.mu.Unlock()

	// no-op when the connection is already down
	if err := m.conn.Unsubscribe(event.TopicConversation(h.key)); err != nil {
		m.logger.Debug().Err(err).Str("conversation_key", h.key).Msg("Unsubscribe on close failed.")
	}

	m.logger.Debug().Str("conversation_key", h.key).Msg("Conversation subscription closed.")
}

// onStatusChange re-subscribes every open conversation after a reconnect.
// The registry topics are re-subscribed by the connection manager itself;
// dynamic conversation topics are this manager's responsibility.
func (m *Manager) onStatusChange(connected bool) {
	if !connected {
		return
	}

	m.mu.Lock()
	keys := make([]string, 0, len(m.subs))
	for key := range m.subs {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	for _, key := range keys {
		if err := m.conn.Subscribe(event.TopicConversation(key)); err != nil {
			m.logger.Warn().Err(err).Str("conversation_key", key).Msg("Conversation re-subscribe after reconnect failed.")
		}
	}
}

// State returns the lifecycle state of one conversation subscription.
func (m *Manager) State(conversationKey string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subs[conversationKey]; ok {
		return sub.state
	}
	return StateClosed
}

// ActiveCount returns the number of open conversation subscriptions.
// The "no dangling subscriptions after view close" check hangs off this.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Shutdown closes every open subscription and stops observing the connection.
func (m *Manager) Shutdown() {
	if m.removeStatus != nil {
		m.removeStatus()
		m.removeStatus = nil
	}

	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]*subscription)
	m.mu.Unlock()

	for key, sub := range subs {
		sub.dispose()
		sub.state = StateClosed
		if err := m.conn.Unsubscribe(event.TopicConversation(key)); err != nil {
			m.logger.Debug().Err(err).Str("conversation_key", key).Msg("Unsubscribe on shutdown failed.")
		}
	}
}
