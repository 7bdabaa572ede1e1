package convsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storesync/internal/app/event"
	"storesync/internal/app/identity"
)

// fakeConnection records topic traffic and lets tests flip connectivity.
type fakeConnection struct {
	mu sync.Mutex

	subscribed     []string
	unsubscribed   []string
	subscribeErr   error
	unsubscribeErr error

	status func(connected bool)
}

func (c *fakeConnection) Subscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.subscribed = append(c.subscribed, topic)
	return nil
}

func (c *fakeConnection) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topic)
	return c.unsubscribeErr
}

func (c *fakeConnection) OnStatusChange(fn func(connected bool)) func() {
	c.status = fn
	return func() { c.status = nil }
}

func (c *fakeConnection) subscribedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

func (c *fakeConnection) unsubscribedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribed...)
}

// fakeEvents is a minimal dispatcher: registered callbacks, delivered by hand.
type fakeEvents struct {
	mu        sync.Mutex
	callbacks map[int]struct {
		matches func(event.Event) bool
		handle  func(event.Event)
	}
	next int
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{callbacks: make(map[int]struct {
		matches func(event.Event) bool
		handle  func(event.Event)
	})}
}

func (e *fakeEvents) RegisterCallback(matches func(event.Event) bool, handle func(event.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.next
	e.next++
	e.callbacks[id] = struct {
		matches func(event.Event) bool
		handle  func(event.Event)
	}{matches, handle}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.callbacks, id)
	}
}

func (e *fakeEvents) dispatch(ev event.Event) {
	e.mu.Lock()
	var handles []func(event.Event)
	for _, cb := range e.callbacks {
		if cb.matches == nil || cb.matches(ev) {
			handles = append(handles, cb.handle)
		}
	}
	e.mu.Unlock()

	for _, h := range handles {
		h(ev)
	}
}

func (e *fakeEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.callbacks)
}

// fakeHistory serves a scripted seed, newest first like the collaborator does.
type fakeHistory struct {
	mu       sync.Mutex
	messages []event.ChatMessage
	err      error
}

func (h *fakeHistory) GetRecentConversationMessages(ctx context.Context, counterpartyID string, limit int) ([]event.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.ChatMessage(nil), h.messages...), h.err
}

func conversationMessage(id, key string) event.ChatMessage {
	return event.ChatMessage{
		ID:              id,
		SenderID:        "op-9",
		SenderRole:      identity.RoleOperator,
		ConversationKey: key,
	}
}

func TestOpenSubscribesConversationTopic(t *testing.T) {
	conn := &fakeConnection{}
	m := NewManager(conn, newFakeEvents(), nil)

	h, err := m.Open(context.Background(), "u-1", func(event.ChatMessage) {})
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, []string{event.TopicConversation("u-1")}, conn.subscribedTopics())
	assert.Equal(t, StateActive, m.State("u-1"))
}

func TestOpenSharesExistingSubscription(t *testing.T) {
	conn := &fakeConnection{}
	events := newFakeEvents()
	m := NewManager(conn, events, nil)

	h1, err := m.Open(context.Background(), "u-1", func(event.ChatMessage) {})
	require.NoError(t, err)
	h2, err := m.Open(context.Background(), "u-1", func(event.ChatMessage) {})
	require.NoError(t, err)

	assert.Len(t, conn.subscribedTopics(), 1)
	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, 1, events.count())

	h1.Close()
	assert.Equal(t, 1, m.ActiveCount())
	assert.Empty(t, conn.unsubscribedTopics())

	h2.Close()
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, []string{event.TopicConversation("u-1")}, conn.unsubscribedTopics())
	assert.Equal(t, 0, events.count())
}

func TestHandleCloseIdempotent(t *testing.T) {
	conn := &fakeConnection{}
	m := NewManager(conn, newFakeEvents(), nil)

	h, err := m.Open(context.Background(), "u-1", func(event.ChatMessage) {})
	require.NoError(t, err)

	h.Close()
	h.Close()

	assert.Equal(t, 0, m.ActiveCount())
	assert.Len(t, conn.unsubscribedTopics(), 1)
}

func TestCloseWhileConnectionDown(t *testing.T) {
	conn := &fakeConnection{}
	events := newFakeEvents()
	m := NewManager(conn, events, nil)

	h, err := m.Open(context.Background(), "u-1", func(event.ChatMessage) {})
	require.NoError(t, err)

	// connection drops; the unsubscribe on close fails but the local
	// subscription still tears down
	conn.mu.Lock()
	conn.unsubscribeErr = errors.New("not connected")
	conn.mu.Unlock()

	h.Close()

	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, 0, events.count())
	assert.Equal(t, StateClosed, m.State("u-1"))
}

func TestOpenFailsWhenSubscribeFails(t *testing.T) {
	conn := &fakeConnection{subscribeErr: errors.New("not connected")}
	events := newFakeEvents()
	m := NewManager(conn, events, nil)

	_, err := m.Open(context.Background(), "u-1", func(event.ChatMessage) {})
	assert.Error(t, err)
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, 0, events.count())
}

func TestMessagesFanOutToAllHandlers(t *testing.T) {
	conn := &fakeConnection{}
	events := newFakeEvents()
	m := NewManager(conn, events, nil)

	var mu sync.Mutex
	var got []string
	record := func(tag string) func(event.ChatMessage) {
		return func(msg event.ChatMessage) {
			mu.Lock()
			got = append(got, tag+":"+msg.ID)
			mu.Unlock()
		}
	}

	h1, err := m.Open(context.Background(), "u-1", record("a"))
	require.NoError(t, err)
	defer h1.Close()
	h2, err := m.Open(context.Background(), "u-1", record("b"))
	require.NoError(t, err)
	defer h2.Close()

	events.dispatch(conversationMessage("m-1", "u-1"))
	events.dispatch(conversationMessage("m-2", "u-2")) // different conversation

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a:m-1", "b:m-1"}, got)
}

func TestSeedReplaysHistoryOldestFirst(t *testing.T) {
	history := &fakeHistory{messages: []event.ChatMessage{
		conversationMessage("m-3", "u-1"),
		conversationMessage("m-2", "u-1"),
		conversationMessage("m-1", "u-1"),
	}}
	m := NewManager(&fakeConnection{}, newFakeEvents(), history)

	var mu sync.Mutex
	var got []string
	h, err := m.Open(context.Background(), "u-1", func(msg event.ChatMessage) {
		mu.Lock()
		got = append(got, msg.ID)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer h.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"m-1", "m-2", "m-3"}, got)
	mu.Unlock()
}

func TestSeedFailureDoesNotBreakView(t *testing.T) {
	history := &fakeHistory{err: errors.New("history down")}
	events := newFakeEvents()
	m := NewManager(&fakeConnection{}, events, history)

	var mu sync.Mutex
	var got []string
	h, err := m.Open(context.Background(), "u-1", func(msg event.ChatMessage) {
		mu.Lock()
		got = append(got, msg.ID)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer h.Close()

	events.dispatch(conversationMessage("m-1", "u-1"))

	mu.Lock()
	assert.Equal(t, []string{"m-1"}, got)
	mu.Unlock()
}

func TestReconnectResubscribesOpenConversations(t *testing.T) {
	conn := &fakeConnection{}
	m := NewManager(conn, newFakeEvents(), nil)

	h1, err := m.Open(context.Background(), "u-1", func(event.ChatMessage) {})
	require.NoError(t, err)
	defer h1.Close()
	h2, err := m.Open(context.Background(), "u-2", func(event.ChatMessage) {})
	require.NoError(t, err)
	defer h2.Close()

	conn.status(false)
	conn.status(true)

	topics := conn.subscribedTopics()
	assert.Len(t, topics, 4)
	assert.ElementsMatch(t, []string{
		event.TopicConversation("u-1"),
		event.TopicConversation("u-2"),
	}, topics[2:])
}

func TestShutdownClosesEverything(t *testing.T) {
	conn := &fakeConnection{}
	events := newFakeEvents()
	m := NewManager(conn, events, nil)

	_, err := m.Open(context.Background(), "u-1", func(event.ChatMessage) {})
	require.NoError(t, err)
	_, err = m.Open(context.Background(), "u-2", func(event.ChatMessage) {})
	require.NoError(t, err)

	m.Shutdown()

	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, 0, events.count())
	assert.Len(t, conn.unsubscribedTopics(), 2)
	assert.Nil(t, conn.status)
}
