/*
Package realtime contains the core logic of the realtime synchronization service.

This file defines the Service struct, the process-wide singleton that owns the
connection manager, the dispatcher, the read-status ledger, the notification
aggregator, and the conversation subscription manager for the current identity.
Views receive the service by injection and must never construct their own.
*/
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storesync/internal/app/convsub"
	"storesync/internal/app/event"
	"storesync/internal/app/identity"
	"storesync/internal/app/notify"
	"storesync/internal/app/readstatus"
	"storesync/internal/app/store"
	"storesync/internal/pkg/errs"
	"storesync/internal/pkg/logx"
)

// Service is the singleton realtime sync core for one identity at a time.
// Init and Teardown bracket an identity's session; a login, logout, or account
// switch is an Init with the new credential, never a second Service.
type Service struct {
	api      *store.Client
	registry *Registry
	conn     *Manager

	mu            sync.Mutex
	router        *Router
	ledger        *readstatus.Ledger
	notifications *notify.Aggregator
	conversations *convsub.Manager

	logger zerolog.Logger
}

// NewService constructs the Service. transport is the broker transport;
// brokerURL and retryDelay come from configuration.
func NewService(api *store.Client, transport Transport, brokerURL string, retryDelay time.Duration) *Service {
	registry := NewRegistry()

	return &Service{
		api:      api,
		registry: registry,
		conn:     NewManager(transport, registry, brokerURL, retryDelay),
		logger:   logx.Component("service"),
	}
}

// Init derives the identity from the bearer credential, builds the
// per-identity state, and connects. Re-initializing with the same identity is
// idempotent; a different identity tears the previous state down first.
func (s *Service) Init(ctx context.Context, token string) error {
	id, err := identity.FromToken(token)
	if err != nil {
		return err
	}

	s.mu.Lock()

	if s.router != nil && s.conn.Identity() == id {
		s.mu.Unlock()
		return s.conn.Connect(ctx, id, token)
	}

	s.teardownLocked()

	s.ledger = readstatus.NewLedger(s.api, id)
	s.notifications = notify.NewAggregator(s.api, id)
	s.router = NewRouter(s.ledger.HandleEvent, s.notifications.HandleEvent)
	s.conn.SetDispatcher(s.router.Dispatch)
	s.conversations = convsub.NewManager(s.conn, s.router, s.api)

	notifications := s.notifications
	s.mu.Unlock()

	if err := s.conn.Connect(ctx, id, token); err != nil {
		return err
	}

	// populate the bell without blocking init
	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := notifications.Refresh(refreshCtx); err != nil {
			s.logger.Warn().Err(err).Msg("Initial notification refresh failed.")
		}
	}()

	s.logger.Info().Str("user_id", id.ID).Str("role", string(id.Role)).Msg("Service initialized.")
	return nil
}

// Teardown disconnects and drops the per-identity state. Used on logout and
// process shutdown.
func (s *Service) Teardown() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()

	s.conn.Disconnect()

	s.logger.Info().Msg("Service torn down.")
}

// teardownLocked drops the per-identity components. Caller holds the mutex.
func (s *Service) teardownLocked() {
	if s.conversations != nil {
		s.conversations.Shutdown()
	}
	s.conversations = nil
	s.ledger = nil
	s.notifications = nil
	s.router = nil
}

// IsConnected reports whether the broker session is live.
func (s *Service) IsConnected() bool { return s.conn.IsConnected() }

// Identity returns the current identity.
func (s *Service) Identity() identity.Identity { return s.conn.Identity() }

// OnStatusChange registers a connectivity observer. Views use it for the
// persistent "reconnecting" indicator.
func (s *Service) OnStatusChange(fn func(connected bool)) func() {
	return s.conn.OnStatusChange(fn)
}

// Ledger returns the read-status ledger of the current identity, or nil
// before Init.
func (s *Service) Ledger() *readstatus.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger
}

// Notifications returns the notification aggregator of the current identity,
// or nil before Init.
func (s *Service) Notifications() *notify.Aggregator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications
}

// Conversations returns the conversation subscription manager of the current
// identity, or nil before Init.
func (s *Service) Conversations() *convsub.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations
}

// Router returns the dispatcher of the current identity, or nil before Init.
func (s *Service) Router() *Router {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router
}

// SendChatMessage publishes a chat message and returns the optimistic local
// copy carrying the temporary client id. The view renders the copy
// immediately and replaces it when the echo with the authoritative id
// arrives, deduplicating by id. A send while disconnected fails with
// NotConnected and is never queued.
func (s *Service) SendChatMessage(receiverID, body string) (event.ChatMessage, error) {
	id := s.conn.Identity()
	if id.Zero() {
		return event.ChatMessage{}, errs.NewError(errs.ErrNotConnected)
	}

	tempID := "tmp-" + uuid.NewString()

	conversationKey := receiverID
	if !id.Role.Privileged() {
		conversationKey = id.ID
	}

	msg := event.ChatMessage{
		ID:              tempID,
		TempID:          tempID,
		SenderID:        id.ID,
		ReceiverID:      receiverID,
		Body:            body,
		SenderRole:      id.Role,
		CreatedAt:       time.Now().UTC(),
		ConversationKey: conversationKey,
	}

	topic := event.TopicOperatorPool
	if receiverID != "" {
		topic = event.TopicUserQueue(receiverID)
	}

	if err := s.conn.Send(topic, msg); err != nil {
		return event.ChatMessage{}, err
	}

	return msg, nil
}

// FetchConversation pulls recent history for one conversation from the
// messaging collaborator.
func (s *Service) FetchConversation(ctx context.Context, counterpartyID string, limit int) ([]event.ChatMessage, error) {
	return s.api.GetRecentConversationMessages(ctx, counterpartyID, limit)
}

// Snapshot is a read-only view of the service state for diagnostics.
type Snapshot struct {
	Identity            identity.Identity  `json:"identity"`
	Connected           bool               `json:"connected"`
	UnreadNotifications int                `json:"unreadNotifications"`
	Notifications       int                `json:"notifications"`
	ReadStatus          []readstatus.Entry `json:"readStatus"`
	OpenConversations   int                `json:"openConversations"`
	LiveCallbacks       int                `json:"liveCallbacks"`
}

// State returns the diagnostic snapshot.
func (s *Service) State() Snapshot {
	snap := Snapshot{
		Identity:  s.conn.Identity(),
		Connected: s.conn.IsConnected(),
	}

	s.mu.Lock()
	ledger, notifications, conversations, router := s.ledger, s.notifications, s.conversations, s.router
	s.mu.Unlock()

	if ledger != nil {
		snap.ReadStatus = ledger.Entries()
	}
	if notifications != nil {
		snap.UnreadNotifications = notifications.UnreadCount()
		snap.Notifications = len(notifications.List())
	}
	if conversations != nil {
		snap.OpenConversations = conversations.ActiveCount()
	}
	if router != nil {
		snap.LiveCallbacks = router.CallbackCount()
	}

	return snap
}
