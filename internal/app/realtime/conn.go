/*
Package realtime contains the core logic of the realtime synchronization service.

This file defines the connection Manager, which owns at most one live broker
session per authenticated identity. It connects, authenticates, subscribes the
registry's topic set before reporting connected, detects loss from the read
loop, and retries on a fixed delay until an explicit disconnect or an identity
change.
*/
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"storesync/internal/app/event"
	"storesync/internal/app/identity"
	"storesync/internal/pkg/errs"
	"storesync/internal/pkg/logx"
)

// Manager owns the broker connection for the current identity.
//
// All inbound events are delivered through the dispatch hook on the read-loop
// goroutine, so downstream consumers see them serialized. Outbound calls may
// come from any goroutine.
type Manager struct {
	transport  Transport
	registry   *Registry
	brokerURL  string
	retryDelay time.Duration

	// dispatch receives every decoded inbound event. Wired by the service.
	dispatch func(event.Event)

	mu        sync.Mutex
	id        identity.Identity
	token     string
	session   Session
	connected bool

	// gen invalidates stale read loops; it increments on every session
	// establishment and on explicit disconnect.
	gen int

	retryCancel context.CancelFunc

	listeners    map[int]func(connected bool)
	nextListener int

	logger zerolog.Logger
}

// NewManager constructs a connection Manager.
func NewManager(transport Transport, registry *Registry, brokerURL string, retryDelay time.Duration) *Manager {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}

	return &Manager{
		transport:  transport,
		registry:   registry,
		brokerURL:  brokerURL,
		retryDelay: retryDelay,
		listeners:  make(map[int]func(bool)),
		logger:     logx.Component("conn"),
	}
}

// SetDispatcher wires the inbound event sink. Must be called before Connect.
func (m *Manager) SetDispatcher(dispatch func(event.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatch = dispatch
}

// Connect establishes the session for the given identity and credential.
//
// Calling it again with the identity already live is a no-op. A different
// identity tears the old session down first; connections are never shared
// across identities. An AuthFailure is surfaced once and not retried with the
// same credential.
func (m *Manager) Connect(ctx context.Context, id identity.Identity, token string) error {
	m.mu.Lock()

	if m.connected && m.session != nil && m.id == id {
		m.mu.Unlock()
		m.logger.Debug().Str("user_id", id.ID).Msg("Connect is a no-op; identity already live.")
		return nil
	}

	m.cancelRetryLocked()
	m.closeSessionLocked()
	wasConnected := m.connected
	m.connected = false
	m.id = id
	m.token = token

	err := m.establishLocked(ctx)
	m.mu.Unlock()

	if err != nil {
		if wasConnected {
			m.notify(false)
		}
		return err
	}

	m.notify(true)
	return nil
}

// Disconnect tears the session down and stops any pending retry.
// Used on logout and identity teardown; no reconnect follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelRetryLocked()
	m.gen++
	wasConnected := m.connected
	m.connected = false
	m.closeSessionLocked()
	m.id = identity.Identity{}
	m.token = ""
	m.mu.Unlock()

	if wasConnected {
		m.notify(false)
	}

	m.logger.Info().Msg("Disconnected.")
}

// IsConnected reports whether a live session exists.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Identity returns the identity of the current (or last requested) session.
func (m *Manager) Identity() identity.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Send publishes a payload to a topic.
//
// A send while disconnected fails with NotConnected; the Manager never queues
// sends across a gap. Re-issuing after reconnect is the caller's job.
func (m *Manager) Send(topic string, payload any) error {
	m.mu.Lock()
	session := m.session
	connected := m.connected
	m.mu.Unlock()

	if !connected || session == nil {
		return errs.NewError(errs.ErrNotConnected)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return errs.NewError(errs.ErrUnknown, err)
	}

	return session.WriteFrame(event.Frame{Op: event.OpPublish, Topic: topic, Payload: raw})
}

// Subscribe opens one additional topic on the live session, beyond the
// registry set. Used for dynamic conversation subscriptions.
func (m *Manager) Subscribe(topic string) error {
	m.mu.Lock()
	session := m.session
	connected := m.connected
	m.mu.Unlock()

	if !connected || session == nil {
		return errs.NewError(errs.ErrNotConnected)
	}

	if err := session.WriteFrame(event.Frame{Op: event.OpSubscribe, Topic: topic}); err != nil {
		return errs.NewError(errs.ErrSubscribeFailed, topic)
	}
	return nil
}

// Unsubscribe closes one dynamic topic. Unsubscribing against a dead
// connection is a no-op, never an error: the broker drops all subscriptions
// with the session anyway.
func (m *Manager) Unsubscribe(topic string) error {
	m.mu.Lock()
	session := m.session
	connected := m.connected
	m.mu.Unlock()

	if !connected || session == nil {
		return nil
	}

	if err := session.WriteFrame(event.Frame{Op: event.OpUnsubscribe, Topic: topic}); err != nil {
		m.logger.Debug().Err(err).Str("topic", topic).Msg("Unsubscribe write failed; session is going away.")
	}
	return nil
}

// OnStatusChange registers a connectivity observer and returns its disposer.
// Observers drive the "reconnecting" indicator in views.
func (m *Manager) OnStatusChange(fn func(connected bool)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// notify fans a status change out to observers, outside the lock.
func (m *Manager) notify(connected bool) {
	m.mu.Lock()
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

// establishLocked dials, authenticates, and subscribes every registry topic
// before the session counts as connected, so no event window exists between
// connect and subscribe. Caller holds the mutex.
func (m *Manager) establishLocked(ctx context.Context) error {
	session, err := m.transport.Dial(ctx, m.brokerURL, m.token)
	if err != nil {
		return err
	}

	authPayload, err := json.Marshal(event.AuthPayload{Token: m.token})
	if err != nil {
		session.Close()
		return errs.NewError(errs.ErrUnknown, err)
	}

	if err := session.WriteFrame(event.Frame{Op: event.OpAuth, Payload: authPayload}); err != nil {
		session.Close()
		return err
	}

	reply, err := session.ReadFrame()
	if err != nil {
		session.Close()
		return err
	}

	switch reply.Op {
	case event.OpOK:
	case event.OpError:
		session.Close()
		return errs.NewError(errs.ErrAuthFailure)
	default:
		session.Close()
		return fmt.Errorf("unexpected broker reply %q to auth", reply.Op)
	}

	subs := m.registry.TopicsFor(m.id)
	for _, sub := range subs {
		if err := session.WriteFrame(event.Frame{Op: event.OpSubscribe, Topic: sub.Topic}); err != nil {
			session.Close()
			return errs.NewError(errs.ErrSubscribeFailed, sub.Topic)
		}
	}

	m.session = session
	m.connected = true
	m.gen++

	go m.readLoop(m.gen, session)

	m.logger.Info().
		Str("user_id", m.id.ID).
		Str("role", string(m.id.Role)).
		Int("topics", len(subs)).
		Msg("Session established and subscribed.")

	return nil
}

// readLoop pulls frames off one session until it dies. gen ties the loop to
// the session it was started for, so a stale loop cannot disturb a newer one.
func (m *Manager) readLoop(gen int, session Session) {
	for {
		frame, err := session.ReadFrame()
		if err != nil {
			m.handleLoss(gen, err)
			return
		}

		switch frame.Op {
		case event.OpEvent:
			m.dispatchFrame(frame)

		case event.OpError:
			var ep event.ErrorPayload
			_ = json.Unmarshal(frame.Payload, &ep)
			m.logger.Warn().
				Int("code", ep.Code).
				Str("message", ep.Message).
				Str("topic", frame.Topic).
				Msg("Broker reported an error frame.")

		default:
			// control acknowledgments carry no event
		}
	}
}

// dispatchFrame decodes one event frame and hands it to the dispatcher.
// A frame without a decoder or with a malformed payload is logged and dropped;
// one bad frame must not take down unrelated subscribers.
func (m *Manager) dispatchFrame(frame event.Frame) {
	decode := m.registry.DecoderFor(frame.Topic)
	if decode == nil {
		m.logger.Warn().Str("topic", frame.Topic).Msg("Event frame on unknown topic dropped.")
		return
	}

	ev, err := decode(frame.Topic, frame.Payload)
	if err != nil {
		m.logger.Warn().Err(err).Str("topic", frame.Topic).Msg("Malformed event frame dropped.")
		return
	}

	m.mu.Lock()
	dispatch := m.dispatch
	m.mu.Unlock()

	if dispatch != nil {
		dispatch(ev)
	}
}

// handleLoss transitions to disconnected after an unexpected session loss and
// arms the retry loop. A stale generation means the loss was already handled
// or the disconnect was explicit.
func (m *Manager) handleLoss(gen int, cause error) {
	m.mu.Lock()

	if gen != m.gen || !m.connected {
		m.mu.Unlock()
		return
	}

	m.connected = false
	m.closeSessionLocked()
	id := m.id

	retryCtx, cancel := context.WithCancel(context.Background())
	m.retryCancel = cancel

	m.mu.Unlock()

	m.logger.Warn().Err(cause).Str("user_id", id.ID).Msg("Session lost. Scheduling reconnect.")
	m.notify(false)

	go m.runRetryLoop(retryCtx, id)
}

// runRetryLoop waits the fixed delay, then retries session establishment at a
// constant interval. There is no backoff growth and no retry cap: retries
// persist as long as the identity is present. The loop stops on explicit
// disconnect, identity change, or an AuthFailure (the credential is presumed
// stale; a fresh Connect is required).
func (m *Manager) runRetryLoop(ctx context.Context, id identity.Identity) {
	select {
	case <-time.After(m.retryDelay):
	case <-ctx.Done():
		return
	}

	backoff := retry.NewConstant(m.retryDelay)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		m.mu.Lock()

		if m.connected || m.id != id {
			m.mu.Unlock()
			return nil
		}

		err := m.establishLocked(ctx)
		m.mu.Unlock()

		if err == nil {
			m.notify(true)
			return nil
		}

		if errors.Is(err, errs.NewError(errs.ErrAuthFailure)) {
			return err
		}

		m.logger.Warn().Err(err).Msg("Reconnect attempt failed. Retrying after fixed delay.")
		return retry.RetryableError(err)
	})

	if err != nil && ctx.Err() == nil {
		m.logger.Error().Err(err).Msg("Reconnect abandoned; a fresh connect with a valid credential is required.")
	}
}

// cancelRetryLocked stops a pending retry loop. Caller holds the mutex.
// Only one retry timer is ever live at a time.
func (m *Manager) cancelRetryLocked() {
	if m.retryCancel != nil {
		m.retryCancel()
		m.retryCancel = nil
	}
}

// closeSessionLocked closes and forgets the current session, if any.
// Caller holds the mutex.
func (m *Manager) closeSessionLocked() {
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("Session close error during teardown.")
		}
		m.session = nil
	}
}
