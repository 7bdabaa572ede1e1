/*
Package readstatus maintains the per-counterparty unread bookkeeping.

This file defines the Ledger struct, which tracks unread counts from two
perspectives (operator looking at a user, user looking at the operator side),
applies optimistic mark-as-read zeroing mirrored by an authoritative
collaborator call, and reconciles against server pushes and on-demand
authoritative refreshes.
*/
package readstatus

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"storesync/internal/app/event"
	"storesync/internal/app/identity"
	"storesync/internal/app/store"
	"storesync/internal/pkg/logx"
)

// Perspective selects which side's unread count an entry tracks.
type Perspective string

const (
	// OperatorFromUser counts messages a customer sent that the operator side
	// has not read yet.
	OperatorFromUser Perspective = "operatorFromUser"

	// UserFromOperator counts messages the operator side sent that the
	// customer has not read yet.
	UserFromOperator Perspective = "userFromOperator"
)

// Valid reports whether the perspective is one of the known perspectives.
func (p Perspective) Valid() bool {
	return p == OperatorFromUser || p == UserFromOperator
}

// Messaging is the collaborator contract the ledger depends on.
type Messaging interface {
	GetUnreadCount(ctx context.Context, perspective, counterpartyID string) (int, error)
	MarkAsRead(ctx context.Context, perspective, counterpartyID string, req store.MarkReadRequest) error
}

// Entry is one (counterparty, perspective) unread count, as exposed to views.
type Entry struct {
	CounterpartyID string      `json:"counterpartyId"`
	Perspective    Perspective `json:"perspective"`
	UnreadCount    int         `json:"unreadCount"`
}

// entryKey identifies one ledger slot.
type entryKey struct {
	counterparty string
	perspective  Perspective
}

// Ledger tracks unread counts per (counterparty, perspective) pair.
//
// Inbound events arrive serialized on the connection's dispatch goroutine, so
// increments never race each other. Optimistic mutations from concurrent view
// callers are plain assignments (last writer wins), never read-modify-write.
type Ledger struct {
	mu     sync.RWMutex
	counts map[entryKey]int

	self identity.Identity
	api  Messaging

	logger zerolog.Logger
}

// NewLedger constructs a Ledger for the given identity.
func NewLedger(api Messaging, self identity.Identity) *Ledger {
	return &Ledger{
		counts: make(map[entryKey]int),
		self:   self,
		api:    api,
		logger: logx.Component("readstatus"),
	}
}

// UnreadCount returns the current local unread count for one slot.
// Unknown slots are zero.
func (l *Ledger) UnreadCount(counterpartyID string, perspective Perspective) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.counts[entryKey{counterparty: counterpartyID, perspective: perspective}]
}

// MarkRead zeroes the local count for one slot and issues the authoritative
// mark-as-read to the messaging collaborator.
//
// The local zero is applied before the network call and is not rolled back on
// failure: a "looks read" view beats a flapping counter, and the next
// authoritative refresh self-heals any divergence. Calling MarkRead again with
// the same arguments is a no-op locally (already at the floor) and re-issues
// the idempotent collaborator request.
func (l *Ledger) MarkRead(ctx context.Context, counterpartyID string, perspective Perspective, req store.MarkReadRequest) error {
	key := entryKey{counterparty: counterpartyID, perspective: perspective}

	l.mu.Lock()
	l.counts[key] = 0
	l.mu.Unlock()

	if err := l.api.MarkAsRead(ctx, string(perspective), counterpartyID, req); err != nil {
		l.logger.Warn().Err(err).
			Str("counterparty_id", counterpartyID).
			Str("perspective", string(perspective)).
			Msg("Authoritative mark-as-read failed. Keeping optimistic local zero.")
		return err
	}

	return nil
}

// HandleEvent is the ledger's dispatcher sink. Every decoded event lands here;
// the ledger decides internally whether it is relevant.
func (l *Ledger) HandleEvent(ev event.Event) {
	switch e := ev.(type) {
	case event.ChatMessage:
		l.onInboundMessage(e)
	case event.ReadStatusUpdate:
		l.onReadStatusUpdate(e)
	}
}

// onInboundMessage increments the relevant perspective's counter by exactly one
// per qualifying message. Self-authored echoes (server fan-out of our own
// publish, possibly from another device) are never unread-worthy.
func (l *Ledger) onInboundMessage(msg event.ChatMessage) {
	if msg.SenderID == l.self.ID {
		return
	}

	var perspective Perspective
	if msg.SenderRole.Privileged() {
		perspective = UserFromOperator
	} else {
		perspective = OperatorFromUser
	}

	key := entryKey{counterparty: msg.Key(), perspective: perspective}

	l.mu.Lock()
	l.counts[key]++
	count := l.counts[key]
	l.mu.Unlock()

	l.logger.Debug().
		Str("counterparty_id", key.counterparty).
		Str("perspective", string(perspective)).
		Int("unread_count", count).
		Msg("Inbound message counted as unread.")
}

// onReadStatusUpdate applies a server push as an authoritative replacement.
// Cross-topic arrival order is not guaranteed, so the push always wins over
// whatever local arithmetic produced.
func (l *Ledger) onReadStatusUpdate(u event.ReadStatusUpdate) {
	perspective := Perspective(u.Perspective)
	if !perspective.Valid() {
		l.logger.Warn().
			Str("perspective", u.Perspective).
			Msg("Read status push with unknown perspective dropped.")
		return
	}

	count := u.UnreadCount
	if count < 0 {
		count = 0
	}

	l.mu.Lock()
	l.counts[entryKey{counterparty: u.CounterpartyID, perspective: perspective}] = count
	l.mu.Unlock()
}

// Refresh pulls the authoritative unread count for one slot and replaces the
// local value wholesale. A stale optimistic decrement self-heals within one
// refresh cycle.
func (l *Ledger) Refresh(ctx context.Context, counterpartyID string, perspective Perspective) error {
	count, err := l.api.GetUnreadCount(ctx, string(perspective), counterpartyID)
	if err != nil {
		return err
	}

	if count < 0 {
		count = 0
	}

	l.mu.Lock()
	l.counts[entryKey{counterparty: counterpartyID, perspective: perspective}] = count
	l.mu.Unlock()

	return nil
}

// Entries returns a snapshot of all non-zero slots, ordered for stable output.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	entries := make([]Entry, 0, len(l.counts))
	for key, count := range l.counts {
		if count == 0 {
			continue
		}
		entries = append(entries, Entry{
			CounterpartyID: key.counterparty,
			Perspective:    key.perspective,
			UnreadCount:    count,
		})
	}
	l.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CounterpartyID != entries[j].CounterpartyID {
			return entries[i].CounterpartyID < entries[j].CounterpartyID
		}
		return entries[i].Perspective < entries[j].Perspective
	})

	return entries
}
