/*
Package notify merges the personal and broadcast notification streams into one
deduplicated, recency-ordered feed.

This file defines the Aggregator struct: optimistic insertion on push,
authoritative refresh on demand, read-state transitions, and best-effort actor
attribution. Notifications are never hard-deleted here; deletion belongs to a
collaborator.
*/
package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"storesync/internal/app/event"
	"storesync/internal/app/identity"
	"storesync/internal/app/store"
	"storesync/internal/pkg/logx"
)

const (
	// refreshPageSize bounds the personal page pulled on refresh.
	refreshPageSize = 50

	// countFollowUpDelay is the short delay before the authoritative unread
	// count fetch scheduled after a push.
	countFollowUpDelay = 2 * time.Second

	// GenericActorLabel replaces an unresolvable actor display name.
	GenericActorLabel = "Someone"
)

// Notifications is the collaborator contract the aggregator depends on.
type Notifications interface {
	GetUserNotifications(ctx context.Context, userID string, query store.NotificationQuery) ([]event.Notification, error)
	GetGlobalNotifications(ctx context.Context) ([]event.Notification, error)
	GetNotificationUnreadCount(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	MarkAllGlobalNotificationsRead(ctx context.Context) error
	GetUserDisplayName(ctx context.Context, userID string) (string, error)
}

// Aggregator holds the merged in-memory notification feed for one identity.
//
// Pushes arrive serialized on the connection's dispatch goroutine; view calls
// (markRead, refresh) may run concurrently and are serialized by the mutex.
// Optimistic mutations are assignments, so a stale response arriving after a
// newer one simply wins last (no cancellation of in-flight calls).
type Aggregator struct {
	mu     sync.RWMutex
	items  []event.Notification // newest first
	ids    map[string]struct{}
	unread int

	self identity.Identity
	api  Notifications

	// names caches actor display-name lookups, including generic fallbacks.
	names   map[string]string
	namesMu sync.Mutex

	// countLimiter coalesces the follow-up count fetches scheduled by Push so
	// a burst of pushes produces one correction, not one per push.
	countLimiter *rate.Limiter

	logger zerolog.Logger
}

// NewAggregator constructs an Aggregator for the given identity.
func NewAggregator(api Notifications, self identity.Identity) *Aggregator {
	return &Aggregator{
		ids:          make(map[string]struct{}),
		names:        make(map[string]string),
		self:         self,
		api:          api,
		countLimiter: rate.NewLimiter(rate.Every(countFollowUpDelay), 1),
		logger:       logx.Component("notify"),
	}
}

// List returns the current feed, newest first. The returned slice is a copy.
func (a *Aggregator) List() []event.Notification {
	a.mu.RLock()
	defer a.mu.RUnlock()

	items := make([]event.Notification, len(a.items))
	copy(items, a.items)
	return items
}

// UnreadCount returns the current local unread notification count.
func (a *Aggregator) UnreadCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.unread
}

// HandleEvent is the aggregator's dispatcher sink. Global notifications are
// ignored for non-privileged identities; everything else is pushed.
func (a *Aggregator) HandleEvent(ev event.Event) {
	n, ok := ev.(event.Notification)
	if !ok {
		return
	}

	if n.Global() && !a.self.Role.Privileged() {
		return
	}

	a.Push(n)
}

// Push prepends a notification to the feed immediately, before any network
// round trip. Duplicates (by id) are dropped. An UNREAD push bumps the local
// counter by one, and a follow-up authoritative count fetch is scheduled to
// correct for a race with a concurrent mark-read.
func (a *Aggregator) Push(n event.Notification) {
	a.mu.Lock()

	if _, exists := a.ids[n.ID]; exists {
		a.mu.Unlock()
		return
	}

	a.ids[n.ID] = struct{}{}
	a.items = append([]event.Notification{n}, a.items...)
	if n.Status == event.NotificationUnread {
		a.unread++
	}

	a.mu.Unlock()

	a.resolveActorAsync(n.ID, n.ActorID)
	a.scheduleCountFollowUp()
}

// scheduleCountFollowUp arms one delayed authoritative count fetch. The rate
// limiter keeps a burst of pushes from stacking timers.
func (a *Aggregator) scheduleCountFollowUp() {
	if !a.countLimiter.Allow() {
		return
	}

	time.AfterFunc(countFollowUpDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), countFollowUpDelay)
		defer cancel()

		count, err := a.api.GetNotificationUnreadCount(ctx, a.self.ID)
		if err != nil {
			a.logger.Debug().Err(err).Msg("Follow-up unread count fetch failed.")
			return
		}

		if count < 0 {
			count = 0
		}

		a.mu.Lock()
		a.unread = count
		a.mu.Unlock()
	})
}

// MarkRead flips one notification to READ optimistically, then issues the
// collaborator call. The optimistic flip is not rolled back on failure.
func (a *Aggregator) MarkRead(ctx context.Context, id string) error {
	a.mu.Lock()
	for i := range a.items {
		if a.items[i].ID != id {
			continue
		}
		if a.items[i].Status == event.NotificationUnread {
			a.items[i].Status = event.NotificationRead
			if a.unread > 0 {
				a.unread--
			}
		}
		break
	}
	a.mu.Unlock()

	if err := a.api.MarkNotificationRead(ctx, id); err != nil {
		a.logger.Warn().Err(err).Str("notification_id", id).
			Msg("Authoritative notification mark-read failed. Keeping optimistic state.")
		return err
	}
	return nil
}

// MarkAllRead flips every notification to READ optimistically, then issues the
// personal collaborator call, plus the global one for privileged identities,
// concurrently. Failures are surfaced joined; the optimistic flip stays.
func (a *Aggregator) MarkAllRead(ctx context.Context) error {
	a.mu.Lock()
	for i := range a.items {
		a.items[i].Status = event.NotificationRead
	}
	a.unread = 0
	a.mu.Unlock()

	personalErr := make(chan error, 1)
	go func() {
		personalErr <- a.api.MarkAllNotificationsRead(ctx, a.self.ID)
	}()

	var globalErr error
	if a.self.Role.Privileged() {
		globalErr = a.api.MarkAllGlobalNotificationsRead(ctx)
	}

	err := errors.Join(<-personalErr, globalErr)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Authoritative mark-all-read partially failed. Keeping optimistic state.")
	}
	return err
}

// Refresh replaces the feed wholesale from the collaborators. The personal and
// global queries run in parallel; if one half fails, its current local entries
// survive so the other half's fresh data is still shown. Only a total failure
// is returned as an error.
func (a *Aggregator) Refresh(ctx context.Context) error {
	type fetchResult struct {
		items []event.Notification
		err   error
	}

	personalCh := make(chan fetchResult, 1)
	go func() {
		items, err := a.api.GetUserNotifications(ctx, a.self.ID, store.NotificationQuery{
			Limit: refreshPageSize,
			Sort:  "-createdAt",
		})
		personalCh <- fetchResult{items: items, err: err}
	}()

	global := fetchResult{}
	if a.self.Role.Privileged() {
		global.items, global.err = a.api.GetGlobalNotifications(ctx)
	}

	personal := <-personalCh

	if personal.err != nil && a.self.Role.Privileged() && global.err != nil {
		return errors.Join(personal.err, global.err)
	}
	if personal.err != nil && !a.self.Role.Privileged() {
		return personal.err
	}

	a.mu.Lock()

	if personal.err != nil {
		personal.items = a.scopeLocked(false)
		a.logger.Warn().Err(personal.err).Msg("Personal notification refresh failed. Keeping local personal entries.")
	}
	if global.err != nil {
		global.items = a.scopeLocked(true)
		a.logger.Warn().Err(global.err).Msg("Global notification refresh failed. Keeping local global entries.")
	}

	merged := mergeFeeds(personal.items, global.items)

	a.items = merged
	a.ids = make(map[string]struct{}, len(merged))
	unread := 0
	for _, n := range merged {
		a.ids[n.ID] = struct{}{}
		if n.Status == event.NotificationUnread {
			unread++
		}
	}
	a.unread = unread

	a.mu.Unlock()

	for _, n := range merged {
		a.resolveActorAsync(n.ID, n.ActorID)
	}

	return nil
}

// scopeLocked returns the local entries of one scope. Caller holds the mutex.
func (a *Aggregator) scopeLocked(global bool) []event.Notification {
	var items []event.Notification
	for _, n := range a.items {
		if n.Global() == global {
			items = append(items, n)
		}
	}
	return items
}

// mergeFeeds deduplicates by id and sorts by recency, with the id as a
// tiebreak so repeated refreshes over unchanged data yield identical output.
func mergeFeeds(halves ...[]event.Notification) []event.Notification {
	seen := make(map[string]struct{})
	var merged []event.Notification

	for _, half := range halves {
		for _, n := range half {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			merged = append(merged, n)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID > merged[j].ID
	})

	return merged
}

// resolveActorAsync fills in the actor display name for one notification,
// lazily and best effort. A failed lookup degrades to a generic label instead
// of blocking display; results (including the fallback) are cached per actor.
func (a *Aggregator) resolveActorAsync(notificationID, actorID string) {
	if actorID == "" {
		return
	}

	a.namesMu.Lock()
	name, cached := a.names[actorID]
	a.namesMu.Unlock()

	if cached {
		a.applyActorName(notificationID, name)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		name, err := a.api.GetUserDisplayName(ctx, actorID)
		if err != nil || name == "" {
			name = GenericActorLabel
		}

		a.namesMu.Lock()
		a.names[actorID] = name
		a.namesMu.Unlock()

		a.applyActorName(notificationID, name)
	}()
}

// applyActorName writes a resolved display name onto the feed entry, if it is
// still present.
func (a *Aggregator) applyActorName(notificationID, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.items {
		if a.items[i].ID == notificationID {
			a.items[i].ActorName = name
			return
		}
	}
}
