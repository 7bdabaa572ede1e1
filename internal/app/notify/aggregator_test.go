package notify

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
	"storesync/internal/app/store"
)

// fakeNotifications serves scripted feeds and records mark-read traffic.
type fakeNotifications struct {
	mu sync.Mutex

	personal    []event.Notification
	personalErr error

	global    []event.Notification
	globalErr error

	unreadCount    int
	unreadCountErr error

	displayNames   map[string]string
	displayNameErr error

	markedRead        []string
	markedAllPersonal int
	markedAllGlobal   int
	markErr           error
}

func (f *fakeNotifications) GetUserNotifications(ctx context.Context, userID string, query store.NotificationQuery) ([]event.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Notification(nil), f.personal...), f.personalErr
}

func (f *fakeNotifications) GetGlobalNotifications(ctx context.Context) ([]event.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Notification(nil), f.global...), f.globalErr
}

func (f *fakeNotifications) GetNotificationUnreadCount(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreadCount, f.unreadCountErr
}

func (f *fakeNotifications) MarkNotificationRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, id)
	return f.markErr
}

func (f *fakeNotifications) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedAllPersonal++
	return f.markErr
}

func (f *fakeNotifications) MarkAllGlobalNotificationsRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedAllGlobal++
	return f.markErr
}

func (f *fakeNotifications) GetUserDisplayName(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.displayNameErr != nil {
		return "", f.displayNameErr
	}
	return f.displayNames[userID], nil
}

var (
	customerSelf = identity.Identity{ID: "u-1", Role: identity.RoleCustomer}
	managerSelf  = identity.Identity{ID: "mg-1", Role: identity.RoleManager}
)

func personalNote(id, userID string, createdAt time.Time) event.Notification {
	return event.Notification{
		ID:        id,
		UserID:    userID,
		Type:      "ORDER",
		Message:   "order update",
		Status:    event.NotificationUnread,
		CreatedAt: createdAt,
	}
}

func globalNote(id string, createdAt time.Time) event.Notification {
	return event.Notification{
		ID:        id,
		Type:      "SYSTEM",
		Message:   "maintenance window",
		Status:    event.NotificationUnread,
		CreatedAt: createdAt,
	}
}

func TestPushPrependsBeforeAnyRoundTrip(t *testing.T) {
	a := NewAggregator(&fakeNotifications{}, customerSelf)

	now := time.Now()
	a.Push(personalNote("n-1", "u-1", now))
	a.Push(personalNote("n-2", "u-1", now.Add(time.Minute)))

	items := a.List()
	require.Len(t, items, 2)
	assert.Equal(t, "n-2", items[0].ID)
	assert.Equal(t, 2, a.UnreadCount())
}

func TestPushDeduplicatesByID(t *testing.T) {
	a := NewAggregator(&fakeNotifications{}, customerSelf)

	n := personalNote("n-1", "u-1", time.Now())
	a.Push(n)
	a.Push(n)

	assert.Len(t, a.List(), 1)
	assert.Equal(t, 1, a.UnreadCount())
}

func TestPushReadStatusDoesNotBumpUnread(t *testing.T) {
	a := NewAggregator(&fakeNotifications{}, customerSelf)

	n := personalNote("n-1", "u-1", time.Now())
	n.Status = event.NotificationRead
	a.Push(n)

	assert.Equal(t, 0, a.UnreadCount())
}

func TestHandleEventDropsGlobalForNonPrivileged(t *testing.T) {
	a := NewAggregator(&fakeNotifications{}, customerSelf)

	a.HandleEvent(globalNote("g-1", time.Now()))
	assert.Empty(t, a.List())

	b := NewAggregator(&fakeNotifications{}, managerSelf)
	b.HandleEvent(globalNote("g-1", time.Now()))
	assert.Len(t, b.List(), 1)
}

func TestRefreshMergesAndSorts(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	api := &fakeNotifications{
		personal: []event.Notification{
			personalNote("n-1", "mg-1", now.Add(-2*time.Minute)),
			personalNote("n-2", "mg-1", now),
		},
		global: []event.Notification{
			globalNote("g-1", now.Add(-time.Minute)),
		},
	}
	a := NewAggregator(api, managerSelf)

	require.NoError(t, a.Refresh(context.Background()))

	ids := func() []string {
		var out []string
		for _, n := range a.List() {
			out = append(out, n.ID)
		}
		return out
	}

	assert.Equal(t, []string{"n-2", "g-1", "n-1"}, ids())
	assert.Equal(t, 3, a.UnreadCount())

	// a second refresh over unchanged data is idempotent
	require.NoError(t, a.Refresh(context.Background()))
	assert.Equal(t, []string{"n-2", "g-1", "n-1"}, ids())
	assert.Equal(t, 3, a.UnreadCount())
}

func TestRefreshPartialFailureKeepsFailedScopeLocal(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	api := &fakeNotifications{
		personal: []event.Notification{personalNote("n-1", "mg-1", now)},
		global:   []event.Notification{globalNote("g-1", now.Add(-time.Minute))},
	}
	a := NewAggregator(api, managerSelf)
	require.NoError(t, a.Refresh(context.Background()))

	// the global half now fails; its previously fetched entries must survive
	api.mu.Lock()
	api.globalErr = errors.New("global feed down")
	api.personal = append(api.personal, personalNote("n-2", "mg-1", now.Add(time.Minute)))
	api.mu.Unlock()

	require.NoError(t, a.Refresh(context.Background()))

	var ids []string
	for _, n := range a.List() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"n-2", "n-1", "g-1"}, ids)
}

func TestRefreshTotalFailureReturnsError(t *testing.T) {
	api := &fakeNotifications{
		personalErr: errors.New("personal down"),
		globalErr:   errors.New("global down"),
	}
	a := NewAggregator(api, managerSelf)

	assert.Error(t, a.Refresh(context.Background()))
}

func TestMarkReadOptimisticAndIdempotent(t *testing.T) {
	api := &fakeNotifications{}
	a := NewAggregator(api, customerSelf)

	a.Push(personalNote("n-1", "u-1", time.Now()))
	require.Equal(t, 1, a.UnreadCount())

	require.NoError(t, a.MarkRead(context.Background(), "n-1"))
	assert.Equal(t, 0, a.UnreadCount())
	assert.Equal(t, event.NotificationRead, a.List()[0].Status)

	// a second mark-read neither underflows nor errors
	require.NoError(t, a.MarkRead(context.Background(), "n-1"))
	assert.Equal(t, 0, a.UnreadCount())

	api.mu.Lock()
	assert.Equal(t, []string{"n-1", "n-1"}, api.markedRead)
	api.mu.Unlock()
}

func TestMarkReadKeepsOptimisticStateOnFailure(t *testing.T) {
	api := &fakeNotifications{markErr: errors.New("boom")}
	a := NewAggregator(api, customerSelf)

	a.Push(personalNote("n-1", "u-1", time.Now()))

	assert.Error(t, a.MarkRead(context.Background(), "n-1"))
	assert.Equal(t, 0, a.UnreadCount())
	assert.Equal(t, event.NotificationRead, a.List()[0].Status)
}

func TestMarkAllReadPrivilegedHitsBothScopes(t *testing.T) {
	api := &fakeNotifications{}
	a := NewAggregator(api, managerSelf)

	a.Push(personalNote("n-1", "mg-1", time.Now()))
	a.Push(globalNote("g-1", time.Now()))

	require.NoError(t, a.MarkAllRead(context.Background()))
	assert.Equal(t, 0, a.UnreadCount())

	api.mu.Lock()
	assert.Equal(t, 1, api.markedAllPersonal)
	assert.Equal(t, 1, api.markedAllGlobal)
	api.mu.Unlock()
}

func TestMarkAllReadCustomerSkipsGlobalScope(t *testing.T) {
	api := &fakeNotifications{}
	a := NewAggregator(api, customerSelf)

	a.Push(personalNote("n-1", "u-1", time.Now()))
	require.NoError(t, a.MarkAllRead(context.Background()))

	api.mu.Lock()
	assert.Equal(t, 1, api.markedAllPersonal)
	assert.Equal(t, 0, api.markedAllGlobal)
	api.mu.Unlock()
}

func TestActorNameResolution(t *testing.T) {
	api := &fakeNotifications{displayNames: map[string]string{"u-7": "Dana"}}
	a := NewAggregator(api, customerSelf)

	n := personalNote("n-1", "u-1", time.Now())
	n.ActorID = "u-7"
	a.Push(n)

	require.Eventually(t, func() bool {
		return a.List()[0].ActorName == "Dana"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestActorNameFallsBackToGenericLabel(t *testing.T) {
	api := &fakeNotifications{displayNameErr: errors.New("lookup failed")}
	a := NewAggregator(api, customerSelf)

	n := personalNote("n-1", "u-1", time.Now())
	n.ActorID = "u-404"
	a.Push(n)

	require.Eventually(t, func() bool {
		return a.List()[0].ActorName == GenericActorLabel
	}, 2*time.Second, 5*time.Millisecond)
}
