package readstatus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storesync/internal/app/event"
	"storesync/internal/app/identity"
	"storesync/internal/app/store"
)

type markReadCall struct {
	perspective    string
	counterpartyID string
	req            store.MarkReadRequest
}

// fakeMessaging records collaborator calls and serves scripted counts.
type fakeMessaging struct {
	mu sync.Mutex

	unreadCounts map[string]int
	unreadErr    error

	markReadCalls []markReadCall
	markReadErr   error
}

func (f *fakeMessaging) GetUnreadCount(ctx context.Context, perspective, counterpartyID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unreadErr != nil {
		return 0, f.unreadErr
	}
	return f.unreadCounts[perspective+"/"+counterpartyID], nil
}

func (f *fakeMessaging) MarkAsRead(ctx context.Context, perspective, counterpartyID string, req store.MarkReadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.markReadCalls = append(f.markReadCalls, markReadCall{
		perspective:    perspective,
		counterpartyID: counterpartyID,
		req:            req,
	})
	return f.markReadErr
}

func (f *fakeMessaging) calls() []markReadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]markReadCall(nil), f.markReadCalls...)
}

var operatorSelf = identity.Identity{ID: "op-9", Role: identity.RoleOperator}

func customerMessage(id, sender string) event.ChatMessage {
	return event.ChatMessage{ID: id, SenderID: sender, SenderRole: identity.RoleCustomer}
}

func TestUnreadMonotonicUnderInboundMessages(t *testing.T) {
	l := NewLedger(&fakeMessaging{}, operatorSelf)

	// three messages from U1, no reads
	l.HandleEvent(customerMessage("m-1", "u-1"))
	l.HandleEvent(customerMessage("m-2", "u-1"))
	l.HandleEvent(customerMessage("m-3", "u-1"))

	assert.Equal(t, 3, l.UnreadCount("u-1", OperatorFromUser))
	assert.Equal(t, 0, l.UnreadCount("u-1", UserFromOperator))
}

func TestSelfAuthoredEchoNotCounted(t *testing.T) {
	l := NewLedger(&fakeMessaging{}, operatorSelf)

	l.HandleEvent(event.ChatMessage{
		ID:         "m-1",
		SenderID:   operatorSelf.ID,
		ReceiverID: "u-1",
		SenderRole: identity.RoleOperator,
	})

	assert.Empty(t, l.Entries())
}

func TestMarkReadZeroesBeforeCollaboratorCall(t *testing.T) {
	api := &fakeMessaging{}
	l := NewLedger(api, operatorSelf)

	l.HandleEvent(customerMessage("m-1", "u-1"))
	l.HandleEvent(customerMessage("m-2", "u-1"))

	require.NoError(t, l.MarkRead(context.Background(), "u-1", OperatorFromUser, store.MarkReadRequest{All: true}))

	assert.Equal(t, 0, l.UnreadCount("u-1", OperatorFromUser))
	calls := api.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "operatorFromUser", calls[0].perspective)
	assert.Equal(t, "u-1", calls[0].counterpartyID)
	assert.True(t, calls[0].req.All)
}

func TestMarkReadIdempotent(t *testing.T) {
	api := &fakeMessaging{}
	l := NewLedger(api, operatorSelf)

	l.HandleEvent(customerMessage("m-1", "u-1"))

	require.NoError(t, l.MarkRead(context.Background(), "u-1", OperatorFromUser, store.MarkReadRequest{All: true}))
	require.NoError(t, l.MarkRead(context.Background(), "u-1", OperatorFromUser, store.MarkReadRequest{All: true}))

	assert.Equal(t, 0, l.UnreadCount("u-1", OperatorFromUser))
	assert.Len(t, api.calls(), 2)
}

func TestMarkReadKeepsLocalZeroOnCollaboratorFailure(t *testing.T) {
	api := &fakeMessaging{markReadErr: errors.New("boom")}
	l := NewLedger(api, operatorSelf)

	l.HandleEvent(customerMessage("m-1", "u-1"))

	err := l.MarkRead(context.Background(), "u-1", OperatorFromUser, store.MarkReadRequest{All: true})
	assert.Error(t, err)
	assert.Equal(t, 0, l.UnreadCount("u-1", OperatorFromUser))
}

func TestReadStatusPushReplacesLocalCount(t *testing.T) {
	l := NewLedger(&fakeMessaging{}, operatorSelf)

	l.HandleEvent(customerMessage("m-1", "u-1"))
	l.HandleEvent(event.ReadStatusUpdate{
		CounterpartyID: "u-1",
		Perspective:    string(OperatorFromUser),
		UnreadCount:    5,
	})

	assert.Equal(t, 5, l.UnreadCount("u-1", OperatorFromUser))
}

func TestReadStatusPushClampsNegative(t *testing.T) {
	l := NewLedger(&fakeMessaging{}, operatorSelf)

	l.HandleEvent(event.ReadStatusUpdate{
		CounterpartyID: "u-1",
		Perspective:    string(OperatorFromUser),
		UnreadCount:    -3,
	})

	assert.Equal(t, 0, l.UnreadCount("u-1", OperatorFromUser))
}

func TestReadStatusPushUnknownPerspectiveDropped(t *testing.T) {
	l := NewLedger(&fakeMessaging{}, operatorSelf)

	l.HandleEvent(customerMessage("m-1", "u-1"))
	l.HandleEvent(event.ReadStatusUpdate{
		CounterpartyID: "u-1",
		Perspective:    "sideways",
		UnreadCount:    9,
	})

	assert.Equal(t, 1, l.UnreadCount("u-1", OperatorFromUser))
}

func TestRefreshReplacesLocalCount(t *testing.T) {
	api := &fakeMessaging{unreadCounts: map[string]int{"operatorFromUser/u-1": 7}}
	l := NewLedger(api, operatorSelf)

	l.HandleEvent(customerMessage("m-1", "u-1"))

	require.NoError(t, l.Refresh(context.Background(), "u-1", OperatorFromUser))
	assert.Equal(t, 7, l.UnreadCount("u-1", OperatorFromUser))
}

func TestRefreshErrorKeepsLocalCount(t *testing.T) {
	api := &fakeMessaging{unreadErr: errors.New("down")}
	l := NewLedger(api, operatorSelf)

	l.HandleEvent(customerMessage("m-1", "u-1"))

	assert.Error(t, l.Refresh(context.Background(), "u-1", OperatorFromUser))
	assert.Equal(t, 1, l.UnreadCount("u-1", OperatorFromUser))
}

func TestEntriesSortedAndNonZero(t *testing.T) {
	l := NewLedger(&fakeMessaging{}, operatorSelf)

	l.HandleEvent(customerMessage("m-1", "u-2"))
	l.HandleEvent(customerMessage("m-2", "u-1"))
	l.HandleEvent(customerMessage("m-3", "u-1"))
	require.NoError(t, l.MarkRead(context.Background(), "u-2", OperatorFromUser, store.MarkReadRequest{All: true}))

	assert.Equal(t, []Entry{
		{CounterpartyID: "u-1", Perspective: OperatorFromUser, UnreadCount: 2},
	}, l.Entries())
}
