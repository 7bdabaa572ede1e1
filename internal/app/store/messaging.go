/*
Package store is the HTTP client for the storefront's backend collaborators.

This file covers the messaging contracts: paginated conversation history, the
authoritative unread-count query, and the authoritative mark-as-read operation
mirrored optimistically by the read-status ledger.
*/
package store

import (
	"context"
	"net/url"

	"storesync/internal/app/event"
)

// MarkReadRequest selects which messages a mark-as-read call covers.
// Either a set of message ids or everything in the conversation.
type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds,omitempty"`
	All        bool     `json:"all,omitempty"`
}

// GetRecentConversationMessages fetches the newest messages of one conversation,
// used to (re)populate a conversation view after connect or refresh.
func (c *Client) GetRecentConversationMessages(ctx context.Context, counterpartyID string, limit int) ([]event.ChatMessage, error) {
	q := url.Values{}
	q.Set("counterpartyId", counterpartyID)
	q.Set("limit", itoa(limit))

	var messages []event.ChatMessage
	if err := c.get(ctx, "/messages/recent", q, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetUnreadCount fetches the authoritative unread count for one perspective.
// counterpartyID may be empty for perspectives that aggregate over all
// counterparties on the server side.
func (c *Client) GetUnreadCount(ctx context.Context, perspective, counterpartyID string) (int, error) {
	q := url.Values{}
	q.Set("perspective", perspective)
	if counterpartyID != "" {
		q.Set("counterpartyId", counterpartyID)
	}

	var data struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/messages/unread-count", q, &data); err != nil {
		return 0, err
	}
	return data.Count, nil
}

// MarkAsRead issues the authoritative mark-as-read for one conversation and
// perspective. The ledger has already applied the optimistic local zero before
// this call; a failure here is surfaced but never rolled back.
func (c *Client) MarkAsRead(ctx context.Context, perspective, counterpartyID string, req MarkReadRequest) error {
	body := struct {
		Perspective    string   `json:"perspective"`
		CounterpartyID string   `json:"counterpartyId"`
		MessageIDs     []string `json:"messageIds,omitempty"`
		All            bool     `json:"all,omitempty"`
	}{
		Perspective:    perspective,
		CounterpartyID: counterpartyID,
		MessageIDs:     req.MessageIDs,
		All:            req.All,
	}

	return c.post(ctx, "/messages/mark-read", body, nil)
}
