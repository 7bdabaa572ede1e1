/*
Package store is the HTTP client for the storefront's backend collaborators.

This file covers the notification contracts consumed by the aggregator's refresh
and mark-read paths, plus the display-name lookup used for attribution.
*/
package store

import (
	"context"
	"net/url"

	"storesync/internal/app/event"
)

// NotificationQuery selects a page of personal notifications.
type NotificationQuery struct {
	Skip  int
	Limit int
	Sort  string
}

// GetUserNotifications fetches the personal notifications of one user.
func (c *Client) GetUserNotifications(ctx context.Context, userID string, query NotificationQuery) ([]event.Notification, error) {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("skip", itoa(query.Skip))
	q.Set("limit", itoa(query.Limit))
	if query.Sort != "" {
		q.Set("sort", query.Sort)
	}

	var notifications []event.Notification
	if err := c.get(ctx, "/notifications", q, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// GetGlobalNotifications fetches the global notifications visible to
// privileged identities.
func (c *Client) GetGlobalNotifications(ctx context.Context) ([]event.Notification, error) {
	var notifications []event.Notification
	if err := c.get(ctx, "/notifications/global", nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	body := struct {
		ID string `json:"id"`
	}{ID: id}

	return c.post(ctx, "/notifications/mark-read", body, nil)
}

// MarkAllNotificationsRead marks every personal notification of one user read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	body := struct {
		UserID string `json:"userId"`
	}{UserID: userID}

	return c.post(ctx, "/notifications/mark-all-read", body, nil)
}

// MarkAllGlobalNotificationsRead marks every global notification read.
// Only meaningful for privileged identities.
func (c *Client) MarkAllGlobalNotificationsRead(ctx context.Context) error {
	return c.post(ctx, "/notifications/global/mark-all-read", nil, nil)
}

// GetNotificationUnreadCount fetches the authoritative unread notification
// count for one user, used by the aggregator to correct races between a push
// and a concurrent mark-read.
func (c *Client) GetNotificationUnreadCount(ctx context.Context, userID string) (int, error) {
	q := url.Values{}
	q.Set("userId", userID)

	var data struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/notifications/unread-count", q, &data); err != nil {
		return 0, err
	}
	return data.Count, nil
}

// GetUserDisplayName resolves a user's display name for notification
// attribution. Best effort; callers degrade to a generic label on failure.
func (c *Client) GetUserDisplayName(ctx context.Context, userID string) (string, error) {
	q := url.Values{}
	q.Set("userId", userID)

	var data struct {
		DisplayName string `json:"displayName"`
	}
	if err := c.get(ctx, "/users/display-name", q, &data); err != nil {
		return "", err
	}
	return data.DisplayName, nil
}
