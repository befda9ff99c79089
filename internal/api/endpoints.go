package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/escrow-realtime/internal/model"
)

// Endpoint paths below the base URL.
const (
	PathNotifications = "/api/notifications/"
	PathChatContacts  = "/api/chat/contacts/"
	PathCurrentUser   = "/api/auth/user/"
)

// PathMessages returns the message history path for a project.
func PathMessages(projectID int64) string {
	return fmt.Sprintf("/api/chat/%d/messages/", projectID)
}

// ListNotifications fetches every notification for the signed-in user.
func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	list, err := listAll[model.Notification](ctx, c, PathNotifications, nil)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// ListUnreadNotifications fetches unread notifications only.
func (c *Client) ListUnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	query := url.Values{}
	query.Set("is_read", "false")

	list, err := listAll[model.Notification](ctx, c, PathNotifications, query)
	if err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	return list, nil
}

// ListChatContacts fetches the conversation list.
func (c *Client) ListChatContacts(ctx context.Context) ([]model.ChatContact, error) {
	list, err := listAll[model.ChatContact](ctx, c, PathChatContacts, nil)
	if err != nil {
		return nil, fmt.Errorf("list chat contacts: %w", err)
	}
	return list, nil
}

// ListMessages fetches a project's message history.
func (c *Client) ListMessages(ctx context.Context, projectID int64) ([]model.ChatMessage, error) {
	list, err := listAll[model.ChatMessage](ctx, c, PathMessages(projectID), nil)
	if err != nil {
		return nil, fmt.Errorf("list messages for project %d: %w", projectID, err)
	}
	for i := range list {
		if list[i].ProjectID == 0 {
			list[i].ProjectID = projectID
		}
	}
	return list, nil
}

// CurrentUser fetches the signed-in user.
func (c *Client) CurrentUser(ctx context.Context) (model.UserRef, error) {
	var user model.UserRef
	if err := c.get(ctx, PathCurrentUser, nil, &user); err != nil {
		return model.UserRef{}, fmt.Errorf("get current user: %w", err)
	}
	return user, nil
}
