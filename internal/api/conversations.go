package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/yolodolo42/dagent/internal/transcript"
)

// Conversation is a chat thread owned by the current user.
type Conversation struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Records []T   `json:"records"`
	Total   int64 `json:"total"`
	Size    int64 `json:"size"`
	Current int64 `json:"current"`
	Pages   int64 `json:"pages"`
}

// ListConversations returns one page of conversations. Non-positive
// arguments fall back to page 1 of size 10.
func (c *Client) ListConversations(ctx context.Context, current, size int) (Page[Conversation], error) {
	if current <= 0 {
		current = 1
	}
	if size <= 0 {
		size = 10
	}
	q := url.Values{
		"current": {strconv.Itoa(current)},
		"size":    {strconv.Itoa(size)},
	}

	var page Page[Conversation]
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/conversations", query: q}, &page); err != nil {
		return Page[Conversation]{}, fmt.Errorf("failed to list conversations: %w", err)
	}
	return page, nil
}

// GetConversation returns a single conversation.
func (c *Client) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	var conv Conversation
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: conversationPath(id)}, &conv); err != nil {
		return Conversation{}, fmt.Errorf("failed to get conversation %d: %w", id, err)
	}
	return conv, nil
}

// RenameConversation updates the title.
func (c *Client) RenameConversation(ctx context.Context, id int64, title string) (Conversation, error) {
	var conv Conversation
	body := map[string]string{"title": title}
	if err := c.doJSON(ctx, request{method: http.MethodPost, path: conversationPath(id), body: body}, &conv); err != nil {
		return Conversation{}, fmt.Errorf("failed to rename conversation %d: %w", id, err)
	}
	return conv, nil
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, request{method: http.MethodDelete, path: conversationPath(id)}, nil); err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", id, err)
	}
	return nil
}

// Messages returns the persisted messages of a conversation in the shape
// stored by the server, one record per step. Callers pass them through
// transcript.Reconcile before rendering.
func (c *Client) Messages(ctx context.Context, id int64) ([]transcript.Message, error) {
	var msgs []transcript.Message
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: conversationPath(id) + "/messages"}, &msgs); err != nil {
		return nil, fmt.Errorf("failed to load messages of conversation %d: %w", id, err)
	}
	if msgs == nil {
		msgs = []transcript.Message{}
	}
	return msgs, nil
}

func conversationPath(id int64) string {
	return "/conversations/" + strconv.FormatInt(id, 10)
}
