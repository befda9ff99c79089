package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/escrow-realtime/internal/channel"
	"github.com/rickgao/escrow-realtime/internal/model"
)

// Errors
var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
)

// Config configures a Session.
type Config struct {
	Channel         channel.Config
	UserID          int64         // Signed-in user; own messages never count as unread
	PrefetchTimeout time.Duration // Bound on the initial REST fetch
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PrefetchTimeout: 10 * time.Second,
	}
}

// Fetcher loads initial state over REST. Results go through the same store
// merges as pushed frames.
type Fetcher interface {
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	ListChatContacts(ctx context.Context) ([]model.ChatContact, error)
	ListMessages(ctx context.Context, projectID int64) ([]model.ChatMessage, error)
}
