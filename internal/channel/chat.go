package channel

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/escrow-realtime/internal/auth"
	"github.com/rickgao/escrow-realtime/internal/connection"
	"github.com/rickgao/escrow-realtime/internal/loop"
)

// ChatPath returns the chat endpoint for a project below the base URL.
func ChatPath(projectID int64) string {
	return fmt.Sprintf("/ws/chat/%d/", projectID)
}

// Chat is the conversation channel for one project. Projects are never
// multiplexed: each conversation needs its own Chat.
type Chat struct {
	*adapter
	projectID int64

	mu      sync.Mutex
	handler ChatHandler
}

type sendMessageRequest struct {
	Content         string `json:"content"`
	ClientMessageID string `json:"client_message_id"`
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

type readRequest struct {
	LastReadMessageID int64 `json:"last_read_message_id"`
}

// NewChat creates the chat channel for projectID. Callbacks run on lp.
func NewChat(cfg Config, projectID int64, lp *loop.Loop, tokens auth.TokenSource, logger *slog.Logger) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chat{projectID: projectID}
	c.adapter = newAdapter(NameChat, cfg, lp, tokens, logger.With("project_id", projectID), nil)
	return c
}

// ProjectID returns the project this channel is scoped to.
func (c *Chat) ProjectID() int64 {
	return c.projectID
}

// SetHandler replaces the subscriber. Nil detaches it.
func (c *Chat) SetHandler(h ChatHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect opens the channel if it is not already open.
func (c *Chat) Connect() {
	c.connect(ChatPath(c.projectID), nil, c.onFrame)
}

// Disconnect closes the channel, detaches the subscriber and stops
// reconnecting.
func (c *Chat) Disconnect() {
	c.mgr.Disconnect()
	c.SetHandler(nil)
}

// Connected reports whether the socket is open.
func (c *Chat) Connected() bool {
	return c.mgr.IsConnected()
}

// SendMessage sends content with a fresh correlation id and returns that id.
// The server echoes the id back in the resulting new.message frame.
func (c *Chat) SendMessage(content string) string {
	id := uuid.NewString()
	c.SendMessageWithID(id, content)
	return id
}

// SendMessageWithID sends content under a caller-chosen correlation id.
func (c *Chat) SendMessageWithID(clientMessageID, content string) {
	c.mgr.SendMessage(ActionSendMessage, sendMessageRequest{
		Content:         content,
		ClientMessageID: clientMessageID,
	})
}

// SetTyping tells the other participant whether the user is typing.
func (c *Chat) SetTyping(typing bool) {
	c.mgr.SendMessage(ActionTyping, typingRequest{IsTyping: typing})
}

// MarkRead tells the server how far the user has read.
func (c *Chat) MarkRead(lastReadMessageID int64) {
	c.mgr.SendMessage(ActionRead, readRequest{LastReadMessageID: lastReadMessageID})
}

func (c *Chat) onFrame(f connection.Frame) {
	frame, err := DecodeChatFrame(f)
	if err != nil {
		c.dropped(f, err)
		return
	}

	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	if h == nil {
		c.logger.Debug("no subscriber, frame ignored", "type", f.Type)
		return
	}
	frame.dispatchChat(c.projectID, h)
}
