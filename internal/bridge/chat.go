package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/escrow-realtime/internal/auth"
	"github.com/rickgao/escrow-realtime/internal/channel"
	"github.com/rickgao/escrow-realtime/internal/loop"
	"github.com/rickgao/escrow-realtime/internal/model"
	"github.com/rickgao/escrow-realtime/internal/store"
)

// ChatBridge keeps at most one conversation open. Opening another project
// first tears down the current one.
type ChatBridge struct {
	cfg     Config
	loop    *loop.Loop
	store   *store.Store
	tokens  auth.TokenSource
	fetcher Fetcher
	logger  *slog.Logger

	// opMu serializes Open and Close so a torn-down conversation is never
	// connected afterwards.
	opMu sync.Mutex

	mu          sync.Mutex
	current     *channel.Chat
	stopHistory context.CancelFunc
}

func newChatBridge(cfg Config, lp *loop.Loop, st *store.Store, tokens auth.TokenSource, fetcher Fetcher, logger *slog.Logger) *ChatBridge {
	return &ChatBridge{
		cfg:     cfg,
		loop:    lp,
		store:   st,
		tokens:  tokens,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Open connects the conversation for projectID. It is a no-op if that
// conversation is already open.
func (b *ChatBridge) Open(ctx context.Context, projectID int64) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	if b.current != nil && b.current.ProjectID() == projectID {
		b.mu.Unlock()
		return
	}
	prev, prevStop := b.current, b.stopHistory
	chat := channel.NewChat(b.cfg.Channel, projectID, b.loop, b.tokens, b.logger)
	chat.SetHandler(&chatSink{store: b.store, selfID: b.cfg.UserID})
	historyCtx, stop := context.WithCancel(ctx)
	b.current = chat
	b.stopHistory = stop
	b.mu.Unlock()

	if prev != nil {
		b.teardown(prev, prevStop)
	}

	if b.fetcher != nil {
		go b.loadHistory(historyCtx, projectID)
	}

	b.logger.Info("conversation opened", "project_id", projectID)
	chat.Connect()
}

// Close disconnects the open conversation, if any.
func (b *ChatBridge) Close() {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	prev, prevStop := b.current, b.stopHistory
	b.current = nil
	b.stopHistory = nil
	b.mu.Unlock()

	if prev != nil {
		b.teardown(prev, prevStop)
	}
}

// ProjectID returns the open conversation's project, zero if none.
func (b *ChatBridge) ProjectID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return 0
	}
	return b.current.ProjectID()
}

// Connected reports whether the open conversation's socket is open.
func (b *ChatBridge) Connected() bool {
	chat := b.chat()
	return chat != nil && chat.Connected()
}

// SetViewing marks whether the open conversation is on screen. Messages for
// a viewed conversation do not count as unread.
func (b *ChatBridge) SetViewing(viewing bool) {
	chat := b.chat()
	if chat == nil {
		return
	}
	projectID := chat.ProjectID()
	b.loop.Post(func() {
		if viewing {
			b.store.SetViewing(projectID)
		} else if b.store.Viewing() == projectID {
			b.store.SetViewing(0)
		}
	})
}

// Send appends an optimistic message and sends it. The server echo carries
// the returned correlation id and replaces the optimistic entry. Nothing is
// appended when the socket is closed.
func (b *ChatBridge) Send(content string) string {
	chat := b.chat()
	if chat == nil {
		b.logger.Error("cannot send, no conversation open")
		return ""
	}

	id := uuid.NewString()
	b.loop.Post(func() {
		if !chat.Connected() {
			b.logger.Error("cannot send, chat not connected", "project_id", chat.ProjectID())
			return
		}
		b.store.AppendMessage(model.ChatMessage{
			ClientMessageID: id,
			ProjectID:       chat.ProjectID(),
			Sender:          model.UserRef{ID: b.cfg.UserID},
			Content:         content,
			CreatedAt:       time.Now().UTC(),
			Pending:         true,
		})
		chat.SendMessageWithID(id, content)
	})
	return id
}

// MarkRead resets the conversation's unread count and tells the server the
// last message read.
func (b *ChatBridge) MarkRead() {
	chat := b.chat()
	if chat == nil {
		return
	}
	projectID := chat.ProjectID()
	b.loop.Post(func() {
		b.store.MarkContactRead(projectID)
		if last := lastServerMessageID(b.store.Messages(projectID)); last > 0 {
			chat.MarkRead(last)
		}
	})
}

// SetTyping tells the other participant whether the user is typing.
func (b *ChatBridge) SetTyping(typing bool) {
	if chat := b.chat(); chat != nil {
		chat.SetTyping(typing)
	}
}

func (b *ChatBridge) chat() *channel.Chat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// teardown disconnects a conversation before anything else can open. Its
// handlers are cleared by Disconnect, so queued frames from it are ignored,
// and its history load is cancelled.
func (b *ChatBridge) teardown(chat *channel.Chat, stopHistory context.CancelFunc) {
	projectID := chat.ProjectID()
	if stopHistory != nil {
		stopHistory()
	}
	chat.Disconnect()
	b.loop.Post(func() {
		if b.store.Viewing() == projectID {
			b.store.SetViewing(0)
		}
	})
	b.logger.Info("conversation closed", "project_id", projectID)
}

func (b *ChatBridge) loadHistory(ctx context.Context, projectID int64) {
	msgs, err := b.fetcher.ListMessages(ctx, projectID)
	if err != nil {
		b.logger.Warn("failed to load chat history", "project_id", projectID, "error", err)
		return
	}
	b.loop.Post(func() {
		// Checked on the turn so a load that finishes after teardown
		// never lands behind a store reset.
		if ctx.Err() != nil {
			b.logger.Debug("discarding chat history for closed conversation", "project_id", projectID)
			return
		}
		b.store.MergeMessages(projectID, msgs)
	})
}

func lastServerMessageID(msgs []model.ChatMessage) int64 {
	var last int64
	for _, m := range msgs {
		if m.ID > last {
			last = m.ID
		}
	}
	return last
}

// chatSink applies chat frames for one project to the store.
type chatSink struct {
	store  *store.Store
	selfID int64
}

func (s *chatSink) MessageReceived(msg model.ChatMessage) {
	s.store.ApplyInboundMessage(msg, s.selfID)
}

func (s *chatSink) Typing(ev model.TypingEvent) {
	if ev.UserID == s.selfID {
		return
	}
	s.store.SetTyping(ev)
}

func (s *chatSink) ReadReceipt(r model.ReadReceipt) {
	s.store.SetReadReceipt(r)
}
