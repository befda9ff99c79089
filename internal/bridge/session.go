package bridge

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/escrow-realtime/internal/auth"
	"github.com/rickgao/escrow-realtime/internal/channel"
	"github.com/rickgao/escrow-realtime/internal/loop"
	"github.com/rickgao/escrow-realtime/internal/model"
	"github.com/rickgao/escrow-realtime/internal/store"
)

// Session is the lifecycle root for one signed-in user. It owns the
// notifications channel and the chat and payment bridges; nothing is shared
// between sessions.
type Session struct {
	cfg     Config
	loop    *loop.Loop
	store   *store.Store
	fetcher Fetcher
	logger  *slog.Logger

	notifications *channel.Notifications
	Chat          *ChatBridge
	Payment       *PaymentBridge

	mu      sync.Mutex
	started bool
}

// NewSession creates a session. fetcher may be nil to skip the REST prefetch.
func NewSession(cfg Config, lp *loop.Loop, st *store.Store, tokens auth.TokenSource, fetcher Fetcher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:           cfg,
		loop:          lp,
		store:         st,
		fetcher:       fetcher,
		logger:        logger,
		notifications: channel.NewNotifications(cfg.Channel, lp, tokens, logger),
		Chat:          newChatBridge(cfg, lp, st, tokens, fetcher, logger),
		Payment:       newPaymentBridge(cfg, lp, st, tokens, logger),
	}
}

// Start loads initial state and connects the notifications channel. A failed
// prefetch is logged; the channel's own resync on open still fills the store.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if s.fetcher != nil {
		s.prefetch(ctx)
	}

	s.notifications.SetHandler(&notificationSink{store: s.store, logger: s.logger})
	s.notifications.Connect()

	s.logger.Info("session started", "user_id", s.cfg.UserID)
	return nil
}

// Stop disconnects every channel and clears session data from the store.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	s.mu.Unlock()

	s.notifications.Disconnect()
	s.Chat.Close()
	s.Payment.Close()
	s.loop.Post(s.store.Reset)

	s.logger.Info("session stopped")
	return nil
}

// Started reports whether the session is running.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// NotificationsConnected reports whether the notifications socket is open.
func (s *Session) NotificationsConnected() bool {
	return s.notifications.Connected()
}

// MarkNotificationRead marks one notification read locally and on the server.
func (s *Session) MarkNotificationRead(id int64) {
	s.loop.Post(func() {
		s.store.MarkNotificationRead(id)
		s.notifications.MarkRead(id)
	})
}

// MarkAllNotificationsRead marks every notification read locally and on the
// server.
func (s *Session) MarkAllNotificationsRead() {
	s.loop.Post(func() {
		s.store.MarkAllNotificationsRead()
		s.notifications.MarkAllRead()
	})
}

// RefreshNotifications asks the server for the full list.
func (s *Session) RefreshNotifications() {
	s.notifications.RequestNotifications()
}

// prefetch loads notifications and contacts in parallel and queues the
// merges on the loop.
func (s *Session) prefetch(ctx context.Context) {
	if s.cfg.PrefetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PrefetchTimeout)
		defer cancel()
	}

	var (
		notifications []model.Notification
		contacts      []model.ChatContact
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		notifications, err = s.fetcher.ListNotifications(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		contacts, err = s.fetcher.ListChatContacts(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.Warn("initial fetch failed", "error", err)
	}

	s.loop.Post(func() {
		if len(notifications) > 0 {
			s.store.MergeNotifications(notifications)
		}
		if len(contacts) > 0 {
			s.store.MergeContacts(contacts)
		}
	})

	s.logger.Debug("initial fetch done",
		"notifications", len(notifications),
		"contacts", len(contacts),
	)
}
