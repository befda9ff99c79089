package channel

import (
	"log/slog"
	"sync"

	"github.com/rickgao/escrow-realtime/internal/auth"
	"github.com/rickgao/escrow-realtime/internal/connection"
	"github.com/rickgao/escrow-realtime/internal/loop"
)

// NotificationsPath is the notifications endpoint below the base URL.
const NotificationsPath = "/ws/notifications/"

// Notifications is the per-session notification channel. Every open, first
// connect and reconnects alike, requests the full list so the subscriber
// can resynchronise after an outage.
type Notifications struct {
	*adapter

	mu      sync.Mutex
	handler NotificationHandler
}

type markNotificationReadRequest struct {
	NotificationID int64 `json:"notification_id"`
}

// NewNotifications creates the notifications channel. Callbacks run on lp.
func NewNotifications(cfg Config, lp *loop.Loop, tokens auth.TokenSource, logger *slog.Logger) *Notifications {
	n := &Notifications{}
	n.adapter = newAdapter(NameNotifications, cfg, lp, tokens, logger, n.onConnect)
	return n
}

// SetHandler replaces the subscriber. Nil detaches it.
func (n *Notifications) SetHandler(h NotificationHandler) {
	n.mu.Lock()
	n.handler = h
	n.mu.Unlock()
}

// Connect opens the channel if it is not already open.
func (n *Notifications) Connect() {
	n.connect(NotificationsPath, nil, n.onFrame)
}

// Disconnect closes the channel, detaches the subscriber and stops
// reconnecting.
func (n *Notifications) Disconnect() {
	n.mgr.Disconnect()
	n.SetHandler(nil)
}

// Connected reports whether the socket is open.
func (n *Notifications) Connected() bool {
	return n.mgr.IsConnected()
}

// MarkRead asks the server to mark one notification read.
func (n *Notifications) MarkRead(id int64) {
	n.mgr.SendMessage(ActionMarkNotificationRead, markNotificationReadRequest{NotificationID: id})
}

// MarkAllRead asks the server to mark every notification read.
func (n *Notifications) MarkAllRead() {
	n.mgr.SendMessage(ActionMarkAllRead, nil)
}

// RequestNotifications asks the server for the full list.
func (n *Notifications) RequestNotifications() {
	n.mgr.SendMessage(ActionGetNotifications, nil)
}

func (n *Notifications) onConnect() {
	n.RequestNotifications()
}

func (n *Notifications) onFrame(f connection.Frame) {
	frame, err := DecodeNotificationFrame(f)
	if err != nil {
		n.dropped(f, err)
		return
	}

	n.mu.Lock()
	h := n.handler
	n.mu.Unlock()

	if h == nil {
		n.logger.Debug("no subscriber, frame ignored", "type", f.Type)
		return
	}
	frame.dispatchNotification(h)
}
