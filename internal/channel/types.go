package channel

import (
	"errors"

	"github.com/rickgao/escrow-realtime/internal/connection"
	"github.com/rickgao/escrow-realtime/internal/model"
)

// Errors
var (
	ErrUnknownFrame = errors.New("unknown frame type")
)

// Channel names used in logs and metrics.
const (
	NameNotifications = "notifications"
	NameChat          = "chat"
	NamePayment       = "payment_status"
)

// Inbound frame types.
const (
	TypeNewNotification            = "new_notification"
	TypeNotificationUpdated        = "notification_updated"
	TypeAllNotificationsMarkedRead = "all_notifications_marked_read"
	TypeUnreadNotifications        = "unread_notifications"
	TypeNotificationsList          = "notifications_list"
	TypeNotificationMarkedRead     = "notification_marked_read"

	TypeNewMessage  = "new.message"
	TypeTyping      = "typing"
	TypeReadReceipt = "read_receipt"

	TypePaymentStatusUpdate = "payment_status_update"
	TypeProjectStatusUpdate = "project_status_update"
	TypePong                = "pong"
)

// Outbound action types.
const (
	ActionMarkNotificationRead = "mark_notification_read"
	ActionMarkAllRead          = "mark_all_read"
	ActionGetNotifications     = "get_notifications"
	ActionSendMessage          = "send_message"
	ActionTyping               = "typing"
	ActionRead                 = "read"
	ActionGetPaymentStatus     = "get_payment_status"
	ActionPing                 = "ping"
)

// Config configures a channel.
type Config struct {
	BaseURL    string              // WebSocket base, e.g. wss://api.example.com
	Connection connection.Config   // Reconnect policy; Name is set per channel
	Dialer     connection.Dialer   // Nil uses gorilla/websocket
	Observer   connection.Observer // Optional instrumentation
}

// NotificationHandler receives decoded notification frames.
type NotificationHandler interface {
	NewNotification(n model.Notification)
	NotificationUpdated(n model.Notification)
	AllNotificationsMarkedRead(updatedCount int)
	UnreadNotifications(list []model.Notification)
	NotificationsList(list []model.Notification)
	NotificationMarkedRead(id int64)
}

// ChatHandler receives decoded chat frames for one project.
type ChatHandler interface {
	MessageReceived(msg model.ChatMessage)
	Typing(ev model.TypingEvent)
	ReadReceipt(r model.ReadReceipt)
}

// PaymentHandler receives decoded payment-status frames.
type PaymentHandler interface {
	PaymentStatusUpdated(p model.PaymentStatus)
	ProjectStatusUpdated(p model.ProjectStatus)
	Pong()
}
