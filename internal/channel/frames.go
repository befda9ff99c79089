package channel

import (
	"fmt"

	"github.com/rickgao/escrow-realtime/internal/connection"
	"github.com/rickgao/escrow-realtime/internal/model"
)

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// NotificationFrame is one inbound frame on the notifications channel.
type NotificationFrame interface {
	dispatchNotification(h NotificationHandler)
}

type NewNotificationFrame struct {
	Notification model.Notification `json:"notification"`
}

type NotificationUpdatedFrame struct {
	Notification model.Notification `json:"notification"`
}

type AllNotificationsMarkedReadFrame struct {
	UpdatedCount int `json:"updated_count"`
}

type UnreadNotificationsFrame struct {
	Notifications []model.Notification `json:"notifications"`
}

type NotificationsListFrame struct {
	Notifications []model.Notification `json:"notifications"`
}

type NotificationMarkedReadFrame struct {
	NotificationID int64 `json:"notification_id"`
}

func (f NewNotificationFrame) dispatchNotification(h NotificationHandler) {
	h.NewNotification(f.Notification)
}

func (f NotificationUpdatedFrame) dispatchNotification(h NotificationHandler) {
	h.NotificationUpdated(f.Notification)
}

func (f AllNotificationsMarkedReadFrame) dispatchNotification(h NotificationHandler) {
	h.AllNotificationsMarkedRead(f.UpdatedCount)
}

func (f UnreadNotificationsFrame) dispatchNotification(h NotificationHandler) {
	h.UnreadNotifications(f.Notifications)
}

func (f NotificationsListFrame) dispatchNotification(h NotificationHandler) {
	h.NotificationsList(f.Notifications)
}

func (f NotificationMarkedReadFrame) dispatchNotification(h NotificationHandler) {
	h.NotificationMarkedRead(f.NotificationID)
}

// DecodeNotificationFrame decodes a notifications frame by its type.
func DecodeNotificationFrame(f connection.Frame) (NotificationFrame, error) {
	var out NotificationFrame
	var err error
	switch f.Type {
	case TypeNewNotification:
		out, err = decodeAs[NewNotificationFrame](f)
	case TypeNotificationUpdated:
		out, err = decodeAs[NotificationUpdatedFrame](f)
	case TypeAllNotificationsMarkedRead:
		out, err = decodeAs[AllNotificationsMarkedReadFrame](f)
	case TypeUnreadNotifications:
		out, err = decodeAs[UnreadNotificationsFrame](f)
	case TypeNotificationsList:
		out, err = decodeAs[NotificationsListFrame](f)
	case TypeNotificationMarkedRead:
		out, err = decodeAs[NotificationMarkedReadFrame](f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
	return out, err
}

// -----------------------------------------------------------------------------
// Chat
// -----------------------------------------------------------------------------

// ChatFrame is one inbound frame on a chat channel.
type ChatFrame interface {
	dispatchChat(projectID int64, h ChatHandler)
}

type NewMessageFrame struct {
	Message model.ChatMessage `json:"message"`
}

type TypingFrame struct {
	model.TypingEvent
}

type ReadReceiptFrame struct {
	model.ReadReceipt
}

func (f NewMessageFrame) dispatchChat(projectID int64, h ChatHandler) {
	msg := f.Message
	if msg.ProjectID == 0 {
		msg.ProjectID = projectID
	}
	h.MessageReceived(msg)
}

func (f TypingFrame) dispatchChat(projectID int64, h ChatHandler) {
	ev := f.TypingEvent
	ev.ProjectID = projectID
	h.Typing(ev)
}

func (f ReadReceiptFrame) dispatchChat(projectID int64, h ChatHandler) {
	r := f.ReadReceipt
	r.ProjectID = projectID
	h.ReadReceipt(r)
}

// DecodeChatFrame decodes a chat frame by its type.
func DecodeChatFrame(f connection.Frame) (ChatFrame, error) {
	var out ChatFrame
	var err error
	switch f.Type {
	case TypeNewMessage:
		out, err = decodeAs[NewMessageFrame](f)
	case TypeTyping:
		out, err = decodeAs[TypingFrame](f)
	case TypeReadReceipt:
		out, err = decodeAs[ReadReceiptFrame](f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
	return out, err
}

// -----------------------------------------------------------------------------
// Payment status
// -----------------------------------------------------------------------------

// PaymentFrame is one inbound frame on the payment-status channel.
type PaymentFrame interface {
	dispatchPayment(h PaymentHandler)
}

type PaymentStatusUpdateFrame struct {
	Data model.PaymentStatus `json:"data"`
}

type ProjectStatusUpdateFrame struct {
	Data model.ProjectStatus `json:"data"`
}

type PongFrame struct{}

func (f PaymentStatusUpdateFrame) dispatchPayment(h PaymentHandler) {
	h.PaymentStatusUpdated(f.Data)
}

func (f ProjectStatusUpdateFrame) dispatchPayment(h PaymentHandler) {
	h.ProjectStatusUpdated(f.Data)
}

func (PongFrame) dispatchPayment(h PaymentHandler) {
	h.Pong()
}

// DecodePaymentFrame decodes a payment-status frame by its type.
func DecodePaymentFrame(f connection.Frame) (PaymentFrame, error) {
	var out PaymentFrame
	var err error
	switch f.Type {
	case TypePaymentStatusUpdate:
		out, err = decodeAs[PaymentStatusUpdateFrame](f)
	case TypeProjectStatusUpdate:
		out, err = decodeAs[ProjectStatusUpdateFrame](f)
	case TypePong:
		out = PongFrame{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
	return out, err
}

func decodeAs[T any](f connection.Frame) (T, error) {
	var v T
	if err := f.Decode(&v); err != nil {
		return v, fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return v, nil
}
