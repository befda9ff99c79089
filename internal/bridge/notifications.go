package bridge

import (
	"log/slog"

	"github.com/rickgao/escrow-realtime/internal/model"
	"github.com/rickgao/escrow-realtime/internal/store"
)

// notificationSink applies notification frames to the store. Bulk lists,
// single pushes and REST results all merge by id.
type notificationSink struct {
	store  *store.Store
	logger *slog.Logger
}

func (s *notificationSink) NewNotification(n model.Notification) {
	if s.store.AddNotification(n) {
		s.logger.Debug("notification added", "id", n.ID)
	}
}

func (s *notificationSink) NotificationUpdated(n model.Notification) {
	s.store.UpdateNotification(n)
}

func (s *notificationSink) AllNotificationsMarkedRead(updatedCount int) {
	n := s.store.MarkAllNotificationsRead()
	s.logger.Debug("all notifications marked read", "server_count", updatedCount, "local_count", n)
}

func (s *notificationSink) UnreadNotifications(list []model.Notification) {
	s.store.MergeNotifications(list)
}

func (s *notificationSink) NotificationsList(list []model.Notification) {
	added := s.store.MergeNotifications(list)
	s.logger.Debug("notifications list merged", "received", len(list), "added", added)
}

func (s *notificationSink) NotificationMarkedRead(id int64) {
	s.store.MarkNotificationRead(id)
}
