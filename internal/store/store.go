package store

import (
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/rickgao/escrow-realtime/internal/model"
)

// Store is the shared client-side state.
type Store struct {
	mu      sync.RWMutex
	version uint64
	logger  *slog.Logger

	// Newest first.
	notifications []model.Notification

	// One contact per project.
	contacts []model.ChatContact
	viewing  int64

	// Per project, oldest first.
	messages map[int64][]model.ChatMessage

	// Per project, keyed by user id.
	typing   map[int64]map[int64]model.TypingEvent
	receipts map[int64]map[int64]int64

	payment *model.PaymentStatus
	project *model.ProjectStatus

	changes chan Change
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:   logger,
		messages: make(map[int64][]model.ChatMessage),
		typing:   make(map[int64]map[int64]model.TypingEvent),
		receipts: make(map[int64]map[int64]int64),
		changes:  make(chan Change, ChangeBufferSize),
	}
}

// Version returns a counter that increases on every applied mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Changes returns the channel of applied mutations.
func (s *Store) Changes() <-chan Change {
	return s.changes
}

// Reset clears all session data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.notifications = nil
	s.contacts = nil
	s.viewing = 0
	s.messages = make(map[int64][]model.ChatMessage)
	s.typing = make(map[int64]map[int64]model.TypingEvent)
	s.receipts = make(map[int64]map[int64]int64)
	s.payment = nil
	s.project = nil
	change := s.bumpLocked(ChangeReset, 0)
	s.mu.Unlock()

	s.logger.Debug("store reset")
	s.notifyChange(change)
}

// Snapshot returns a copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version:       s.version,
		Notifications: copyNotifications(s.notifications),
		Unread:        s.unreadLocked(),
		Contacts:      append([]model.ChatContact(nil), s.contacts...),
		Messages:      make(map[int64][]model.ChatMessage, len(s.messages)),
		Viewing:       s.viewing,
	}
	for id, msgs := range s.messages {
		snap.Messages[id] = append([]model.ChatMessage(nil), msgs...)
	}
	if s.payment != nil {
		p := *s.payment
		snap.Payment = &p
	}
	if s.project != nil {
		p := *s.project
		snap.Project = &p
	}
	return snap
}

// bumpLocked records a mutation (caller must hold write lock).
func (s *Store) bumpLocked(kind ChangeKind, projectID int64) Change {
	s.version++
	return Change{Kind: kind, ProjectID: projectID, Version: s.version}
}

// notifyChange publishes a change (non-blocking).
func (s *Store) notifyChange(change Change) {
	select {
	case s.changes <- change:
	default:
		// Channel full, drop oldest and retry once.
		select {
		case <-s.changes:
		default:
		}
		select {
		case s.changes <- change:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// Notifications returns a copy of all notifications, newest first.
func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyNotifications(s.notifications)
}

// Notification returns one notification by id.
func (s *Store) Notification(id int64) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.notificationIndexLocked(id); i >= 0 {
		return copyNotification(s.notifications[i]), true
	}
	return model.Notification{}, false
}

// UnreadNotificationCount returns the number of unread notifications.
func (s *Store) UnreadNotificationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

// MergeNotifications merges a bulk list by id. It returns the number of
// entries that were new.
func (s *Store) MergeNotifications(list []model.Notification) int {
	s.mu.Lock()
	added, changed := 0, false
	for _, n := range list {
		inserted, updated := s.upsertNotificationLocked(n)
		if inserted {
			added++
		}
		changed = changed || inserted || updated
	}
	if !changed {
		s.mu.Unlock()
		return 0
	}
	s.sortNotificationsLocked()
	change := s.bumpLocked(ChangeNotifications, 0)
	s.mu.Unlock()

	s.notifyChange(change)
	return added
}

// AddNotification merges one pushed notification. A new id is inserted at
// the front; a known id is merged in place.
func (s *Store) AddNotification(n model.Notification) bool {
	return s.MergeNotifications([]model.Notification{n}) == 1
}

// UpdateNotification merges changed fields of one notification.
func (s *Store) UpdateNotification(n model.Notification) {
	s.MergeNotifications([]model.Notification{n})
}

// MarkNotificationRead flips is_read on one notification. It reports whether
// anything changed.
func (s *Store) MarkNotificationRead(id int64) bool {
	s.mu.Lock()
	i := s.notificationIndexLocked(id)
	if i < 0 || s.notifications[i].IsRead {
		s.mu.Unlock()
		return false
	}
	s.notifications[i].IsRead = true
	change := s.bumpLocked(ChangeNotifications, 0)
	s.mu.Unlock()

	s.notifyChange(change)
	return true
}

// MarkAllNotificationsRead flips is_read on every notification in one pass
// and returns how many changed.
func (s *Store) MarkAllNotificationsRead() int {
	s.mu.Lock()
	n := 0
	for i := range s.notifications {
		if !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
			n++
		}
	}
	if n == 0 {
		s.mu.Unlock()
		return 0
	}
	change := s.bumpLocked(ChangeNotifications, 0)
	s.mu.Unlock()

	s.notifyChange(change)
	return n
}

// upsertNotificationLocked merges n by id (caller must hold write lock).
func (s *Store) upsertNotificationLocked(n model.Notification) (inserted, updated bool) {
	i := s.notificationIndexLocked(n.ID)
	if i < 0 {
		s.notifications = append([]model.Notification{copyNotification(n)}, s.notifications...)
		return true, false
	}
	if !n.IsRead && s.notifications[i].IsRead {
		s.logger.Debug("keeping read state over incoming unread", "notification_id", n.ID)
	}
	return false, mergeNotification(&s.notifications[i], n)
}

func (s *Store) notificationIndexLocked(id int64) int {
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			return i
		}
	}
	return -1
}

// sortNotificationsLocked orders newest first by created_at, then id.
func (s *Store) sortNotificationsLocked() {
	sort.SliceStable(s.notifications, func(i, j int) bool {
		a, b := s.notifications[i], s.notifications[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func (s *Store) unreadLocked() int {
	n := 0
	for _, notif := range s.notifications {
		if !notif.IsRead {
			n++
		}
	}
	return n
}

// mergeNotification copies non-empty fields of in onto dst. Read state only
// moves from unread to read.
func mergeNotification(dst *model.Notification, in model.Notification) bool {
	changed := false
	if in.Message != "" && in.Message != dst.Message {
		dst.Message = in.Message
		changed = true
	}
	if in.TranslationKey != "" && in.TranslationKey != dst.TranslationKey {
		dst.TranslationKey = in.TranslationKey
		changed = true
	}
	if in.TranslationVariables != nil && !reflect.DeepEqual(dst.TranslationVariables, in.TranslationVariables) {
		dst.TranslationVariables = copyVariables(in.TranslationVariables)
		changed = true
	}
	if in.NotificationType != "" && in.NotificationType != dst.NotificationType {
		dst.NotificationType = in.NotificationType
		changed = true
	}
	if !in.CreatedAt.IsZero() && !in.CreatedAt.Equal(dst.CreatedAt) {
		dst.CreatedAt = in.CreatedAt
		changed = true
	}
	if in.IsRead && !dst.IsRead {
		dst.IsRead = true
		changed = true
	}
	return changed
}

func copyVariables(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func copyNotification(n model.Notification) model.Notification {
	n.TranslationVariables = copyVariables(n.TranslationVariables)
	return n
}

func copyNotifications(list []model.Notification) []model.Notification {
	out := make([]model.Notification, len(list))
	for i, n := range list {
		out[i] = copyNotification(n)
	}
	return out
}
