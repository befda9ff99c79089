package store

import (
	"sort"

	"github.com/rickgao/escrow-realtime/internal/model"
)

// Contacts returns a copy of the contact list.
func (s *Store) Contacts() []model.ChatContact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ChatContact(nil), s.contacts...)
}

// Contact returns the conversation for a project.
func (s *Store) Contact(projectID int64) (model.ChatContact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.contactIndexLocked(projectID); i >= 0 {
		return s.contacts[i], true
	}
	return model.ChatContact{}, false
}

// SetContacts replaces the contact list.
func (s *Store) SetContacts(list []model.ChatContact) {
	s.mu.Lock()
	s.contacts = nil
	for _, c := range list {
		s.upsertContactLocked(c)
	}
	change := s.bumpLocked(ChangeContacts, 0)
	s.mu.Unlock()

	s.notifyChange(change)
}

// MergeContacts merges contact snapshots by project id. The incoming unread
// count is authoritative; the preview is only replaced by a newer one.
func (s *Store) MergeContacts(list []model.ChatContact) {
	if len(list) == 0 {
		return
	}
	s.mu.Lock()
	for _, c := range list {
		s.upsertContactLocked(c)
	}
	change := s.bumpLocked(ChangeContacts, 0)
	s.mu.Unlock()

	s.notifyChange(change)
}

// SetViewing records which conversation is open; zero means none. Inbound
// messages for the viewed project do not count as unread.
func (s *Store) SetViewing(projectID int64) {
	s.mu.Lock()
	if s.viewing == projectID {
		s.mu.Unlock()
		return
	}
	s.viewing = projectID
	change := s.bumpLocked(ChangeContacts, projectID)
	s.mu.Unlock()

	s.notifyChange(change)
}

// Viewing returns the open conversation, zero if none.
func (s *Store) Viewing() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewing
}

// ApplyInboundMessage records a pushed chat message. The message is merged
// into its project's history; if it is new, was not sent by selfID, and its
// project is not being viewed, the contact's unread count grows by one. The
// contact preview is refreshed either way. It reports whether the message
// was new.
func (s *Store) ApplyInboundMessage(msg model.ChatMessage, selfID int64) bool {
	s.mu.Lock()
	inserted := s.upsertMessageLocked(msg)

	if i := s.contactIndexLocked(msg.ProjectID); i >= 0 {
		c := &s.contacts[i]
		if inserted && msg.Sender.ID != selfID && s.viewing != msg.ProjectID {
			c.UnreadCount++
		}
		if !msg.CreatedAt.Before(c.LastMessageAt) {
			c.LastMessageText = msg.Content
			c.LastMessageAt = msg.CreatedAt
		}
	} else {
		s.logger.Debug("message for unknown contact", "project_id", msg.ProjectID)
	}

	change := s.bumpLocked(ChangeMessages, msg.ProjectID)
	s.mu.Unlock()

	s.notifyChange(change)
	return inserted
}

// MarkContactRead resets a conversation's unread count.
func (s *Store) MarkContactRead(projectID int64) bool {
	s.mu.Lock()
	i := s.contactIndexLocked(projectID)
	if i < 0 || s.contacts[i].UnreadCount == 0 {
		s.mu.Unlock()
		return false
	}
	s.contacts[i].UnreadCount = 0
	change := s.bumpLocked(ChangeContacts, projectID)
	s.mu.Unlock()

	s.notifyChange(change)
	return true
}

// Messages returns a copy of a project's history, oldest first.
func (s *Store) Messages(projectID int64) []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ChatMessage(nil), s.messages[projectID]...)
}

// MergeMessages merges a history page for a project.
func (s *Store) MergeMessages(projectID int64, list []model.ChatMessage) {
	if len(list) == 0 {
		return
	}
	s.mu.Lock()
	for _, m := range list {
		if m.ProjectID == 0 {
			m.ProjectID = projectID
		}
		s.upsertMessageLocked(m)
	}
	change := s.bumpLocked(ChangeMessages, projectID)
	s.mu.Unlock()

	s.notifyChange(change)
}

// AppendMessage merges one message, typically an optimistic local send.
func (s *Store) AppendMessage(msg model.ChatMessage) bool {
	s.mu.Lock()
	inserted := s.upsertMessageLocked(msg)
	change := s.bumpLocked(ChangeMessages, msg.ProjectID)
	s.mu.Unlock()

	s.notifyChange(change)
	return inserted
}

// ClearMessages drops a project's history and typing state.
func (s *Store) ClearMessages(projectID int64) {
	s.mu.Lock()
	delete(s.messages, projectID)
	delete(s.typing, projectID)
	change := s.bumpLocked(ChangeMessages, projectID)
	s.mu.Unlock()

	s.notifyChange(change)
}

// SetTyping records a typing indicator; IsTyping false removes it.
func (s *Store) SetTyping(ev model.TypingEvent) {
	s.mu.Lock()
	users := s.typing[ev.ProjectID]
	if ev.IsTyping {
		if users == nil {
			users = make(map[int64]model.TypingEvent)
			s.typing[ev.ProjectID] = users
		}
		users[ev.UserID] = ev
	} else {
		delete(users, ev.UserID)
	}
	change := s.bumpLocked(ChangeTyping, ev.ProjectID)
	s.mu.Unlock()

	s.notifyChange(change)
}

// Typing returns who is typing in a project, ordered by user id.
func (s *Store) Typing(projectID int64) []model.TypingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TypingEvent, 0, len(s.typing[projectID]))
	for _, ev := range s.typing[projectID] {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// SetReadReceipt records how far a participant has read. Receipts never move
// backwards.
func (s *Store) SetReadReceipt(r model.ReadReceipt) {
	s.mu.Lock()
	users := s.receipts[r.ProjectID]
	if users == nil {
		users = make(map[int64]int64)
		s.receipts[r.ProjectID] = users
	}
	if r.LastReadMessageID <= users[r.UserID] {
		s.mu.Unlock()
		return
	}
	users[r.UserID] = r.LastReadMessageID
	change := s.bumpLocked(ChangeReadReceipts, r.ProjectID)
	s.mu.Unlock()

	s.notifyChange(change)
}

// LastRead returns the last message id a participant has read in a project.
func (s *Store) LastRead(projectID, userID int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receipts[projectID][userID]
}

func (s *Store) contactIndexLocked(projectID int64) int {
	for i := range s.contacts {
		if s.contacts[i].ProjectID() == projectID {
			return i
		}
	}
	return -1
}

// upsertContactLocked merges c by project id (caller must hold write lock).
func (s *Store) upsertContactLocked(c model.ChatContact) {
	i := s.contactIndexLocked(c.ProjectID())
	if i < 0 {
		s.contacts = append(s.contacts, c)
		return
	}
	existing := s.contacts[i]
	if c.LastMessageAt.Before(existing.LastMessageAt) {
		c.LastMessageText = existing.LastMessageText
		c.LastMessageAt = existing.LastMessageAt
	}
	s.contacts[i] = c
}

// upsertMessageLocked merges msg into its project's history and reports
// whether it was new. A server echo replaces the optimistic entry that shares
// its client_message_id.
func (s *Store) upsertMessageLocked(msg model.ChatMessage) bool {
	msgs := s.messages[msg.ProjectID]
	for i := range msgs {
		if msgs[i].SameMessage(msg) {
			if msg.CreatedAt.IsZero() {
				msg.CreatedAt = msgs[i].CreatedAt
			}
			if msg.ClientMessageID == "" {
				msg.ClientMessageID = msgs[i].ClientMessageID
			}
			msgs[i] = msg
			sortMessages(msgs)
			return false
		}
	}
	msgs = append(msgs, msg)
	sortMessages(msgs)
	s.messages[msg.ProjectID] = msgs
	return true
}

// sortMessages orders oldest first, keeping arrival order for equal times.
func sortMessages(msgs []model.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
