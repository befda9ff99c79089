package model

import (
	"encoding/json"
	"time"
)

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// Notification is one user-facing notification. Identity key is ID.
type Notification struct {
	ID                   int64          `json:"id"`
	Message              string         `json:"message"`
	TranslationKey       string         `json:"translation_key,omitempty"`
	TranslationVariables map[string]any `json:"translation_variables,omitempty"`
	NotificationType     string         `json:"notification_type,omitempty"`
	IsRead               bool           `json:"is_read"`
	CreatedAt            time.Time      `json:"created_at"`
}

// -----------------------------------------------------------------------------
// Chat
// -----------------------------------------------------------------------------

// UserRef identifies a platform user.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// ProjectRef identifies an escrow project.
type ProjectRef struct {
	ID     int64  `json:"id"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"`
}

// ChatContact is one conversation in the contact list. Identity key is the
// project id: there is one conversation per project.
type ChatContact struct {
	ID              int64      `json:"id"`
	ContactInfo     UserRef    `json:"contact_info"`
	ProjectInfo     ProjectRef `json:"project_info"`
	LastMessageText string     `json:"last_message_text"`
	LastMessageAt   time.Time  `json:"last_message_at"`
	UnreadCount     int        `json:"unread_count"`
}

// ProjectID returns the project this conversation belongs to.
func (c ChatContact) ProjectID() int64 {
	return c.ProjectInfo.ID
}

// ChatMessage is one message in a project conversation.
type ChatMessage struct {
	ID              int64     `json:"id,omitempty"`                // Server id, zero until acknowledged
	ClientMessageID string    `json:"client_message_id,omitempty"` // Correlation id set by the sender
	ProjectID       int64     `json:"project_id"`
	Sender          UserRef   `json:"sender"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	Pending         bool      `json:"-"` // Optimistic local entry awaiting the server echo
}

// SameMessage reports whether m and other are the same message, matching on the
// server id when both have one and on the client correlation id otherwise.
func (m ChatMessage) SameMessage(other ChatMessage) bool {
	if m.ID != 0 && other.ID != 0 {
		return m.ID == other.ID
	}
	return m.ClientMessageID != "" && m.ClientMessageID == other.ClientMessageID
}

// TypingEvent reports that a participant started or stopped typing.
type TypingEvent struct {
	ProjectID int64  `json:"-"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username,omitempty"`
	IsTyping  bool   `json:"is_typing"`
}

// ReadReceipt reports how far a participant has read.
type ReadReceipt struct {
	ProjectID         int64 `json:"-"`
	UserID            int64 `json:"user_id"`
	LastReadMessageID int64 `json:"last_read_message_id"`
}

// -----------------------------------------------------------------------------
// Payment status
// -----------------------------------------------------------------------------

// PaymentStatus is the last known state of one in-flight payment. It is
// overwritten on every update, never accumulated.
type PaymentStatus struct {
	Status    string          `json:"status"`
	PaymentID string          `json:"payment_id,omitempty"`
	Amount    string          `json:"amount,omitempty"`
	Currency  string          `json:"currency,omitempty"`
	Message   string          `json:"message,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
	Raw       json.RawMessage `json:"-"` // Full server payload, including fields not modelled here
}

// UnmarshalJSON decodes the known fields and keeps the full payload in Raw.
func (p *PaymentStatus) UnmarshalJSON(data []byte) error {
	type plain PaymentStatus
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = PaymentStatus(v)
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// ProjectStatus is the last known state of the escrow project behind a
// payment.
type ProjectStatus struct {
	ProjectID int64           `json:"project_id"`
	Status    string          `json:"status"`
	Title     string          `json:"title,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
	Raw       json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the full payload in Raw.
func (p *ProjectStatus) UnmarshalJSON(data []byte) error {
	type plain ProjectStatus
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ProjectStatus(v)
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}
