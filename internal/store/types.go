package store

import "github.com/rickgao/escrow-realtime/internal/model"

// ChangeBufferSize is the capacity of the Changes channel.
const ChangeBufferSize = 256

// ChangeKind names the collection a Change touched.
type ChangeKind string

const (
	ChangeNotifications ChangeKind = "notifications"
	ChangeContacts      ChangeKind = "contacts"
	ChangeMessages      ChangeKind = "messages"
	ChangeTyping        ChangeKind = "typing"
	ChangeReadReceipts  ChangeKind = "read_receipts"
	ChangePayment       ChangeKind = "payment"
	ChangeProject       ChangeKind = "project"
	ChangeReset         ChangeKind = "reset"
)

// Change describes one applied mutation.
type Change struct {
	Kind      ChangeKind
	ProjectID int64  // Set for per-project collections
	Version   uint64 // Store version after the mutation
}

// Snapshot is a point-in-time copy of the whole store.
type Snapshot struct {
	Version       uint64                        `json:"version"`
	Notifications []model.Notification          `json:"notifications"`
	Unread        int                           `json:"unread_notifications"`
	Contacts      []model.ChatContact           `json:"contacts"`
	Messages      map[int64][]model.ChatMessage `json:"messages"`
	Viewing       int64                         `json:"viewing_project_id"`
	Payment       *model.PaymentStatus          `json:"payment_status,omitempty"`
	Project       *model.ProjectStatus          `json:"project_status,omitempty"`
}
