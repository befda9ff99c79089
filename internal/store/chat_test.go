package store

import (
	"testing"
	"time"

	"github.com/rickgao/escrow-realtime/internal/model"
)

const self = int64(1)

func contact(projectID int64) model.ChatContact {
	return model.ChatContact{
		ID:          projectID * 10,
		ContactInfo: model.UserRef{ID: 2, Username: "seller"},
		ProjectInfo: model.ProjectRef{ID: projectID, Title: "project"},
	}
}

func inbound(projectID, id int64, from int64, minutes int) model.ChatMessage {
	return model.ChatMessage{
		ID:        id,
		ProjectID: projectID,
		Sender:    model.UserRef{ID: from},
		Content:   "hello",
		CreatedAt: t0.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestApplyInboundMessage_CountsUnread(t *testing.T) {
	s := New(nil)
	s.SetContacts([]model.ChatContact{contact(7)})

	for i := int64(1); i <= 3; i++ {
		if !s.ApplyInboundMessage(inbound(7, i, 2, int(i)), self) {
			t.Errorf("message %d not reported as new", i)
		}
	}

	c, _ := s.Contact(7)
	if c.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", c.UnreadCount)
	}
	if c.LastMessageText != "hello" || !c.LastMessageAt.Equal(t0.Add(3*time.Minute)) {
		t.Errorf("preview = %q at %v", c.LastMessageText, c.LastMessageAt)
	}
}

func TestApplyInboundMessage_DuplicateDeliveryCountsOnce(t *testing.T) {
	s := New(nil)
	s.SetContacts([]model.ChatContact{contact(7)})

	msg := inbound(7, 1, 2, 1)
	s.ApplyInboundMessage(msg, self)
	if s.ApplyInboundMessage(msg, self) {
		t.Error("redelivered message reported as new")
	}

	c, _ := s.Contact(7)
	if c.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", c.UnreadCount)
	}
	if got := len(s.Messages(7)); got != 1 {
		t.Errorf("history len = %d, want 1", got)
	}
}

func TestApplyInboundMessage_SkipsViewedAndOwn(t *testing.T) {
	s := New(nil)
	s.SetContacts([]model.ChatContact{contact(7), contact(8)})
	s.SetViewing(7)

	s.ApplyInboundMessage(inbound(7, 1, 2, 1), self)
	s.ApplyInboundMessage(inbound(8, 2, self, 2), self)

	for _, id := range []int64{7, 8} {
		c, _ := s.Contact(id)
		if c.UnreadCount != 0 {
			t.Errorf("project %d UnreadCount = %d, want 0", id, c.UnreadCount)
		}
	}
}

func TestMarkContactRead_Monotonic(t *testing.T) {
	s := New(nil)
	s.SetContacts([]model.ChatContact{contact(7)})
	s.ApplyInboundMessage(inbound(7, 1, 2, 1), self)
	s.ApplyInboundMessage(inbound(7, 2, 2, 2), self)

	if !s.MarkContactRead(7) {
		t.Error("first mark read reported no change")
	}
	for i := 0; i < 3; i++ {
		if s.MarkContactRead(7) {
			t.Error("repeat mark read reported a change")
		}
	}
	c, _ := s.Contact(7)
	if c.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d, want 0", c.UnreadCount)
	}

	// An increment after the reset is kept.
	s.ApplyInboundMessage(inbound(7, 3, 2, 3), self)
	c, _ = s.Contact(7)
	if c.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", c.UnreadCount)
	}
}

func TestMergeContacts_KeepsNewerPreview(t *testing.T) {
	s := New(nil)
	s.SetContacts([]model.ChatContact{contact(7)})
	s.ApplyInboundMessage(inbound(7, 1, 2, 10), self)

	stale := contact(7)
	stale.LastMessageText = "older"
	stale.LastMessageAt = t0
	stale.UnreadCount = 4
	s.MergeContacts([]model.ChatContact{stale, contact(9)})

	c, _ := s.Contact(7)
	if c.LastMessageText != "hello" {
		t.Errorf("preview = %q, stale snapshot replaced newer preview", c.LastMessageText)
	}
	if c.UnreadCount != 4 {
		t.Errorf("UnreadCount = %d, want server value 4", c.UnreadCount)
	}
	if got := len(s.Contacts()); got != 2 {
		t.Errorf("contacts = %d, want 2", got)
	}
}

func TestAppendMessage_EchoReplacesOptimistic(t *testing.T) {
	s := New(nil)
	s.SetContacts([]model.ChatContact{contact(7)})

	local := model.ChatMessage{
		ClientMessageID: "c-1",
		ProjectID:       7,
		Sender:          model.UserRef{ID: self},
		Content:         "hi",
		CreatedAt:       t0,
		Pending:         true,
	}
	if !s.AppendMessage(local) {
		t.Fatal("optimistic message not inserted")
	}

	echo := local
	echo.ID = 55
	echo.Pending = false
	echo.CreatedAt = t0.Add(time.Second)
	if s.ApplyInboundMessage(echo, self) {
		t.Error("echo reported as new")
	}

	msgs := s.Messages(7)
	if len(msgs) != 1 {
		t.Fatalf("history len = %d, want 1", len(msgs))
	}
	if msgs[0].ID != 55 || msgs[0].Pending {
		t.Errorf("entry = %+v, want acknowledged server copy", msgs[0])
	}
}

func TestMergeMessages_OldestFirst(t *testing.T) {
	s := New(nil)
	s.ApplyInboundMessage(inbound(7, 3, 2, 3), self)
	s.MergeMessages(7, []model.ChatMessage{
		inbound(0, 1, 2, 1),
		inbound(0, 2, 2, 2),
		inbound(0, 3, 2, 3),
	})

	msgs := s.Messages(7)
	if len(msgs) != 3 {
		t.Fatalf("history len = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != int64(i+1) {
			t.Errorf("position %d = %d, want %d", i, m.ID, i+1)
		}
		if m.ProjectID != 7 {
			t.Errorf("ProjectID = %d, want 7", m.ProjectID)
		}
	}
}

func TestTyping(t *testing.T) {
	s := New(nil)
	s.SetTyping(model.TypingEvent{ProjectID: 7, UserID: 3, IsTyping: true})
	s.SetTyping(model.TypingEvent{ProjectID: 7, UserID: 2, IsTyping: true})

	got := s.Typing(7)
	if len(got) != 2 || got[0].UserID != 2 {
		t.Errorf("Typing = %+v", got)
	}

	s.SetTyping(model.TypingEvent{ProjectID: 7, UserID: 2, IsTyping: false})
	if got := s.Typing(7); len(got) != 1 || got[0].UserID != 3 {
		t.Errorf("Typing after stop = %+v", got)
	}

	s.ClearMessages(7)
	if got := s.Typing(7); len(got) != 0 {
		t.Errorf("Typing after clear = %+v", got)
	}
}

func TestReadReceipt_NeverMovesBack(t *testing.T) {
	s := New(nil)
	s.SetReadReceipt(model.ReadReceipt{ProjectID: 7, UserID: 2, LastReadMessageID: 10})
	s.SetReadReceipt(model.ReadReceipt{ProjectID: 7, UserID: 2, LastReadMessageID: 4})

	if got := s.LastRead(7, 2); got != 10 {
		t.Errorf("LastRead = %d, want 10", got)
	}
}

func TestPaymentStatus_Overwrites(t *testing.T) {
	s := New(nil)
	if _, ok := s.PaymentStatus(); ok {
		t.Error("expected no payment status initially")
	}

	s.SetPaymentStatus(model.PaymentStatus{Status: "pending", Amount: "50.00"})
	s.SetPaymentStatus(model.PaymentStatus{Status: "funded"})

	p, ok := s.PaymentStatus()
	if !ok || p.Status != "funded" || p.Amount != "" {
		t.Errorf("PaymentStatus = %+v, want overwritten funded", p)
	}

	s.SetProjectStatus(model.ProjectStatus{ProjectID: 7, Status: "in_progress"})
	s.ClearPayment()
	if _, ok := s.ProjectStatus(); ok {
		t.Error("ClearPayment kept project status")
	}
}
