package channel

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/escrow-realtime/internal/auth"
	"github.com/rickgao/escrow-realtime/internal/connection"
	"github.com/rickgao/escrow-realtime/internal/connection/conntest"
	"github.com/rickgao/escrow-realtime/internal/loop"
	"github.com/rickgao/escrow-realtime/internal/model"
)

const waitTimeout = 2 * time.Second

type env struct {
	t      *testing.T
	loop   *loop.Loop
	clock  *loop.ManualClock
	dialer *conntest.Dialer
	drops  *dropCounter
	cfg    Config
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:      t,
		clock:  loop.NewManualClock(),
		dialer: conntest.NewDialer(),
		drops:  &dropCounter{},
	}
	e.loop = loop.New(nil, loop.WithScheduler(e.clock))
	if err := e.loop.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		e.loop.Stop(ctx)
	})
	e.cfg = Config{
		BaseURL:    "wss://escrow.test/",
		Connection: connection.DefaultConfig(""),
		Dialer:     e.dialer,
		Observer:   e.drops,
	}
	return e
}

func (e *env) next() *conntest.Conn {
	e.t.Helper()
	c, err := e.dialer.Next(waitTimeout)
	if err != nil {
		e.t.Fatal(err)
	}
	return c
}

func (e *env) waitFor(what string, cond func() bool) {
	e.t.Helper()
	if !conntest.WaitFor(waitTimeout, cond) {
		e.t.Fatalf("timed out waiting for %s", what)
	}
}

func (e *env) sync() {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.loop.Sync(ctx); err != nil {
		e.t.Fatalf("Sync failed: %v", err)
	}
}

// dropCounter records FrameDropped calls.
type dropCounter struct {
	connection.Observers
	mu      sync.Mutex
	reasons []string
}

func (d *dropCounter) FrameDropped(channel, reason string) {
	d.mu.Lock()
	d.reasons = append(d.reasons, channel+":"+reason)
	d.mu.Unlock()
}

func (d *dropCounter) list() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.reasons...)
}

// recorder implements every handler interface and logs calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string

	notifications []model.Notification
	messages      []model.ChatMessage
	typing        []model.TypingEvent
	receipts      []model.ReadReceipt
	payments      []model.PaymentStatus
	projects      []model.ProjectStatus
	markedRead    []int64
	updatedCount  int
}

func (r *recorder) record(call string) {
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) NewNotification(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("NewNotification")
	r.notifications = append(r.notifications, n)
}

func (r *recorder) NotificationUpdated(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("NotificationUpdated")
	r.notifications = append(r.notifications, n)
}

func (r *recorder) AllNotificationsMarkedRead(updatedCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("AllNotificationsMarkedRead")
	r.updatedCount = updatedCount
}

func (r *recorder) UnreadNotifications(list []model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("UnreadNotifications")
	r.notifications = append(r.notifications, list...)
}

func (r *recorder) NotificationsList(list []model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("NotificationsList")
	r.notifications = append(r.notifications, list...)
}

func (r *recorder) NotificationMarkedRead(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("NotificationMarkedRead")
	r.markedRead = append(r.markedRead, id)
}

func (r *recorder) MessageReceived(msg model.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("MessageReceived")
	r.messages = append(r.messages, msg)
}

func (r *recorder) Typing(ev model.TypingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("Typing")
	r.typing = append(r.typing, ev)
}

func (r *recorder) ReadReceipt(rr model.ReadReceipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("ReadReceipt")
	r.receipts = append(r.receipts, rr)
}

func (r *recorder) PaymentStatusUpdated(p model.PaymentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("PaymentStatusUpdated")
	r.payments = append(r.payments, p)
}

func (r *recorder) ProjectStatusUpdated(p model.ProjectStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("ProjectStatusUpdated")
	r.projects = append(r.projects, p)
}

func (r *recorder) Pong() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("Pong")
}

func (r *recorder) waitCalls(e *env, n int) []string {
	e.t.Helper()
	e.waitFor("handler calls", func() bool { return len(r.Calls()) >= n })
	return r.Calls()
}

func TestNotifications_ConnectURLAndResync(t *testing.T) {
	e := newEnv(t)
	n := NewNotifications(e.cfg, e.loop, auth.StaticToken("tok"), nil)

	n.Connect()
	conn := e.next()
	e.waitFor("connected", n.Connected)

	if !strings.HasPrefix(conn.URL, "wss://escrow.test/ws/notifications/?") || !strings.Contains(conn.URL, "token=tok") {
		t.Errorf("dialed %q", conn.URL)
	}
	e.waitFor("get_notifications", func() bool { return len(conn.Sent()) == 1 })
	if got := conn.SentTypes(); got[0] != ActionGetNotifications {
		t.Errorf("sent %v, want get_notifications on open", got)
	}
}

func TestNotifications_DispatchesEveryFrameKind(t *testing.T) {
	e := newEnv(t)
	n := NewNotifications(e.cfg, e.loop, auth.StaticToken("tok"), nil)
	rec := &recorder{}
	n.SetHandler(rec)

	n.Connect()
	conn := e.next()
	e.waitFor("connected", n.Connected)

	conn.Push(`{"type":"new_notification","notification":{"id":1,"message":"a","is_read":false}}`)
	conn.Push(`{"type":"notification_updated","notification":{"id":1,"message":"b"}}`)
	conn.Push(`{"type":"all_notifications_marked_read","updated_count":4}`)
	conn.Push(`{"type":"unread_notifications","notifications":[{"id":2},{"id":3}]}`)
	conn.Push(`{"type":"notifications_list","notifications":[{"id":4}]}`)
	conn.Push(`{"type":"notification_marked_read","notification_id":9}`)

	calls := rec.waitCalls(e, 6)
	want := []string{
		"NewNotification", "NotificationUpdated", "AllNotificationsMarkedRead",
		"UnreadNotifications", "NotificationsList", "NotificationMarkedRead",
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], want[i])
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.updatedCount != 4 {
		t.Errorf("updated_count = %d, want 4", rec.updatedCount)
	}
	if len(rec.notifications) != 5 {
		t.Errorf("notifications = %d, want 5", len(rec.notifications))
	}
	if len(rec.markedRead) != 1 || rec.markedRead[0] != 9 {
		t.Errorf("markedRead = %v", rec.markedRead)
	}
}

func TestNotifications_UnknownFrameDropped(t *testing.T) {
	e := newEnv(t)
	n := NewNotifications(e.cfg, e.loop, auth.StaticToken("tok"), nil)
	rec := &recorder{}
	n.SetHandler(rec)

	n.Connect()
	conn := e.next()
	e.waitFor("connected", n.Connected)

	conn.Push(`{"type":"notification_deleted","id":1}`)
	conn.Push(`{"type":"new_notification","notification":"not an object"}`)
	conn.Push(`{"type":"notification_marked_read","notification_id":1}`)

	rec.waitCalls(e, 1)
	e.sync()

	if calls := rec.Calls(); len(calls) != 1 {
		t.Errorf("calls = %v, want only NotificationMarkedRead", calls)
	}
	drops := e.drops.list()
	if len(drops) != 2 || drops[0] != "notifications:unknown_type" || drops[1] != "notifications:invalid_payload" {
		t.Errorf("drops = %v", drops)
	}
	if !n.Connected() {
		t.Error("bad frames must not close the channel")
	}
}

func TestNotifications_SetHandlerReplaces(t *testing.T) {
	e := newEnv(t)
	n := NewNotifications(e.cfg, e.loop, auth.StaticToken("tok"), nil)
	first, second := &recorder{}, &recorder{}
	n.SetHandler(first)
	n.SetHandler(second)

	n.Connect()
	conn := e.next()
	e.waitFor("connected", n.Connected)

	conn.Push(`{"type":"new_notification","notification":{"id":1}}`)
	second.waitCalls(e, 1)
	e.sync()

	if got := len(first.Calls()); got != 0 {
		t.Errorf("replaced handler fired %d times", got)
	}
	if got := len(second.Calls()); got != 1 {
		t.Errorf("current handler fired %d times, want 1", got)
	}
}

func TestNotifications_Actions(t *testing.T) {
	e := newEnv(t)
	n := NewNotifications(e.cfg, e.loop, auth.StaticToken("tok"), nil)

	n.Connect()
	conn := e.next()
	e.waitFor("connected", n.Connected)
	e.waitFor("resync", func() bool { return len(conn.Sent()) == 1 })

	n.MarkRead(12)
	n.MarkAllRead()

	sent := conn.SentMaps()
	if len(sent) != 3 {
		t.Fatalf("sent %d frames, want 3", len(sent))
	}
	if sent[1]["type"] != ActionMarkNotificationRead || sent[1]["notification_id"] != float64(12) {
		t.Errorf("mark read frame = %v", sent[1])
	}
	if sent[2]["type"] != ActionMarkAllRead {
		t.Errorf("mark all frame = %v", sent[2])
	}
}

func TestNotifications_NoTokenNoConnect(t *testing.T) {
	e := newEnv(t)
	n := NewNotifications(e.cfg, e.loop, auth.StaticToken(""), nil)

	n.Connect()
	e.sync()

	if e.dialer.Attempts() != 0 {
		t.Error("dialed without a token")
	}
}

func TestNotifications_ResyncOnReconnect(t *testing.T) {
	e := newEnv(t)
	n := NewNotifications(e.cfg, e.loop, auth.StaticToken("tok"), nil)

	n.Connect()
	first := e.next()
	e.waitFor("connected", n.Connected)

	first.Drop()
	e.waitFor("reconnect scheduled", func() bool { return e.clock.Pending() == 1 })
	e.clock.Advance(time.Second)

	second := e.next()
	e.waitFor("resync", func() bool { return len(second.Sent()) == 1 })
	if got := second.SentTypes(); got[0] != ActionGetNotifications {
		t.Errorf("sent %v after reconnect", got)
	}
}

func TestChat_ScopedURLAndActions(t *testing.T) {
	e := newEnv(t)
	c := NewChat(e.cfg, 42, e.loop, auth.StaticToken("tok"), nil)

	c.Connect()
	conn := e.next()
	e.waitFor("connected", c.Connected)

	if !strings.HasPrefix(conn.URL, "wss://escrow.test/ws/chat/42/?") {
		t.Errorf("dialed %q", conn.URL)
	}
	if len(conn.Sent()) != 0 {
		t.Errorf("chat sent %v on open, want nothing", conn.SentTypes())
	}

	id := c.SendMessage("hello")
	c.SetTyping(true)
	c.MarkRead(77)

	sent := conn.SentMaps()
	if len(sent) != 3 {
		t.Fatalf("sent %d frames, want 3", len(sent))
	}
	if sent[0]["type"] != ActionSendMessage || sent[0]["content"] != "hello" || sent[0]["client_message_id"] != id {
		t.Errorf("send frame = %v (id %s)", sent[0], id)
	}
	if len(id) != 36 {
		t.Errorf("client_message_id = %q, want a uuid", id)
	}
	if sent[1]["type"] != ActionTyping || sent[1]["is_typing"] != true {
		t.Errorf("typing frame = %v", sent[1])
	}
	if sent[2]["type"] != ActionRead || sent[2]["last_read_message_id"] != float64(77) {
		t.Errorf("read frame = %v", sent[2])
	}
}

func TestChat_DispatchFillsProject(t *testing.T) {
	e := newEnv(t)
	c := NewChat(e.cfg, 42, e.loop, auth.StaticToken("tok"), nil)
	rec := &recorder{}
	c.SetHandler(rec)

	c.Connect()
	conn := e.next()
	e.waitFor("connected", c.Connected)

	conn.Push(`{"type":"new.message","message":{"id":5,"content":"hi","sender":{"id":2}}}`)
	conn.Push(`{"type":"typing","user_id":2,"username":"seller","is_typing":true}`)
	conn.Push(`{"type":"read_receipt","user_id":2,"last_read_message_id":5}`)

	rec.waitCalls(e, 3)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != 1 || rec.messages[0].ProjectID != 42 || rec.messages[0].Content != "hi" {
		t.Errorf("messages = %+v", rec.messages)
	}
	if len(rec.typing) != 1 || rec.typing[0].ProjectID != 42 || !rec.typing[0].IsTyping || rec.typing[0].Username != "seller" {
		t.Errorf("typing = %+v", rec.typing)
	}
	if len(rec.receipts) != 1 || rec.receipts[0].ProjectID != 42 || rec.receipts[0].LastReadMessageID != 5 {
		t.Errorf("receipts = %+v", rec.receipts)
	}
}

func TestChat_DisconnectDetaches(t *testing.T) {
	e := newEnv(t)
	c := NewChat(e.cfg, 42, e.loop, auth.StaticToken("tok"), nil)
	rec := &recorder{}
	c.SetHandler(rec)

	c.Connect()
	conn := e.next()
	e.waitFor("connected", c.Connected)

	c.Disconnect()
	conn.Push(`{"type":"typing","user_id":2,"is_typing":true}`)
	time.Sleep(20 * time.Millisecond)
	e.sync()

	if !conn.Closed() {
		t.Error("socket left open")
	}
	if got := len(rec.Calls()); got != 0 {
		t.Errorf("handler fired %d times after Disconnect", got)
	}
}

func TestPayment_ConnectRequestsStatus(t *testing.T) {
	e := newEnv(t)
	p := NewPayment(e.cfg, "inv-1", e.loop, auth.StaticToken("tok"), nil)
	rec := &recorder{}
	p.SetHandler(rec)

	p.Connect()
	conn := e.next()
	e.waitFor("connected", p.Connected)

	if !strings.Contains(conn.URL, "/ws/payment-status/?") ||
		!strings.Contains(conn.URL, "invite_token=inv-1") ||
		!strings.Contains(conn.URL, "token=tok") {
		t.Errorf("dialed %q", conn.URL)
	}
	e.waitFor("get_payment_status", func() bool { return len(conn.Sent()) == 1 })
	if got := conn.SentTypes(); got[0] != ActionGetPaymentStatus {
		t.Errorf("sent %v on open", got)
	}

	p.Ping()
	if got := conn.SentTypes(); len(got) != 2 || got[1] != ActionPing {
		t.Errorf("sent %v after Ping", got)
	}

	conn.Push(`{"type":"payment_status_update","data":{"status":"funded","amount":"10.00"}}`)
	conn.Push(`{"type":"project_status_update","data":{"project_id":3,"status":"completed"}}`)
	conn.Push(`{"type":"pong"}`)

	calls := rec.waitCalls(e, 3)
	want := []string{"PaymentStatusUpdated", "ProjectStatusUpdated", "Pong"}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], want[i])
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.payments[0].Status != "funded" || len(rec.payments[0].Raw) == 0 {
		t.Errorf("payment = %+v", rec.payments[0])
	}
	if rec.projects[0].ProjectID != 3 {
		t.Errorf("project = %+v", rec.projects[0])
	}
}

func TestDecodeFrames_UnknownType(t *testing.T) {
	f := connection.Frame{Type: "mystery", Data: []byte(`{"type":"mystery"}`)}

	if _, err := DecodeNotificationFrame(f); err == nil {
		t.Error("notifications accepted unknown type")
	}
	if _, err := DecodeChatFrame(f); err == nil {
		t.Error("chat accepted unknown type")
	}
	if _, err := DecodePaymentFrame(f); err == nil {
		t.Error("payment accepted unknown type")
	}
}
