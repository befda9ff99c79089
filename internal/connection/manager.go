package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/rickgao/escrow-realtime/internal/loop"
)

// Manager owns one socket for one channel and keeps it alive.
//
// Handler registration is single-subscriber per event name: On replaces any
// previous handler for that name. Channel adapters rely on this so a view that
// remounts never leaves a stale handler behind.
type Manager struct {
	cfg      Config
	dialer   Dialer
	loop     *loop.Loop
	hooks    Hooks
	observer Observer
	logger   *slog.Logger

	mu         sync.Mutex
	conn       Conn
	connected  bool
	opening    bool
	attempts   int
	target     *target // nil once Disconnect is called
	handlers   map[string]Handler
	gen        uint64 // identifies the current socket instance
	retry      loop.Timer
	cancelDial context.CancelFunc
}

// target is the stored {url, params} replayed on reconnect.
type target struct {
	url    string
	params url.Values
	addr   string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDialer sets the transport used to open sockets.
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithHooks sets the lifecycle hooks.
func WithHooks(h Hooks) ManagerOption {
	return func(m *Manager) {
		m.hooks = h
	}
}

// WithObserver sets the instrumentation observer.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// NewManager creates a Manager whose callbacks run on lp.
func NewManager(cfg Config, lp *loop.Loop, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.BaseReconnectDelay <= 0 {
		cfg.BaseReconnectDelay = time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	m := &Manager{
		cfg:      cfg,
		loop:     lp,
		observer: Observers(nil),
		logger:   logger.With("channel", cfg.Name),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		clientCfg := DefaultClientConfig()
		clientCfg.HandshakeTimeout = cfg.HandshakeTimeout
		m.dialer = NewDialer(clientCfg, m.logger)
	}
	return m
}

// Name returns the channel name.
func (m *Manager) Name() string {
	return m.cfg.Name
}

// Connect opens the socket unless one is already open or opening. A pending
// reconnect timer is cancelled. It returns immediately; the outcome surfaces
// through hooks and handlers.
func (m *Manager) Connect(rawURL string, params url.Values) {
	addr, err := buildAddr(rawURL, params)
	if err != nil {
		m.logger.Error("invalid websocket url", "url", rawURL, "error", err)
		return
	}

	m.mu.Lock()
	if m.conn != nil || m.opening {
		m.mu.Unlock()
		m.logger.Debug("connect ignored, socket already open")
		return
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.target = &target{url: rawURL, params: cloneValues(params), addr: addr}
	gen, ctx := m.beginDialLocked()
	m.mu.Unlock()

	go m.dial(ctx, gen, addr)
}

// Disconnect closes the socket, forgets the stored target, clears every
// handler and cancels a pending reconnect. Hooks do not fire.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.target = nil
	m.conn = nil
	m.connected = false
	m.opening = false
	m.attempts = 0
	m.handlers = make(map[string]Handler)
	m.gen++
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
		m.observer.Disconnected(m.cfg.Name)
	}
	m.logger.Info("websocket disconnected")
}

// SendMessage serialises {type, ...data} and transmits it if the socket is
// open. Otherwise the message is logged and dropped; nothing is queued.
func (m *Manager) SendMessage(msgType string, data any) {
	m.mu.Lock()
	conn := m.conn
	connected := m.connected
	m.mu.Unlock()

	if conn == nil || !connected {
		m.logger.Error("websocket not connected, dropping message", "type", msgType)
		m.observer.SendDropped(m.cfg.Name, msgType)
		return
	}

	payload, err := EncodeEnvelope(msgType, data)
	if err != nil {
		m.logger.Error("failed to encode message", "type", msgType, "error", err)
		m.observer.SendDropped(m.cfg.Name, msgType)
		return
	}

	if err := conn.WriteMessage(payload); err != nil {
		m.logger.Error("failed to send message", "type", msgType, "error", err)
		m.observer.SendDropped(m.cfg.Name, msgType)
		return
	}

	m.logger.Debug("message sent", "type", msgType)
	m.observer.MessageSent(m.cfg.Name, msgType)
}

// On registers the handler for an event name, replacing any previous one.
func (m *Manager) On(event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		delete(m.handlers, event)
		return
	}
	m.handlers[event] = h
}

// Off removes the handler for an event name.
func (m *Manager) Off(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, event)
}

// IsConnected returns current connection state.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// ReconnectAttempts returns the attempts made since the last successful open.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// beginDialLocked marks a new socket instance as opening. Caller holds mu.
func (m *Manager) beginDialLocked() (uint64, context.Context) {
	m.gen++
	m.opening = true
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	m.cancelDial = cancel
	return m.gen, ctx
}

// dial runs off the loop; its outcome is posted back as turns.
func (m *Manager) dial(ctx context.Context, gen uint64, addr string) {
	m.logger.Debug("dialing websocket", "attempt", m.ReconnectAttempts())

	conn, err := m.dialer.Dial(ctx, addr)
	if err != nil {
		m.loop.Post(func() { m.handleError(gen, err) })
		m.loop.Post(func() { m.handleClose(gen, CloseEvent{Code: CloseAbnormal, Reason: err.Error()}) })
		return
	}

	if !m.loop.Post(func() { m.handleOpen(gen, conn) }) {
		conn.Close()
		return
	}
	go m.readLoop(gen, conn)
}

// readLoop forwards frames in socket order until the socket ends.
func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			ev := closeEventFrom(err)
			if !ev.Clean {
				m.loop.Post(func() { m.handleError(gen, err) })
			}
			m.loop.Post(func() { m.handleClose(gen, ev) })
			return
		}

		if !m.loop.Post(func() { m.handleMessage(gen, data, receivedAt) }) {
			conn.Close()
			return
		}
	}
}

func (m *Manager) handleOpen(gen uint64, conn Conn) {
	m.mu.Lock()
	if gen != m.gen || m.target == nil {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.connected = true
	m.opening = false
	m.attempts = 0
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.mu.Unlock()

	m.logger.Info("websocket connected")
	m.observer.Connected(m.cfg.Name)

	if m.hooks.OnConnect != nil {
		m.hooks.OnConnect()
	}
}

func (m *Manager) handleMessage(gen uint64, data []byte, receivedAt time.Time) {
	if !m.isCurrent(gen) {
		return
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		m.logger.Warn("dropping malformed frame", "error", err, "size", len(data))
		m.observer.FrameDropped(m.cfg.Name, "malformed")
		return
	}
	if env.Type == "" {
		m.logger.Warn("dropping frame without type")
		m.observer.FrameDropped(m.cfg.Name, "missing_type")
		return
	}

	frame := Frame{Type: env.Type, Data: json.RawMessage(data), ReceivedAt: receivedAt}
	m.observer.FrameReceived(m.cfg.Name, frame)

	m.mu.Lock()
	typed := m.handlers[env.Type]
	generic := m.handlers[MessageEvent]
	m.mu.Unlock()

	if typed != nil {
		typed(frame)
	}
	if generic != nil && env.Type != MessageEvent {
		generic(frame)
	}
	if typed == nil && generic == nil {
		m.logger.Debug("no handler for frame", "type", env.Type)
	}
}

func (m *Manager) handleError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.target == nil {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.mu.Unlock()

	m.logger.Warn("websocket error", "error", err)

	if m.hooks.OnError != nil {
		m.hooks.OnError(err)
	}
}

func (m *Manager) handleClose(gen uint64, ev CloseEvent) {
	m.mu.Lock()
	if gen != m.gen || m.target == nil {
		m.mu.Unlock()
		return
	}
	hadConn := m.conn != nil
	m.conn = nil
	m.connected = false
	m.opening = false
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.mu.Unlock()

	m.logger.Info("websocket closed", "code", ev.Code, "reason", ev.Reason, "clean", ev.Clean)
	if hadConn {
		m.observer.Disconnected(m.cfg.Name)
	}

	if m.hooks.OnDisconnect != nil {
		m.hooks.OnDisconnect(ev)
	}

	m.scheduleReconnect()
}

// scheduleReconnect applies the linear backoff policy: attempt n waits
// n × BaseReconnectDelay, and nothing is scheduled past the cap.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.target == nil {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.Error("max reconnect attempts reached, giving up", "attempts", attempts)
		m.observer.ReconnectExhausted(m.cfg.Name)
		return
	}
	m.attempts++
	attempt := m.attempts
	delay := m.cfg.BaseReconnectDelay * time.Duration(attempt)
	m.retry = m.loop.AfterFunc(delay, m.reconnect)
	m.mu.Unlock()

	m.logger.Info("reconnect scheduled",
		"attempt", attempt,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)
	m.observer.ReconnectScheduled(m.cfg.Name, attempt, delay)
}

// reconnect is the timer turn. It is a no-op once the manager has been torn
// down or a socket is already open or opening.
func (m *Manager) reconnect() {
	m.mu.Lock()
	m.retry = nil
	if m.target == nil || m.conn != nil || m.opening {
		m.mu.Unlock()
		m.logger.Debug("reconnect skipped")
		return
	}
	addr := m.target.addr
	gen, ctx := m.beginDialLocked()
	m.mu.Unlock()

	m.logger.Info("attempting reconnection")
	go m.dial(ctx, gen, addr)
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && m.target != nil
}

// EncodeEnvelope builds the flat {type, ...data} frame. data must marshal to a
// JSON object (or be nil); the envelope's type always wins over a "type" key
// inside data.
func EncodeEnvelope(msgType string, data any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		if string(raw) != "null" {
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, ErrNotObject
			}
		}
	}

	typ, err := json.Marshal(msgType)
	if err != nil {
		return nil, fmt.Errorf("marshal type: %w", err)
	}
	fields["type"] = typ

	return json.Marshal(fields)
}

// buildAddr merges params into the query string of rawURL.
func buildAddr(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q must be absolute", rawURL)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			q[k] = append([]string(nil), vs...)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
