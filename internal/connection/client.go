package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open socket instance. ReadMessage is called from a single
// goroutine; WriteMessage and Close may be called concurrently.
type Conn interface {
	// ReadMessage blocks for the next data frame.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text frame.
	WriteMessage(data []byte) error

	// Close closes the socket. Safe to call more than once.
	Close() error
}

// Dialer opens socket instances.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, rawURL string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, rawURL string) (Conn, error) {
	return f(ctx, rawURL)
}

// wsDialer dials gorilla/websocket connections.
type wsDialer struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewDialer creates a gorilla/websocket Dialer.
func NewDialer(cfg ClientConfig, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsDialer{cfg: cfg, logger: logger}
}

// Dial establishes the WebSocket connection and starts its keepalive.
func (d *wsDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	for k, vs := range d.cfg.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}

	if d.cfg.ReadLimit > 0 {
		conn.SetReadLimit(d.cfg.ReadLimit)
	}

	c := &wsConn{
		cfg:      d.cfg,
		logger:   d.logger,
		conn:     conn,
		lastPong: time.Now(),
		done:     make(chan struct{}),
	}

	// Server pings count as liveness too.
	conn.SetPingHandler(func(data string) error {
		c.touch()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	if d.cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}

	return c, nil
}

// wsConn wraps a gorilla connection with serialized writes and keepalive.
type wsConn struct {
	cfg    ClientConfig
	logger *slog.Logger
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	lastPong time.Time
	stale    bool

	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := c.stale
			c.mu.Unlock()
			if stale {
				return nil, ErrStaleConnection
			}
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	select {
	case <-c.done:
		return ErrAlreadyClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame and closes the socket.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) touch() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

// heartbeatLoop pings the server and closes the socket when it goes quiet,
// which surfaces as a read error on the read loop.
func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.Lock()
			last := c.lastPong
			c.mu.Unlock()

			if c.cfg.PongTimeout > 0 && time.Since(last) > c.cfg.PongTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", last,
					"timeout", c.cfg.PongTimeout,
				)
				c.mu.Lock()
				c.stale = true
				c.mu.Unlock()
				c.conn.Close()
				return
			}
		}
	}
}

// closeEventFrom converts a read error into the close event reported to hooks.
func closeEventFrom(err error) CloseEvent {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseEvent{
			Code:   ce.Code,
			Reason: ce.Text,
			Clean:  ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway,
		}
	}
	return CloseEvent{Code: CloseAbnormal, Reason: err.Error()}
}
