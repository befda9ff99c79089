// Package conntest provides an in-memory Dialer and Conn for exercising
// connection managers and the channel adapters built on them.
package conntest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/escrow-realtime/internal/connection"
)

// ErrRefused is returned by a Dialer that has been told to fail.
var ErrRefused = errors.New("conntest: connection refused")

// Dialer hands out in-memory Conns and records every dial.
type Dialer struct {
	mu       sync.Mutex
	fail     error
	failNext int
	urls     []string
	conns    []*Conn
	attempts int

	dialed chan *Conn
}

// NewDialer creates a Dialer that succeeds until told otherwise.
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 64)}
}

// Dial implements connection.Dialer.
func (d *Dialer) Dial(ctx context.Context, rawURL string) (connection.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.attempts++
	d.urls = append(d.urls, rawURL)
	if d.failNext > 0 {
		d.failNext--
		d.mu.Unlock()
		return nil, ErrRefused
	}
	if d.fail != nil {
		err := d.fail
		d.mu.Unlock()
		return nil, err
	}
	c := newConn(rawURL)
	d.conns = append(d.conns, c)
	d.mu.Unlock()

	d.dialed <- c
	return c, nil
}

// FailAll makes every later dial return err. A nil err restores success.
func (d *Dialer) FailAll(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

// FailNext makes the next n dials fail with ErrRefused.
func (d *Dialer) FailNext(n int) {
	d.mu.Lock()
	d.failNext = n
	d.mu.Unlock()
}

// Attempts returns how many dials have been made.
func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// URLs returns every dialed URL in order.
func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Conns returns every successfully dialed Conn in order.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Next waits for the next successful dial.
func (d *Dialer) Next(timeout time.Duration) (*Conn, error) {
	select {
	case c := <-d.dialed:
		return c, nil
	case <-time.After(timeout):
		return nil, errors.New("conntest: timed out waiting for dial")
	}
}

// Conn is the client end of an in-memory socket. The server end is driven
// through Push, CloseWith and Sent.
type Conn struct {
	URL string

	in     chan []byte
	end    chan struct{}
	endErr error
	once   sync.Once

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newConn(rawURL string) *Conn {
	return &Conn{
		URL: rawURL,
		in:  make(chan []byte, 256),
		end: make(chan struct{}),
	}
}

// ReadMessage implements connection.Conn.
func (c *Conn) ReadMessage() ([]byte, error) {
	// Frames pushed before the socket ended are still delivered.
	select {
	case data := <-c.in:
		return data, nil
	default:
	}
	select {
	case data := <-c.in:
		return data, nil
	case <-c.end:
		select {
		case data := <-c.in:
			return data, nil
		default:
		}
		return nil, c.endErr
	}
}

// WriteMessage implements connection.Conn.
func (c *Conn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return connection.ErrAlreadyClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

// Close implements connection.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.finish(&websocket.CloseError{Code: websocket.CloseNormalClosure})
	return nil
}

// Closed reports whether the client closed the socket.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Push delivers a raw frame to the client.
func (c *Conn) Push(frame string) {
	c.in <- []byte(frame)
}

// PushJSON marshals v and delivers it to the client.
func (c *Conn) PushJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.in <- data
	return nil
}

// CloseWith ends the socket from the server side with a close frame.
func (c *Conn) CloseWith(code int, reason string) {
	c.finish(&websocket.CloseError{Code: code, Text: reason})
}

// Drop ends the socket without a close frame.
func (c *Conn) Drop() {
	c.finish(errors.New("conntest: connection reset"))
}

func (c *Conn) finish(err error) {
	c.once.Do(func() {
		c.endErr = err
		close(c.end)
	})
}

// Sent returns every frame the client wrote, in order.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentMaps decodes every written frame as a JSON object.
func (c *Conn) SentMaps() []map[string]any {
	var out []map[string]any
	for _, raw := range c.Sent() {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// SentTypes returns the "type" of every written frame.
func (c *Conn) SentTypes() []string {
	var out []string
	for _, m := range c.SentMaps() {
		s, _ := m["type"].(string)
		out = append(out, s)
	}
	return out
}

// WaitFor polls cond until it holds or the timeout passes.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
