package connection

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrNotObject       = errors.New("payload is not a JSON object")
)

// MessageEvent is the handler name that receives every well-formed frame in
// addition to the handler registered for the frame's type.
const MessageEvent = "message"

// Close codes reported when the transport fails without a close frame.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
)

// Frame is one inbound JSON message.
type Frame struct {
	Type       string          // Value of the "type" field
	Data       json.RawMessage // Whole frame, including "type"
	ReceivedAt time.Time       // Local timestamp when the read returned
}

// Decode unmarshals the whole frame into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

// Handler receives frames for one event name.
type Handler func(Frame)

// CloseEvent describes why a socket instance ended.
type CloseEvent struct {
	Code   int
	Reason string
	Clean  bool // Server sent a normal close frame
}

// Hooks are invoked on loop turns for socket lifecycle transitions.
// Any of them may be nil.
type Hooks struct {
	OnConnect    func()
	OnDisconnect func(CloseEvent)
	OnError      func(error)
}

// Config configures a Manager.
type Config struct {
	Name                 string        // Channel name used in logs and metrics
	MaxReconnectAttempts int           // Attempts before giving up (default 5)
	BaseReconnectDelay   time.Duration // Delay unit; attempt n waits n × base (default 1s)
	HandshakeTimeout     time.Duration // Dial timeout
}

// DefaultConfig returns the standard reconnect policy.
func DefaultConfig(name string) Config {
	return Config{
		Name:                 name,
		MaxReconnectAttempts: 5,
		BaseReconnectDelay:   time.Second,
		HandshakeTimeout:     10 * time.Second,
	}
}

// ClientConfig configures the gorilla/websocket transport.
type ClientConfig struct {
	HandshakeTimeout time.Duration // Dial handshake timeout
	WriteTimeout     time.Duration // Write deadline for sends and control frames
	PingInterval     time.Duration // Keepalive ping period (0 disables keepalive)
	PongTimeout      time.Duration // Max time without pong/ping before the socket is stale
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
	Header           http.Header   // Extra handshake headers
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// Observer receives connection events for instrumentation. Calls happen on
// loop turns except MessageSent and SendDropped, which run on the caller's
// goroutine.
type Observer interface {
	Connected(channel string)
	Disconnected(channel string)
	ReconnectScheduled(channel string, attempt int, delay time.Duration)
	ReconnectExhausted(channel string)
	FrameReceived(channel string, frame Frame)
	FrameDropped(channel, reason string)
	MessageSent(channel, msgType string)
	SendDropped(channel, msgType string)
}

// Observers fans every call out to each non-nil Observer.
type Observers []Observer

func (o Observers) Connected(channel string) {
	for _, ob := range o {
		if ob != nil {
			ob.Connected(channel)
		}
	}
}

func (o Observers) Disconnected(channel string) {
	for _, ob := range o {
		if ob != nil {
			ob.Disconnected(channel)
		}
	}
}

func (o Observers) ReconnectScheduled(channel string, attempt int, delay time.Duration) {
	for _, ob := range o {
		if ob != nil {
			ob.ReconnectScheduled(channel, attempt, delay)
		}
	}
}

func (o Observers) ReconnectExhausted(channel string) {
	for _, ob := range o {
		if ob != nil {
			ob.ReconnectExhausted(channel)
		}
	}
}

func (o Observers) FrameReceived(channel string, frame Frame) {
	for _, ob := range o {
		if ob != nil {
			ob.FrameReceived(channel, frame)
		}
	}
}

func (o Observers) FrameDropped(channel, reason string) {
	for _, ob := range o {
		if ob != nil {
			ob.FrameDropped(channel, reason)
		}
	}
}

func (o Observers) MessageSent(channel, msgType string) {
	for _, ob := range o {
		if ob != nil {
			ob.MessageSent(channel, msgType)
		}
	}
}

func (o Observers) SendDropped(channel, msgType string) {
	for _, ob := range o {
		if ob != nil {
			ob.SendDropped(channel, msgType)
		}
	}
}
