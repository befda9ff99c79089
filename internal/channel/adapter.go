package channel

import (
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/rickgao/escrow-realtime/internal/auth"
	"github.com/rickgao/escrow-realtime/internal/connection"
	"github.com/rickgao/escrow-realtime/internal/loop"
)

// adapter is the part every channel shares: one manager, one token source,
// and the frame entry point.
type adapter struct {
	name     string
	base     string
	mgr      *connection.Manager
	tokens   auth.TokenSource
	observer connection.Observer
	logger   *slog.Logger
}

func newAdapter(name string, cfg Config, lp *loop.Loop, tokens auth.TokenSource, logger *slog.Logger, onConnect func()) *adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &adapter{
		name:     name,
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		tokens:   tokens,
		observer: connection.Observers{cfg.Observer},
		logger:   logger.With("channel", name),
	}

	connCfg := cfg.Connection
	connCfg.Name = name
	opts := []connection.ManagerOption{
		connection.WithHooks(connection.Hooks{OnConnect: onConnect}),
	}
	if cfg.Dialer != nil {
		opts = append(opts, connection.WithDialer(cfg.Dialer))
	}
	if cfg.Observer != nil {
		opts = append(opts, connection.WithObserver(cfg.Observer))
	}
	a.mgr = connection.NewManager(connCfg, lp, logger, opts...)
	return a
}

// connect reads the token and opens the socket. The frame handler is
// registered every time because Disconnect clears the manager's handlers.
func (a *adapter) connect(path string, params url.Values, onFrame connection.Handler) {
	token, err := a.tokens.Token()
	if err != nil {
		a.logger.Error("cannot connect, no auth token", "error", err)
		return
	}

	q := url.Values{"token": {token}}
	for k, vs := range params {
		q[k] = vs
	}

	a.mgr.On(connection.MessageEvent, onFrame)
	a.mgr.Connect(a.base+path, q)
}

// dropped logs a frame that could not be decoded.
func (a *adapter) dropped(f connection.Frame, err error) {
	reason := "invalid_payload"
	if errors.Is(err, ErrUnknownFrame) {
		reason = "unknown_type"
	}
	a.logger.Warn("dropping frame", "type", f.Type, "reason", reason, "error", err)
	a.observer.FrameDropped(a.name, reason)
}
