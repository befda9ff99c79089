package channel

import (
	"log/slog"
	"net/url"
	"sync"

	"github.com/rickgao/escrow-realtime/internal/auth"
	"github.com/rickgao/escrow-realtime/internal/connection"
	"github.com/rickgao/escrow-realtime/internal/loop"
)

// PaymentPath is the payment-status endpoint below the base URL.
const PaymentPath = "/ws/payment-status/"

// Payment is the payment-status channel for one confirmation view. The
// server does not push on connect, so every open requests the current state.
type Payment struct {
	*adapter
	inviteToken string

	mu      sync.Mutex
	handler PaymentHandler
}

// NewPayment creates the payment-status channel for inviteToken. Callbacks
// run on lp.
func NewPayment(cfg Config, inviteToken string, lp *loop.Loop, tokens auth.TokenSource, logger *slog.Logger) *Payment {
	p := &Payment{inviteToken: inviteToken}
	p.adapter = newAdapter(NamePayment, cfg, lp, tokens, logger, p.onConnect)
	return p
}

// SetHandler replaces the subscriber. Nil detaches it.
func (p *Payment) SetHandler(h PaymentHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Connect opens the channel if it is not already open.
func (p *Payment) Connect() {
	p.connect(PaymentPath, url.Values{"invite_token": {p.inviteToken}}, p.onFrame)
}

// Disconnect closes the channel, detaches the subscriber and stops
// reconnecting.
func (p *Payment) Disconnect() {
	p.mgr.Disconnect()
	p.SetHandler(nil)
}

// Connected reports whether the socket is open.
func (p *Payment) Connected() bool {
	return p.mgr.IsConnected()
}

// RequestStatus asks the server for the current payment status.
func (p *Payment) RequestStatus() {
	p.mgr.SendMessage(ActionGetPaymentStatus, nil)
}

// Ping checks liveness; the server answers with pong.
func (p *Payment) Ping() {
	p.mgr.SendMessage(ActionPing, nil)
}

func (p *Payment) onConnect() {
	p.RequestStatus()
}

func (p *Payment) onFrame(f connection.Frame) {
	frame, err := DecodePaymentFrame(f)
	if err != nil {
		p.dropped(f, err)
		return
	}

	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()

	if h == nil {
		p.logger.Debug("no subscriber, frame ignored", "type", f.Type)
		return
	}
	frame.dispatchPayment(h)
}
