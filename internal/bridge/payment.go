package bridge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/escrow-realtime/internal/auth"
	"github.com/rickgao/escrow-realtime/internal/channel"
	"github.com/rickgao/escrow-realtime/internal/loop"
	"github.com/rickgao/escrow-realtime/internal/model"
	"github.com/rickgao/escrow-realtime/internal/store"
)

// PaymentBridge binds the payment-status channel to one confirmation view.
type PaymentBridge struct {
	cfg    Config
	loop   *loop.Loop
	store  *store.Store
	tokens auth.TokenSource
	logger *slog.Logger

	opMu sync.Mutex // serializes Open and Close

	mu       sync.Mutex
	current  *channel.Payment
	invite   string
	lastPong time.Time
}

func newPaymentBridge(cfg Config, lp *loop.Loop, st *store.Store, tokens auth.TokenSource, logger *slog.Logger) *PaymentBridge {
	return &PaymentBridge{
		cfg:    cfg,
		loop:   lp,
		store:  st,
		tokens: tokens,
		logger: logger,
	}
}

// Open connects the channel for inviteToken, replacing any other open view.
func (b *PaymentBridge) Open(inviteToken string) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	if b.current != nil && b.invite == inviteToken {
		b.mu.Unlock()
		return
	}
	prev := b.current
	p := channel.NewPayment(b.cfg.Channel, inviteToken, b.loop, b.tokens, b.logger)
	p.SetHandler(&paymentSink{bridge: b})
	b.current = p
	b.invite = inviteToken
	b.mu.Unlock()

	if prev != nil {
		b.teardown(prev)
	}

	b.logger.Info("payment view opened")
	p.Connect()
}

// Close disconnects the channel and forgets the payment status.
func (b *PaymentBridge) Close() {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	prev := b.current
	b.current = nil
	b.invite = ""
	b.mu.Unlock()

	if prev != nil {
		b.teardown(prev)
	}
}

// Connected reports whether the payment socket is open.
func (b *PaymentBridge) Connected() bool {
	b.mu.Lock()
	p := b.current
	b.mu.Unlock()
	return p != nil && p.Connected()
}

// Ping checks liveness of the open channel.
func (b *PaymentBridge) Ping() {
	b.mu.Lock()
	p := b.current
	b.mu.Unlock()
	if p != nil {
		p.Ping()
	}
}

// LastPong returns when the server last answered a ping.
func (b *PaymentBridge) LastPong() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPong
}

func (b *PaymentBridge) teardown(p *channel.Payment) {
	p.Disconnect()
	b.loop.Post(b.store.ClearPayment)
	b.logger.Info("payment view closed")
}

// paymentSink applies payment frames to the store.
type paymentSink struct {
	bridge *PaymentBridge
}

func (s *paymentSink) PaymentStatusUpdated(p model.PaymentStatus) {
	s.bridge.store.SetPaymentStatus(p)
	s.bridge.logger.Info("payment status updated", "status", p.Status)
}

func (s *paymentSink) ProjectStatusUpdated(p model.ProjectStatus) {
	s.bridge.store.SetProjectStatus(p)
	s.bridge.logger.Info("project status updated", "project_id", p.ProjectID, "status", p.Status)
}

func (s *paymentSink) Pong() {
	s.bridge.mu.Lock()
	s.bridge.lastPong = time.Now()
	s.bridge.mu.Unlock()
}
