package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned when posting to a stopped loop.
var ErrClosed = errors.New("event loop closed")

// Loop runs posted closures one at a time on a single goroutine.
type Loop struct {
	logger *slog.Logger
	sched  Scheduler
	turns  *Queue[func()]

	mu       sync.Mutex
	started  bool
	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

// Option configures a Loop.
type Option func(*Loop)

// WithScheduler replaces the wall-clock scheduler used by AfterFunc.
func WithScheduler(s Scheduler) Option {
	return func(l *Loop) {
		l.sched = s
	}
}

// New creates a loop. It does nothing until Start is called, but turns may be
// posted before that and run in order once it starts.
func New(logger *slog.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		logger: logger,
		sched:  WallClock{},
		turns:  NewQueue[func()](64),
		quit:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start runs the loop goroutine until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return nil
	}
	if l.turns.Closed() {
		return ErrClosed
	}
	l.started = true

	l.wg.Add(1)
	go l.run()

	go func() {
		select {
		case <-ctx.Done():
			l.turns.Close()
		case <-l.quit:
		}
	}()

	return nil
}

// Stop refuses new turns, lets queued turns finish and waits for the loop
// goroutine to exit or ctx to expire.
func (l *Loop) Stop(ctx context.Context) error {
	l.turns.Close()
	l.quitOnce.Do(func() { close(l.quit) })

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.logger.Warn("event loop stop timed out", "pending", l.turns.Len())
		return ctx.Err()
	}
}

// Post queues fn as a new turn. Returns false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return true
	}
	return l.turns.Push(fn)
}

// AfterFunc posts fn as a turn once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return l.sched.AfterFunc(d, func() {
		if !l.Post(fn) {
			l.logger.Debug("timer fired after loop closed", "delay", d)
		}
	})
}

// Sync blocks until every turn posted before the call has run.
func (l *Loop) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !l.Post(func() { close(done) }) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued turns.
func (l *Loop) Pending() int {
	return l.turns.Len()
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		fn, ok := l.turns.Pop()
		if !ok {
			return
		}
		l.runTurn(fn)
	}
}

// runTurn isolates a panicking turn so one bad handler cannot stop the loop.
func (l *Loop) runTurn(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop turn panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
