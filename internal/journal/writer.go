package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/escrow-realtime/internal/connection"
	"github.com/rickgao/escrow-realtime/internal/loop"
)

// Writer consumes received frames and writes them to the journal table.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	db     DB

	// Input from channel managers
	input *loop.Queue[row]

	// Batching
	batch   []row
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

var _ connection.Observer = (*Writer)(nil)

// NewWriter creates a Writer. Call Start before frames arrive.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.BufferSize < cfg.BatchSize {
		cfg.BufferSize = cfg.BatchSize
	}
	return &Writer{
		cfg:    cfg,
		logger: logger.With("component", "journal"),
		db:     db,
		input:  loop.NewQueue[row](cfg.BatchSize),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the journal table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Start begins consuming frames and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued frames, writes them, and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	// The consumer exits once the closed queue is drained.
	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("journal writer stopped")
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	// Final flush
	w.flush(ctx)

	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// FrameReceived implements connection.Observer. It never blocks.
func (w *Writer) FrameReceived(channel string, frame connection.Frame) {
	if w.input.Len() >= w.cfg.BufferSize {
		w.count(func(s *Stats) { s.Dropped++ })
		w.logger.Warn("journal buffer full, dropping frame",
			"channel", channel,
			"type", frame.Type,
		)
		return
	}

	receivedAt := frame.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	if w.input.Push(row{
		Channel:    channel,
		FrameType:  frame.Type,
		Payload:    frame.Data,
		ReceivedAt: receivedAt,
	}) {
		w.count(func(s *Stats) { s.Queued++ })
	}
}

// Lifecycle and send events are not journaled.
func (w *Writer) Connected(string)                              {}
func (w *Writer) Disconnected(string)                           {}
func (w *Writer) ReconnectScheduled(string, int, time.Duration) {}
func (w *Writer) ReconnectExhausted(string)                     {}
func (w *Writer) FrameDropped(string, string)                   {}
func (w *Writer) MessageSent(string, string)                    {}
func (w *Writer) SendDropped(string, string)                    {}

// consumeLoop moves frames from the queue into the current batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		r, ok := w.input.Pop()
		if !ok {
			return
		}

		w.batchMu.Lock()
		w.batch = append(w.batch, r)
		shouldFlush := len(w.batch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if shouldFlush {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes partial batches.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if ctx.Err() != nil {
		// Rows drained after shutdown still get written.
		ctx = context.WithoutCancel(ctx)
	}

	start := time.Now()
	n, err := w.copyRows(ctx, batch)
	if err != nil {
		w.count(func(s *Stats) { s.Errors++ })
		w.logger.Error("journal copy failed", "error", err, "count", len(batch))
		return
	}

	w.count(func(s *Stats) {
		s.Inserted += n
		s.Flushes++
	})
	w.logger.Debug("flushed frames",
		"count", n,
		"duration", time.Since(start),
	)
}

func (w *Writer) copyRows(ctx context.Context, rows []row) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return w.db.CopyFrom(ctx, pgx.Identifier{Table}, Columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{w.cfg.InstanceID, r.Channel, r.FrameType, string(r.Payload), r.ReceivedAt}, nil
		}),
	)
}

func (w *Writer) count(fn func(*Stats)) {
	w.statsMu.Lock()
	fn(&w.stats)
	w.statsMu.Unlock()
}
