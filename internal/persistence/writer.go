package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultWriterCapacity = 256
	maxWriteAttempts      = 3
	writeRetryStep        = 300 * time.Millisecond
)

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue serializes database writes on one goroutine and retries failed ones.
type WriterQueue struct {
	logger    *slog.Logger
	queue     chan writeCmd
	pendingMu sync.Mutex
	pending   int
	idle      *sync.Cond
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if logger == nil {
		logger = slog.Default().With("component", "persistence")
	}
	if capacity <= 0 {
		capacity = defaultWriterCapacity
	}

	w := &WriterQueue{
		logger: logger,
		queue:  make(chan writeCmd, capacity),
	}
	w.idle = sync.NewCond(&w.pendingMu)

	return w
}

// Enqueue schedules fn. A full queue drops the write.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	w.track(1)
	select {
	case w.queue <- writeCmd{name: name, fn: fn}:
	default:
		w.track(-1)
		w.logger.Warn("db write queue full, write dropped", "cmd", name)
	}
}

func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				w.discard()
				return
			case cmd := <-w.queue:
				w.runWithRetry(ctx, cmd)
				w.track(-1)
			}
		}
	}()
}

// Wait blocks until no write is pending.
func (w *WriterQueue) Wait() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	for w.pending > 0 {
		w.idle.Wait()
	}
}

// WaitContext is Wait bounded by ctx.
func (w *WriterQueue) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *WriterQueue) track(delta int) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending += delta
	if w.pending <= 0 {
		w.pending = 0
		w.idle.Broadcast()
	}
}

func (w *WriterQueue) discard() {
	for {
		select {
		case cmd := <-w.queue:
			w.logger.Debug("db write discarded on shutdown", "cmd", cmd.name)
			w.track(-1)
		default:
			return
		}
	}
}

func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := cmd.fn(ctx)
		if err == nil {
			return
		}
		w.logger.Error("db write failed", "cmd", cmd.name, "attempt", attempt, "error", err)
		if attempt == maxWriteAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * writeRetryStep):
		}
	}
}
