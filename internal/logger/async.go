package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops buffered logging.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncQueue is shared by an AsyncHandler and every handler derived from it.
type asyncQueue struct {
	mu      sync.RWMutex
	closed  bool
	jobs    chan asyncJob
	wg      sync.WaitGroup
	dropped atomic.Int64
	once    sync.Once
}

type asyncJob struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler queues records below syncLevel for a pool of writers and
// drops them when the queue is full. Records at syncLevel and above, and
// every record after Close, are written on the calling goroutine.
//
// Queued records reach the inner handler with a background context, so
// anything derived from the caller's context must be attached before Handle.
type AsyncHandler struct {
	inner     slog.Handler
	q         *asyncQueue
	syncLevel slog.Level
}

// NewAsyncHandler starts workers writers draining a queue of queueSize records.
func NewAsyncHandler(inner slog.Handler, queueSize, workers int) *AsyncHandler {
	if workers < 1 {
		workers = 1
	}
	q := &asyncQueue{jobs: make(chan asyncJob, queueSize)}
	for range workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for j := range q.jobs {
				_ = j.h.Handle(context.Background(), j.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, q: q, syncLevel: slog.LevelWarn}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if rec.Level >= h.syncLevel {
		return h.inner.Handle(ctx, rec)
	}

	h.q.mu.RLock()
	defer h.q.mu.RUnlock()
	if h.q.closed {
		return h.inner.Handle(ctx, rec)
	}
	select {
	case h.q.jobs <- asyncJob{h: h.inner, rec: rec.Clone()}:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q, syncLevel: h.syncLevel}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q, syncLevel: h.syncLevel}
}

// DroppedCount returns how many records were dropped on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close drains the queue and waits for the writers. When records were
// dropped it writes one warning with the count. Close is idempotent.
func (h *AsyncHandler) Close() {
	h.q.once.Do(func() {
		h.q.mu.Lock()
		h.q.closed = true
		close(h.q.jobs)
		h.q.mu.Unlock()
		h.q.wg.Wait()

		if n := h.q.dropped.Load(); n > 0 {
			rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async log records dropped", 0)
			rec.AddAttrs(slog.Int64("dropped", n))
			_ = h.inner.Handle(context.Background(), rec)
		}
	})
}
