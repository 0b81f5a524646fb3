package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/models"
)

// ErrSinkFull is returned when the sink queue has no room. Report counts it
// as a sink failure and moves on.
var ErrSinkFull = errors.New("sink queue full")

// ErrSinkClosed is returned for writes offered after Close.
var ErrSinkClosed = errors.New("sink queue closed")

// QueueStats is a snapshot of a SinkQueue.
type QueueStats struct {
	Queued  int    `json:"queued"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// SinkQueue moves slow sink writes off the detection loop. One worker
// drains it, so event and clip writes wrapped by the same queue land in
// the order they were offered.
type sinkJob struct {
	write   func() error
	barrier chan struct{} // set on Flush markers only
}

type SinkQueue struct {
	mu     sync.RWMutex
	closed bool
	jobs   chan sinkJob
	done   chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	logger zerolog.Logger
}

// NewSinkQueue starts the worker. size is clamped to at least 1.
func NewSinkQueue(size int, logger zerolog.Logger) *SinkQueue {
	q := &SinkQueue{
		jobs:   make(chan sinkJob, max(size, 1)),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.run()
	return q
}

// Sink wraps fn so that calls enqueue and return immediately.
func (q *SinkQueue) Sink(fn Sink) Sink {
	return func(ev models.IncidentEvent) error {
		return q.offer(func() error { return fn(ev) })
	}
}

// ClipSink wraps fn the same way as Sink.
func (q *SinkQueue) ClipSink(fn ClipSink) ClipSink {
	return func(incidentID, clipPath string) error {
		return q.offer(func() error { return fn(incidentID, clipPath) })
	}
}

func (q *SinkQueue) offer(job func() error) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrSinkClosed
	}
	select {
	case q.jobs <- sinkJob{write: job}:
		return nil
	default:
		q.dropped.Add(1)
		return ErrSinkFull
	}
}

func (q *SinkQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		if job.barrier != nil {
			close(job.barrier)
			continue
		}
		if err := job.write(); err != nil {
			q.failed.Add(1)
			q.logger.Warn().Err(err).Msg("Queued sink write failed")
			continue
		}
		q.written.Add(1)
	}
}

// Stats returns the queue depth and counters.
func (q *SinkQueue) Stats() QueueStats {
	return QueueStats{
		Queued:  len(q.jobs),
		Written: q.written.Load(),
		Dropped: q.dropped.Load(),
		Failed:  q.failed.Load(),
	}
}

// Flush waits until every write offered before it has been attempted.
// Unlike writes it blocks for room in the queue.
func (q *SinkQueue) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrSinkClosed
	}
	select {
	case q.jobs <- sinkJob{barrier: barrier}:
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}
	q.mu.RUnlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting writes and waits for the backlog to drain or ctx
// to end.
func (q *SinkQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
