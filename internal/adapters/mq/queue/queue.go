// Package queue is the bounded command queue in front of a session.
//
// Every mutation of a session travels through its queue so that exactly one
// goroutine touches session state. Enqueue never blocks: a full queue is
// reported to the caller as backpressure.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/rally/pkg/metrics"
)

const defaultCapacity = 256

// Command is one unit of work for the session worker.
type Command struct {
	ID         string
	Name       string
	EnqueuedAt time.Time
	Run        func(ctx context.Context)
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a command. It returns ErrFull or ErrClosed when the
	// command was not accepted.
	Enqueue(ctx context.Context, c Command) error

	// Dequeue returns the channel commands are delivered on. It is closed
	// once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Command

	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	commands chan Command
	capacity int
	name     string

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with the given options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		name:     "session",
	}
	for _, opt := range opts {
		opt(q)
	}
	q.commands = make(chan Command, q.capacity)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, c Command) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordCommandEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return fmt.Errorf("%w: %s", ErrClosed, q.name)
	}
	if c.EnqueuedAt.IsZero() {
		c.EnqueuedAt = time.Now()
	}

	select {
	case q.commands <- c:
		metrics.UpdateCommandQueueSize(len(q.commands))
		return nil
	case <-ctx.Done():
		metrics.RecordCommandEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordCommandEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return fmt.Errorf("%w: %s holds %d commands", ErrFull, q.name, q.capacity)
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Command {
	return q.commands
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.commands)
}

// Close stops accepting commands. Commands already queued are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.commands)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
