// Package worker runs the commands of one session on a single goroutine.
//
// A session owns one queue and one worker. Because the worker executes
// commands strictly one at a time, session state needs no locking and a
// compound operation such as completing a court (clear, pick, refill) is
// atomic with respect to every other command.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rally/internal/adapters/mq/queue"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

// Worker consumes a queue and runs each command to completion before the next.
type Worker struct {
	queue queue.Queue
	name  string
	done  chan struct{}

	logger logger.Logger
}

// New creates a worker over q. Call Run to start it.
func New(q queue.Queue, opts ...Option) *Worker {
	w := &Worker{
		queue: q,
		name:  "worker",
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named("worker")
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run processes commands until the queue is closed and drained or ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	commands := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-commands:
			if !ok {
				return
			}
			w.execute(ctx, c)
		}
	}
}

func (w *Worker) execute(ctx context.Context, c queue.Command) {
	metrics.UpdateCommandQueueSize(w.queue.Len(ctx))
	c.Run(ctx)
	metrics.RecordCommandLatency(float64(time.Since(c.EnqueuedAt).Microseconds()) / 1000)
}

// Pending returns how many commands are waiting.
func (w *Worker) Pending(ctx context.Context) int { return w.queue.Len(ctx) }

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Shutdown closes the queue, lets queued commands finish and waits for Run
// to return or ctx to expire.
func (w *Worker) Shutdown(ctx context.Context) error {
	if err := w.queue.Close(); err != nil {
		w.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

type result[T any] struct {
	v   T
	err error
}

// Do submits fn to w and waits for its result. fn runs on the worker
// goroutine with a context that keeps ctx's values but not its cancellation,
// so a command that has started always runs to completion. A full queue
// returns queue.ErrFull without running fn.
func Do[T any](ctx context.Context, w *Worker, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	out := make(chan result[T], 1)
	runCtx := context.WithoutCancel(ctx)

	c := queue.Command{
		ID:   uuid.NewString(),
		Name: name,
		Run: func(context.Context) {
			r := result[T]{}
			defer func() {
				if p := recover(); p != nil {
					r = result[T]{err: fmt.Errorf("%w: %s: %v", ErrPanic, name, p)}
					metrics.RecordCommandProcessed(name, "panic")
					w.logger.Error(runCtx, "command panicked", logger.String("command", name), logger.Any("panic", p))
				}
				out <- r
			}()
			r.v, r.err = fn(runCtx)
			outcome := "ok"
			if r.err != nil {
				outcome = "error"
			}
			metrics.RecordCommandProcessed(name, outcome)
		},
	}
	if err := w.queue.Enqueue(ctx, c); err != nil {
		return zero, err
	}

	select {
	case r := <-out:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-w.done:
		select {
		case r := <-out:
			return r.v, r.err
		default:
			return zero, ErrStopped
		}
	}
}
