// Package dedupe remembers the outcome of idempotent requests so a retried
// request replays its first result instead of acting twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records request keys together with their first outcome.
type Deduper[V any] interface {
	// Lookup returns the outcome recorded for key, if any.
	Lookup(ctx context.Context, key string) (V, bool)

	// Record stores the outcome for key unless one is already stored. It
	// reports whether key was already present.
	Record(ctx context.Context, key string, v V) bool

	// Forget drops key so the request can be retried.
	Forget(ctx context.Context, key string)

	Size() int64
}

type entry[V any] struct {
	key string
	v   V
}

// inMemoryDeduper keeps keys in arrival order and evicts the oldest once
// maxSize is reached. maxSize <= 0 means unbounded.
type inMemoryDeduper[V any] struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// New creates an in-memory deduper.
func New[V any](opts ...Option) Deduper[V] {
	cfg := config{maxSize: 10_000}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &inMemoryDeduper[V]{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: cfg.maxSize,
	}
}

// Key joins a scope (such as a session id) and a caller-supplied request id.
func Key(scope, requestID string) string {
	return scope + "/" + requestID
}

func (d *inMemoryDeduper[V]) Lookup(_ context.Context, key string) (V, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		return el.Value.(*entry[V]).v, true
	}
	var zero V
	return zero, false
}

func (d *inMemoryDeduper[V]) Record(_ context.Context, key string, v V) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.seen[key] = d.order.PushBack(&entry[V]{key: key, v: v})
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper[V]) Forget(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper[V]) evictOldest() {
	el := d.order.Front()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.seen, el.Value.(*entry[V]).key)
	d.size.Add(-1)
}

func (d *inMemoryDeduper[V]) Size() int64 {
	return d.size.Load()
}
