// Package court owns the fixed array of court slots of a running session.
package court

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/okian/rally/internal/domain/compose"
	"github.com/okian/rally/internal/domain/fairness"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// Roster is the attendee bookkeeping the allocator updates when occupants
// change. The session implements it over its single status table.
type Roster interface {
	Status(id string) model.Status
	SetStatus(id string, s model.Status)
	AddGame(id string)
}

// Result describes what happened to a slot after a complete or fill.
type Result struct {
	Court     int
	Refilled  bool
	Occupants []string
	Match     model.Match
}

type slot struct {
	ids   []string
	match model.Match
}

// Option applies a configuration option to the Allocator.
type Option func(*Allocator)

// WithLogger sets the allocator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// Allocator holds the court slots. It is not safe for concurrent use.
type Allocator struct {
	format   model.Format
	slots    []slot
	queue    *fairness.Queue
	composer *compose.Composer
	roster   Roster
	logger   logger.Logger
}

// New creates an allocator with courts idle slots.
func New(courts int, format model.Format, queue *fairness.Queue, composer *compose.Composer, roster Roster, opts ...Option) *Allocator {
	a := &Allocator{
		format:   format,
		slots:    make([]slot, courts),
		queue:    queue,
		composer: composer,
		roster:   roster,
	}
	for i := range a.slots {
		a.slots[i].match = model.PlaceholderMatch(format)
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Named("court")
	}
	return a
}

// Len returns the number of slots.
func (a *Allocator) Len() int { return len(a.slots) }

func (a *Allocator) inRange(idx int) bool { return idx >= 0 && idx < len(a.slots) }

// IsIdle reports whether slot idx holds nobody. Out-of-range slots report idle.
func (a *Allocator) IsIdle(idx int) bool {
	return !a.inRange(idx) || len(a.slots[idx].ids) == 0
}

// Occupants returns a copy of the ids on slot idx.
func (a *Allocator) Occupants(idx int) []string {
	if !a.inRange(idx) {
		return nil
	}
	return slices.Clone(a.slots[idx].ids)
}

// Match returns the match currently displayed on slot idx.
func (a *Allocator) Match(idx int) model.Match {
	if !a.inRange(idx) {
		return model.PlaceholderMatch(a.format)
	}
	return a.slots[idx].match
}

// IdleCount returns how many slots are idle.
func (a *Allocator) IdleCount() int {
	n := 0
	for i := range a.slots {
		if a.IsIdle(i) {
			n++
		}
	}
	return n
}

// Allocate replaces the contents of slot idx with ids, marks them on court
// and composes their match. An empty ids clears the slot. Every incoming id
// must be waiting and is taken out of the queue. Prior occupants go back to
// waiting at the back of the queue without being credited a game.
func (a *Allocator) Allocate(ctx context.Context, idx int, ids []string) (model.Match, error) {
	if !a.inRange(idx) {
		return model.Match{}, fmt.Errorf("%w: court %d of %d", ErrInvalidCourt, idx, len(a.slots))
	}
	if len(ids) != 0 && len(ids) != a.format.PlayersPerMatch() {
		return model.Match{}, fmt.Errorf("%w: got %d", ErrGroupSize, len(ids))
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return model.Match{}, fmt.Errorf("%w: %s listed twice", ErrNotWaiting, id)
		}
		seen[id] = struct{}{}
		if st := a.roster.Status(id); st != model.StatusWaiting {
			return model.Match{}, fmt.Errorf("%w: %s is %s", ErrNotWaiting, id, st)
		}
	}

	m, seats, err := a.composer.Compose(ctx, ids)
	if err != nil {
		return model.Match{}, err
	}
	for _, id := range a.slots[idx].ids {
		a.roster.SetStatus(id, model.StatusWaiting)
		a.queue.Enqueue(id)
	}
	for _, id := range seats {
		a.queue.Remove(id)
		a.roster.SetStatus(id, model.StatusOnCourt)
	}
	a.slots[idx] = slot{ids: seats, match: m}
	return m, nil
}

// Complete finishes the game on slot idx. Each occupant gets one more game
// and returns to the back of the queue, the slot is cleared and then refilled
// from the queue. A refill that finds too few waiting leaves the slot idle and
// reports Refilled=false without an error.
func (a *Allocator) Complete(ctx context.Context, idx int) (Result, error) {
	if !a.inRange(idx) || a.IsIdle(idx) {
		return Result{Court: idx}, fmt.Errorf("%w: court %d is idle or out of range", ErrInvalidCourt, idx)
	}

	prior := a.slots[idx].ids
	for _, id := range prior {
		a.roster.AddGame(id)
		// Occupants are never paused; the check mirrors the rotation rule that
		// paused attendees stay out of the queue.
		if a.roster.Status(id) != model.StatusPaused {
			a.roster.SetStatus(id, model.StatusWaiting)
			a.queue.Enqueue(id)
		}
	}
	a.slots[idx] = slot{match: model.PlaceholderMatch(a.format)}
	metrics.RecordCourtCompleted()
	a.logger.Debug(ctx, "court completed", logger.Int("court", idx), logger.Strings("players", prior))

	return a.refill(ctx, idx)
}

// Fill refills an idle slot from the queue. It is the manual trigger for a
// slot left idle by an earlier insufficient refill.
func (a *Allocator) Fill(ctx context.Context, idx int) (Result, error) {
	if !a.inRange(idx) || !a.IsIdle(idx) {
		return Result{Court: idx}, fmt.Errorf("%w: court %d is occupied or out of range", ErrInvalidCourt, idx)
	}
	return a.refill(ctx, idx)
}

func (a *Allocator) refill(ctx context.Context, idx int) (Result, error) {
	start := time.Now()
	ids, err := a.queue.PickNext(a.format.PlayersPerMatch())
	metrics.RecordPickLatency(float64(time.Since(start).Microseconds()) / 1000)
	if errors.Is(err, fairness.ErrInsufficient) {
		metrics.RecordCourtRefill("insufficient")
		a.logger.Debug(ctx, "court left idle", logger.Int("court", idx), logger.Int("waiting", a.queue.Len()))
		return Result{Court: idx, Match: a.slots[idx].match}, nil
	}
	if err != nil {
		return Result{Court: idx}, err
	}

	m, err := a.Allocate(ctx, idx, ids)
	if err != nil {
		return Result{Court: idx}, err
	}
	metrics.RecordCourtRefill("filled")
	return Result{Court: idx, Refilled: true, Occupants: a.Occupants(idx), Match: m}, nil
}
