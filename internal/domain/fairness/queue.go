// Package fairness orders waiting attendees and selects who plays next.
//
// Selection prefers attendees with fewer games played. Ties are broken by a
// key drawn from the session PRNG for every candidate at selection time, so
// the outcome depends only on the seed and the sequence of operations.
package fairness

import (
	"cmp"
	"math/rand"
	"slices"
)

// GamesCounter reports how many games an attendee has played this session.
type GamesCounter interface {
	GamesPlayed(id string) int
}

// GamesFunc adapts a plain function to GamesCounter.
type GamesFunc func(id string) int

// GamesPlayed implements GamesCounter.
func (f GamesFunc) GamesPlayed(id string) int { return f(id) }

// Queue is the ordered waiting pool. Insertion order is arrival (or return)
// order; PickNext removes the selected ids and keeps the rest in place.
//
// Queue is not safe for concurrent use; the owning session serialises access.
type Queue struct {
	ids    []string
	member map[string]struct{}
	rng    *rand.Rand
	games  GamesCounter
}

// New creates an empty queue that draws tiebreak keys from rng and reads
// games-played counts from games. rng is the session PRNG, shared with the
// match composer.
func New(rng *rand.Rand, games GamesCounter) *Queue {
	return &Queue{
		member: make(map[string]struct{}),
		rng:    rng,
		games:  games,
	}
}

// Enqueue appends id to the back of the queue. Enqueueing an id that is
// already waiting is a no-op.
func (q *Queue) Enqueue(id string) {
	if _, ok := q.member[id]; ok {
		return
	}
	q.member[id] = struct{}{}
	q.ids = append(q.ids, id)
}

// Remove dequeues id and reports whether it was waiting.
func (q *Queue) Remove(id string) bool {
	if _, ok := q.member[id]; !ok {
		return false
	}
	delete(q.member, id)
	q.ids = slices.DeleteFunc(q.ids, func(x string) bool { return x == id })
	return true
}

// Contains reports whether id is waiting.
func (q *Queue) Contains(id string) bool {
	_, ok := q.member[id]
	return ok
}

// Len returns the number of waiting attendees.
func (q *Queue) Len() int { return len(q.ids) }

// IDs returns a copy of the waiting ids in queue order.
func (q *Queue) IDs() []string { return slices.Clone(q.ids) }

// Reset replaces the queue contents with ids, in the given order.
func (q *Queue) Reset(ids []string) {
	q.ids = q.ids[:0]
	clear(q.member)
	for _, id := range ids {
		q.Enqueue(id)
	}
}

type candidate struct {
	id    string
	games int
	key   float64
}

// PickNext selects n ids minimising games-played disparity.
//
// It is all-or-nothing: with fewer than n waiting it returns ErrInsufficient,
// consumes no PRNG state and leaves the queue untouched. Otherwise one
// tiebreak key is drawn per waiting id, in queue order, candidates are ordered
// by (games asc, key asc) and the first n are removed and returned.
func (q *Queue) PickNext(n int) ([]string, error) {
	if n <= 0 {
		return nil, ErrInvalidCount
	}
	if len(q.ids) < n {
		return nil, ErrInsufficient
	}

	cands := make([]candidate, len(q.ids))
	for i, id := range q.ids {
		cands[i] = candidate{id: id, games: q.games.GamesPlayed(id), key: q.rng.Float64()}
	}
	slices.SortStableFunc(cands, func(a, b candidate) int {
		if c := cmp.Compare(a.games, b.games); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	picked := make([]string, n)
	for i := range picked {
		picked[i] = cands[i].id
		delete(q.member, cands[i].id)
	}
	q.ids = slices.DeleteFunc(q.ids, func(id string) bool {
		_, still := q.member[id]
		return !still
	})
	return picked, nil
}
