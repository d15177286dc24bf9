package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// MemoryStore keeps players in a map guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[string]Player
	ids     *idGenerator
	logger  logger.Logger
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions("memstore", opts)
	return &MemoryStore{
		players: make(map[string]Player),
		ids:     newIDGenerator(o.rng),
		logger:  o.logger,
	}
}

func observe(op string, start time.Time) {
	metrics.RecordRegistryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// ListPlayers implements Store.
func (s *MemoryStore) ListPlayers(_ context.Context) ([]Player, error) {
	defer observe("list", time.Now())
	s.mu.RLock()
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sortPlayers(out)
	return out, nil
}

// GetPlayer implements Store.
func (s *MemoryStore) GetPlayer(_ context.Context, id string) (Player, error) {
	defer observe("get", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return Player{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// RegisterPlayer implements Store.
func (s *MemoryStore) RegisterPlayer(ctx context.Context, firstName, surname, rating string) (Player, error) {
	defer observe("register", time.Now())
	p, err := normalizeNew(firstName, surname, rating)
	if err != nil {
		return Player{}, err
	}
	base := s.ids.Base(p.FirstName, p.Surname)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < maxIDAttempts; i++ {
		id := s.ids.Next(base)
		if _, taken := s.players[id]; taken {
			continue
		}
		p.ID = id
		s.players[id] = p
		metrics.UpdatePlayersTotal(len(s.players))
		s.logger.Debug(ctx, "player registered", logger.String("id", id))
		return p, nil
	}
	return Player{}, fmt.Errorf("%w: no free id for %s", ErrDuplicate, base)
}

// UpdatePlayer implements Store.
func (s *MemoryStore) UpdatePlayer(_ context.Context, id string, patch Patch) (Player, error) {
	defer observe("update", time.Now())
	if patch.Empty() {
		return Player{}, fmt.Errorf("%w: nothing to update", ErrInvalidPlayer)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return Player{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p, err := apply(p, patch)
	if err != nil {
		return Player{}, err
	}
	s.players[id] = p
	return p, nil
}

// DeletePlayer implements Store.
func (s *MemoryStore) DeletePlayer(_ context.Context, id string) error {
	defer observe("delete", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.players, id)
	metrics.UpdatePlayersTotal(len(s.players))
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
