// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/okian/rally/internal/adapters/mq/queue"
	"github.com/okian/rally/internal/adapters/mq/worker"
	"github.com/okian/rally/internal/adapters/render"
	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/dedupe"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/session"
	"github.com/okian/rally/internal/domain/types"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

const stopTimeout = 10 * time.Second

// registryNames resolves attendee display names through the player registry.
type registryNames struct {
	store repository.Store
}

func (r registryNames) DisplayName(ctx context.Context, id string) (string, error) {
	p, err := r.store.GetPlayer(ctx, id)
	if err != nil {
		return "", err
	}
	return p.DisplayName(), nil
}

// actor owns one session and the single worker allowed to touch it.
type actor struct {
	id        string
	sched     *session.Session
	worker    *worker.Worker
	createdAt time.Time

	// Published by the worker after every command for lock-free stats.
	attendees atomic.Int64
	idle      atomic.Int64
}

func (a *actor) publish() {
	a.attendees.Store(int64(a.sched.Len()))
	idle := 0
	for _, c := range a.sched.Snapshot().Courts {
		if c.Idle {
			idle++
		}
	}
	a.idle.Store(int64(idle))
}

// Service implements the API dependencies for the court scheduler.
type Service struct {
	mu sync.RWMutex

	// Core components
	registry repository.Store
	sessions *ttlcache.Cache[string, *actor]
	deduper  dedupe.Deduper[types.CourtResult]
	board    *render.Renderer

	// Configuration
	sessionTTL time.Duration
	queueSize  int
	dedupeSize int
	maxCourts  int

	// State
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRegistry sets the player registry. Without it Start creates an
// in-memory registry.
func WithRegistry(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.registry = store
		}
	}
}

// WithSessionTTL sets how long an untouched session is kept.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithCommandQueueSize sets the per-session command queue capacity.
func WithCommandQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many completion request ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxCourts caps the court count a session may start with.
func WithMaxCourts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCourts = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sessionTTL: 12 * time.Hour,
		queueSize:  256,
		dedupeSize: 10_000,
		maxCourts:  32,
		board:      render.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the session store and background expiry.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	if s.registry == nil {
		s.registry = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory player registry")
	}

	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.deduper = dedupe.New[types.CourtResult](dedupe.WithMaxSize(s.dedupeSize))
	s.sessions = ttlcache.New(
		ttlcache.WithTTL[string, *actor](s.sessionTTL),
	)
	s.sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *actor]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		a := item.Value()
		metrics.RecordSessionExpired()
		go s.retire(a, "expired")
	})
	go s.sessions.Start()

	metrics.UpdatePlayersTotal(s.registry.Count(ctx))
	s.started = true
	s.logger.Info(ctx, "scheduler service started",
		logger.Duration("sessionTTL", s.sessionTTL),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("maxCourts", s.maxCourts),
	)
	return nil
}

// retire stops a session worker once its cache entry is gone.
func (s *Service) retire(a *actor, why string) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := a.worker.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "session worker did not stop", logger.String("session", a.id), logger.Error(err))
	}
	metrics.UpdateSessionsActive(s.sessions.Len())
	s.logger.Info(ctx, "session retired", logger.String("session", a.id), logger.String("reason", why))
}

// Stop gracefully shuts down every session and the registry.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping scheduler service...")

	s.sessions.Stop()
	actors := s.sessions.Items()
	s.sessions.DeleteAll()
	for _, item := range actors {
		if err := item.Value().worker.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "session worker did not stop", logger.String("session", item.Key()), logger.Error(err))
		}
	}
	s.cancel()

	if err := s.registry.Close(); err != nil {
		s.logger.Error(ctx, "error closing registry", logger.Error(err))
	}
	metrics.UpdateSessionsActive(0)
	s.started = false
	s.logger.Info(ctx, "scheduler service stopped")
}

// ListPlayers returns every registered player.
func (s *Service) ListPlayers(ctx context.Context) ([]types.Player, error) {
	ps, err := s.registry.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Player, len(ps))
	for i, p := range ps {
		out[i] = types.Player(p)
	}
	return out, nil
}

// GetPlayer returns one player.
func (s *Service) GetPlayer(ctx context.Context, id string) (types.Player, error) {
	p, err := s.registry.GetPlayer(ctx, id)
	return types.Player(p), err
}

// RegisterPlayer adds a player to the registry.
func (s *Service) RegisterPlayer(ctx context.Context, firstName, surname, rating string) (types.Player, error) {
	p, err := s.registry.RegisterPlayer(ctx, firstName, surname, rating)
	if err != nil {
		return types.Player{}, err
	}
	s.logger.Info(ctx, "player registered", logger.String("id", p.ID))
	return types.Player(p), nil
}

// UpdatePlayer applies a partial update.
func (s *Service) UpdatePlayer(ctx context.Context, id string, patch types.PlayerPatch) (types.Player, error) {
	p, err := s.registry.UpdatePlayer(ctx, id, repository.Patch(patch))
	return types.Player(p), err
}

// DeletePlayer removes a player from the registry. Sessions that already
// hold the id keep it and display the raw id from then on.
func (s *Service) DeletePlayer(ctx context.Context, id string) error {
	return s.registry.DeletePlayer(ctx, id)
}

// CreateSession opens a new session in the lobby.
func (s *Service) CreateSession(ctx context.Context) (types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return types.Snapshot{}, ErrNotStarted
	}

	id := uuid.NewString()
	l := s.logger.With(logger.String("session", id))
	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize), queue.WithName(id))
	a := &actor{
		id:        id,
		sched:     session.New(registryNames{store: s.registry}, session.WithLogger(l)),
		worker:    worker.New(q, worker.WithName(id), worker.WithLogger(l)),
		createdAt: time.Now(),
	}
	go a.worker.Run(s.runCtx)
	s.sessions.Set(id, a, ttlcache.DefaultTTL)

	metrics.RecordSessionCreated()
	metrics.UpdateSessionsActive(s.sessions.Len())
	s.logger.Info(ctx, "session created", logger.String("session", id))
	return types.FromSnapshot(id, a.sched.Snapshot()), nil
}

// DeleteSession discards a session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	a, err := s.actor(id)
	if err != nil {
		return err
	}
	s.sessions.Delete(id)
	s.retire(a, "deleted")
	return nil
}

func (s *Service) actor(id string) (*actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	item := s.sessions.Get(id)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return item.Value(), nil
}

// run executes fn on the session's worker and translates queue failures.
func run[T any](ctx context.Context, s *Service, id, name string, fn func(ctx context.Context, a *actor) (T, error)) (T, error) {
	var zero T
	a, err := s.actor(id)
	if err != nil {
		return zero, err
	}
	v, err := worker.Do(ctx, a.worker, name, func(ctx context.Context) (T, error) {
		defer a.publish()
		return fn(ctx, a)
	})
	switch {
	case errors.Is(err, queue.ErrFull):
		return zero, fmt.Errorf("%w: %w", ErrBackpressure, err)
	case errors.Is(err, queue.ErrClosed), errors.Is(err, worker.ErrStopped):
		return zero, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return v, err
}

func snapshotOf(a *actor) types.Snapshot { return types.FromSnapshot(a.id, a.sched.Snapshot()) }

// Snapshot returns the current view of a session.
func (s *Service) Snapshot(ctx context.Context, id string) (types.Snapshot, error) {
	return run(ctx, s, id, "snapshot", func(_ context.Context, a *actor) (types.Snapshot, error) {
		return snapshotOf(a), nil
	})
}

// Board returns the session drawn as an ASCII court board.
func (s *Service) Board(ctx context.Context, id string) (string, error) {
	snap, err := run(ctx, s, id, "board", func(_ context.Context, a *actor) (model.Snapshot, error) {
		return a.sched.Snapshot(), nil
	})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := s.board.Board(&b, snap); err != nil {
		return "", err
	}
	return b.String(), nil
}

// GamesPlayed returns the games table of a session.
func (s *Service) GamesPlayed(ctx context.Context, id string) ([]types.GamesRow, error) {
	return run(ctx, s, id, "games", func(ctx context.Context, a *actor) ([]types.GamesRow, error) {
		return types.FromGames(a.sched.GamesPlayed(ctx)), nil
	})
}

// StartSession locks the configuration and fills the courts.
func (s *Service) StartSession(ctx context.Context, id, format string, courts int, seed *int64) (types.StartResult, error) {
	f, err := model.ParseFormat(format)
	if err != nil {
		return types.StartResult{}, fmt.Errorf("%w: %v", session.ErrValidation, err)
	}
	if courts > s.maxCourts {
		return types.StartResult{}, fmt.Errorf("%w: at most %d courts", session.ErrValidation, s.maxCourts)
	}

	return run(ctx, s, id, "start", func(ctx context.Context, a *actor) (types.StartResult, error) {
		idle, err := a.sched.Start(ctx, model.SessionConfig{Format: f, Courts: courts, Seed: seed})
		if err != nil {
			return types.StartResult{}, err
		}
		res := types.StartResult{IdleCourts: make([]int, len(idle)), Snapshot: snapshotOf(a)}
		for i, idx := range idle {
			res.IdleCourts[i] = idx + 1
		}
		return res, nil
	})
}

// AddAttendee adds a registered player to a session.
func (s *Service) AddAttendee(ctx context.Context, id, playerID string, paused bool) (types.Snapshot, error) {
	return run(ctx, s, id, "add_attendee", func(ctx context.Context, a *actor) (types.Snapshot, error) {
		if err := a.sched.AddAttendee(ctx, playerID, paused); err != nil {
			return types.Snapshot{}, err
		}
		return snapshotOf(a), nil
	})
}

// RemoveAttendee removes an attendee that is not on court.
func (s *Service) RemoveAttendee(ctx context.Context, id, playerID string) (types.Snapshot, error) {
	return run(ctx, s, id, "remove_attendee", func(ctx context.Context, a *actor) (types.Snapshot, error) {
		if err := a.sched.RemoveAttendee(ctx, playerID); err != nil {
			return types.Snapshot{}, err
		}
		return snapshotOf(a), nil
	})
}

// PauseAttendee takes a waiting attendee out of rotation.
func (s *Service) PauseAttendee(ctx context.Context, id, playerID string) (types.Snapshot, error) {
	return run(ctx, s, id, "pause", func(ctx context.Context, a *actor) (types.Snapshot, error) {
		if err := a.sched.Pause(ctx, playerID); err != nil {
			return types.Snapshot{}, err
		}
		return snapshotOf(a), nil
	})
}

// UnpauseAttendee returns a paused attendee to rotation.
func (s *Service) UnpauseAttendee(ctx context.Context, id, playerID string) (types.Snapshot, error) {
	return run(ctx, s, id, "unpause", func(ctx context.Context, a *actor) (types.Snapshot, error) {
		if err := a.sched.Unpause(ctx, playerID); err != nil {
			return types.Snapshot{}, err
		}
		return snapshotOf(a), nil
	})
}

// CompleteCourt finishes the game on court number (1-based). A non-empty
// requestID makes the call idempotent per court: a repeat on the same court
// returns the first result marked as a duplicate.
func (s *Service) CompleteCourt(ctx context.Context, id string, number int, requestID string) (types.CourtResult, error) {
	return run(ctx, s, id, "complete_court", func(ctx context.Context, a *actor) (types.CourtResult, error) {
		key := ""
		if requestID = strings.TrimSpace(requestID); requestID != "" {
			key = dedupe.Key(id+"/courts/"+strconv.Itoa(number), requestID)
			if prev, seen := s.deduper.Lookup(ctx, key); seen {
				metrics.RecordDuplicateRequest()
				prev.Duplicate = true
				return prev, nil
			}
		}

		res, err := a.sched.CompleteCourt(ctx, number-1)
		if err != nil {
			return types.CourtResult{}, err
		}
		out := courtResult(res.Court, res.Refilled, res.Occupants, res.Match)
		if key != "" {
			s.deduper.Record(ctx, key, out)
		}
		s.logger.Info(ctx, "court completed",
			logger.String("session", id),
			logger.Int("court", number),
			logger.Bool("refilled", res.Refilled),
		)
		return out, nil
	})
}

// RefillCourt retries filling an idle court number (1-based).
func (s *Service) RefillCourt(ctx context.Context, id string, number int) (types.CourtResult, error) {
	return run(ctx, s, id, "refill_court", func(ctx context.Context, a *actor) (types.CourtResult, error) {
		res, err := a.sched.RefillCourt(ctx, number-1)
		if err != nil {
			return types.CourtResult{}, err
		}
		return courtResult(res.Court, res.Refilled, res.Occupants, res.Match), nil
	})
}

func courtResult(idx int, refilled bool, occupants []string, m model.Match) types.CourtResult {
	return types.CourtResult{Court: idx + 1, Refilled: refilled, Occupants: occupants, Match: types.FromMatch(m)}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":    s.started,
		"queueSize":  s.queueSize,
		"dedupeSize": s.dedupeSize,
		"maxCourts":  s.maxCourts,
		"sessionTTL": s.sessionTTL.String(),
	}

	if s.started {
		var attendees, idle, pending int
		items := s.sessions.Items()
		for _, item := range items {
			a := item.Value()
			attendees += int(a.attendees.Load())
			idle += int(a.idle.Load())
			pending += a.worker.Pending(ctx)
		}
		players := s.registry.Count(ctx)

		stats["sessions"] = len(items)
		stats["attendees"] = attendees
		stats["idleCourts"] = idle
		stats["pendingCommands"] = pending
		stats["players"] = players
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateSessionsActive(len(items))
		metrics.UpdateAttendeesTotal(attendees)
		metrics.UpdateIdleCourts(idle)
		metrics.UpdatePlayersTotal(players)
	}

	return stats
}
