// Package session implements the court scheduler state machine for one live
// badminton session.
//
// A Session starts in the lobby, where the roster can be edited freely, and
// moves to running on Start. While running, finished courts are completed and
// refilled from a fairness queue that prefers attendees with fewer games.
// There is no way back to the lobby; a finished session is simply discarded.
//
// Every operation validates before it mutates, so a returned error means the
// session is unchanged. A Session is not safe for concurrent use; callers
// serialise commands (see the mq adapters).
package session

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/okian/rally/internal/domain/compose"
	"github.com/okian/rally/internal/domain/court"
	"github.com/okian/rally/internal/domain/fairness"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

type attendee struct {
	status model.Status
	games  int
}

// roster is the single authoritative status table. It backs both the
// fairness queue's games lookup and the court allocator's bookkeeping.
type roster map[string]*attendee

func (r roster) Status(id string) model.Status {
	if a, ok := r[id]; ok {
		return a.status
	}
	return model.StatusWaiting
}

func (r roster) SetStatus(id string, s model.Status) {
	if a, ok := r[id]; ok {
		a.status = s
	}
}

func (r roster) AddGame(id string) {
	if a, ok := r[id]; ok {
		a.games++
	}
}

func (r roster) GamesPlayed(id string) int {
	if a, ok := r[id]; ok {
		return a.games
	}
	return 0
}

// Session is one scheduler instance with its own PRNG, roster, queue and courts.
type Session struct {
	phase     model.Phase
	cfg       model.SessionConfig
	seed      int64
	attendees roster

	names    compose.NameResolver
	rng      *rand.Rand
	queue    *fairness.Queue
	composer *compose.Composer
	courts   *court.Allocator

	logger logger.Logger
	now    func() time.Time
}

// New creates a session in the lobby. names resolves attendee ids against the
// player registry; a nil resolver accepts every id and displays raw ids.
func New(names compose.NameResolver, opts ...Option) *Session {
	s := &Session{
		phase:     model.PhaseLobby,
		attendees: make(roster),
		names:     names,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("session")
	}
	return s
}

// Phase returns the current phase.
func (s *Session) Phase() model.Phase { return s.phase }

// Config returns the locked configuration. It is the zero value in the lobby.
func (s *Session) Config() model.SessionConfig { return s.cfg }

// Len returns the number of attendees.
func (s *Session) Len() int { return len(s.attendees) }

// Start locks cfg, seeds the PRNG and fills every court from the non-paused
// attendees queued in ascending id order. It returns the indexes of courts
// left idle because too few attendees were waiting; that is not an error.
func (s *Session) Start(ctx context.Context, cfg model.SessionConfig) ([]int, error) {
	if s.phase != model.PhaseLobby {
		return nil, ErrAlreadyRunning
	}
	if !cfg.Format.Valid() {
		return nil, fmt.Errorf("%w: unknown format %q", ErrValidation, cfg.Format)
	}
	if cfg.Courts <= 0 {
		return nil, fmt.Errorf("%w: court count must be positive, got %d", ErrValidation, cfg.Courts)
	}
	if len(s.attendees) == 0 {
		return nil, fmt.Errorf("%w: no attendees", ErrValidation)
	}

	seed := s.now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	s.seed = seed
	s.cfg = model.SessionConfig{Format: cfg.Format, Courts: cfg.Courts, Seed: &s.seed}
	s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible schedules, not security

	s.queue = fairness.New(s.rng, s.attendees)
	s.composer = compose.New(cfg.Format, s.rng, s.names, compose.WithLogger(s.logger.Named("compose")))
	s.courts = court.New(cfg.Courts, cfg.Format, s.queue, s.composer, s.attendees, court.WithLogger(s.logger.Named("court")))

	var eligible []string
	for _, id := range slices.Sorted(maps.Keys(s.attendees)) {
		if s.attendees[id].status != model.StatusPaused {
			s.attendees[id].status = model.StatusWaiting
			eligible = append(eligible, id)
		}
	}
	s.queue.Reset(eligible)
	s.phase = model.PhaseRunning

	var idle []int
	for i := 0; i < cfg.Courts; i++ {
		res, err := s.courts.Fill(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("fill court %d: %w", i, err)
		}
		if !res.Refilled {
			idle = append(idle, i)
		}
	}

	metrics.RecordSessionStarted(string(cfg.Format))
	s.logger.Info(ctx, "session started",
		logger.String("format", string(cfg.Format)),
		logger.Int("courts", cfg.Courts),
		logger.Int64("seed", seed),
		logger.Int("attendees", len(s.attendees)),
		logger.Int("idle_courts", len(idle)),
	)
	return idle, nil
}

// AddAttendee registers id with the session. The id must resolve in the
// registry. While running, a non-paused attendee joins the back of the queue.
func (s *Session) AddAttendee(ctx context.Context, id string, paused bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty attendee id", ErrValidation)
	}
	if _, ok := s.attendees[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyAttending, id)
	}
	if s.names != nil {
		if _, err := s.names.DisplayName(ctx, id); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrNotFound, id, err)
		}
	}

	status := model.StatusWaiting
	if paused {
		status = model.StatusPaused
	}
	s.attendees[id] = &attendee{status: status}
	if s.phase == model.PhaseRunning && !paused {
		s.queue.Enqueue(id)
	}
	metrics.RecordAttendeeTransition("added")
	s.logger.Debug(ctx, "attendee added", logger.String("id", id), logger.Bool("paused", paused))
	return nil
}

// RemoveAttendee forgets id and its games count. An attendee on court is
// blocked until that court completes.
func (s *Session) RemoveAttendee(ctx context.Context, id string) error {
	a, ok := s.attendees[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if a.status == model.StatusOnCourt {
		metrics.RecordBlockedOperation("remove")
		return fmt.Errorf("%w: cannot remove %s", ErrBlocked, id)
	}

	if s.queue != nil {
		s.queue.Remove(id)
	}
	delete(s.attendees, id)
	metrics.RecordAttendeeTransition("removed")
	s.logger.Debug(ctx, "attendee removed", logger.String("id", id), logger.Int("games", a.games))
	return nil
}

// Pause takes a waiting attendee out of rotation and keeps its games count.
// Pausing an already paused attendee succeeds without change.
func (s *Session) Pause(ctx context.Context, id string) error {
	a, ok := s.attendees[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	switch a.status {
	case model.StatusOnCourt:
		metrics.RecordBlockedOperation("pause")
		return fmt.Errorf("%w: cannot pause %s", ErrBlocked, id)
	case model.StatusPaused:
		return nil
	}

	if s.queue != nil {
		s.queue.Remove(id)
	}
	a.status = model.StatusPaused
	metrics.RecordAttendeeTransition("paused")
	s.logger.Debug(ctx, "attendee paused", logger.String("id", id))
	return nil
}

// Unpause returns a paused attendee to rotation at the back of the queue. In
// the lobby the attendee simply becomes eligible for Start.
func (s *Session) Unpause(ctx context.Context, id string) error {
	a, ok := s.attendees[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if a.status != model.StatusPaused {
		return fmt.Errorf("%w: %s is %s", ErrNotPaused, id, a.status)
	}

	a.status = model.StatusWaiting
	if s.phase == model.PhaseRunning {
		s.queue.Enqueue(id)
	}
	metrics.RecordAttendeeTransition("unpaused")
	s.logger.Debug(ctx, "attendee unpaused", logger.String("id", id))
	return nil
}

// CompleteCourt finishes the game on court idx (0-based) and refills it.
func (s *Session) CompleteCourt(ctx context.Context, idx int) (court.Result, error) {
	if s.phase != model.PhaseRunning {
		return court.Result{Court: idx}, fmt.Errorf("%w: session not running", ErrInvalidCourt)
	}
	return s.courts.Complete(ctx, idx)
}

// RefillCourt retries filling an idle court idx (0-based).
func (s *Session) RefillCourt(ctx context.Context, idx int) (court.Result, error) {
	if s.phase != model.PhaseRunning {
		return court.Result{Court: idx}, fmt.Errorf("%w: session not running", ErrInvalidCourt)
	}
	return s.courts.Fill(ctx, idx)
}

// Snapshot returns a copy of the session state for display. Waiting follows
// queue order while running and ascending id order in the lobby.
func (s *Session) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		Phase:  s.phase,
		Format: s.cfg.Format,
		Seed:   s.seed,
	}

	ids := slices.Sorted(maps.Keys(s.attendees))
	for _, id := range ids {
		a := s.attendees[id]
		snap.Attendees = append(snap.Attendees, model.AttendeeView{ID: id, Status: a.status, GamesPlayed: a.games})
		switch {
		case a.status == model.StatusPaused:
			snap.Paused = append(snap.Paused, model.WaitingEntry{ID: id, GamesPlayed: a.games})
		case s.phase == model.PhaseLobby:
			snap.Waiting = append(snap.Waiting, model.WaitingEntry{ID: id, GamesPlayed: a.games})
		}
	}

	if s.phase != model.PhaseRunning {
		return snap
	}
	for _, id := range s.queue.IDs() {
		snap.Waiting = append(snap.Waiting, model.WaitingEntry{ID: id, GamesPlayed: s.attendees.GamesPlayed(id)})
	}
	for i := 0; i < s.courts.Len(); i++ {
		snap.Courts = append(snap.Courts, model.CourtView{
			Index:     i,
			Idle:      s.courts.IsIdle(i),
			Occupants: s.courts.Occupants(i),
			Match:     s.courts.Match(i),
		})
	}
	return snap
}

// GamesPlayed returns one row per attendee ordered by games then name.
func (s *Session) GamesPlayed(ctx context.Context) []model.GamesRow {
	rows := make([]model.GamesRow, 0, len(s.attendees))
	for id, a := range s.attendees {
		rows = append(rows, model.GamesRow{ID: id, Name: s.displayName(ctx, id), Games: a.games})
	}
	slices.SortFunc(rows, func(a, b model.GamesRow) int {
		if c := cmp.Compare(a.Games, b.Games); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return rows
}

func (s *Session) displayName(ctx context.Context, id string) string {
	if s.names == nil {
		return id
	}
	name, err := s.names.DisplayName(ctx, id)
	if err != nil || strings.TrimSpace(name) == "" {
		return id
	}
	return name
}
