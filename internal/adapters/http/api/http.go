// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/rally/internal/adapters/repository"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/session"
	"github.com/okian/rally/internal/domain/types"
)

// PlayerDependencies covers the player registry operations.
type PlayerDependencies interface {
	ListPlayers(ctx context.Context) ([]types.Player, error)
	GetPlayer(ctx context.Context, id string) (types.Player, error)
	RegisterPlayer(ctx context.Context, firstName, surname, rating string) (types.Player, error)
	UpdatePlayer(ctx context.Context, id string, patch types.PlayerPatch) (types.Player, error)
	DeletePlayer(ctx context.Context, id string) error
}

// SessionDependencies covers the session lifecycle and scheduler operations.
type SessionDependencies interface {
	CreateSession(ctx context.Context) (types.Snapshot, error)
	DeleteSession(ctx context.Context, id string) error
	Snapshot(ctx context.Context, id string) (types.Snapshot, error)
	Board(ctx context.Context, id string) (string, error)
	GamesPlayed(ctx context.Context, id string) ([]types.GamesRow, error)
	StartSession(ctx context.Context, id, format string, courts int, seed *int64) (types.StartResult, error)
	AddAttendee(ctx context.Context, id, playerID string, paused bool) (types.Snapshot, error)
	RemoveAttendee(ctx context.Context, id, playerID string) (types.Snapshot, error)
	PauseAttendee(ctx context.Context, id, playerID string) (types.Snapshot, error)
	UnpauseAttendee(ctx context.Context, id, playerID string) (types.Snapshot, error)
	CompleteCourt(ctx context.Context, id string, court int, requestID string) (types.CourtResult, error)
	RefillCourt(ctx context.Context, id string, court int) (types.CourtResult, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PlayerDependencies
	SessionDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	playersHandler  *PlayersHandler
	sessionsHandler *SessionsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		playersHandler:  NewPlayersHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, name string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, name))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	p := s.playersHandler
	route("GET /players", "players_list", p.HandleList)
	route("POST /players", "players_register", p.HandleRegister)
	route("GET /players/{id}", "players_get", p.HandleGet)
	route("PATCH /players/{id}", "players_update", p.HandleUpdate)
	route("DELETE /players/{id}", "players_delete", p.HandleDelete)

	h := s.sessionsHandler
	route("POST /sessions", "sessions_create", h.HandleCreate)
	route("GET /sessions/{id}", "sessions_snapshot", h.HandleSnapshot)
	route("DELETE /sessions/{id}", "sessions_delete", h.HandleDelete)
	route("GET /sessions/{id}/board", "sessions_board", h.HandleBoard)
	route("GET /sessions/{id}/games", "sessions_games", h.HandleGames)
	route("POST /sessions/{id}/start", "sessions_start", h.HandleStart)
	route("POST /sessions/{id}/attendees", "attendees_add", h.HandleAddAttendee)
	route("DELETE /sessions/{id}/attendees/{pid}", "attendees_remove", h.HandleRemoveAttendee)
	route("POST /sessions/{id}/attendees/{pid}/pause", "attendees_pause", h.HandlePause)
	route("POST /sessions/{id}/attendees/{pid}/unpause", "attendees_unpause", h.HandleUnpause)
	route("POST /sessions/{id}/courts/{n}/complete", "courts_complete", h.HandleComplete)
	route("POST /sessions/{id}/courts/{n}/refill", "courts_refill", h.HandleRefill)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a service error onto its HTTP status and error code.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	writeError(w, status, code, Wrap(op, err))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, session.ErrValidation),
		errors.Is(err, repository.ErrInvalidPlayer):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, session.ErrInvalidCourt):
		return http.StatusBadRequest, "invalid_court"
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrBlocked):
		return http.StatusConflict, "blocked"
	case errors.Is(err, session.ErrNotPaused):
		return http.StatusConflict, "not_paused"
	case errors.Is(err, session.ErrAlreadyAttending):
		return http.StatusConflict, "already_attending"
	case errors.Is(err, session.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// pathID returns a trimmed, non-empty path value.
func pathID(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.PathValue(name))
	if v == "" {
		return "", errors.New("missing " + name)
	}
	return v, nil
}

// courtNumber parses the 1-based court number from the path.
func courtNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		return 0, errors.New("court number must be an integer")
	}
	return n, nil
}
