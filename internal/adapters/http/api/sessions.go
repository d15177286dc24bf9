package api

import (
	"context"
	"net/http"

	"github.com/okian/rally/internal/domain/types"
)

// SessionsHandler serves session lifecycle and scheduler operations.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

type attendeeFunc func(ctx context.Context, id, playerID string) (types.Snapshot, error)

type startRequest struct {
	Format string `json:"format"`
	Courts int    `json:"courts"`
	Seed   *int64 `json:"seed,omitempty"`
}

type attendeeRequest struct {
	PlayerID string `json:"player_id"`
	Paused   bool   `json:"paused"`
}

type completeRequest struct {
	RequestID string `json:"request_id,omitempty"`
}

// HandleCreate handles POST /sessions.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.CreateSession(r.Context())
	if err != nil {
		writeFailure(w, "api.create_session", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// HandleSnapshot handles GET /sessions/{id}.
func (h *SessionsHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.snapshot"
	id, ok := sessionID(w, r, op)
	if !ok {
		return
	}
	snap, err := h.deps.Snapshot(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleDelete handles DELETE /sessions/{id}.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_session"
	id, ok := sessionID(w, r, op)
	if !ok {
		return
	}
	if err := h.deps.DeleteSession(r.Context(), id); err != nil {
		writeFailure(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBoard handles GET /sessions/{id}/board and returns plain text.
func (h *SessionsHandler) HandleBoard(w http.ResponseWriter, r *http.Request) {
	const op = "api.board"
	id, ok := sessionID(w, r, op)
	if !ok {
		return
	}
	board, err := h.deps.Board(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(board))
}

// HandleGames handles GET /sessions/{id}/games.
func (h *SessionsHandler) HandleGames(w http.ResponseWriter, r *http.Request) {
	const op = "api.games"
	id, ok := sessionID(w, r, op)
	if !ok {
		return
	}
	rows, err := h.deps.GamesPlayed(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleStart handles POST /sessions/{id}/start.
func (h *SessionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start"
	id, ok := sessionID(w, r, op)
	if !ok {
		return
	}
	var req startRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.StartSession(r.Context(), id, req.Format, req.Courts, req.Seed)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAddAttendee handles POST /sessions/{id}/attendees.
func (h *SessionsHandler) HandleAddAttendee(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_attendee"
	id, ok := sessionID(w, r, op)
	if !ok {
		return
	}
	var req attendeeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	snap, err := h.deps.AddAttendee(r.Context(), id, req.PlayerID, req.Paused)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// HandleRemoveAttendee handles DELETE /sessions/{id}/attendees/{pid}.
func (h *SessionsHandler) HandleRemoveAttendee(w http.ResponseWriter, r *http.Request) {
	h.attendee(w, r, "api.remove_attendee", h.deps.RemoveAttendee)
}

// HandlePause handles POST /sessions/{id}/attendees/{pid}/pause.
func (h *SessionsHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.attendee(w, r, "api.pause", h.deps.PauseAttendee)
}

// HandleUnpause handles POST /sessions/{id}/attendees/{pid}/unpause.
func (h *SessionsHandler) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	h.attendee(w, r, "api.unpause", h.deps.UnpauseAttendee)
}

func (h *SessionsHandler) attendee(w http.ResponseWriter, r *http.Request, op string, fn attendeeFunc) {
	id, ok := sessionID(w, r, op)
	if !ok {
		return
	}
	pid, err := pathID(r, "pid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	snap, err := fn(r.Context(), id, pid)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleComplete handles POST /sessions/{id}/courts/{n}/complete. The
// request id may come from the body or the Idempotency-Key header.
func (h *SessionsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	const op = "api.complete_court"
	id, n, ok := sessionCourt(w, r, op)
	if !ok {
		return
	}
	var req completeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}
	res, err := h.deps.CompleteCourt(r.Context(), id, n, req.RequestID)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRefill handles POST /sessions/{id}/courts/{n}/refill.
func (h *SessionsHandler) HandleRefill(w http.ResponseWriter, r *http.Request) {
	const op = "api.refill_court"
	id, n, ok := sessionCourt(w, r, op)
	if !ok {
		return
	}
	res, err := h.deps.RefillCourt(r.Context(), id, n)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func sessionID(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return "", false
	}
	return id, true
}

func sessionCourt(w http.ResponseWriter, r *http.Request, op string) (string, int, bool) {
	id, ok := sessionID(w, r, op)
	if !ok {
		return "", 0, false
	}
	n, err := courtNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return "", 0, false
	}
	return id, n, true
}
