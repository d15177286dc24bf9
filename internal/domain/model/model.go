// Package model contains domain models passed between the scheduler layers.
package model

import (
	"fmt"
	"strings"
)

// Placeholder marks an empty seat in a placeholder match.
const Placeholder = "—"

// Status is the single authoritative state of an attendee within a session.
type Status int

// Attendee statuses. Every attendee holds exactly one.
const (
	StatusWaiting Status = iota
	StatusOnCourt
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusOnCourt:
		return "on_court"
	case StatusPaused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Phase is the scheduler state machine phase.
type Phase int

// Scheduler phases. There is no transition from Running back to Lobby.
const (
	PhaseLobby Phase = iota
	PhaseRunning
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseRunning:
		return "running"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Format is the match format played on every court of a session.
type Format string

// Supported formats.
const (
	FormatSingles Format = "singles"
	FormatDoubles Format = "doubles"
)

// ParseFormat accepts the long names and the s/d shorthands, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "singles":
		return FormatSingles, nil
	case "d", "doubles":
		return FormatDoubles, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// PlayersPerMatch returns how many attendees one court holds, or 0 for an unknown format.
func (f Format) PlayersPerMatch() int {
	switch f {
	case FormatSingles:
		return 2
	case FormatDoubles:
		return 4
	default:
		return 0
	}
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool { return f.PlayersPerMatch() > 0 }

// Match is a display artifact: two teams of names. It is derived when a
// court is filled and never persisted.
type Match struct {
	Format Format
	Team1  []string
	Team2  []string
}

// PlaceholderMatch returns a match with every seat marked empty.
func PlaceholderMatch(f Format) Match {
	half := f.PlayersPerMatch() / 2
	if half == 0 {
		half = 1
	}
	m := Match{Format: f, Team1: make([]string, half), Team2: make([]string, half)}
	for i := 0; i < half; i++ {
		m.Team1[i] = Placeholder
		m.Team2[i] = Placeholder
	}
	return m
}

// SessionConfig is locked when a session starts.
type SessionConfig struct {
	Format Format
	Courts int
	// Seed is nil when the caller wants a random seed.
	Seed *int64
}

// CourtView is the read shape of one court slot.
type CourtView struct {
	Index     int
	Idle      bool
	Occupants []string
	Match     Match
}

// WaitingEntry is one waiting attendee with its games-played count.
type WaitingEntry struct {
	ID          string
	GamesPlayed int
}

// AttendeeView is one attendee of the session.
type AttendeeView struct {
	ID          string
	Status      Status
	GamesPlayed int
}

// Snapshot is a read-only copy of a session's state for display.
type Snapshot struct {
	Phase     Phase
	Format    Format
	Seed      int64
	Courts    []CourtView
	Waiting   []WaitingEntry
	Paused    []WaitingEntry
	Attendees []AttendeeView
}

// GamesRow is one line of the games-played table.
type GamesRow struct {
	ID    string
	Name  string
	Games int
}
