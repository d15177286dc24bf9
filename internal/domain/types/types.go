// Package types contains the JSON shapes exchanged over the HTTP API.
package types

import "github.com/okian/rally/internal/domain/model"

// Player is a registry record.
type Player struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	Surname   string `json:"surname"`
	Rating    string `json:"rating"`
}

// PlayerPatch carries the fields of a partial player update.
type PlayerPatch struct {
	FirstName *string `json:"first_name,omitempty"`
	Surname   *string `json:"surname,omitempty"`
	Rating    *string `json:"rating,omitempty"`
}

// Match is two teams of display names.
type Match struct {
	Format string   `json:"format"`
	Team1  []string `json:"team1"`
	Team2  []string `json:"team2"`
}

// Court is one court of a running session. Number is 1-based.
type Court struct {
	Number    int      `json:"number"`
	Idle      bool     `json:"idle"`
	Occupants []string `json:"occupants"`
	Match     Match    `json:"match"`
}

// WaitingEntry is an attendee id with its games-played count.
type WaitingEntry struct {
	ID          string `json:"id"`
	GamesPlayed int    `json:"games_played"`
}

// Attendee is one attendee of a session.
type Attendee struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	GamesPlayed int    `json:"games_played"`
}

// Snapshot is the read view of a session.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	Phase     string         `json:"phase"`
	Format    string         `json:"format,omitempty"`
	Seed      *int64         `json:"seed,omitempty"`
	Courts    []Court        `json:"courts"`
	Waiting   []WaitingEntry `json:"waiting"`
	Paused    []WaitingEntry `json:"paused"`
	Attendees []Attendee     `json:"attendees"`
}

// GamesRow is one row of the games-played table.
type GamesRow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Games int    `json:"games"`
}

// StartResult reports the courts left idle after start, 1-based.
type StartResult struct {
	IdleCourts []int    `json:"idle_courts"`
	Snapshot   Snapshot `json:"snapshot"`
}

// CourtResult reports a completion or manual refill of one court.
type CourtResult struct {
	Court     int      `json:"court"`
	Refilled  bool     `json:"refilled"`
	Occupants []string `json:"occupants,omitempty"`
	Match     Match    `json:"match"`
	// Duplicate is set when a completion with the same request id already ran
	// on the same court.
	Duplicate bool `json:"duplicate,omitempty"`
}

// FromMatch converts a domain match.
func FromMatch(m model.Match) Match {
	return Match{Format: string(m.Format), Team1: orEmpty(m.Team1), Team2: orEmpty(m.Team2)}
}

// FromSnapshot converts a domain snapshot, renumbering courts from 1.
func FromSnapshot(sessionID string, s model.Snapshot) Snapshot {
	out := Snapshot{
		SessionID: sessionID,
		Phase:     s.Phase.String(),
		Format:    string(s.Format),
		Courts:    make([]Court, 0, len(s.Courts)),
		Waiting:   waiting(s.Waiting),
		Paused:    waiting(s.Paused),
		Attendees: make([]Attendee, 0, len(s.Attendees)),
	}
	if s.Phase == model.PhaseRunning {
		seed := s.Seed
		out.Seed = &seed
	}
	for _, c := range s.Courts {
		out.Courts = append(out.Courts, Court{
			Number:    c.Index + 1,
			Idle:      c.Idle,
			Occupants: orEmpty(c.Occupants),
			Match:     FromMatch(c.Match),
		})
	}
	for _, a := range s.Attendees {
		out.Attendees = append(out.Attendees, Attendee{ID: a.ID, Status: a.Status.String(), GamesPlayed: a.GamesPlayed})
	}
	return out
}

// FromGames converts games-played rows.
func FromGames(rows []model.GamesRow) []GamesRow {
	out := make([]GamesRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, GamesRow(r))
	}
	return out
}

func waiting(in []model.WaitingEntry) []WaitingEntry {
	out := make([]WaitingEntry, 0, len(in))
	for _, w := range in {
		out = append(out, WaitingEntry(w))
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
