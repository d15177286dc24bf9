package simulate

import "time"

// Config holds configuration for a simulated club night.
type Config struct {
	BaseURL    string        // Base URL of the service
	Players    int           // Players to register and bring to the session
	Courts     int           // Courts to start the session with
	Format     string        // singles or doubles
	Rounds     int           // Court completions to perform
	Workers    int           // Concurrent completion workers
	Seed       int64         // Session seed; 0 lets the server pick one
	PauseEvery int           // Pause and unpause a waiting attendee every N completions; 0 disables
	Timeout    time.Duration // HTTP request timeout
	OutputFile string        // Optional file for the final games table
	Verbose    bool          // Enable verbose logging
}

// Player mirrors the registry record returned by the API.
type Player struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	Surname   string `json:"surname"`
	Rating    string `json:"rating"`
}

// Court is one court in a snapshot.
type Court struct {
	Number    int      `json:"number"`
	Idle      bool     `json:"idle"`
	Occupants []string `json:"occupants"`
}

// Entry is an attendee id with games played.
type Entry struct {
	ID          string `json:"id"`
	GamesPlayed int    `json:"games_played"`
}

// Snapshot mirrors the session snapshot returned by the API.
type Snapshot struct {
	SessionID string  `json:"session_id"`
	Phase     string  `json:"phase"`
	Seed      *int64  `json:"seed"`
	Courts    []Court `json:"courts"`
	Waiting   []Entry `json:"waiting"`
	Paused    []Entry `json:"paused"`
	Attendees []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		GamesPlayed int    `json:"games_played"`
	} `json:"attendees"`
}

// StartResult mirrors the start response.
type StartResult struct {
	IdleCourts []int    `json:"idle_courts"`
	Snapshot   Snapshot `json:"snapshot"`
}

// CourtResult mirrors a completion or refill response.
type CourtResult struct {
	Court     int      `json:"court"`
	Refilled  bool     `json:"refilled"`
	Occupants []string `json:"occupants"`
	Duplicate bool     `json:"duplicate"`
}

// GamesRow is one row of the games table.
type GamesRow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Games int    `json:"games"`
}

// Stats holds run statistics.
type Stats struct {
	PlayersRegistered int
	Completions       int
	Duplicates        int
	Backpressured     int
	Failed            int
	Pauses            int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
