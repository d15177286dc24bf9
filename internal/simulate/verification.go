package simulate

import (
	"context"
	"fmt"

	"github.com/okian/rally/pkg/logger"
)

// playersPerMatch returns the seats on one court for format.
func playersPerMatch(format string) int {
	if format == "singles" {
		return 2
	}
	return 4
}

// verify checks the invariants a finished run must hold and fills report.
func verify(ctx context.Context, client *Client, cfg *Config, report *Report, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "verifying session", logger.String("session", report.SessionID))

	snap, err := client.Snapshot(ctx, report.SessionID)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := checkPartition(snap); err != nil {
		return err
	}

	games, err := client.Games(ctx, report.SessionID)
	if err != nil {
		return fmt.Errorf("games: %w", err)
	}
	report.Games = games

	total := 0
	for _, g := range games {
		total += g.Games
	}
	if want := stats.Completions * playersPerMatch(cfg.Format); total != want {
		return fmt.Errorf("games played sum to %d, want %d for %d completions", total, want, stats.Completions)
	}

	report.Spread = spread(snap)
	if report.Spread > fairSpread {
		log.Warn(ctx, "games played are unevenly spread", logger.Int("spread", report.Spread))
	}

	board, err := client.Board(ctx, report.SessionID)
	if err != nil {
		return fmt.Errorf("board: %w", err)
	}
	report.Board = board
	if cfg.Verbose {
		log.Info(ctx, "final board\n"+board)
	}

	displayGames(ctx, games, cfg.Verbose)
	log.Info(ctx, "verification completed", logger.Int("spread", report.Spread), logger.Int("games", total))
	return nil
}

// checkPartition verifies that every attendee is exactly one of on court,
// waiting or paused.
func checkPartition(snap Snapshot) error {
	seen := make(map[string]string, len(snap.Attendees))
	place := func(id, where string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("attendee %s is both %s and %s", id, prev, where)
		}
		seen[id] = where
		return nil
	}
	for _, c := range snap.Courts {
		for _, id := range c.Occupants {
			if err := place(id, fmt.Sprintf("on court %d", c.Number)); err != nil {
				return err
			}
		}
	}
	for _, w := range snap.Waiting {
		if err := place(w.ID, "waiting"); err != nil {
			return err
		}
	}
	for _, p := range snap.Paused {
		if err := place(p.ID, "paused"); err != nil {
			return err
		}
	}
	for _, a := range snap.Attendees {
		if _, ok := seen[a.ID]; !ok {
			return fmt.Errorf("attendee %s is nowhere", a.ID)
		}
	}
	if len(seen) != len(snap.Attendees) {
		return fmt.Errorf("%d placed ids for %d attendees", len(seen), len(snap.Attendees))
	}
	return nil
}

// spread is the gap between the most and least games among attendees that
// are not paused.
func spread(snap Snapshot) int {
	lo, hi, found := 0, 0, false
	for _, a := range snap.Attendees {
		if a.Status == "paused" {
			continue
		}
		if !found || a.GamesPlayed < lo {
			lo = a.GamesPlayed
		}
		if !found || a.GamesPlayed > hi {
			hi = a.GamesPlayed
		}
		found = true
	}
	return hi - lo
}

// displayGames logs the games table, fewest games first.
func displayGames(ctx context.Context, rows []GamesRow, verbose bool) {
	n := len(rows)
	if !verbose && n > 10 {
		n = 10
	}
	for _, r := range rows[:n] {
		logger.Get().Info(ctx, "games played", logger.String("id", r.ID), logger.String("name", r.Name), logger.Int("games", r.Games))
	}
}
