package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rally/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Report is the outcome of a run.
type Report struct {
	SessionID string
	Stats     Stats
	Games     []GamesRow
	Board     string
	Spread    int
}

// Run executes a complete simulated club night against a live server.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting rally simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("courts", cfg.Courts),
		logger.String("format", cfg.Format),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("workers", cfg.Workers),
		logger.Int64("seed", cfg.Seed),
	)

	client := NewClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Register players
	ids, err := registerPlayers(ctx, client, cfg, generatePlayers(cfg.Players, cfg.Seed), stats)
	if err != nil {
		return nil, fmt.Errorf("player registration failed: %w", err)
	}

	// Step 3: Open the session and bring everyone in
	snap, err := client.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("session creation failed: %w", err)
	}
	sid := snap.SessionID
	for _, id := range ids {
		if err := client.AddAttendee(ctx, sid, id); err != nil {
			return nil, fmt.Errorf("adding attendee %s failed: %w", id, err)
		}
	}

	// Step 4: Start
	started, err := client.Start(ctx, sid, cfg.Format, cfg.Courts, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("session start failed: %w", err)
	}
	log.Info(ctx, "session started",
		logger.String("session", sid),
		logger.Any("idleCourts", started.IdleCourts),
		logger.Int("waiting", len(started.Snapshot.Waiting)),
	)

	// Step 5: Play
	active := make([]int, 0, len(started.Snapshot.Courts))
	for _, c := range started.Snapshot.Courts {
		if !c.Idle {
			active = append(active, c.Number)
		}
	}
	if err := play(ctx, client, cfg, sid, active, stats); err != nil {
		return nil, fmt.Errorf("play failed: %w", err)
	}

	// Step 6: Verify
	report := &Report{SessionID: sid}
	if err := verify(ctx, client, cfg, report, stats); err != nil {
		return report, fmt.Errorf("verification failed: %w", err)
	}

	// Step 7: Save the games table
	if cfg.OutputFile != "" {
		if err := saveGames(ctx, cfg.OutputFile, report.Games); err != nil {
			log.Warn(ctx, "failed to save games table", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	report.Stats = *stats
	displayFinalStats(ctx, stats)
	return report, nil
}

// play runs one goroutine per busy court, bounded by cfg.Workers, until
// cfg.Rounds completions have been made or every court went idle.
func play(ctx context.Context, client *Client, cfg *Config, sid string, courts []int, stats *Stats) error {
	if len(courts) == 0 || cfg.Rounds <= 0 {
		return nil
	}

	var (
		remaining     atomic.Int64
		completions   atomic.Int64
		duplicates    atomic.Int64
		backpressured atomic.Int64
		failed        atomic.Int64
		pauses        atomic.Int64
		wg            sync.WaitGroup
		firstErr      error
		errOnce       sync.Once
	)
	remaining.Store(int64(cfg.Rounds))
	sem := make(chan struct{}, max(cfg.Workers, 1))
	fail := func(err error) {
		failed.Add(1)
		errOnce.Do(func() { firstErr = err })
	}

	for _, n := range courts {
		wg.Add(1)
		go func(court int) {
			defer wg.Done()
			for remaining.Add(-1) >= 0 {
				select {
				case <-ctx.Done():
					fail(ctx.Err())
					return
				case sem <- struct{}{}:
				}

				key := uuid.NewString()
				res, retries, err := withRetry(ctx, func() (CourtResult, error) {
					return client.Complete(ctx, sid, court, key)
				})
				backpressured.Add(int64(retries))
				if err != nil {
					<-sem
					fail(fmt.Errorf("court %d: %w", court, err))
					return
				}
				done := completions.Add(1)

				// Replaying the same key must not record another game.
				if done%10 == 0 {
					again, _, err := withRetry(ctx, func() (CourtResult, error) {
						return client.Complete(ctx, sid, court, key)
					})
					switch {
					case err != nil:
						fail(fmt.Errorf("court %d replay: %w", court, err))
					case !again.Duplicate:
						fail(fmt.Errorf("court %d: replayed completion %s was not reported as duplicate", court, key))
					default:
						duplicates.Add(1)
					}
				}

				if cfg.PauseEvery > 0 && done%int64(cfg.PauseEvery) == 0 {
					if ok := pauseOne(ctx, client, sid); ok {
						pauses.Add(1)
					}
				}
				<-sem

				if !res.Refilled {
					logger.Get().Debug(ctx, "court went idle", logger.Int("court", court))
					return
				}
			}
		}(n)
	}
	wg.Wait()

	stats.Completions = int(completions.Load())
	stats.Duplicates = int(duplicates.Load())
	stats.Backpressured = int(backpressured.Load())
	stats.Failed = int(failed.Load())
	stats.Pauses = int(pauses.Load())
	return firstErr
}

// pauseOne pauses the first waiting attendee and brings them straight back.
// A conflict means a court picked them in between and is not an error.
func pauseOne(ctx context.Context, client *Client, sid string) bool {
	snap, err := client.Snapshot(ctx, sid)
	if err != nil || len(snap.Waiting) == 0 {
		return false
	}
	id := snap.Waiting[0].ID
	if err := client.Pause(ctx, sid, id); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return false
		}
		logger.Get().Warn(ctx, "pause failed", logger.String("attendee", id), logger.Error(err))
		return false
	}
	if err := client.Unpause(ctx, sid, id); err != nil {
		logger.Get().Warn(ctx, "unpause failed", logger.String("attendee", id), logger.Error(err))
		return false
	}
	return true
}

// saveGames writes the games table as JSON.
func saveGames(ctx context.Context, filename string, rows []GamesRow) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal games: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write games: %w", err)
	}
	logger.Get().Info(ctx, "games table saved", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var completionsPerSecond, duplicateRate float64
	if stats.Duration > 0 {
		completionsPerSecond = float64(stats.Completions) / stats.Duration.Seconds()
	}
	if stats.Completions > 0 {
		duplicateRate = float64(stats.Duplicates) / float64(stats.Completions) * PercentageMultiplier
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("playersRegistered", stats.PlayersRegistered),
		logger.Int("completions", stats.Completions),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("backpressured", stats.Backpressured),
		logger.Int("failed", stats.Failed),
		logger.Int("pauses", stats.Pauses),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("completionsPerSecond", completionsPerSecond),
		logger.Float64("duplicateRate", duplicateRate))
}
