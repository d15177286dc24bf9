package simulate

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/okian/rally/pkg/logger"
)

var (
	firstNames = []string{
		"Ann", "Ben", "Cara", "Dan", "Eve", "Finn", "Gita", "Hugo", "Ines", "Jon",
		"Kai", "Lena", "Milo", "Nora", "Omar", "Pia", "Quinn", "Rosa", "Sam", "Tara",
	}
	surnames = []string{
		"Ash", "Bell", "Cole", "Dunn", "Ellis", "Frost", "Gale", "Hart", "Ivers", "Joyce",
		"Kemp", "Lowe", "Marsh", "Nash", "Oakes", "Price", "Quill", "Reed", "Stone", "Tate",
	}
	ratings = []string{"E", "D", "C-", "C", "C+", "B-", "B", "B+", "A"}
)

// generatedPlayer is a generated registration request.
type generatedPlayer struct {
	FirstName string
	Surname   string
	Rating    string
}

// generatePlayers returns n name and rating combinations drawn from seed.
func generatePlayers(n int, seed int64) []generatedPlayer {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // simulation data only
	out := make([]generatedPlayer, n)
	for i := range out {
		out[i] = generatedPlayer{
			FirstName: firstNames[rng.Intn(len(firstNames))],
			Surname:   surnames[rng.Intn(len(surnames))],
			Rating:    ratings[rng.Intn(len(ratings))],
		}
	}
	return out
}

// registerPlayers registers players with a pool of workers and returns the ids
// in generation order.
func registerPlayers(ctx context.Context, client *Client, cfg *Config, players []generatedPlayer, stats *Stats) ([]string, error) {
	logger.Get().Info(ctx, "registering players", logger.Int("players", len(players)), logger.Int("workers", cfg.Workers))

	workers := max(cfg.Workers, 1)
	ids := make([]string, len(players))
	jobs := make(chan int, workers*2)
	var (
		wg       sync.WaitGroup
		failed   atomic.Int64
		firstErr error
		errOnce  sync.Once
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s := players[i]
				p, _, err := withRetry(ctx, func() (Player, error) {
					return client.RegisterPlayer(ctx, s.FirstName, s.Surname, s.Rating)
				})
				if err != nil {
					failed.Add(1)
					errOnce.Do(func() { firstErr = err })
					continue
				}
				ids[i] = p.ID
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range players {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return nil, fmt.Errorf("%d registrations failed: %w", n, firstErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats.PlayersRegistered = len(ids)
	return ids, nil
}
