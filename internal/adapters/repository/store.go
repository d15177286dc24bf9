// Package repository is the player registry: the pool sessions draw attendees from.
package repository

import (
	"cmp"
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Grades lists the allowed ratings from lowest to highest.
var Grades = []string{"E", "D", "C-", "C", "C+", "B-", "B", "B+", "A"}

// DefaultGrade is used when a player registers without a rating.
const DefaultGrade = "E"

// maxIDAttempts bounds id regeneration on collision.
const maxIDAttempts = 64

// Player is a registry record.
type Player struct {
	ID        string
	FirstName string
	Surname   string
	Rating    string
}

// DisplayName joins first name and surname.
func (p Player) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.Surname)
}

// Patch holds the fields to change in UpdatePlayer; nil fields are left alone.
type Patch struct {
	FirstName *string
	Surname   *string
	Rating    *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.FirstName == nil && p.Surname == nil && p.Rating == nil
}

// Store provides read/write access to the player registry.
type Store interface {
	// ListPlayers returns every player ordered by surname then first name.
	ListPlayers(ctx context.Context) ([]Player, error)
	// GetPlayer returns ErrNotFound if id is unknown.
	GetPlayer(ctx context.Context, id string) (Player, error)
	// RegisterPlayer validates the input and stores a player under a fresh id.
	RegisterPlayer(ctx context.Context, firstName, surname, rating string) (Player, error)
	UpdatePlayer(ctx context.Context, id string, patch Patch) (Player, error)
	DeletePlayer(ctx context.Context, id string) error
	Count(ctx context.Context) int
	Close() error
}

// NormalizeRating upper-cases and checks a grade. Empty means DefaultGrade.
func NormalizeRating(rating string) (string, error) {
	r := strings.ToUpper(strings.TrimSpace(rating))
	if r == "" {
		return DefaultGrade, nil
	}
	if !slices.Contains(Grades, r) {
		return "", fmt.Errorf("%w: rating %q must be one of %s", ErrInvalidPlayer, rating, strings.Join(Grades, ", "))
	}
	return r, nil
}

func normalizeNew(firstName, surname, rating string) (Player, error) {
	p := Player{FirstName: strings.TrimSpace(firstName), Surname: strings.TrimSpace(surname)}
	if p.FirstName == "" || p.Surname == "" {
		return Player{}, fmt.Errorf("%w: first name and surname cannot be empty", ErrInvalidPlayer)
	}
	r, err := NormalizeRating(rating)
	if err != nil {
		return Player{}, err
	}
	p.Rating = r
	return p, nil
}

// apply validates patch and returns p with it applied.
func apply(p Player, patch Patch) (Player, error) {
	if patch.FirstName != nil {
		v := strings.TrimSpace(*patch.FirstName)
		if v == "" {
			return Player{}, fmt.Errorf("%w: first name cannot be empty", ErrInvalidPlayer)
		}
		p.FirstName = v
	}
	if patch.Surname != nil {
		v := strings.TrimSpace(*patch.Surname)
		if v == "" {
			return Player{}, fmt.Errorf("%w: surname cannot be empty", ErrInvalidPlayer)
		}
		p.Surname = v
	}
	if patch.Rating != nil {
		r, err := NormalizeRating(*patch.Rating)
		if err != nil {
			return Player{}, err
		}
		p.Rating = r
	}
	return p, nil
}

func sortPlayers(ps []Player) {
	slices.SortFunc(ps, func(a, b Player) int {
		if c := cmp.Compare(a.Surname, b.Surname); c != 0 {
			return c
		}
		if c := cmp.Compare(a.FirstName, b.FirstName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// idGenerator builds ids as first initial + title-cased surname + four digits.
type idGenerator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	title cases.Caser
}

func newIDGenerator(rng *rand.Rand) *idGenerator {
	return &idGenerator{rng: rng, title: cases.Title(language.Und)}
}

// Base returns the id prefix for a name. Whitespace inside the surname is dropped.
func (g *idGenerator) Base(firstName, surname string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	initial := strings.ToUpper(string([]rune(firstName)[:1]))
	return initial + strings.Join(strings.Fields(g.title.String(surname)), "")
}

// Next returns base plus a suffix in 1000..9999.
func (g *idGenerator) Next(base string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("%s%d", base, 1000+g.rng.Intn(9000))
}
