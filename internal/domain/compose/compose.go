// Package compose turns a group of attendee ids into a displayable match.
package compose

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
)

// NameResolver looks up a display name for an attendee id. Lookups are
// independent reads; a failure only degrades the display.
type NameResolver interface {
	DisplayName(ctx context.Context, id string) (string, error)
}

// ResolverFunc adapts a function to NameResolver.
type ResolverFunc func(ctx context.Context, id string) (string, error)

// DisplayName implements NameResolver.
func (f ResolverFunc) DisplayName(ctx context.Context, id string) (string, error) { return f(ctx, id) }

// Option applies a configuration option to the Composer.
type Option func(*Composer)

// WithLogger sets the logger used for resolution fallbacks.
func WithLogger(l logger.Logger) Option {
	return func(c *Composer) {
		if l != nil {
			c.logger = l
		}
	}
}

// Composer builds matches for one session. Its only side effect is consuming
// the session PRNG, so the order of Compose calls is part of the session's
// deterministic history.
type Composer struct {
	format model.Format
	rng    *rand.Rand
	names  NameResolver
	logger logger.Logger
}

// New creates a Composer for format that shuffles with rng and resolves
// names through names.
func New(format model.Format, rng *rand.Rand, names NameResolver, opts ...Option) *Composer {
	c := &Composer{
		format: format,
		rng:    rng,
		names:  names,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Named("compose")
	}
	return c
}

// Compose shuffles ids, splits them into two teams and resolves names.
// It returns the match and the ids in seat order (team 1 then team 2).
// Zero ids yields a placeholder match; any count other than zero or the
// format's players per match is rejected with ErrGroupSize.
func (c *Composer) Compose(ctx context.Context, ids []string) (model.Match, []string, error) {
	if len(ids) == 0 {
		return model.PlaceholderMatch(c.format), nil, nil
	}
	need := c.format.PlayersPerMatch()
	if len(ids) != need {
		return model.Match{}, nil, fmt.Errorf("%w: got %d, need %d", ErrGroupSize, len(ids), need)
	}

	seats := slices.Clone(ids)
	c.rng.Shuffle(len(seats), func(i, j int) { seats[i], seats[j] = seats[j], seats[i] })

	half := need / 2
	m := model.Match{
		Format: c.format,
		Team1:  make([]string, half),
		Team2:  make([]string, half),
	}
	for i, id := range seats {
		name := c.resolve(ctx, id)
		if i < half {
			m.Team1[i] = name
		} else {
			m.Team2[i-half] = name
		}
	}
	return m, seats, nil
}

func (c *Composer) resolve(ctx context.Context, id string) string {
	if c.names == nil {
		return id
	}
	name, err := c.names.DisplayName(ctx, id)
	if err != nil {
		c.logger.Debug(ctx, "name lookup failed, using id", logger.String("id", id), logger.Error(err))
		return id
	}
	if name = strings.TrimSpace(name); name == "" {
		return id
	}
	return name
}
