package repository

import (
	"math/rand"
	"time"

	"github.com/okian/rally/pkg/logger"
)

type options struct {
	rng    *rand.Rand
	logger logger.Logger
}

// Option applies a configuration option to a Store.
type Option func(*options)

// WithRand sets the source of player id suffixes.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		if rng != nil {
			o.rng = rng
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(name string, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // id suffixes, not secrets
	}
	if o.logger == nil {
		o.logger = logger.Named(name)
	}
	return o
}
