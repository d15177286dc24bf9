package simulate

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/pflag"
)

// Default run parameters.
const (
	DefaultBaseURL = "http://localhost:9080"
	DefaultPlayers = 24
	DefaultCourts  = 4
	DefaultRounds  = 200
	DefaultTimeout = 10 * time.Second
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid simulation config")

// NewConfig returns a Config initialized with default values.
func NewConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Players: DefaultPlayers,
		Courts:  DefaultCourts,
		Format:  "doubles",
		Rounds:  DefaultRounds,
		Workers: runtime.NumCPU(),
		Timeout: DefaultTimeout,
	}
}

// AddFlags binds the Config fields to command-line flags on the given FlagSet.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	fs.StringVar(&c.BaseURL, "url", c.BaseURL, "Base URL of the scheduler service.")
	fs.IntVarP(&c.Players, "players", "p", c.Players, "Players to register and add to the session.")
	fs.IntVarP(&c.Courts, "courts", "c", c.Courts, "Courts to start the session with.")
	fs.StringVarP(&c.Format, "format", "f", c.Format, "Match format: singles or doubles.")
	fs.IntVarP(&c.Rounds, "rounds", "r", c.Rounds, "Court completions to perform.")
	fs.IntVarP(&c.Workers, "workers", "w", c.Workers, "Concurrent completion requests.")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "Session seed; 0 lets the server pick one.")
	fs.IntVar(&c.PauseEvery, "pause-every", c.PauseEvery, "Pause and unpause a waiting attendee every N completions; 0 disables.")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "HTTP request timeout.")
	fs.StringVarP(&c.OutputFile, "output", "o", c.OutputFile, "Write the final games table as JSON to this file.")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "Enable verbose logging.")
}

// Validate checks the Config for invalid values.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: url must not be empty", ErrInvalidConfig)
	case c.Format != "singles" && c.Format != "doubles":
		return fmt.Errorf("%w: format must be singles or doubles, got %q", ErrInvalidConfig, c.Format)
	case c.Players < playersPerMatch(c.Format):
		return fmt.Errorf("%w: %s needs at least %d players", ErrInvalidConfig, c.Format, playersPerMatch(c.Format))
	case c.Courts <= 0:
		return fmt.Errorf("%w: courts must be positive", ErrInvalidConfig)
	case c.Rounds < 0:
		return fmt.Errorf("%w: rounds must not be negative", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.PauseEvery < 0:
		return fmt.Errorf("%w: pause-every must not be negative", ErrInvalidConfig)
	}
	return nil
}
