// Command rally-sim drives a live scheduler through a simulated club night
// and verifies the fairness invariants over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/rally/internal/simulate"
	"github.com/okian/rally/pkg/logger"
	"github.com/spf13/pflag"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	cfg := simulate.NewConfig()
	cfg.AddFlags(pflag.CommandLine)
	logFile := pflag.String("log", "", "Also write logs to this file.")
	runTimeout := pflag.Duration("run-timeout", defaultRunTimeout, "Abort the whole run after this long.")
	pflag.Parse()

	if err := cfg.Validate(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		pflag.Usage()
		os.Exit(2)
	}

	closeLog, err := simulate.SetupLogging(*logFile, cfg.Verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *runTimeout)
	defer cancel()

	report, err := simulate.Run(ctx, cfg)
	if err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		_ = closeLog()
		os.Exit(1)
	}
	logger.Get().Info(ctx, "simulation passed",
		logger.String("session", report.SessionID),
		logger.Int("completions", report.Stats.Completions),
		logger.Int("spread", report.Spread))
}
