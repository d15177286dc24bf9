package simulate

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/rally/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging initializes the global logger writing to stdout and, when
// logFile is set, to that file as well. It returns a function that closes
// the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	var out io.Writer = os.Stdout
	closeFn := func() error { return nil }

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closeFn = file.Close
	}

	if err := logger.Init(logger.WithWriter(out)); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closeFn, nil
}
