// ABOUTME: Logging setup for the voice binaries
// ABOUTME: Routes logrus to a log file, and to stdout as well when the TUI is off
package app

import (
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/sirupsen/logrus"
)

// SetupLogging configures the global logger. The returned file must be
// closed by the caller.
func SetupLogging(cfg config.LogConfig, useTUI bool) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	f, err := os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	logrus.SetLevel(level)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if useTUI {
		// The TUI owns the terminal
		logrus.SetOutput(f)
	} else {
		logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	return f, nil
}
