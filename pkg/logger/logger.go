// Package logger configures the process-wide slog logger for the CLI.
package logger

import (
	"log/slog"
	"os"
)

// NewWithLevel builds a text logger writing to stderr at the given level and
// installs it as the process default, so package-level slog calls throughout
// the pipeline honor the CLI verbosity flags.
func NewWithLevel(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}
