// Package logging configures the process-wide slog default.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// Setup installs a charmbracelet/log handler as the slog default, at the
// given level. Unknown levels fall back to info.
func Setup(w io.Writer, level string) *slog.Logger {
	opts := log.Options{
		ReportTimestamp: true,
	}

	switch strings.ToLower(level) {
	case "trace", "debug":
		opts.Level = log.DebugLevel
		opts.ReportCaller = true
	case "warn", "warning":
		opts.Level = log.WarnLevel
	case "error":
		opts.Level = log.ErrorLevel
	default:
		opts.Level = log.InfoLevel
	}

	handler := log.NewWithOptions(w, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
