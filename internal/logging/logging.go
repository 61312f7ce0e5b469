// Package logging builds the process logger: a slug console handler, fanned
// out to an optional append-only log file.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dotse/slug"
	slogmulti "github.com/samber/slog-multi"
)

// ErrLevel is returned for a log level name slog does not understand.
var ErrLevel = errors.New("unknown log level")

// ParseLevel reads a level name as written in the config ("debug", "INFO",
// "warn+2"). An empty name means info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrLevel, name)
	}
	return level, nil
}

// New returns a logger writing to console and, when logPath is set, also to
// that file. The returned closer releases the file.
func New(console io.Writer, level slog.Leveler, logPath string) (*slog.Logger, func() error, error) {
	var (
		closer = func() error { return nil }
		opts   = slug.HandlerOptions{
			HandlerOptions: slog.HandlerOptions{Level: level},
		}
		handlers = []slog.Handler{slug.NewHandler(opts, console)}
	)

	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closer = logFile.Close
		handlers = append(handlers, slug.NewHandler(opts, logFile))
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Discard is a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
