// Package logging builds the slog loggers used across face-sorter.
//
// Loggers are constructed once in the command layer and passed to components
// explicitly; no package keeps a process-wide logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options describes logger construction parameters.
type Options struct {
	Level string // debug, info, warn, error
	Dir   string // when set, a timestamped run log file is written there
}

// New constructs a slog logger writing to stderr and, when a directory is
// configured, to a per-run log file. The returned close function flushes and
// closes the file; it is safe to call when no file was opened.
func New(opts Options) (*slog.Logger, func() error, error) {
	writers := []io.Writer{os.Stderr}
	closeFn := func() error { return nil }

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		name := fmt.Sprintf("facesorter_%s.log", time.Now().Format("20060102_150405"))
		f, err := os.OpenFile(filepath.Join(opts.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create log file: %w", err)
		}
		writers = append(writers, f)
		closeFn = f.Close
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: parseLevel(opts.Level),
	})
	return slog.New(handler), closeFn, nil
}

// NewNop returns a logger that discards everything, for tests and wiring
// code that cannot fail.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
