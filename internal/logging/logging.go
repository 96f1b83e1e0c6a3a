// Package logging builds the launcher's slog logger. Records fan out to
// the launcher log file, to stderr when verbose, and to the systemd
// journal when the launcher runs as a systemd service.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures New.
type Options struct {
	// Path is the log file. Empty disables file logging.
	Path string
	// Verbose also logs to Stderr.
	Verbose bool
	Stderr  io.Writer
	Level   slog.Level
}

// Logger is a slog logger plus the resources behind it.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar

	file *os.File
}

// New opens the log file (append, 0600) and builds the fan-out logger.
func New(opts Options) (*Logger, error) {
	level := new(slog.LevelVar)
	level.Set(opts.Level)
	hopts := &slog.HandlerOptions{Level: level}

	l := &Logger{Level: level}
	var handlers []slog.Handler

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewTextHandler(f, hopts))
	}

	if opts.Verbose {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		handlers = append(handlers, slog.NewTextHandler(w, hopts))
	}

	if h, ok := journalHandler(level); ok {
		handlers = append(handlers, h)
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(io.Discard, hopts))
	}
	l.Logger = slog.New(slogmulti.Fanout(handlers...))
	return l, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
}

// leveled gates a handler that has no level option of its own.
type leveled struct {
	slog.Handler
	level slog.Leveler
}

func (h leveled) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.Handler.Enabled(ctx, l)
}

func (h leveled) WithAttrs(attrs []slog.Attr) slog.Handler {
	return leveled{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h leveled) WithGroup(name string) slog.Handler {
	return leveled{Handler: h.Handler.WithGroup(name), level: h.level}
}
