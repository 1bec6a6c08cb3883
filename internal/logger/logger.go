// Package logger provides the client's structured logger: millisecond
// timestamps, one-letter level tags, and key=value attributes, written
// through a minimal custom slog.Handler rather than either of the stock
// handlers. The minimum level is configurable via WALRUS_LOG_LEVEL
// (debug/info/warn/error) so a CLI run can be quieted or turned up
// without touching code.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Init sets up the process-wide default logger. Safe to call multiple
// times; only the first call takes effect.
func Init() {
	once.Do(func() {
		handler := NewHandler(os.Stdout, levelFromEnv())
		defaultLogger = slog.New(handler)
		slog.SetDefault(defaultLogger)
	})
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("WALRUS_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler formats records as "timestamp [LVL] message key=value ...".
type Handler struct {
	out      io.Writer
	minLevel slog.Level
	mu       sync.Mutex
}

// NewHandler creates a handler writing to out, filtering below minLevel.
func NewHandler(out io.Writer, minLevel slog.Level) *Handler {
	return &Handler{out: out, minLevel: minLevel}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.Format("2006-01-02 15:04:05.000")
	level := levelTag(r.Level)

	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(h.out, "%s [%s] %s", ts, level, r.Message)

	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
		return true
	})

	fmt.Fprintln(h.out)

	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *Handler) WithGroup(name string) slog.Handler       { return h }

func levelTag(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DBG"
	case slog.LevelInfo:
		return "INF"
	case slog.LevelWarn:
		return "WRN"
	case slog.LevelError:
		return "ERR"
	default:
		return "???"
	}
}

// Info logs at INFO level on the default logger.
func Info(msg string, args ...any) { slog.Info(msg, args...) }

// Debug logs at DEBUG level on the default logger.
func Debug(msg string, args ...any) { slog.Debug(msg, args...) }

// Warn logs at WARN level on the default logger.
func Warn(msg string, args ...any) { slog.Warn(msg, args...) }

// Error logs at ERROR level on the default logger.
func Error(msg string, args ...any) { slog.Error(msg, args...) }

// With returns a logger carrying the given attributes on every record.
func With(args ...any) *slog.Logger { return slog.Default().With(args...) }

// Timed returns a slog.Attr holding the elapsed time since start, for
// logging an operation's duration at its completion point.
func Timed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
