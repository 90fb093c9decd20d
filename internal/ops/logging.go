package ops

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/relaysync/nip65sync/internal/config"
)

// Logger is a structured logger wrapper.
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
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

// NewLogger creates a new structured logger based on config, writing to stdout.
func NewLogger(cfg *config.Logging) *Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a logger with a custom writer.
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	level := levelFromString(cfg.Level)

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// WithComponent adds a component field to all log messages.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
		format: l.format,
	}
}

// WithFields adds custom fields to the logger.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		level:  l.level,
		format: l.format,
	}
}

// IsDebugEnabled returns true if debug logging is enabled.
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// LogRelayConnection logs a relay connection lifecycle event.
func (l *Logger) LogRelayConnection(relay string, connected bool, err error) {
	if err != nil {
		l.Warn("relay connection failed", "relay", relay, "error", err)
	} else if connected {
		l.Info("relay connected", "relay", relay)
	} else {
		l.Info("relay disconnected", "relay", relay)
	}
}

// LogBatchFetch logs the outcome of one batch fetcher invocation.
func (l *Logger) LogBatchFetch(until int64, relayCount, eventCount int, duration time.Duration, err error) {
	if err != nil {
		l.Error("batch fetch failed",
			"until", until,
			"relays", relayCount,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("batch fetch completed",
			"until", until,
			"relays", relayCount,
			"events", eventCount,
			"duration_ms", duration.Milliseconds())
	}
}

// LogPublish logs the outcome of a publish attempt for one event.
func (l *Logger) LogPublish(eventID string, targets []string, err error) {
	if err != nil {
		l.Error("publish failed", "event_id", eventID, "targets", targets, "error", err)
	} else {
		l.Debug("publish succeeded", "event_id", eventID, "targets", targets)
	}
}

// LogCheckpoint logs a resume-checkpoint persistence operation.
func (l *Logger) LogCheckpoint(pubkey, direction string, cursorUntil int64, err error) {
	if err != nil {
		l.Error("checkpoint save failed", "pubkey", pubkey, "direction", direction, "error", err)
	} else {
		l.Debug("checkpoint saved", "pubkey", pubkey, "direction", direction, "cursor_until", cursorUntil)
	}
}

// LogStartup logs application startup information.
func (l *Logger) LogStartup(version string, cfg map[string]interface{}) {
	l.Info("nip65sync starting", "version", version, "config", cfg)
}

// LogShutdown logs application shutdown.
func (l *Logger) LogShutdown(reason string) {
	l.Info("nip65sync shutting down", "reason", reason)
}

// LogPanic logs a panic with stack trace.
func (l *Logger) LogPanic(recovered interface{}, stack string) {
	l.Error("panic recovered", "panic", fmt.Sprintf("%v", recovered), "stack", stack)
}

var defaultLogger *Logger

func init() {
	defaultLogger = NewLogger(&config.Logging{Level: "info", Format: "text"})
}

// Default returns the default logger.
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Info logs an info message on the default logger.
func Info(msg string, fields ...any) { defaultLogger.Info(msg, fields...) }

// Debug logs a debug message on the default logger.
func Debug(msg string, fields ...any) { defaultLogger.Debug(msg, fields...) }

// Warn logs a warning message on the default logger.
func Warn(msg string, fields ...any) { defaultLogger.Warn(msg, fields...) }

// Error logs an error message on the default logger.
func Error(msg string, fields ...any) { defaultLogger.Error(msg, fields...) }
