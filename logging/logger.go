package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface for fnstream.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures construction of a slog backed Logger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds a Logger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) Logger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return NewSlogAdapter(slog.New(handler))
}

// NewSlogLogger creates a slog backed Logger writing to stderr.
func NewSlogLogger(level LogLevel, format string, addSource bool) Logger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StreamLogger decorates a Logger with contextual attributes that are
// attached to every entry. With* methods return copies; the receiver is
// never mutated, so a StreamLogger is safe to share between goroutines.
type StreamLogger struct {
	next  Logger
	attrs []any
}

// NewStreamLogger wraps l. A nil l discards everything.
func NewStreamLogger(l Logger) *StreamLogger {
	if l == nil {
		l = NoOpLogger{}
	}
	return &StreamLogger{next: l}
}

func (l *StreamLogger) with(kv ...any) *StreamLogger {
	attrs := make([]any, 0, len(l.attrs)+len(kv))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, kv...)
	return &StreamLogger{next: l.next, attrs: attrs}
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *StreamLogger) WithContext(key string, value any) *StreamLogger {
	return l.with(key, value)
}

// WithComponent sets the logical component (coordinator, worker, model, etc.).
func (l *StreamLogger) WithComponent(c string) *StreamLogger {
	return l.with("component", c)
}

// WithStream attaches the stream correlation tag and function name.
func (l *StreamLogger) WithStream(tag, function string) *StreamLogger {
	return l.with("tag", tag, "function", function)
}

func (l *StreamLogger) args(kv []any) []any {
	if len(l.attrs) == 0 {
		return kv
	}
	out := make([]any, 0, len(l.attrs)+len(kv))
	out = append(out, l.attrs...)
	return append(out, kv...)
}

// Debug logs at debug level.
func (l *StreamLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.args(args)...) }

// Info logs at info level.
func (l *StreamLogger) Info(msg string, args ...any) { l.next.Info(msg, l.args(args)...) }

// Warn logs at warn level.
func (l *StreamLogger) Warn(msg string, args ...any) { l.next.Warn(msg, l.args(args)...) }

// Error logs at error level.
func (l *StreamLogger) Error(msg string, args ...any) { l.next.Error(msg, l.args(args)...) }

// LogModelCall records model call latency, token usage and success.
func (l *StreamLogger) LogModelCall(provider, client string, inputTokens, outputTokens int64, dur time.Duration, err error) {
	args := []any{
		"provider", provider,
		"client", client,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
		"duration", dur,
	}
	if err != nil {
		l.Warn("model.call.failed", append(args, "error", err)...)
		return
	}
	l.Debug("model.call.completed", args...)
}

// LogStreamExit records how a stream terminated. Failures log at warn level.
func (l *StreamLogger) LogStreamExit(status string, dur time.Duration, partials int64, err error) {
	args := []any{"status", status, "duration", dur, "partials", partials}
	if err != nil {
		l.Warn("stream.exit", append(args, "error", err)...)
		return
	}
	l.Info("stream.exit", args...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
