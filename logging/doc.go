// Package logging provides a minimal logging interface and adapters for fnstream.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that coordinators and models use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StreamLogger adding stream-scoped attributes (component, tag, function)
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	client := fnstream.New(func(o *fnstream.Options) { o.Logger = logger })
//
// Messages are dotted event names ("stream.exit", "stream.callback.panic")
// followed by key/value attributes.
package logging
