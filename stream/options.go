package stream

import (
	"github.com/hupe1980/fnstream/logging"
	"github.com/hupe1980/fnstream/metrics"
	"github.com/hupe1980/fnstream/normalize"
)

// Options configures a coordinator.
type Options struct {
	// Logger receives lifecycle, cancel and callback-panic events.
	Logger logging.Logger
	// Metrics records lifecycle metrics. Nil disables them.
	Metrics *metrics.Metrics
	// Registry resolves domain types during normalization. Nil normalizes
	// every class to an ordered map and every enum to its raw string.
	Registry *normalize.Registry
	// MailboxSize is the coordinator mailbox buffer.
	MailboxSize int
	// InboxSize is the worker relay buffer between engine and callback.
	InboxSize int
}

func defaultOptions() Options {
	return Options{
		Logger:      logging.NoOpLogger{},
		MailboxSize: 8,
		InboxSize:   16,
	}
}
