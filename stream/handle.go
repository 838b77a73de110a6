package stream

import (
	"context"
	"time"
)

// DefaultCancelReason is recorded by Cancel.
const DefaultCancelReason = "cancelled"

// Handle controls a running stream. It is safe for concurrent use and does
// not share fate with the stream: dropping it leaves the stream running.
type Handle struct {
	c *coordinator
}

// Tag returns the stream's correlation tag.
func (h *Handle) Tag() string { return h.c.tag }

// Function returns the function the stream executes.
func (h *Handle) Function() string { return h.c.function }

// State returns the coordinator's current lifecycle state.
func (h *Handle) State() State { return State(h.c.state.Load()) }

// Done returns a channel that is closed once the coordinator has terminated.
func (h *Handle) Done() <-chan struct{} { return h.c.done }

// Alive reports whether the coordinator is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.c.done:
		return false
	default:
		return true
	}
}

// Cancel requests cancellation with the default reason.
func (h *Handle) Cancel() error { return h.CancelWithReason(DefaultCancelReason) }

// CancelWithReason synchronously requests cancellation. It returns nil once
// the coordinator has fired the token and committed to StatusCancelled, and
// ErrNotAlive if the coordinator started terminating first (for any reason).
// Repeated and concurrent calls are safe, including from inside the callback.
func (h *Handle) CancelWithReason(reason string) error {
	reply := make(chan struct{})
	select {
	case h.c.mailbox <- cancelMsg{reason: reason, reply: reply}:
	case <-h.c.exiting:
		return ErrNotAlive
	}

	select {
	case <-reply:
		return nil
	case <-h.c.exiting:
		select {
		case <-reply:
			return nil
		default:
			return ErrNotAlive
		}
	}
}

// Await blocks until the coordinator terminates or timeout elapses. A
// terminated stream reports its recorded outcome immediately, even with a
// zero timeout. Completed and cancelled streams return a nil error; failed
// streams return the failure. On timeout it returns StatusPending and
// ErrTimeout and leaves nothing registered.
func (h *Handle) Await(timeout time.Duration) (Status, error) {
	select {
	case <-h.c.done:
		return h.outcome()
	default:
	}
	if timeout <= 0 {
		return StatusPending, ErrTimeout
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-h.c.done:
		return h.outcome()
	case <-t.C:
		return StatusPending, ErrTimeout
	}
}

// AwaitContext is Await bounded by ctx instead of a timeout. When ctx ends
// first it returns StatusPending and the context's cause.
func (h *Handle) AwaitContext(ctx context.Context) (Status, error) {
	select {
	case <-h.c.done:
		return h.outcome()
	case <-ctx.Done():
		return StatusPending, context.Cause(ctx)
	}
}

func (h *Handle) outcome() (Status, error) {
	if h.c.status == StatusFailed {
		return h.c.status, h.c.err
	}
	return h.c.status, nil
}
