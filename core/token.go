package core

import (
	"context"
	"sync/atomic"
)

// Token is a single-use cooperative stop signal. It starts armed and moves to
// fired exactly once; every later Fire is a no-op. Engines observe the token
// through Context (or Done) and stop producing results at their next
// checkpoint.
//
// A Token is safe for concurrent use without external locking.
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	fired  atomic.Bool
}

// NewToken creates an armed token. The token's context inherits values from
// parent; whether parent cancellation propagates is the caller's decision
// (coordinators pass context.WithoutCancel so only they can fire it).
func NewToken(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Fire transitions the token to fired. The first caller's cause is recorded;
// a nil cause records ErrCancelled. Concurrent and repeated calls are safe.
func (t *Token) Fire(cause error) {
	if !t.fired.CompareAndSwap(false, true) {
		return
	}
	if cause == nil {
		cause = ErrCancelled
	}
	t.cancel(cause)
}

// Fired reports whether Fire has taken effect.
func (t *Token) Fired() bool { return t.fired.Load() }

// Context returns a context that is cancelled when the token fires.
func (t *Token) Context() context.Context { return t.ctx }

// Done is shorthand for Context().Done().
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Cause returns the recorded fire cause, or nil while armed.
func (t *Token) Cause() error {
	if !t.Fired() {
		return nil
	}
	return context.Cause(t.ctx)
}

// AfterFire registers fn to run once in its own goroutine when the token
// fires. The returned stop function unregisters fn and reports whether it
// did so before fn was started.
func (t *Token) AfterFire(fn func()) (stop func() bool) {
	return context.AfterFunc(t.ctx, fn)
}
