package model

import (
	"context"
	"fmt"

	"github.com/hupe1980/fnstream/core"
)

// Request captures a single function invocation.
type Request struct {
	Function string           `json:"function"`
	Args     map[string]any   `json:"args,omitempty"`
	Options  core.CallOptions `json:"-"`
}

// Sink receives interim results pushed by an engine during StreamCall. The
// tag must be the correlation tag passed to StreamCall; results carrying a
// different tag are dropped by the receiver.
type Sink interface {
	Send(tag string, r core.Result)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(tag string, r core.Result)

// Send implements Sink.
func (f SinkFunc) Send(tag string, r core.Result) { f(tag, r) }

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the engine boundary consumed by the stream coordinator and the
// synchronous call path.
type Model interface {
	// Prepare validates that req can be executed at all (known function,
	// well-formed arguments) without performing any work. Errors wrap
	// core.ErrUnknownFunction or core.ErrInvalidArgs.
	Prepare(req Request) error

	// StreamCall blocks for the duration of the call. It pushes zero or more
	// partial results to dest tagged with tag and returns exactly one terminal
	// result (done or error). When tok fires it stops at its next checkpoint
	// and returns promptly.
	StreamCall(tok *core.Token, dest Sink, tag string, req Request) core.Result

	// Call is the non-streaming counterpart. It returns a terminal result.
	Call(ctx context.Context, req Request) core.Result

	// Info returns information about the model implementation.
	Info() Info
}

// CheckTerminal converts a non-terminal result returned by a misbehaving
// engine into a failure so callers can rely on the terminal contract.
func CheckTerminal(r core.Result) core.Result {
	if r.IsTerminal() {
		return r
	}
	return core.Failure(fmt.Errorf("model: engine returned non-terminal %s result", r.Kind))
}
