package core

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrCancelled is the default cause recorded when a token fires.
	ErrCancelled = errors.New("fnstream: cancelled")

	// ErrUnknownFunction is returned when a function identifier cannot be resolved.
	ErrUnknownFunction = errors.New("fnstream: unknown function")

	// ErrInvalidArgs is returned when call arguments do not match the function parameters.
	ErrInvalidArgs = errors.New("fnstream: invalid arguments")

	// ErrNilCallback is returned when a stream is started without a callback.
	ErrNilCallback = errors.New("fnstream: nil callback")

	// ErrNilModel is returned when a stream or call has no engine to run on.
	ErrNilModel = errors.New("fnstream: nil model")
)

// CancelledError is the fire cause recorded by an explicit cancel request.
// errors.Is(err, ErrCancelled) reports true for it.
type CancelledError struct {
	Reason string
}

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCancelled.Error(), e.Reason)
}

// Is lets errors.Is match ErrCancelled.
func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// PanicError wraps a recovered panic value together with the goroutine
// stack captured at the point of recovery.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewPanicError captures the current goroutine stack for v.
func NewPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: v, Stack: string(buf[:n])}
}
