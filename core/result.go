package core

// Kind labels a tagged result.
type Kind int

const (
	// KindPartial is an interim value; more results follow.
	KindPartial Kind = iota
	// KindDone is the successful terminal value.
	KindDone
	// KindError is the failed terminal outcome.
	KindError
)

// String returns the lowercase tag name.
func (k Kind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is a tagged outcome produced by an engine and relayed to callers.
// Value is set for partial and done results, Err for error results.
type Result struct {
	Kind  Kind
	Value any
	Err   error
}

// Partial builds an interim result.
func Partial(v any) Result { return Result{Kind: KindPartial, Value: v} }

// Done builds a successful terminal result.
func Done(v any) Result { return Result{Kind: KindDone, Value: v} }

// Failure builds a failed terminal result.
func Failure(err error) Result { return Result{Kind: KindError, Err: err} }

// IsTerminal reports whether r ends a stream.
func (r Result) IsTerminal() bool { return r.Kind == KindDone || r.Kind == KindError }

// Callback receives every result of a stream, in order. It runs on the
// stream's worker goroutine; a panic inside it is recovered and logged.
type Callback func(Result)
