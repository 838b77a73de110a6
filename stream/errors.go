package stream

import "errors"

var (
	// ErrNotAlive is returned by Cancel when the coordinator has already
	// terminated. Callers treat it as "already finished or cancelled".
	ErrNotAlive = errors.New("stream: coordinator not alive")

	// ErrTimeout is returned by Await when the coordinator did not terminate
	// within the timeout.
	ErrTimeout = errors.New("stream: await timeout")

	// ErrKilled is the failure recorded when the context passed to Start is
	// cancelled before the stream finished.
	ErrKilled = errors.New("stream: killed by owner")

	// ErrClosed is the token cause recorded when a stream terminates without
	// an explicit cancel or failure.
	ErrClosed = errors.New("stream: closed")
)
